// Package overlay implements the publish/subscribe network the MQTT clients
// are bridged onto. A Session routes publications between subscribers of the
// same process and, through an optional Backbone, to other bridge processes.
package overlay

import (
	"context"
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/keyexpr"
)

// Locality restricts who can observe a publication or satisfy a subscription.
type Locality int

const (
	// Any 表示整个 overlay 网络可见
	Any Locality = iota
	// SessionLocal 表示仅当前 bridge 进程内可见
	SessionLocal
)

func (l Locality) String() string {
	switch l {
	case Any:
		return "Any"
	case SessionLocal:
		return "SessionLocal"
	default:
		return fmt.Sprintf("Locality(%d)", int(l))
	}
}

type Sample struct {
	Key      keyexpr.Key
	Payload  []byte
	Encoding keyexpr.Encoding
}

// Callback is invoked synchronously in the dispatching goroutine.
type Callback func(sample Sample)

// Envelope is the form a publication takes on the backbone.
type Envelope struct {
	Origin   string `bson:"origin"`
	Key      string `bson:"key"`
	Encoding string `bson:"encoding"`
	Payload  []byte `bson:"payload"`
}

// Backbone carries Any-destination publications between bridge processes.
type Backbone interface {
	Publish(ctx context.Context, envelope Envelope) error
	// Run delivers every received envelope to handler until ctx is done.
	Run(ctx context.Context, handler func(Envelope)) error
	Close() error
}

var (
	ErrSessionClosed = errors.New("overlay session closed")
	ErrNilCallback   = errors.New("subscriber callback is nil")
)
