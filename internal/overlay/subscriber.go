package overlay

import (
	"sync"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/keyexpr"
)

// Subscriber is a live registration on an overlay Session.
type Subscriber struct {
	id       uint64
	key      keyexpr.Key
	origin   Locality
	callback Callback
	session  *Session
	once     sync.Once
}

func (s *Subscriber) Key() keyexpr.Key {
	return s.key
}

func (s *Subscriber) Origin() Locality {
	return s.origin
}

// Undeclare removes the subscriber. Calling it more than once is harmless.
func (s *Subscriber) Undeclare() {
	s.once.Do(func() {
		s.session.undeclare(s.id)
	})
}
