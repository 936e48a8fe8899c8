package bridge

import (
	"errors"
	"fmt"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/keyexpr"
)

var ErrChannelClosed = errors.New("outbound channel closed")

// PublishError is returned when the overlay network rejects a publication.
type PublishError struct {
	ClientID string
	Key      keyexpr.Key
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("MQTT client %s: error publishing on '%s': %v", e.ClientID, e.Key, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// DeliveryError is raised when the MQTT sink refuses a message.
type DeliveryError struct {
	ClientID string
	Topic    string
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to send MQTT message on '%s' for client %s: %v", e.Topic, e.ClientID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
