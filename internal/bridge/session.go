// Package bridge holds the per-client state that routes MQTT publications
// onto the overlay network and overlay samples back to the MQTT client.
package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/keyexpr"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/overlay"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/policy"
)

// Session is the bridging state of one connected MQTT client.
type Session struct {
	clientID string
	zsession *overlay.Session
	config   *config.BridgeConfig

	mu   sync.RWMutex
	subs map[string]*overlay.Subscriber

	tx        *outbound
	closeOnce sync.Once
}

// NewSession creates the session and starts its delivery goroutine.
func NewSession(clientID string, zsession *overlay.Session, cfg *config.BridgeConfig, sink Sink) *Session {
	if cfg == nil {
		cfg = &config.BridgeConfig{}
	}
	tx := newOutbound()
	spawnMQTTPublisher(clientID, tx, sink)

	return &Session{
		clientID: clientID,
		zsession: zsession,
		config:   cfg,
		subs:     make(map[string]*overlay.Subscriber),
		tx:       tx,
	}
}

func (s *Session) ClientID() string {
	return s.clientID
}

// MapMQTTSubscription declares an overlay subscriber for topic unless one
// already exists. Topics rejected by the routing policy are only fed by
// publications from this bridge process.
func (s *Session) MapMQTTSubscription(ctx context.Context, topic string) error {
	origin := policy.Locality(topic, s.config)
	if origin == overlay.SessionLocal {
		logger.DebugF("MQTT Client %s: topic '%s' is not allowed to be routed over the overlay network (see your 'allow' or 'deny' configuration) - re-publish only from MQTT publishers",
			s.clientID, topic)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tx.isClosed() {
		return ErrChannelClosed
	}
	if _, ok := s.subs[topic]; ok {
		logger.DebugF("MQTT Client %s already subscribes to %s => ignore", s.clientID, topic)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := keyexpr.TopicToKey(topic, s.config.Scope)
	if err != nil {
		return err
	}

	clientID, scope, tx := s.clientID, s.config.Scope, s.tx
	sub, err := s.zsession.DeclareSubscriber(key, origin, func(sample overlay.Sample) {
		if err := routeOverlayToMQTT(sample, clientID, scope, tx); err != nil {
			logger.WarnF("%v", err)
		}
	})
	if err != nil {
		return err
	}

	s.subs[topic] = sub
	return nil
}

// RouteMQTTToOverlay publishes an MQTT publication on the overlay network.
// Topics rejected by the routing policy are only delivered to subscribers of
// this bridge process.
func (s *Session) RouteMQTTToOverlay(ctx context.Context, topic string, payload []byte) error {
	destination := policy.Locality(topic, s.config)
	if destination == overlay.SessionLocal {
		logger.TraceF("MQTT Client %s: topic '%s' is not allowed to be routed over the overlay network (see your 'allow' or 'deny' configuration) - re-publish only to MQTT subscribers",
			s.clientID, topic)
	}

	key, err := keyexpr.TopicToKey(topic, s.config.Scope)
	if err != nil {
		return err
	}
	if key.IsWild() {
		return &keyexpr.TranslationError{Input: topic, Scope: s.config.Scope, Reason: "wildcards are not allowed in a publish topic"}
	}

	encoding := keyexpr.GuessEncoding(payload)
	logger.TraceF("MQTT client %s: route from MQTT '%s' to overlay '%s' (encoding=%s)", s.clientID, topic, key, encoding)

	if err := s.zsession.Put(ctx, key, payload, encoding, destination); err != nil {
		return &PublishError{ClientID: s.clientID, Key: key, Err: err}
	}
	return nil
}

func routeOverlayToMQTT(sample overlay.Sample, clientID string, scope string, tx *outbound) error {
	topic, err := keyexpr.KeyToTopic(sample.Key, scope)
	if err != nil {
		return err
	}
	logger.TraceF("MQTT client %s: route from overlay '%s' to MQTT '%s'", clientID, sample.Key, topic)
	if err := tx.send(outboundMessage{topic: topic, payload: sample.Payload}); err != nil {
		return fmt.Errorf("MQTT client %s: error re-publishing on MQTT an overlay publication on %s: %w", clientID, sample.Key, err)
	}
	return nil
}

// Subscriptions returns the subscribed topics with their locality.
func (s *Session) Subscriptions() map[string]overlay.Locality {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]overlay.Locality, len(s.subs))
	for topic, sub := range s.subs {
		result[topic] = sub.Origin()
	}
	return result
}

// Topics returns the subscribed topics in lexical order.
func (s *Session) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := make([]string, 0, len(s.subs))
	for topic := range s.subs {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Done is closed when the delivery goroutine has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.tx.stopped
}

func (s *Session) DeliveryState() DeliveryState {
	return DeliveryState(s.tx.state.Load())
}

// Close undeclares every overlay subscriber and closes the outbound channel,
// which stops the delivery goroutine. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		close(s.tx.closed)
		for topic, sub := range s.subs {
			sub.Undeclare()
			delete(s.subs, topic)
		}
		s.mu.Unlock()
		logger.DebugF("[%s] Bridge session closed", s.clientID)
	})
}
