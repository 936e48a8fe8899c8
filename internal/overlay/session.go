package overlay

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/keyexpr"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
)

type Session struct {
	id       string
	backbone Backbone

	mu          sync.RWMutex
	subscribers map[uint64]*Subscriber
	nextID      uint64
	closed      bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates an overlay session. With a nil backbone every
// publication stays inside this process.
func NewSession(backbone Backbone) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          uuid.NewString(),
		backbone:    backbone,
		subscribers: make(map[uint64]*Subscriber),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	if backbone == nil {
		close(s.done)
		return s
	}
	go func() {
		defer close(s.done)
		if err := backbone.Run(ctx, s.receive); err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorF("Overlay backbone stopped, details: %v", err)
		}
	}()
	return s
}

func (s *Session) ID() string {
	return s.id
}

// DeclareSubscriber registers callback for every sample whose key intersects
// key. A SessionLocal origin only accepts publications made in this process.
func (s *Session) DeclareSubscriber(key keyexpr.Key, origin Locality, callback Callback) (*Subscriber, error) {
	if callback == nil {
		return nil, ErrNilCallback
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.nextID++
	sub := &Subscriber{
		id:       s.nextID,
		key:      key,
		origin:   origin,
		callback: callback,
		session:  s,
	}
	s.subscribers[sub.id] = sub
	logger.DebugF("Overlay subscriber #%d declared on '%s' (origin=%s)", sub.id, key, origin)
	return sub, nil
}

// Put publishes payload at key. Matching subscribers of this session are
// called before Put returns; with destination Any the sample is also handed
// to the backbone.
func (s *Session) Put(ctx context.Context, key keyexpr.Key, payload []byte, encoding keyexpr.Encoding, destination Locality) error {
	if key.IsWild() {
		return fmt.Errorf("cannot publish on wildcard key '%s'", key)
	}
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrSessionClosed
	}

	sample := Sample{Key: key, Payload: bytes.Clone(payload), Encoding: encoding}
	s.dispatch(sample, false)

	if destination != Any || s.backbone == nil {
		return nil
	}
	err := s.backbone.Publish(ctx, Envelope{
		Origin:   s.id,
		Key:      string(key),
		Encoding: string(encoding),
		Payload:  sample.Payload,
	})
	if err != nil {
		return fmt.Errorf("error occured while publishing '%s' on backbone: %w", key, err)
	}
	return nil
}

func (s *Session) receive(envelope Envelope) {
	if envelope.Origin == s.id {
		return
	}
	s.dispatch(Sample{
		Key:      keyexpr.Key(envelope.Key),
		Payload:  envelope.Payload,
		Encoding: keyexpr.Encoding(envelope.Encoding),
	}, true)
}

func (s *Session) dispatch(sample Sample, remote bool) {
	s.mu.RLock()
	matched := make([]*Subscriber, 0)
	for _, sub := range s.subscribers {
		if remote && sub.origin != Any {
			continue
		}
		if keyexpr.Intersects(sub.key, sample.Key) {
			matched = append(matched, sub)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *Subscriber) int {
		return cmp.Compare(a.id, b.id)
	})
	for _, sub := range matched {
		sub.callback(sample)
	}
}

func (s *Session) undeclare(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

// SubscriberCount returns the number of declared subscribers.
func (s *Session) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Shutdown stops the backbone receiver and drops every subscriber. It waits
// for the receiver to exit until ctx is done.
func (s *Session) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.subscribers = make(map[uint64]*Subscriber)
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.backbone != nil {
		return s.backbone.Close()
	}
	return nil
}

func (s *Session) Close() error {
	return s.Shutdown(context.Background())
}

type CloseCallback struct {
	session *Session
}

func NewCloseCallback(session *Session) *CloseCallback {
	return &CloseCallback{session: session}
}

func (cc *CloseCallback) Invoke(ctx context.Context) error {
	logger.InfoF("Closing overlay session %s", cc.session.id)
	return cc.session.Shutdown(ctx)
}
