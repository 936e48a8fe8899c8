package overlay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/keyexpr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	samples []Sample
}

func (c *collector) callback(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, s)
}

func (c *collector) keys() []keyexpr.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]keyexpr.Key, 0, len(c.samples))
	for _, s := range c.samples {
		keys = append(keys, s.Key)
	}
	return keys
}

func TestLocalDispatch(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()

	exact, wild, other := &collector{}, &collector{}, &collector{}
	_, err := s.DeclareSubscriber("home/temp", Any, exact.callback)
	require.NoError(t, err)
	_, err = s.DeclareSubscriber("home/*", SessionLocal, wild.callback)
	require.NoError(t, err)
	_, err = s.DeclareSubscriber("office/**", Any, other.callback)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "home/temp", []byte("21"), keyexpr.EncodingJSON, SessionLocal))
	require.NoError(t, s.Put(context.Background(), "home/light", []byte("on"), keyexpr.EncodingText, Any))

	assert.Equal(t, []keyexpr.Key{"home/temp"}, exact.keys())
	assert.Equal(t, []keyexpr.Key{"home/temp", "home/light"}, wild.keys())
	assert.Empty(t, other.keys())
}

func TestPutRejectsWildcardKey(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	assert.Error(t, s.Put(context.Background(), "home/*", nil, keyexpr.EncodingText, Any))
}

func TestUndeclare(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()

	c := &collector{}
	sub, err := s.DeclareSubscriber("a", Any, c.callback)
	require.NoError(t, err)
	assert.Equal(t, keyexpr.Key("a"), sub.Key())
	assert.Equal(t, Any, sub.Origin())
	assert.Equal(t, 1, s.SubscriberCount())

	sub.Undeclare()
	sub.Undeclare()
	assert.Equal(t, 0, s.SubscriberCount())

	require.NoError(t, s.Put(context.Background(), "a", []byte("x"), keyexpr.EncodingText, Any))
	assert.Empty(t, c.keys())
}

func TestClosedSession(t *testing.T) {
	s := NewSession(nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.DeclareSubscriber("a", Any, func(Sample) {})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.Put(context.Background(), "a", nil, keyexpr.EncodingText, Any), ErrSessionClosed)
}

func TestNilCallback(t *testing.T) {
	s := NewSession(nil)
	defer s.Close()
	_, err := s.DeclareSubscriber("a", Any, nil)
	assert.ErrorIs(t, err, ErrNilCallback)
}

func TestBackboneLocality(t *testing.T) {
	hub := NewMemoryHub()
	local := NewSession(hub.Backbone())
	defer local.Close()
	remote := NewSession(hub.Backbone())
	defer remote.Close()

	anyOrigin := make(chan Sample, 4)
	localOrigin := make(chan Sample, 4)
	_, err := remote.DeclareSubscriber("home/**", Any, func(s Sample) { anyOrigin <- s })
	require.NoError(t, err)
	_, err = remote.DeclareSubscriber("home/**", SessionLocal, func(s Sample) { localOrigin <- s })
	require.NoError(t, err)

	// SessionLocal publications never leave the publishing process
	require.NoError(t, local.Put(context.Background(), "home/secret", []byte("x"), keyexpr.EncodingText, SessionLocal))
	require.NoError(t, local.Put(context.Background(), "home/temp", []byte("21"), keyexpr.EncodingJSON, Any))

	select {
	case s := <-anyOrigin:
		assert.Equal(t, keyexpr.Key("home/temp"), s.Key)
		assert.Equal(t, []byte("21"), s.Payload)
		assert.Equal(t, keyexpr.EncodingJSON, s.Encoding)
	case <-time.After(2 * time.Second):
		t.Fatal("remote sample not delivered")
	}

	select {
	case s := <-localOrigin:
		t.Fatalf("session-local subscriber received remote sample %s", s.Key)
	case s := <-anyOrigin:
		t.Fatalf("unexpected sample %s", s.Key)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBackboneIgnoresOwnPublications(t *testing.T) {
	hub := NewMemoryHub()
	s := NewSession(hub.Backbone())
	defer s.Close()

	received := make(chan Sample, 4)
	_, err := s.DeclareSubscriber("a", Any, func(sample Sample) { received <- sample })
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "a", []byte("1"), keyexpr.EncodingText, Any))
	require.Len(t, received, 1)

	select {
	case <-received:
	default:
	}
	select {
	case <-received:
		t.Fatal("own publication delivered twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLocalityString(t *testing.T) {
	assert.Equal(t, "Any", Any.String())
	assert.Equal(t, "SessionLocal", SessionLocal.String())
	assert.Equal(t, "Locality(7)", Locality(7).String())
}
