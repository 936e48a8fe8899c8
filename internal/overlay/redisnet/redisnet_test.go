package redisnet

import (
	"context"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/keyexpr"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/overlay"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newBackbone(t *testing.T) *Backbone {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := Connect(ctx, Config{
		Client:        redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
		ChannelPrefix: "test:mqtt-bridge:" + t.Name() + ":",
	})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return b
}

func TestBackboneBetweenSessions(t *testing.T) {
	a := overlay.NewSession(newBackbone(t))
	defer a.Close()
	b := overlay.NewSession(newBackbone(t))
	defer b.Close()

	received := make(chan overlay.Sample, 4)
	_, err := b.DeclareSubscriber("home/**", overlay.Any, func(s overlay.Sample) {
		received <- s
	})
	require.NoError(t, err)

	// PSUBSCRIBE is asynchronous, retry until the first sample shows up
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case s := <-received:
			require.Equal(t, keyexpr.Key("home/temp"), s.Key)
			require.Equal(t, []byte(`{"t":1}`), s.Payload)
			require.Equal(t, keyexpr.EncodingJSON, s.Encoding)
			return
		case <-ticker.C:
			require.NoError(t, a.Put(context.Background(), "home/temp", []byte(`{"t":1}`), keyexpr.EncodingJSON, overlay.Any))
		case <-deadline:
			t.Fatal("sample not received through redis")
		}
	}
}
