package database

import (
	"context"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoSessionStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store, err := ConnectMongo(ctx, config.DatabaseConfig{
		Host:             "localhost",
		Port:             27017,
		Database:         "mqtt_bridge_test",
		ConnectTimeout:   "2s",
		OperationTimeout: "2s",
		MaxPoolSize:      4,
	}, "mqtt-bridge-test")
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	defer store.Invoke(context.Background())

	record := NewSessionRecord("mongo-test-client", "test-bridge", "127.0.0.1:5000")
	record.Subscriptions["home/temp"] = "Any"
	require.NoError(t, store.SaveSession(ctx, record))

	got, err := store.GetSession(ctx, "mongo-test-client")
	require.NoError(t, err)
	assert.Equal(t, "Any", got.Subscriptions["home/temp"])
	assert.Equal(t, "test-bridge", got.BridgeID)

	deleted, err := store.DeleteBridgeSessions(ctx, "test-bridge")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = store.GetSession(ctx, "mongo-test-client")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
