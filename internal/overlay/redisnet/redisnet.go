// Package redisnet is an overlay.Backbone on top of Redis pub/sub.
//
// Every publication is sent on the channel ChannelPrefix+key as a BSON
// encoded overlay.Envelope; each bridge process pattern-subscribes to
// ChannelPrefix* and filters by key itself.
package redisnet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/overlay"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
)

const defaultChannelPrefix = "mqtt-bridge:"

type Config struct {
	// Client is the Redis client to use. If nil, one is created from Addr.
	Client        redis.UniversalClient
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
	DialTimeout   time.Duration
}

type Backbone struct {
	client        redis.UniversalClient
	channelPrefix string
}

var _ overlay.Backbone = (*Backbone)(nil)

func New(cfg Config) *Backbone {
	client := cfg.Client
	if client == nil {
		addr := cfg.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{
			Addr:        addr,
			Password:    cfg.Password,
			DB:          cfg.DB,
			DialTimeout: cfg.DialTimeout,
		})
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &Backbone{client: client, channelPrefix: prefix}
}

// Connect creates the backbone and checks the server is reachable.
func Connect(ctx context.Context, cfg Config) (*Backbone, error) {
	b := New(cfg)
	if err := b.client.Ping(ctx).Err(); err != nil {
		_ = b.client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return b, nil
}

func (b *Backbone) channel(key string) string {
	return b.channelPrefix + key
}

func (b *Backbone) Publish(ctx context.Context, envelope overlay.Envelope) error {
	data, err := bson.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode envelope for '%s': %w", envelope.Key, err)
	}
	if err := b.client.Publish(ctx, b.channel(envelope.Key), data).Err(); err != nil {
		return fmt.Errorf("failed to publish on channel %s: %w", b.channel(envelope.Key), err)
	}
	return nil
}

func (b *Backbone) Run(ctx context.Context, handler func(overlay.Envelope)) error {
	pubsub := b.client.PSubscribe(ctx, b.channel("*"))
	defer func() {
		_ = pubsub.Close()
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel("*"), err)
	}
	logger.DebugF("Redis backbone subscribed to %s", b.channel("*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription channel closed")
			}
			var envelope overlay.Envelope
			if err := bson.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				logger.WarnF("Dropping malformed message on %s, details: %v", msg.Channel, err)
				continue
			}
			handler(envelope)
		}
	}
}

func (b *Backbone) Close() error {
	return b.client.Close()
}
