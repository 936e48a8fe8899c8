package database

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/config"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/logger"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	client           *mongo.Client
	sessions         *mongo.Collection
	operationTimeout time.Duration
}

var _ SessionStore = (*MongoStore)(nil)

// ConnectMongo connects to the configured MongoDB and makes sure the session
// collection has a unique client_id index.
func ConnectMongo(ctx context.Context, cfg config.DatabaseConfig, appName string) (*MongoStore, error) {
	logger.DebugF("Connecting to database...")

	operationTimeout := utils.ParseStringTime(cfg.OperationTimeout)
	if operationTimeout == 0 {
		operationTimeout = 5 * time.Second
	}

	// 编码特殊字符
	var databaseUrl string
	if cfg.Username != "" {
		databaseUrl = fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
			url.QueryEscape(cfg.Username), url.QueryEscape(cfg.Password),
			cfg.Host, cfg.Port,
		)
	} else {
		databaseUrl = fmt.Sprintf("mongodb://%s:%d/", cfg.Host, cfg.Port)
	}

	clientOptions := options.Client().ApplyURI(databaseUrl).SetAppName(appName)
	// 连接池配置
	clientOptions.SetMinPoolSize(cfg.MinPoolSize)
	clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	if d := utils.ParseStringTime(cfg.ConnectIdleTimeout); d > 0 {
		clientOptions.SetMaxConnIdleTime(d)
	}
	// 超时限制
	if d := utils.ParseStringTime(cfg.ConnectTimeout); d > 0 {
		clientOptions.SetConnectTimeout(d)
	}
	if d := utils.ParseStringTime(cfg.SocketTimeout); d > 0 {
		clientOptions.SetSocketTimeout(d)
	}
	if d := utils.ParseStringTime(cfg.Heartbeat); d > 0 {
		clientOptions.SetHeartbeatInterval(d)
	}
	if cfg.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	// 连接池监控
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %s", evt.Address)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %s (%s)", evt.Address, evt.Reason)
			}
		},
	})

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	sessions := client.Database(cfg.Database).Collection(SessionCollectionName)
	_, err = sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "client_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("bridge_sessions_client_id_unique"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while creating database indexes: %w", err)
	}

	return &MongoStore{client: client, sessions: sessions, operationTimeout: operationTimeout}, nil
}

func (ms *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ms.operationTimeout)
}

func wrapErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("unique key conflicts: %w", err)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	}
	return fmt.Errorf("database operation failed: %w", err)
}

func (ms *MongoStore) GetSession(ctx context.Context, clientID string) (*SessionRecord, error) {
	if clientID == "" {
		return nil, ClientIdEmptyError
	}
	ctx, cancel := ms.withTimeout(ctx)
	defer cancel()

	var session SessionRecord
	startTime := time.Now()
	err := ms.sessions.FindOne(ctx, bson.D{{Key: "client_id", Value: clientID}}).Decode(&session)
	logger.DebugF("session query cost: %v", time.Since(startTime))
	if err != nil {
		return nil, wrapErr(err)
	}
	return &session, nil
}

func (ms *MongoStore) SaveSession(ctx context.Context, session *SessionRecord) error {
	if session.ClientID == "" {
		return ClientIdEmptyError
	}
	ctx, cancel := ms.withTimeout(ctx)
	defer cancel()

	filter := bson.D{{Key: "client_id", Value: session.ClientID}}
	result, err := ms.sessions.ReplaceOne(ctx, filter, session, options.Replace().SetUpsert(true))
	if err != nil {
		return wrapErr(err)
	}

	logger.DebugF("Session saved: client_id=%s, matched=%d, modified=%d, upserted=%v",
		session.ClientID,
		result.MatchedCount,
		result.ModifiedCount,
		result.UpsertedID != nil,
	)
	return nil
}

func (ms *MongoStore) DeleteSession(ctx context.Context, clientID string) error {
	if clientID == "" {
		return ClientIdEmptyError
	}
	ctx, cancel := ms.withTimeout(ctx)
	defer cancel()

	result, err := ms.sessions.DeleteOne(ctx, bson.D{{Key: "client_id", Value: clientID}})
	if err != nil {
		return wrapErr(err)
	}
	logger.DebugF("Session deleted: client_id=%s, deleted=%d", clientID, result.DeletedCount)
	return nil
}

func (ms *MongoStore) ListSessions(ctx context.Context) ([]*SessionRecord, error) {
	ctx, cancel := ms.withTimeout(ctx)
	defer cancel()

	cursor, err := ms.sessions.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "client_id", Value: 1}}))
	if err != nil {
		return nil, wrapErr(err)
	}
	var result []*SessionRecord
	if err := cursor.All(ctx, &result); err != nil {
		return nil, wrapErr(err)
	}
	return result, nil
}

// DeleteBridgeSessions removes every record written by the bridge identified
// by bridgeID.
func (ms *MongoStore) DeleteBridgeSessions(ctx context.Context, bridgeID string) (int64, error) {
	ctx, cancel := ms.withTimeout(ctx)
	defer cancel()

	result, err := ms.sessions.DeleteMany(ctx, bson.D{{Key: "bridge_id", Value: bridgeID}})
	if err != nil {
		return 0, wrapErr(err)
	}
	return result.DeletedCount, nil
}

// Invoke disconnects from the database, it is registered on the shutdown cleaner.
func (ms *MongoStore) Invoke(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	return ms.client.Disconnect(ctx)
}
