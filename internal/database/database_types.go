// Package database records which MQTT clients are attached to this bridge
// and what they subscribed to. The records are diagnostic only.
package database

import (
	"context"
	"errors"
	"time"
)

const SessionCollectionName = "bridge_sessions"

var (
	ClientIdEmptyError = errors.New("client_id is empty")
	ErrSessionNotFound = errors.New("session does not exist")
)

type SessionRecord struct {
	ClientID      string            `bson:"client_id"`
	BridgeID      string            `bson:"bridge_id"`
	RemoteAddr    string            `bson:"remote_addr"`
	ConnectedAt   time.Time         `bson:"connected_at"`
	Subscriptions map[string]string `bson:"subscriptions"` // 主题: Locality
}

func NewSessionRecord(clientID string, bridgeID string, remoteAddr string) *SessionRecord {
	return &SessionRecord{
		ClientID:      clientID,
		BridgeID:      bridgeID,
		RemoteAddr:    remoteAddr,
		ConnectedAt:   time.Now().UTC(),
		Subscriptions: make(map[string]string),
	}
}

type SessionStore interface {
	GetSession(ctx context.Context, clientID string) (*SessionRecord, error)
	SaveSession(ctx context.Context, session *SessionRecord) error
	DeleteSession(ctx context.Context, clientID string) error
	ListSessions(ctx context.Context) ([]*SessionRecord, error)
}
