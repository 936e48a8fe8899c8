package database

import (
	"context"
	"maps"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionRecord
}

var _ SessionStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*SessionRecord)}
}

func clone(session *SessionRecord) *SessionRecord {
	c := *session
	c.Subscriptions = maps.Clone(session.Subscriptions)
	return &c
}

func (ms *MemoryStore) GetSession(_ context.Context, clientID string) (*SessionRecord, error) {
	if clientID == "" {
		return nil, ClientIdEmptyError
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	session, ok := ms.sessions[clientID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return clone(session), nil
}

func (ms *MemoryStore) SaveSession(_ context.Context, session *SessionRecord) error {
	if session.ClientID == "" {
		return ClientIdEmptyError
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.sessions[session.ClientID] = clone(session)
	return nil
}

func (ms *MemoryStore) DeleteSession(_ context.Context, clientID string) error {
	if clientID == "" {
		return ClientIdEmptyError
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, clientID)
	return nil
}

func (ms *MemoryStore) ListSessions(_ context.Context) ([]*SessionRecord, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	result := make([]*SessionRecord, 0, len(ms.sessions))
	for _, session := range ms.sessions {
		result = append(result, clone(session))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ClientID < result[j].ClientID
	})
	return result, nil
}
