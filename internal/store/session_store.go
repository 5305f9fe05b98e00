package store

import (
	"context"
	"fmt"
	"sync"

	practicesession "github.com/remaimber-it/drivetheory/internal/domain/practice_session"
)

// SessionsKey is the persistent key of a user's session map.
func SessionsKey(userID string) string {
	return "store:theory:sessions:" + userID
}

// SessionStore persists each user's sessions as one record, mirrored in
// memory like StatsStore.
type SessionStore struct {
	kv KV

	mu    sync.Mutex
	cache map[string]map[string]*practicesession.Session
}

func NewSessionStore(kv KV) *SessionStore {
	return &SessionStore{
		kv:    kv,
		cache: make(map[string]map[string]*practicesession.Session),
	}
}

// Read returns deep copies of the user's sessions keyed by session id.
func (s *SessionStore) Read(ctx context.Context, userID string) (map[string]*practicesession.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return cloneSessions(sessions), nil
}

// Get returns one session or ErrNotFound.
func (s *SessionStore) Get(ctx context.Context, userID, sessionID string) (*practicesession.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	session, ok := sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return session.Clone(), nil
}

// Write replaces the user's whole session map.
func (s *SessionStore) Write(ctx context.Context, userID string, sessions map[string]*practicesession.Session) error {
	next := make(map[string]*practicesession.Session, len(sessions))
	for sid, session := range sessions {
		if sid == "" || session == nil {
			continue
		}
		c := session.Clone()
		c.Normalize()
		next[sid] = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := PutEnvelope(ctx, s.kv, SessionsKey(userID), Envelope[map[string]*practicesession.Session]{Version: Version, Data: next}); err != nil {
		delete(s.cache, userID)
		return fmt.Errorf("write sessions: %w", err)
	}
	s.cache[userID] = next
	return nil
}

// load must be called with s.mu held.
func (s *SessionStore) load(ctx context.Context, userID string) (map[string]*practicesession.Session, error) {
	if cached, ok := s.cache[userID]; ok {
		return cached, nil
	}

	env, ok, err := GetEnvelope[map[string]*practicesession.Session](ctx, s.kv, SessionsKey(userID), Version)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	sessions := make(map[string]*practicesession.Session)
	if ok {
		for sid, session := range env.Data {
			if session == nil || session.ID != sid {
				continue
			}
			session.Normalize()
			sessions[sid] = session
		}
	}
	s.cache[userID] = sessions
	return sessions, nil
}

func cloneSessions(in map[string]*practicesession.Session) map[string]*practicesession.Session {
	out := make(map[string]*practicesession.Session, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
