package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// SessionStore keeps login tokens in Redis; expiry is delegated to key TTLs.
type SessionStore struct {
	kv KV
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(kv KV) *SessionStore {
	return &SessionStore{kv: kv}
}

// Create implements account.SessionStore.
func (s *SessionStore) Create(ctx context.Context, userID shared.UserID, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = TTLSession
	}
	token := uuid.NewString()
	if err := s.kv.SetString(ctx, SessionKey(token), string(userID), ttl); err != nil {
		return "", shared.WrapError("session", "Create", shared.ErrStoreUnavailable, "session write failed", err)
	}
	return token, nil
}

// Resolve implements account.SessionStore.
func (s *SessionStore) Resolve(ctx context.Context, token string) (shared.UserID, error) {
	if token == "" {
		return "", shared.ErrSessionNotFound
	}
	id, err := s.kv.GetString(ctx, SessionKey(token))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return "", shared.ErrSessionNotFound
		}
		return "", shared.WrapError("session", "Resolve", shared.ErrStoreUnavailable, "session read failed", err)
	}
	return shared.UserID(id), nil
}

// Revoke implements account.SessionStore.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.kv.Delete(ctx, SessionKey(token))
}

var _ account.SessionStore = (*SessionStore)(nil)
