// Package memory provides in-process implementations of the persistence ports.
// Used for ephemeral mode and tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT STORE
// ══════════════════════════════════════════════════════════════════════════════

// ContentStore implements curriculum.ContentStore over a map.
type ContentStore struct {
	mu      sync.RWMutex
	records map[curriculum.ContentKey]*curriculum.ContentRecord
}

// NewContentStore creates an empty store.
func NewContentStore() *ContentStore {
	return &ContentStore{records: make(map[curriculum.ContentKey]*curriculum.ContentRecord)}
}

// Get implements curriculum.ContentStore.
func (s *ContentStore) Get(_ context.Context, key curriculum.ContentKey) (*curriculum.ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, shared.ErrContentNotFound
	}
	return rec.Clone(), nil
}

// Put implements curriculum.ContentStore.
func (s *ContentStore) Put(_ context.Context, record *curriculum.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Key] = record.Clone()
	return nil
}

// Enumerate implements curriculum.ContentStore.
func (s *ContentStore) Enumerate(_ context.Context, prefix string) ([]curriculum.ContentKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]curriculum.ContentKey, 0, len(s.records))
	for k := range s.records {
		if strings.HasPrefix(string(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// Len returns the number of stored records.
func (s *ContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS
// ══════════════════════════════════════════════════════════════════════════════

// AccountRepository implements account.Repository.
type AccountRepository struct {
	mu    sync.RWMutex
	users map[shared.UserID]*account.User
}

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{users: make(map[shared.UserID]*account.User)}
}

func cloneUser(u *account.User) *account.User {
	c := *u
	return &c
}

// Create implements account.Repository.
func (r *AccountRepository) Create(_ context.Context, user *account.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return shared.ErrUserAlreadyExists
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

// GetByID implements account.Repository.
func (r *AccountRepository) GetByID(_ context.Context, id shared.UserID) (*account.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return cloneUser(u), nil
}

// Update implements account.Repository. Balance and lock are left untouched.
func (r *AccountRepository) Update(_ context.Context, user *account.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.users[user.ID]
	if !ok {
		return shared.ErrUserNotFound
	}
	next := cloneUser(user)
	next.Credits = cur.Credits
	next.IsLocked = cur.IsLocked
	next.UpdatedAt = time.Now().UTC()
	r.users[user.ID] = next
	return nil
}

// AdjustBalance implements account.Repository.
func (r *AccountRepository) AdjustBalance(_ context.Context, id shared.UserID, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adjustLocked(id, delta)
}

func (r *AccountRepository) adjustLocked(id shared.UserID, delta int) (int, error) {
	u, ok := r.users[id]
	if !ok {
		return 0, shared.ErrUserNotFound
	}
	next, err := shared.Credits(u.Credits).Apply(delta)
	if err != nil {
		return u.Credits, err
	}
	u.Credits = next.Int()
	u.UpdatedAt = time.Now().UTC()
	return u.Credits, nil
}

// SetLocked implements account.Repository.
func (r *AccountRepository) SetLocked(_ context.Context, id shared.UserID, locked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return shared.ErrUserNotFound
	}
	u.IsLocked = locked
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Exists implements account.Repository.
func (r *AccountRepository) Exists(_ context.Context, id shared.UserID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[id]
	return ok, nil
}

// List implements account.Repository.
func (r *AccountRepository) List(_ context.Context) ([]*account.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*account.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNIT OF WORK
// ══════════════════════════════════════════════════════════════════════════════

// UnitOfWork implements curriculum.LessonUnitOfWork over the in-memory store
// and accounts. Both locks are held for the whole unit.
type UnitOfWork struct {
	store    *ContentStore
	accounts *AccountRepository
}

// NewUnitOfWork creates a unit of work.
func NewUnitOfWork(store *ContentStore, accounts *AccountRepository) *UnitOfWork {
	return &UnitOfWork{store: store, accounts: accounts}
}

// PutAndCharge implements curriculum.LessonUnitOfWork.
func (u *UnitOfWork) PutAndCharge(ctx context.Context, record *curriculum.ContentRecord, userID shared.UserID, delta int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, shared.WrapError("memory", "PutAndCharge", shared.ErrStoreUnavailable, "context done", err)
	}

	u.accounts.mu.Lock()
	defer u.accounts.mu.Unlock()
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	balance, err := u.accounts.adjustLocked(userID, delta)
	if err != nil {
		return balance, err
	}
	u.store.records[record.Key] = record.Clone()
	return balance, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

type sessionEntry struct {
	userID    shared.UserID
	expiresAt time.Time
}

// SessionStore implements account.SessionStore with lazy expiry.
type SessionStore struct {
	mu       sync.Mutex
	clock    timeutil.Clock
	sessions map[string]sessionEntry
}

// NewSessionStore creates a session store. A nil clock uses the system clock.
func NewSessionStore(clock timeutil.Clock) *SessionStore {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &SessionStore{clock: clock, sessions: make(map[string]sessionEntry)}
}

// Create implements account.SessionStore.
func (s *SessionStore) Create(_ context.Context, userID shared.UserID, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.sessions[token] = sessionEntry{userID: userID, expiresAt: s.clock.Now().Add(ttl)}
	return token, nil
}

// Resolve implements account.SessionStore.
func (s *SessionStore) Resolve(_ context.Context, token string) (shared.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[token]
	if !ok {
		return "", shared.ErrSessionNotFound
	}
	if !s.clock.Now().Before(e.expiresAt) {
		delete(s.sessions, token)
		return "", shared.ErrSessionNotFound
	}
	return e.userID, nil
}

// Revoke implements account.SessionStore.
func (s *SessionStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

var (
	_ curriculum.ContentStore     = (*ContentStore)(nil)
	_ curriculum.LessonUnitOfWork = (*UnitOfWork)(nil)
	_ account.Repository          = (*AccountRepository)(nil)
	_ account.SessionStore        = (*SessionStore)(nil)
)
