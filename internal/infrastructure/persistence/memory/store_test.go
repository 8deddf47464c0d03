package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/timeutil"
)

func record(key curriculum.ContentKey) *curriculum.ContentRecord {
	return &curriculum.ContentRecord{Key: key, Title: "Light", Body: "body", ContentType: curriculum.ContentNotesSimple}
}

func TestContentStoreGetPutEnumerate(t *testing.T) {
	ctx := context.Background()
	s := NewContentStore()

	_, err := s.Get(ctx, "lesson/a")
	assert.ErrorIs(t, err, shared.ErrContentNotFound)

	require.NoError(t, s.Put(ctx, record("lesson/b")))
	require.NoError(t, s.Put(ctx, record("lesson/a")))
	require.NoError(t, s.Put(ctx, record("chapters/a")))

	got, err := s.Get(ctx, "lesson/a")
	require.NoError(t, err)
	assert.Equal(t, "Light", got.Title)

	// Returned records are copies.
	got.Title = "changed"
	again, _ := s.Get(ctx, "lesson/a")
	assert.Equal(t, "Light", again.Title)

	keys, err := s.Enumerate(ctx, curriculum.KeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []curriculum.ContentKey{"lesson/a", "lesson/b"}, keys)
	assert.Equal(t, 3, s.Len())
}

func newStudent(t *testing.T, repo *AccountRepository, credits int) shared.UserID {
	t.Helper()
	u, err := account.NewStudent("NST-1001", "Ravi", "hash", account.Profile{Board: "cbse", ClassLevel: 10}, credits)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), u))
	return u.ID
}

func TestAccountRepositoryBalance(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	id := newStudent(t, repo, 2)

	bal, err := repo.AdjustBalance(ctx, id, -2)
	require.NoError(t, err)
	assert.Equal(t, 0, bal)

	_, err = repo.AdjustBalance(ctx, id, -1)
	assert.ErrorIs(t, err, shared.ErrInsufficientCredits)

	_, err = repo.AdjustBalance(ctx, "NST-9999", 1)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	u, err := account.NewStudent(id, "Dup", "", account.Profile{}, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, u), shared.ErrUserAlreadyExists)
}

func TestAccountRepositoryUpdateKeepsBalanceAndLock(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()
	id := newStudent(t, repo, 5)
	require.NoError(t, repo.SetLocked(ctx, id, true))

	u, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	u.Credits = 100
	u.IsLocked = false
	u.IsPremium = true
	require.NoError(t, repo.Update(ctx, u))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Credits)
	assert.True(t, got.IsLocked)
	assert.True(t, got.IsPremium)
}

func TestUnitOfWorkIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewContentStore()
	repo := NewAccountRepository()
	id := newStudent(t, repo, 1)
	uow := NewUnitOfWork(store, repo)

	bal, err := uow.PutAndCharge(ctx, record("lesson/a"), id, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, bal)
	assert.Equal(t, 1, store.Len())

	_, err = uow.PutAndCharge(ctx, record("lesson/b"), id, -1)
	assert.ErrorIs(t, err, shared.ErrInsufficientCredits)
	assert.Equal(t, 1, store.Len())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = uow.PutAndCharge(cancelled, record("lesson/c"), id, 0)
	assert.True(t, shared.IsStoreUnavailable(err))
}

func TestSessionStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clock := timeutil.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewSessionStore(clock)

	tok, err := s.Create(ctx, "NST-1001", time.Hour)
	require.NoError(t, err)

	id, err := s.Resolve(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, shared.UserID("NST-1001"), id)

	clock.Advance(time.Hour)
	_, err = s.Resolve(ctx, tok)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)

	tok, _ = s.Create(ctx, "NST-1001", time.Hour)
	require.NoError(t, s.Revoke(ctx, tok))
	_, err = s.Resolve(ctx, tok)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}
