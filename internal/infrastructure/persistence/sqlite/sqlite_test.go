package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "nst.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func lesson(key, body string) *curriculum.ContentRecord {
	return &curriculum.ContentRecord{
		ID:          "rec-" + key,
		Key:         curriculum.ContentKey(key),
		Title:       "Light",
		Subtitle:    "Quick Notes",
		Body:        body,
		ContentType: curriculum.ContentNotesSimple,
		Language:    curriculum.LanguageEnglish,
		SubjectName: "Science",
		Selector:    curriculum.NewSelector("CBSE", 10, "", "Science", "Light"),
		Source:      curriculum.SourceGenerated,
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC),
	}
}

func studentUser(id string, credits int) *account.User {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &account.User{
		ID:           shared.UserID(id),
		Name:         "Asha",
		Role:         account.RoleStudent,
		PasswordHash: "hash",
		Credits:      credits,
		Profile:      account.Profile{Board: "CBSE", ClassLevel: 11, Stream: "Science"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestContentStore_RoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewContentStore(openTestDB(t))

	_, err := store.Get(ctx, "lesson/a")
	assert.ErrorIs(t, err, shared.ErrContentNotFound)

	want := lesson("lesson/a", "v1")
	require.NoError(t, store.Put(ctx, want))

	got, err := store.Get(ctx, "lesson/a")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	manual := lesson("lesson/a", "v2")
	manual.Source = curriculum.SourceManual
	require.NoError(t, store.Put(ctx, manual))

	got, err = store.Get(ctx, "lesson/a")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Body)
	assert.Equal(t, curriculum.SourceManual, got.Source)
}

func TestContentStore_EnumerateByPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewContentStore(openTestDB(t))

	for _, k := range []string{"lesson/b", "chapters/x", "lesson/a", "lesson%/c"} {
		require.NoError(t, store.Put(ctx, lesson(k, "body")))
	}

	keys, err := store.Enumerate(ctx, "lesson/")
	require.NoError(t, err)
	assert.Equal(t, []curriculum.ContentKey{"lesson/a", "lesson/b"}, keys)

	all, err := store.Enumerate(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestContentStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nst.db")

	db, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, NewContentStore(db).Put(ctx, lesson("lesson/a", "durable")))
	require.NoError(t, db.Close())

	db, err = Open(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	got, err := NewContentStore(db).Get(ctx, "lesson/a")
	require.NoError(t, err)
	assert.Equal(t, "durable", got.Body)
}

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository(openTestDB(t))

	require.NoError(t, repo.Create(ctx, studentUser("NST-1001", 5)))
	assert.ErrorIs(t, repo.Create(ctx, studentUser("NST-1001", 5)), shared.ErrUserAlreadyExists)

	u, err := repo.GetByID(ctx, "NST-1001")
	require.NoError(t, err)
	assert.Equal(t, 5, u.Credits)
	assert.Equal(t, "Science", u.Profile.Stream)

	_, err = repo.GetByID(ctx, "NST-9999")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	balance, err := repo.AdjustBalance(ctx, "NST-1001", -5)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	_, err = repo.AdjustBalance(ctx, "NST-1001", -1)
	assert.ErrorIs(t, err, shared.ErrInsufficientCredits)

	require.NoError(t, repo.SetLocked(ctx, "NST-1001", true))
	assert.ErrorIs(t, repo.SetLocked(ctx, "NST-9999", true), shared.ErrUserNotFound)

	// Update never touches balance or lock.
	u.Credits = 100
	u.IsLocked = false
	u.IsPremium = true
	require.NoError(t, repo.Update(ctx, u))

	u, err = repo.GetByID(ctx, "NST-1001")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Credits)
	assert.True(t, u.IsLocked)
	assert.True(t, u.IsPremium)

	require.NoError(t, repo.Create(ctx, studentUser("NST-0500", 1)))
	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, shared.UserID("NST-0500"), users[0].ID)

	ok, err := repo.Exists(ctx, "NST-0500")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnitOfWork_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := NewAccountRepository(db)
	store := NewContentStore(db)
	uow := NewUnitOfWork(db)

	require.NoError(t, accounts.Create(ctx, studentUser("NST-1001", 1)))

	balance, err := uow.PutAndCharge(ctx, lesson("lesson/a", "body"), "NST-1001", -1)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	_, err = store.Get(ctx, "lesson/a")
	require.NoError(t, err)

	_, err = uow.PutAndCharge(ctx, lesson("lesson/b", "body"), "NST-1001", -1)
	assert.ErrorIs(t, err, shared.ErrInsufficientCredits)
	_, err = store.Get(ctx, "lesson/b")
	assert.ErrorIs(t, err, shared.ErrContentNotFound)

	_, err = uow.PutAndCharge(ctx, lesson("lesson/c", "body"), "NST-4040", 0)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestUnitOfWork_ConcurrentChargesSerialize(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	accounts := NewAccountRepository(db)
	uow := NewUnitOfWork(db)

	require.NoError(t, accounts.Create(ctx, studentUser("NST-1001", 3)))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "lesson/" + string(rune('a'+i))
			_, errs[i] = uow.PutAndCharge(ctx, lesson(key, "body"), "NST-1001", -1)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, shared.ErrInsufficientCredits)
		}
	}
	assert.Equal(t, 3, ok)

	u, err := accounts.GetByID(ctx, "NST-1001")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Credits)
}
