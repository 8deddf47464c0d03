package command

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/settings"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/persistence/memory"
)

// fakeGenerator returns a fixed lesson unless fn overrides it.
type fakeGenerator struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req curriculum.GenerationRequest) (*curriculum.ContentRecord, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, req curriculum.GenerationRequest) (*curriculum.ContentRecord, error) {
	g.calls.Add(1)
	if g.fn != nil {
		return g.fn(ctx, req)
	}
	return &curriculum.ContentRecord{
		Title:    "Light: Reflection and Refraction",
		Subtitle: "Class 10 notes",
		Body:     "Light travels in straight lines.",
	}, nil
}

func (g *fakeGenerator) ListChapters(context.Context, curriculum.Selector, curriculum.Language) ([]string, error) {
	return []string{"Light", "Electricity"}, nil
}

// staticSettings serves one settings snapshot and counts loads.
type staticSettings struct {
	s     *settings.SystemSettings
	loads atomic.Int32
}

func (s *staticSettings) Load(context.Context) (*settings.SystemSettings, error) {
	s.loads.Add(1)
	return s.s.Clone(), nil
}

func (s *staticSettings) Save(_ context.Context, next *settings.SystemSettings) error {
	s.s = next.Clone()
	return nil
}

// recordingPublisher keeps published event types in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// brokenUnitOfWork fails the store half.
type brokenUnitOfWork struct{}

func (brokenUnitOfWork) PutAndCharge(context.Context, *curriculum.ContentRecord, shared.UserID, int) (int, error) {
	return 0, shared.WrapError("test", "PutAndCharge", shared.ErrStoreUnavailable, "disk full", nil)
}

// slowUnitOfWork delays the store+charge unit.
type slowUnitOfWork struct {
	inner curriculum.LessonUnitOfWork
	delay time.Duration
	calls atomic.Int32
}

func (u *slowUnitOfWork) PutAndCharge(ctx context.Context, rec *curriculum.ContentRecord, id shared.UserID, delta int) (int, error) {
	u.calls.Add(1)
	time.Sleep(u.delay)
	return u.inner.PutAndCharge(ctx, rec, id, delta)
}

// brokenStore fails every read.
type brokenStore struct{ *memory.ContentStore }

func (brokenStore) Get(context.Context, curriculum.ContentKey) (*curriculum.ContentRecord, error) {
	return nil, shared.WrapError("test", "Get", shared.ErrStoreUnavailable, "connection refused", nil)
}

// noChargeAccounts fails every balance adjustment.
type noChargeAccounts struct{ *memory.AccountRepository }

func (noChargeAccounts) AdjustBalance(context.Context, shared.UserID, int) (int, error) {
	return 0, shared.WrapError("test", "AdjustBalance", shared.ErrStoreUnavailable, "accounts offline", nil)
}

type fixture struct {
	store     *memory.ContentStore
	accounts  *memory.AccountRepository
	uow       *memory.UnitOfWork
	generator *fakeGenerator
	settings  *staticSettings
	events    *recordingPublisher
}

func newFixture() *fixture {
	store := memory.NewContentStore()
	accounts := memory.NewAccountRepository()
	return &fixture{
		store:     store,
		accounts:  accounts,
		uow:       memory.NewUnitOfWork(store, accounts),
		generator: &fakeGenerator{},
		settings:  &staticSettings{s: settings.Defaults()},
		events:    &recordingPublisher{},
	}
}

func (f *fixture) student(t *testing.T, id shared.UserID, credits int) *account.User {
	t.Helper()
	u, err := account.NewStudent(id, "Ravi", "hash", account.Profile{Board: "cbse", ClassLevel: 10}, credits)
	require.NoError(t, err)
	require.NoError(t, f.accounts.Create(context.Background(), u))
	return u
}

func (f *fixture) balance(t *testing.T, id shared.UserID) int {
	t.Helper()
	u, err := f.accounts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u.Credits
}

func lightSelector() curriculum.Selector {
	return curriculum.Selector{Board: "CBSE", ClassLevel: 10, Subject: "Science", Chapter: "Light"}
}

// plainHasher stores "h:" + password.
type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "h:" + pw, nil }

func (plainHasher) Compare(hash, pw string) error {
	if hash != "h:"+pw {
		return shared.ErrInvalidCredentials
	}
	return nil
}

func (f *fixture) admin(t *testing.T) *account.User {
	t.Helper()
	a := account.NewAdmin("h:secret")
	require.NoError(t, f.accounts.Create(context.Background(), a))
	return a
}
