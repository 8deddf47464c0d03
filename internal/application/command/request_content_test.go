package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

func (f *fixture) handler(cfg RequestContentHandlerConfig) *RequestContentHandler {
	return NewRequestContentHandler(f.store, f.uow, f.generator, f.accounts, f.settings, f.events, nil, cfg)
}

func notesCmd(user shared.UserID) RequestContentCommand {
	return RequestContentCommand{
		Selector:    lightSelector(),
		Language:    curriculum.LanguageEnglish,
		ContentType: curriculum.ContentNotesSimple,
		UserID:      user,
	}
}

func TestRequestContent_MissChargesOnceThenHitIsFree(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	h := f.handler(DefaultRequestContentHandlerConfig())

	res, err := h.Handle(context.Background(), notesCmd(u.ID))
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.Equal(t, 1, res.Charged)
	assert.Equal(t, 4, res.Balance)
	assert.Empty(t, res.Warning)

	again, err := h.Handle(context.Background(), notesCmd(u.ID))
	require.NoError(t, err)
	assert.True(t, again.CacheHit)
	assert.Equal(t, 0, again.Charged)
	assert.Equal(t, 4, again.Balance)
	assert.Equal(t, res.Record.ID, again.Record.ID)

	assert.Equal(t, 4, f.balance(t, u.ID))
	assert.EqualValues(t, 1, f.generator.calls.Load())
}

func TestRequestContent_HitIsServedWithZeroCredits(t *testing.T) {
	f := newFixture()
	rich := f.student(t, "NST-1001", 5)
	broke := f.student(t, "NST-1002", 0)
	h := f.handler(DefaultRequestContentHandlerConfig())

	_, err := h.Handle(context.Background(), notesCmd(rich.ID))
	require.NoError(t, err)

	res, err := h.Handle(context.Background(), notesCmd(broke.ID))
	require.NoError(t, err)
	assert.True(t, res.CacheHit)
	assert.Equal(t, 0, f.balance(t, broke.ID))
}

func TestRequestContent_ZeroCreditsMissIsDenied(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 0)
	h := f.handler(DefaultRequestContentHandlerConfig())

	_, err := h.Handle(context.Background(), notesCmd(u.ID))
	require.Error(t, err)
	assert.True(t, shared.IsAccessDenied(err))
	assert.ErrorIs(t, err, shared.ErrInsufficientCredits)

	assert.EqualValues(t, 0, f.generator.calls.Load())
	assert.Equal(t, 0, f.store.Len())
	assert.Contains(t, f.events.types(), shared.EventContentAccessDenied)
}

func TestRequestContent_LockedAccountIsDenied(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 10)
	require.NoError(t, f.accounts.SetLocked(context.Background(), u.ID, true))
	h := f.handler(DefaultRequestContentHandlerConfig())

	_, err := h.Handle(context.Background(), notesCmd(u.ID))
	assert.True(t, shared.IsAccessDenied(err))
	assert.ErrorIs(t, err, shared.ErrAccountLocked)
	assert.EqualValues(t, 0, f.generator.calls.Load())
}

func TestRequestContent_PrivilegedIsNotCharged(t *testing.T) {
	f := newFixture()
	admin := account.NewAdmin("hash")
	require.NoError(t, f.accounts.Create(context.Background(), admin))
	h := f.handler(DefaultRequestContentHandlerConfig())

	res, err := h.Handle(context.Background(), notesCmd(admin.ID))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Charged)
	assert.Equal(t, admin.Credits, res.Balance)
	assert.Equal(t, 1, f.store.Len())
	assert.NotContains(t, f.events.types(), shared.EventCreditsCharged)
}

func TestRequestContent_GenerationFailureLeavesNoTrace(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	f.generator.fn = func(context.Context, curriculum.GenerationRequest) (*curriculum.ContentRecord, error) {
		return nil, curriculum.NewGenerationFailure(curriculum.FailureQuota, errors.New("429"))
	}
	h := f.handler(DefaultRequestContentHandlerConfig())

	_, err := h.Handle(context.Background(), notesCmd(u.ID))
	require.Error(t, err)
	assert.True(t, shared.IsGenerationFailed(err))
	assert.Equal(t, curriculum.FailureQuota, curriculum.FailureReasonOf(err))

	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 5, f.balance(t, u.ID))
	assert.Contains(t, f.events.types(), shared.EventContentGenerationFailed)
}

func TestRequestContent_EmptyBodyIsEmptyResponse(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	f.generator.fn = func(context.Context, curriculum.GenerationRequest) (*curriculum.ContentRecord, error) {
		return &curriculum.ContentRecord{Title: "Light", Body: "   "}, nil
	}
	h := f.handler(DefaultRequestContentHandlerConfig())

	_, err := h.Handle(context.Background(), notesCmd(u.ID))
	assert.Equal(t, curriculum.FailureEmptyResponse, curriculum.FailureReasonOf(err))
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 5, f.balance(t, u.ID))
}

func TestRequestContent_TimeoutIsGenerationFailure(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	f.generator.fn = func(ctx context.Context, _ curriculum.GenerationRequest) (*curriculum.ContentRecord, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	h := f.handler(RequestContentHandlerConfig{GenerationTimeout: 20 * time.Millisecond})

	_, err := h.Handle(context.Background(), notesCmd(u.ID))
	assert.True(t, shared.IsGenerationFailed(err))
	assert.Equal(t, curriculum.FailureTimeout, curriculum.FailureReasonOf(err))
	assert.Equal(t, 5, f.balance(t, u.ID))
}

func TestRequestContent_StoreWriteFailureDeliversWithWarning(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	h := NewRequestContentHandler(f.store, brokenUnitOfWork{}, f.generator, f.accounts, f.settings, f.events, nil, DefaultRequestContentHandlerConfig())

	res, err := h.Handle(context.Background(), notesCmd(u.ID))
	require.NoError(t, err)
	assert.Equal(t, WarningStoreUnavailable, res.Warning)
	assert.NotNil(t, res.Record)
	assert.Equal(t, 1, res.Charged)
	assert.Equal(t, 4, f.balance(t, u.ID))
	assert.Equal(t, 0, f.store.Len())
}

func TestRequestContent_FailedChargeDeliversNothing(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	accounts := noChargeAccounts{f.accounts}
	h := NewRequestContentHandler(f.store, brokenUnitOfWork{}, f.generator, accounts, f.settings, f.events, nil, DefaultRequestContentHandlerConfig())

	res, err := h.Handle(context.Background(), notesCmd(u.ID))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 5, f.balance(t, u.ID))
}

func TestRequestContent_StoreReadFailureIsMiss(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	h := NewRequestContentHandler(brokenStore{f.store}, f.uow, f.generator, f.accounts, f.settings, f.events, nil, DefaultRequestContentHandlerConfig())

	res, err := h.Handle(context.Background(), notesCmd(u.ID))
	require.NoError(t, err)
	assert.False(t, res.CacheHit)
	assert.EqualValues(t, 1, f.generator.calls.Load())
}

func TestRequestContent_StampsRecord(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	h := f.handler(DefaultRequestContentHandlerConfig())

	res, err := h.Handle(context.Background(), notesCmd(u.ID))
	require.NoError(t, err)

	want := curriculum.ComposeKey(lightSelector(), curriculum.LanguageEnglish, curriculum.ContentNotesSimple)
	assert.Equal(t, want, res.Key)
	assert.Equal(t, want, res.Record.Key)
	assert.NotEmpty(t, res.Record.ID)
	assert.Equal(t, curriculum.SourceGenerated, res.Record.Source)
	assert.Equal(t, "science", res.Record.SubjectName)
	assert.False(t, res.Record.CreatedAt.IsZero())

	stored, err := f.store.Get(context.Background(), want)
	require.NoError(t, err)
	assert.Equal(t, res.Record.ID, stored.ID)
}

func TestRequestContent_EventTrail(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	h := f.handler(DefaultRequestContentHandlerConfig())

	cmd := notesCmd(u.ID)
	cmd.CorrelationID = "req-1"
	_, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)
	_, err = h.Handle(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, []shared.EventType{
		shared.EventContentRequested,
		shared.EventContentGenerated,
		shared.EventCreditsCharged,
		shared.EventContentRequested,
		shared.EventContentCacheHit,
	}, f.events.types())

	env, err := shared.NewEventEnvelope("e1", f.events.events[0])
	require.NoError(t, err)
	assert.Equal(t, "req-1", env.CorrelationID)
}

func TestRequestContent_Validation(t *testing.T) {
	f := newFixture()
	h := f.handler(DefaultRequestContentHandlerConfig())

	cmd := notesCmd("NST-1001")
	cmd.ContentType = curriculum.ContentChapterIndex
	_, err := h.Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, shared.ErrUnknownContent)

	cmd = notesCmd("")
	_, err = h.Handle(context.Background(), cmd)
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	cmd = notesCmd("NST-1001")
	cmd.Selector.Chapter = ""
	_, err = h.Handle(context.Background(), cmd)
	assert.True(t, shared.IsValidation(err))
}

func TestRequestContent_ConcurrentMissesShareOneGeneration(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)

	release := make(chan struct{})
	f.generator.fn = func(context.Context, curriculum.GenerationRequest) (*curriculum.ContentRecord, error) {
		<-release
		return &curriculum.ContentRecord{Title: "Light", Body: "body"}, nil
	}
	h := f.handler(DefaultRequestContentHandlerConfig())

	const n = 4
	results := make([]*RequestContentResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.Handle(context.Background(), notesCmd(u.ID))
		}(i)
	}

	require.Eventually(t, func() bool {
		return f.settings.loads.Load() == n && f.generator.calls.Load() == 1
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	charged, followers := 0, 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		charged += results[i].Charged
		if results[i].SharedGeneration {
			followers++
		}
	}
	assert.EqualValues(t, 1, f.generator.calls.Load())
	assert.Equal(t, 1, charged)
	assert.Equal(t, n-1, followers)
	assert.Equal(t, 4, f.balance(t, u.ID))
}

func TestRequestContent_DeadlineDuringStoreStillReportsCharge(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	uow := &slowUnitOfWork{inner: f.uow, delay: 150 * time.Millisecond}
	h := NewRequestContentHandler(f.store, uow, f.generator, f.accounts, f.settings, f.events, nil, DefaultRequestContentHandlerConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := h.Handle(ctx, notesCmd(u.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Charged)
	assert.Equal(t, 4, res.Balance)
	assert.Equal(t, 4, f.balance(t, u.ID))

	stored, err := f.store.Get(context.Background(), res.Key)
	require.NoError(t, err)
	assert.Equal(t, res.Record.ID, stored.ID)
}

func TestRequestContent_CallerGoneBeforeStoreIsNotCharged(t *testing.T) {
	f := newFixture()
	u := f.student(t, "NST-1001", 5)
	uow := &slowUnitOfWork{inner: f.uow}
	h := NewRequestContentHandler(f.store, uow, f.generator, f.accounts, f.settings, f.events, nil, DefaultRequestContentHandlerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.generator.fn = func(context.Context, curriculum.GenerationRequest) (*curriculum.ContentRecord, error) {
		cancel()
		return &curriculum.ContentRecord{Title: "Light", Body: "body"}, nil
	}

	_, err := h.Handle(ctx, notesCmd(u.ID))
	require.Error(t, err)
	assert.True(t, shared.IsGenerationFailed(err))
	assert.Equal(t, curriculum.FailureCancelled, curriculum.FailureReasonOf(err))
	assert.Zero(t, uow.calls.Load())
	assert.Equal(t, 5, f.balance(t, u.ID))

	key := curriculum.ComposeKey(lightSelector().Normalize(), curriculum.LanguageEnglish, curriculum.ContentNotesSimple)
	_, err = f.store.Get(context.Background(), key)
	assert.True(t, shared.IsNotFound(err))
}

func TestRequestContent_FollowerLeadsAfterLeaderDeadline(t *testing.T) {
	f := newFixture()
	first := f.student(t, "NST-1001", 5)
	second := f.student(t, "NST-1002", 5)

	f.generator.fn = func(ctx context.Context, _ curriculum.GenerationRequest) (*curriculum.ContentRecord, error) {
		if f.generator.calls.Load() == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &curriculum.ContentRecord{Title: "Light", Body: "body"}, nil
	}
	h := f.handler(DefaultRequestContentHandlerConfig())

	leaderCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var leaderErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, leaderErr = h.Handle(leaderCtx, notesCmd(first.ID))
	}()
	require.Eventually(t, func() bool { return f.generator.calls.Load() == 1 }, time.Second, time.Millisecond)

	res, err := h.Handle(context.Background(), notesCmd(second.ID))
	<-done

	require.NoError(t, err)
	assert.False(t, res.SharedGeneration)
	assert.Equal(t, 1, res.Charged)
	assert.EqualValues(t, 2, f.generator.calls.Load())

	assert.True(t, shared.IsGenerationFailed(leaderErr))
	assert.Equal(t, curriculum.FailureTimeout, curriculum.FailureReasonOf(leaderErr))
	assert.Equal(t, 5, f.balance(t, first.ID))
	assert.Equal(t, 4, f.balance(t, second.ID))
}
