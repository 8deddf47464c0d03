package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nst-ai/lesson-hub/internal/application/command"
	"github.com/nst-ai/lesson-hub/internal/application/query"
	"github.com/nst-ai/lesson-hub/internal/application/session"
	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/navigation"
	"github.com/nst-ai/lesson-hub/internal/domain/settings"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/internal/infrastructure/persistence/memory"
	"github.com/nst-ai/lesson-hub/internal/interface/http/handlers"
	"github.com/nst-ai/lesson-hub/pkg/timeutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type stubGenerator struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (g *stubGenerator) Generate(_ context.Context, req curriculum.GenerationRequest) (*curriculum.ContentRecord, error) {
	g.calls.Add(1)
	if g.fail.Load() {
		return nil, &curriculum.GenerationFailure{Reason: curriculum.FailureUpstream, Err: errors.New("503")}
	}
	return &curriculum.ContentRecord{
		Title:    req.Selector.Chapter,
		Subtitle: req.ContentType.Label(),
		Body:     "Q1. What is refraction?",
	}, nil
}

func (g *stubGenerator) ListChapters(context.Context, curriculum.Selector, curriculum.Language) ([]string, error) {
	return []string{"Light", "Electricity"}, nil
}

type memSettings struct {
	mu sync.Mutex
	s  *settings.SystemSettings
}

func (m *memSettings) Load(context.Context) (*settings.SystemSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Clone(), nil
}

func (m *memSettings) Save(_ context.Context, next *settings.SystemSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = next.Clone()
	return nil
}

type plainHasher struct{}

func (plainHasher) Hash(pw string) (string, error) { return "h:" + pw, nil }

func (plainHasher) Compare(hash, pw string) error {
	if hash != "h:"+pw {
		return shared.ErrInvalidCredentials
	}
	return nil
}

type testEnv struct {
	handler  http.Handler
	accounts *memory.AccountRepository
	store    *memory.ContentStore
	gen      *stubGenerator
	settings *memSettings
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewContentStore()
	accounts := memory.NewAccountRepository()
	gen := &stubGenerator{}
	sys := &memSettings{s: settings.Defaults()}
	clock := timeutil.SystemClock{}
	pub := shared.NopPublisher{}

	orchestrator := command.NewRequestContentHandler(store, memory.NewUnitOfWork(store, accounts), gen,
		accounts, sys, pub, nil, command.DefaultRequestContentHandlerConfig())
	registry := session.NewRegistry(navigation.NewMachine(nil), orchestrator, clock, nil,
		session.Config{MinLoadingDuration: 0, GenerationTimeout: 5 * time.Second})
	t.Cleanup(registry.CloseAll)

	srv := NewServer(DefaultConfig(), Dependencies{
		Register:       command.NewRegisterHandler(accounts, plainHasher{}, sys, pub, nil, command.RegisterHandlerConfig{}),
		Login:          command.NewLoginHandler(accounts, plainHasher{}, memory.NewSessionStore(clock), sys, nil, command.DefaultLoginHandlerConfig()),
		Overwrite:      command.NewOverwriteContentHandler(store, accounts, pub, nil),
		AdjustCredits:  command.NewAdjustCreditsHandler(accounts, pub, nil),
		SetAccountLock: command.NewSetAccountLockHandler(accounts, pub, nil),
		UpdateSettings: command.NewUpdateSettingsHandler(sys, accounts, pub, nil),
		GetLesson:      query.NewGetLessonHandler(store, clock),
		ListChapters:   query.NewListChaptersHandler(store, gen, nil, query.ListChaptersConfig{}),
		StorageStats:   query.NewStorageStatsHandler(store, clock, nil),
		Sessions:       registry,
		Accounts:       accounts,
		Settings:       sys,
	})

	_, err := command.EnsureAdmin(context.Background(), accounts, plainHasher{}, "secret")
	require.NoError(t, err)

	return &testEnv{handler: srv.Handler(), accounts: accounts, store: store, gen: gen, settings: sys}
}

func (e *testEnv) student(t *testing.T, id string, credits int) {
	t.Helper()
	u, err := account.NewStudent(shared.UserID(id), "Ravi", "h:pass", account.Profile{Board: "CBSE", ClassLevel: 10}, credits)
	require.NoError(t, err)
	require.NoError(t, e.accounts.Create(context.Background(), u))
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doKeyed(t, method, path, token, "", body)
}

// doKeyed sends the anonymous-session key along with the request.
func (e *testEnv) doKeyed(t *testing.T, method, path, token, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key != "" {
		req.Header.Set(handlers.SessionKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type loginResponse struct {
	Token     string                  `json:"token"`
	SessionID string                  `json:"session_id"`
	State     navigation.SessionState `json:"state"`
	User      userDTO                 `json:"user"`
}

func (e *testEnv) login(t *testing.T, id, password string) loginResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"user_id": id, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handlers.APIError {
	t.Helper()
	var env handlers.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionDTO {
	t.Helper()
	var dto sessionDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto), rec.Body.String())
	return dto
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestRegisterAndLogin(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name": "Asha", "password": "pass1", "board": "BSEB", "class_level": 9,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		User userDTO `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Regexp(t, `^NST-\d{4}$`, created.User.ID)
	assert.Equal(t, 2, created.User.Credits)

	out := env.login(t, created.User.ID, "pass1")
	assert.NotEmpty(t, out.Token)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, navigation.ViewStudentHome, out.State.View)
	assert.Equal(t, curriculum.LanguageHindi, out.State.Language)

	me := env.do(t, http.MethodGet, "/api/v1/me", out.Token, nil)
	assert.Equal(t, http.StatusOK, me.Code)
}

func TestLoginFailures(t *testing.T) {
	env := newEnv(t)
	env.student(t, "NST-1001", 2)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"user_id": "NST-1001", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, rec).Code)

	require.NoError(t, env.accounts.SetLocked(context.Background(), "NST-1001", true))
	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"user_id": "NST-1001", "password": "pass"})
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "ACCOUNT_LOCKED", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"user_id": "NST-1001"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, rec).Code)
}

func TestMaintenanceBlocksStudents(t *testing.T) {
	env := newEnv(t)
	env.student(t, "NST-1002", 2)
	env.settings.s.MaintenanceMode = true

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"user_id": "NST-1002", "password": "pass"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "MAINTENANCE", decodeError(t, rec).Code)

	admin := env.login(t, "ADMIN", "secret")
	assert.Equal(t, navigation.ViewAdminHome, admin.State.View)
}

func TestLessonFlowChargesOnceThenServesFromCache(t *testing.T) {
	env := newEnv(t)
	env.student(t, "NST-1003", 2)
	out := env.login(t, "NST-1003", "pass")
	base := "/api/v1/sessions/" + out.SessionID

	rec := env.do(t, http.MethodPost, base+"/events", out.Token, gin.H{"kind": "SELECT_SUBJECT", "value": "Science"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, navigation.ViewChapterSelect, decodeSession(t, rec).State.View)

	rec = env.do(t, http.MethodPost, base+"/events", out.Token, gin.H{"kind": "select_chapter", "value": "Light"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeSession(t, rec).State.ContentTypeGateOpen)

	rec = env.do(t, http.MethodPost, base+"/content", out.Token, gin.H{"content_type": "mcq"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var dto sessionDTO
	require.Eventually(t, func() bool {
		dto = decodeSession(t, env.do(t, http.MethodGet, base, out.Token, nil))
		return dto.State.View == navigation.ViewLessonView
	}, 2*time.Second, 10*time.Millisecond)

	require.NotNil(t, dto.Lesson)
	assert.Equal(t, "Q1. What is refraction?", dto.Lesson.Body)
	assert.False(t, dto.Lesson.CacheHit)
	assert.Equal(t, 1, dto.Lesson.Charged)
	assert.Equal(t, 1, dto.Lesson.Balance)

	// The artifact is now cached: peeking is free and generation is not repeated.
	peek := env.do(t, http.MethodGet,
		"/api/v1/lessons?board=cbse&class_level=10&subject=science&chapter=light&content_type=MCQ", "", nil)
	require.Equal(t, http.StatusOK, peek.Code, peek.Body.String())

	var lesson query.LessonDTO
	require.NoError(t, json.Unmarshal(peek.Body.Bytes(), &lesson))
	want := curriculum.ComposeKey(curriculum.NewSelector("CBSE", 10, "", "Science", "Light"), curriculum.LanguageEnglish, curriculum.ContentMCQ)
	assert.Equal(t, want.String(), lesson.Key)
	assert.Equal(t, int32(1), env.gen.calls.Load())
}

func TestGenerationFailureReturnsToChapterSelect(t *testing.T) {
	env := newEnv(t)
	env.student(t, "NST-1004", 2)
	env.gen.fail.Store(true)
	out := env.login(t, "NST-1004", "pass")
	base := "/api/v1/sessions/" + out.SessionID

	env.do(t, http.MethodPost, base+"/events", out.Token, gin.H{"kind": "SELECT_SUBJECT", "value": "Science"})
	env.do(t, http.MethodPost, base+"/events", out.Token, gin.H{"kind": "SELECT_CHAPTER", "value": "Light"})
	rec := env.do(t, http.MethodPost, base+"/events", out.Token, gin.H{"kind": "CONFIRM_CONTENT_TYPE", "content_type": "MCQ"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var dto sessionDTO
	require.Eventually(t, func() bool {
		dto = decodeSession(t, env.do(t, http.MethodGet, base, out.Token, nil))
		return dto.State.View == navigation.ViewChapterSelect
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "UPSTREAM", dto.State.LastError)

	u, err := env.accounts.GetByID(context.Background(), "NST-1004")
	require.NoError(t, err)
	assert.Equal(t, 2, u.Credits)
}

func TestSessionOwnership(t *testing.T) {
	env := newEnv(t)
	env.student(t, "NST-1005", 2)
	env.student(t, "NST-1006", 2)
	owner := env.login(t, "NST-1005", "pass")
	other := env.login(t, "NST-1006", "pass")
	path := "/api/v1/sessions/" + owner.SessionID

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, path, other.Token, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/sessions/missing", owner.Token, nil).Code)
}

func TestAnonymousSession(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	dto := decodeSession(t, rec)
	assert.Equal(t, navigation.ViewBoardSelect, dto.State.View)
	require.NotEmpty(t, dto.Key)
	base := "/api/v1/sessions/" + dto.ID

	rec = env.doKeyed(t, http.MethodPost, base+"/events", "", dto.Key, gin.H{"kind": "SELECT_BOARD", "value": "BSEB"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, curriculum.LanguageHindi, decodeSession(t, rec).State.Language)

	rec = env.doKeyed(t, http.MethodPost, base+"/events", "", dto.Key, gin.H{"kind": "GENERATION_DONE"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doKeyed(t, http.MethodPost, base+"/events", "", dto.Key, gin.H{"kind": "SELECT_CHAPTER", "value": "Light"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ILLEGAL_TRANSITION", decodeError(t, rec).Code)
}

func TestAnonymousSessionAnswersOnlyToOpener(t *testing.T) {
	env := newEnv(t)
	env.student(t, "NST-1008", 2)
	stranger := env.login(t, "NST-1008", "pass")

	rec := env.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	dto := decodeSession(t, rec)
	base := "/api/v1/sessions/" + dto.ID

	rec = env.do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Code)

	rec = env.doKeyed(t, http.MethodPost, base+"/events", "", "not-the-key", gin.H{"kind": "SELECT_BOARD", "value": "CBSE"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, base+"/events", stranger.Token, gin.H{"kind": "LOGIN"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doKeyed(t, http.MethodGet, base, "", dto.Key, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeSession(t, rec).State.IsAuthenticated())

	rec = env.doKeyed(t, http.MethodPost, base+"/events", stranger.Token, dto.Key, gin.H{"kind": "LOGIN"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, navigation.ViewStudentHome, decodeSession(t, rec).State.View)

	rec = env.do(t, http.MethodGet, base, stranger.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestImpersonationRoundTrip(t *testing.T) {
	env := newEnv(t)
	env.student(t, "NST-1007", 5)
	admin := env.login(t, "ADMIN", "secret")
	base := "/api/v1/sessions/" + admin.SessionID

	rec := env.do(t, http.MethodPost, base+"/events", admin.Token, gin.H{"kind": "IMPERSONATE", "target_user_id": "nst-1007"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decodeSession(t, rec).State
	assert.Equal(t, navigation.ViewStudentHome, st.View)
	assert.Equal(t, shared.UserID("NST-1007"), st.Identity.UserID)

	// The admin still drives the session while impersonating.
	rec = env.do(t, http.MethodPost, base+"/events", admin.Token, gin.H{"kind": "RETURN_FROM_IMPERSONATION"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st = decodeSession(t, rec).State
	assert.Equal(t, navigation.ViewAdminHome, st.View)
	assert.Equal(t, shared.AdminUserID, st.Identity.UserID)
}

func TestAdminEndpoints(t *testing.T) {
	env := newEnv(t)
	env.student(t, "NST-1008", 0)
	admin := env.login(t, "ADMIN", "secret")
	student := env.login(t, "NST-1008", "pass")

	rec := env.do(t, http.MethodGet, "/api/v1/admin/storage", student.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/accounts/NST-1008/credits", admin.Token, gin.H{"delta": 5, "reason": "payment"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"user_id":"NST-1008","balance":5}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/v1/admin/accounts/NST-1008/credits", admin.Token, gin.H{"delta": -9})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/v1/admin/lessons", admin.Token, gin.H{
		"board": "CBSE", "class_level": 10, "subject": "Science", "chapter": "Light",
		"content_type": "NOTES_SIMPLE", "title": "Light", "body": "Reviewed notes.",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/admin/storage", admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats query.StorageStatsDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalItems)
	assert.Equal(t, 1, stats.ManualOverrides)

	rec = env.do(t, http.MethodPost, "/api/v1/admin/accounts/NST-1008/lock", admin.Token, gin.H{"locked": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A locked account's token stops working.
	rec = env.do(t, http.MethodGet, "/api/v1/me", student.Token, nil)
	assert.Equal(t, http.StatusLocked, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/admin/accounts", admin.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":2`)
}

func TestSettingsEndpoints(t *testing.T) {
	env := newEnv(t)
	admin := env.login(t, "ADMIN", "secret")

	rec := env.do(t, http.MethodPut, "/api/v1/admin/settings", admin.Token, gin.H{
		"maintenance_mode": true,
		"content_costs":    gin.H{"MCQ": 4},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var saved settings.SystemSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.True(t, saved.MaintenanceMode)
	assert.Equal(t, 4, saved.ContentCosts[curriculum.ContentMCQ])
	assert.Equal(t, 3, saved.ContentCosts[curriculum.ContentNotesPremium])

	rec = env.do(t, http.MethodPut, "/api/v1/admin/settings", admin.Token, gin.H{"allowed_classes": []int{0}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListChapters(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/chapters?board=CBSE&class_level=10&subject=Science", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"Electricity"`)

	rec = env.do(t, http.MethodGet, "/api/v1/chapters?board=CBSE", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
	assert.NotEmpty(t, rec.Header().Get(handlers.RequestIDHeader))
}

func TestBadTokenIsRejected(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/lessons", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
