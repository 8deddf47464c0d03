package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nst-ai/lesson-hub/internal/application/command"
	"github.com/nst-ai/lesson-hub/internal/application/query"
	"github.com/nst-ai/lesson-hub/internal/application/session"
	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/navigation"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

type userDTO struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Role      string          `json:"role"`
	Credits   int             `json:"credits"`
	IsPremium bool            `json:"is_premium"`
	IsLocked  bool            `json:"is_locked"`
	Profile   account.Profile `json:"profile"`
	CreatedAt time.Time       `json:"created_at"`
}

func newUserDTO(u *account.User) userDTO {
	return userDTO{
		ID:        u.ID.String(),
		Name:      u.Name,
		Role:      string(u.Role),
		Credits:   u.Credits,
		IsPremium: u.IsPremium,
		IsLocked:  u.IsLocked,
		Profile:   u.Profile,
		CreatedAt: u.CreatedAt,
	}
}

type sessionDTO struct {
	ID     string                  `json:"session_id"`
	Key    string                  `json:"session_key,omitempty"`
	State  navigation.SessionState `json:"state"`
	Lesson *lessonResultDTO        `json:"lesson,omitempty"`
}

type lessonResultDTO struct {
	query.LessonDTO
	CacheHit bool   `json:"cache_hit"`
	Charged  int    `json:"charged"`
	Balance  int    `json:"balance"`
	Warning  string `json:"warning,omitempty"`
}

// selectorParams is the curriculum address shared by lesson endpoints.
type selectorParams struct {
	Board      string `json:"board" form:"board"`
	ClassLevel int    `json:"class_level" form:"class_level"`
	Stream     string `json:"stream" form:"stream"`
	Subject    string `json:"subject" form:"subject"`
	Chapter    string `json:"chapter" form:"chapter"`
	Language   string `json:"language" form:"language"`
}

func (p selectorParams) selector() curriculum.Selector {
	return curriculum.NewSelector(p.Board, p.ClassLevel, p.Stream, p.Subject, p.Chapter)
}

// language defaults to the board's language.
func (p selectorParams) language() curriculum.Language {
	if p.Language == "" {
		return curriculum.LanguageForBoard(p.Board)
	}
	return curriculum.Language(strings.ToLower(strings.TrimSpace(p.Language)))
}

func correlationID(c *gin.Context) string {
	return handlers.GetRequestID(c)
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

type registerRequest struct {
	Name       string `json:"name" binding:"required"`
	Password   string `json:"password" binding:"required"`
	Board      string `json:"board" binding:"required"`
	ClassLevel int    `json:"class_level" binding:"required"`
	Stream     string `json:"stream"`
}

// handleRegister handles POST /api/v1/auth/register
func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondInvalid(c, err)
		return
	}

	res, err := s.deps.Register.Handle(c.Request.Context(), command.RegisterCommand{
		Name:     req.Name,
		Password: req.Password,
		Profile: account.Profile{
			Board:      req.Board,
			ClassLevel: req.ClassLevel,
			Stream:     req.Stream,
		},
		CorrelationID: correlationID(c),
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": newUserDTO(res.User)})
}

type loginRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin handles POST /api/v1/auth/login. A new session is opened on
// the role home with the profile preselected.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondInvalid(c, err)
		return
	}

	res, err := s.deps.Login.Handle(c.Request.Context(), command.LoginCommand{
		UserID:   req.UserID,
		Password: req.Password,
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	ctrl := s.deps.Sessions.Open(res.State)
	c.JSON(http.StatusOK, gin.H{
		"token":       res.Token,
		"user":        newUserDTO(res.User),
		"session_id":  ctrl.ID(),
		"session_key": ctrl.Key(),
		"state":       res.State,
	})
}

// handleLogout handles POST /api/v1/auth/logout
func (s *Server) handleLogout(c *gin.Context) {
	if err := s.deps.Login.Logout(c.Request.Context(), handlers.CurrentToken(c)); err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleMe handles GET /api/v1/me
func (s *Server) handleMe(c *gin.Context) {
	handlers.RespondOK(c, gin.H{"user": newUserDTO(handlers.CurrentUser(c))})
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// handleOpenSession handles POST /api/v1/sessions. Authenticated callers
// start on their home view, anonymous callers on board selection.
func (s *Server) handleOpenSession(c *gin.Context) {
	initial := navigation.InitialState()
	if u := handlers.CurrentUser(c); u != nil {
		initial = navigation.LoginState(u.Identity())
	}
	ctrl := s.deps.Sessions.Open(initial)
	c.JSON(http.StatusCreated, sessionDTO{ID: ctrl.ID(), Key: ctrl.Key(), State: initial})
}

// session loads the controller and checks that the caller may drive it. An
// anonymous session answers only to the opener key; a signed-in one only to
// its account (the admin while impersonating).
func (s *Server) session(c *gin.Context) (*session.Controller, navigation.SessionState, bool) {
	ctrl, err := s.deps.Sessions.Get(c.Param("id"))
	if err != nil {
		handlers.RespondError(c, err)
		return nil, navigation.SessionState{}, false
	}
	state, err := ctrl.State(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, err)
		return nil, navigation.SessionState{}, false
	}
	if !state.IsAuthenticated() {
		if !ctrl.HoldsKey(c.GetHeader(handlers.SessionKeyHeader)) {
			handlers.RespondError(c, shared.NewDomainError("http", "Session", shared.ErrForbidden, "session key required"))
			return nil, navigation.SessionState{}, false
		}
		return ctrl, state, true
	}

	owner := state.Identity.UserID
	if state.Impersonator != nil {
		owner = state.Impersonator.UserID
	}
	u := handlers.CurrentUser(c)
	switch {
	case u == nil:
		handlers.RespondError(c, shared.ErrUnauthorized)
		return nil, navigation.SessionState{}, false
	case u.ID != owner:
		handlers.RespondError(c, shared.NewDomainError("http", "Session", shared.ErrForbidden, "session belongs to another account"))
		return nil, navigation.SessionState{}, false
	}
	return ctrl, state, true
}

// handleGetSession handles GET /api/v1/sessions/:id
func (s *Server) handleGetSession(c *gin.Context) {
	ctrl, state, ok := s.session(c)
	if !ok {
		return
	}
	dto := sessionDTO{ID: ctrl.ID(), State: state}

	if state.View == navigation.ViewLessonView {
		res, err := ctrl.Lesson(c.Request.Context())
		if err != nil && !shared.IsNotFound(err) {
			handlers.RespondError(c, err)
			return
		}
		if res != nil {
			dto.Lesson = &lessonResultDTO{
				LessonDTO: query.NewLessonDTO(res.Record, time.Now()),
				CacheHit:  res.CacheHit,
				Charged:   res.Charged,
				Balance:   res.Balance,
				Warning:   res.Warning,
			}
		}
	}
	handlers.RespondOK(c, dto)
}

// handleCloseSession handles DELETE /api/v1/sessions/:id
func (s *Server) handleCloseSession(c *gin.Context) {
	ctrl, _, ok := s.session(c)
	if !ok {
		return
	}
	s.deps.Sessions.Close(ctrl.ID())
	c.Status(http.StatusNoContent)
}

type eventRequest struct {
	Kind        string `json:"kind" binding:"required"`
	Value       string `json:"value"`
	ClassLevel  int    `json:"class_level"`
	ContentType string `json:"content_type"`

	// TargetUserID names the student for IMPERSONATE.
	TargetUserID string `json:"target_user_id"`
}

// handleSessionEvent handles POST /api/v1/sessions/:id/events.
// Internal events (generation results, loading timer) cannot be sent by clients.
func (s *Server) handleSessionEvent(c *gin.Context) {
	ctrl, state, ok := s.session(c)
	if !ok {
		return
	}
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondInvalid(c, err)
		return
	}

	kind := navigation.EventKind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	if kind == navigation.EventConfirmContentType {
		s.startContent(c, ctrl, req.ContentType)
		return
	}

	ev, err := s.buildEvent(c, state, kind, req)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	next, err := ctrl.Dispatch(c.Request.Context(), ev)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, sessionDTO{ID: ctrl.ID(), State: next})
}

func (s *Server) buildEvent(c *gin.Context, state navigation.SessionState, kind navigation.EventKind, req eventRequest) (navigation.Event, error) {
	switch kind {
	case navigation.EventSelectBoard:
		return navigation.SelectBoard(req.Value), nil
	case navigation.EventSelectClass:
		return navigation.SelectClass(req.ClassLevel), nil
	case navigation.EventSelectStream:
		return navigation.SelectStream(req.Value), nil
	case navigation.EventSelectSubject:
		return navigation.SelectSubject(req.Value), nil
	case navigation.EventSelectChapter:
		return navigation.SelectChapter(req.Value), nil
	case navigation.EventCancelContentType:
		return navigation.CancelContentType(), nil
	case navigation.EventBack:
		return navigation.Back(), nil
	case navigation.EventLogout:
		return navigation.Logout(), nil
	case navigation.EventOpenRules:
		return navigation.OpenRules(), nil
	case navigation.EventOpenInfo:
		return navigation.OpenInfo(), nil
	case navigation.EventGoHome:
		return navigation.GoHome(), nil
	case navigation.EventReturnFromImpersonation:
		return navigation.ReturnFromImpersonation(), nil

	case navigation.EventLogin:
		// Binds an anonymous session to the caller's account.
		u := handlers.CurrentUser(c)
		if u == nil {
			return navigation.Event{}, shared.ErrUnauthorized
		}
		return navigation.Login(u.Identity()), nil

	case navigation.EventImpersonate:
		u := handlers.CurrentUser(c)
		if u == nil || !u.IsAdmin() || !state.Identity.IsAdmin() {
			return navigation.Event{}, shared.ErrNotAdmin
		}
		id, err := shared.NewUserID(req.TargetUserID)
		if err != nil {
			return navigation.Event{}, err
		}
		target, err := s.deps.Accounts.GetByID(c.Request.Context(), id)
		if err != nil {
			return navigation.Event{}, err
		}
		return navigation.Impersonate(target.Identity()), nil
	}

	return navigation.Event{}, shared.NewDomainError("http", "Event", shared.ErrInvalidInput,
		"event "+string(kind)+" cannot be sent by a client")
}

type contentRequest struct {
	ContentType string `json:"content_type" binding:"required"`
}

// handleSessionContent handles POST /api/v1/sessions/:id/content. The request
// runs asynchronously; poll GET /sessions/:id until LESSON_VIEW.
func (s *Server) handleSessionContent(c *gin.Context) {
	ctrl, _, ok := s.session(c)
	if !ok {
		return
	}
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondInvalid(c, err)
		return
	}
	s.startContent(c, ctrl, req.ContentType)
}

func (s *Server) startContent(c *gin.Context, ctrl *session.Controller, raw string) {
	ct, err := curriculum.ParseContentType(raw)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	next, err := ctrl.RequestContent(c.Request.Context(), ct)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sessionDTO{ID: ctrl.ID(), State: next})
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSONS
// ══════════════════════════════════════════════════════════════════════════════

type peekParams struct {
	selectorParams
	ContentType string `form:"content_type"`
}

// handlePeekLesson handles GET /api/v1/lessons. Cache only: never generates
// or charges.
func (s *Server) handlePeekLesson(c *gin.Context) {
	var p peekParams
	if err := c.ShouldBindQuery(&p); err != nil {
		handlers.RespondInvalid(c, err)
		return
	}
	ct, err := curriculum.ParseContentType(p.ContentType)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	dto, err := s.deps.GetLesson.Handle(c.Request.Context(), query.GetLessonQuery{
		Selector:    p.selector(),
		Language:    p.language(),
		ContentType: ct,
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, dto)
}

// handleListChapters handles GET /api/v1/chapters
func (s *Server) handleListChapters(c *gin.Context) {
	var p selectorParams
	if err := c.ShouldBindQuery(&p); err != nil {
		handlers.RespondInvalid(c, err)
		return
	}

	dto, err := s.deps.ListChapters.Handle(c.Request.Context(), query.ListChaptersQuery{
		Selector: p.selector(),
		Language: p.language(),
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, dto)
}

type overwriteRequest struct {
	selectorParams
	ContentType string `json:"content_type" binding:"required"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Body        string `json:"body" binding:"required"`
}

// handleOverwriteLesson handles PUT /api/v1/admin/lessons
func (s *Server) handleOverwriteLesson(c *gin.Context) {
	var req overwriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondInvalid(c, err)
		return
	}
	ct, err := curriculum.ParseContentType(req.ContentType)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	res, err := s.deps.Overwrite.Handle(c.Request.Context(), command.OverwriteContentCommand{
		Selector:      req.selector(),
		Language:      req.language(),
		ContentType:   ct,
		Title:         req.Title,
		Subtitle:      req.Subtitle,
		Body:          req.Body,
		OperatorID:    handlers.CurrentUser(c).ID,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, gin.H{
		"lesson":   query.NewLessonDTO(res.Record, time.Now()),
		"replaced": res.Replaced,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

// handleListAccounts handles GET /api/v1/admin/accounts
func (s *Server) handleListAccounts(c *gin.Context) {
	users, err := s.deps.Accounts.List(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, newUserDTO(u))
	}
	handlers.RespondOK(c, gin.H{"accounts": out, "total": len(out)})
}

func accountParam(c *gin.Context) (shared.UserID, bool) {
	id, err := shared.NewUserID(c.Param("id"))
	if err != nil {
		handlers.RespondError(c, err)
		return "", false
	}
	return id, true
}

type creditsRequest struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason"`
}

// handleAdjustCredits handles POST /api/v1/admin/accounts/:id/credits
func (s *Server) handleAdjustCredits(c *gin.Context) {
	id, ok := accountParam(c)
	if !ok {
		return
	}
	var req creditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondInvalid(c, err)
		return
	}

	res, err := s.deps.AdjustCredits.Handle(c.Request.Context(), command.AdjustCreditsCommand{
		OperatorID:    handlers.CurrentUser(c).ID,
		UserID:        id,
		Delta:         req.Delta,
		Reason:        req.Reason,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, gin.H{"user_id": res.UserID.String(), "balance": res.Balance})
}

type lockRequest struct {
	Locked *bool `json:"locked" binding:"required"`
}

// handleSetLock handles POST /api/v1/admin/accounts/:id/lock
func (s *Server) handleSetLock(c *gin.Context) {
	id, ok := accountParam(c)
	if !ok {
		return
	}
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.RespondInvalid(c, err)
		return
	}

	err := s.deps.SetAccountLock.Handle(c.Request.Context(), command.SetAccountLockCommand{
		OperatorID:    handlers.CurrentUser(c).ID,
		UserID:        id,
		Locked:        *req.Locked,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, gin.H{"user_id": id.String(), "locked": *req.Locked})
}

// handleStorageStats handles GET /api/v1/admin/storage
func (s *Server) handleStorageStats(c *gin.Context) {
	dto, err := s.deps.StorageStats.Handle(c.Request.Context(), query.StorageStatsQuery{})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, dto)
}

// handleGetSettings handles GET /api/v1/admin/settings
func (s *Server) handleGetSettings(c *gin.Context) {
	sys, err := s.deps.Settings.Load(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, sys)
}

// handleUpdateSettings handles PUT /api/v1/admin/settings. The body replaces
// the settings; omitted fields keep their current values.
func (s *Server) handleUpdateSettings(c *gin.Context) {
	current, err := s.deps.Settings.Load(c.Request.Context())
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	next := current.Clone()
	if err := c.ShouldBindJSON(next); err != nil {
		handlers.RespondInvalid(c, err)
		return
	}

	saved, err := s.deps.UpdateSettings.Handle(c.Request.Context(), command.UpdateSettingsCommand{
		OperatorID:    handlers.CurrentUser(c).ID,
		Settings:      next,
		CorrelationID: correlationID(c),
	})
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	handlers.RespondOK(c, saved)
}
