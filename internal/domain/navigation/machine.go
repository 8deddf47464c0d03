package navigation

import (
	"fmt"
	"strings"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// ClassPolicy решает, предлагается ли класс (системные настройки).
type ClassPolicy func(level int) bool

// Machine - чистый редьюсер навигации.
type Machine struct {
	classAllowed ClassPolicy
}

// NewMachine создаёт автомат. nil policy разрешает все классы 1..12.
func NewMachine(policy ClassPolicy) *Machine {
	if policy == nil {
		policy = func(int) bool { return true }
	}
	return &Machine{classAllowed: policy}
}

// Navigate применяет событие.
//
// Недопустимое событие возвращает shared.ErrIllegalTransition, результат
// генерации с чужим токеном или вне CONTENT_LOADING возвращает
// shared.ErrStaleResult. В обоих случаях возвращается исходное состояние.
func (m *Machine) Navigate(s SessionState, ev Event) (SessionState, error) {
	next, err := m.apply(s, ev)
	if err != nil {
		return s, err
	}
	return next, nil
}

func (m *Machine) apply(s SessionState, ev Event) (SessionState, error) {
	switch ev.Kind {
	case EventSelectBoard:
		return m.selectBoard(s, ev.Value)
	case EventSelectClass:
		return m.selectClass(s, ev.ClassLevel)
	case EventSelectStream:
		return m.selectStream(s, ev.Value)
	case EventSelectSubject:
		return m.selectSubject(s, ev.Value)
	case EventSelectChapter:
		return m.selectChapter(s, ev.Value)
	case EventConfirmContentType:
		return m.confirmContentType(s, ev.ContentType)
	case EventCancelContentType:
		return m.cancelContentType(s)
	case EventGenerationDone:
		return m.generationDone(s, ev.Token)
	case EventMinDurationElapsed:
		return m.minDurationElapsed(s, ev.Token)
	case EventGenerationFailed:
		return m.generationFailed(s, ev.Token, ev.Value)
	case EventBack:
		return m.back(s)
	case EventLogin:
		return m.login(s, ev)
	case EventLogout:
		return InitialState(), nil
	case EventImpersonate:
		return m.impersonate(s, ev)
	case EventReturnFromImpersonation:
		return m.returnFromImpersonation(s)
	case EventOpenRules:
		return m.openDetour(s, ViewRules)
	case EventOpenInfo:
		return m.openDetour(s, ViewInfo)
	case EventGoHome:
		return m.goHome(s)
	default:
		return s, illegal(s, ev.Kind, "unknown event")
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Прямые переходы по селектору
// ─────────────────────────────────────────────────────────────────────────────

func (m *Machine) selectBoard(s SessionState, board string) (SessionState, error) {
	if s.View != ViewBoardSelect && !s.View.IsHome() {
		return s, illegal(s, EventSelectBoard, "")
	}
	if curriculum.NormalizeText(board) == "" {
		return s, invalid("board is required")
	}

	s = clearTransient(s)
	s.View = ViewClassSelect
	s.Selector = s.Selector.WithBoard(board).Normalize()
	s.Language = curriculum.LanguageForBoard(board)
	s.EnteredFromHome = false
	return s, nil
}

func (m *Machine) selectClass(s SessionState, level int) (SessionState, error) {
	if s.View != ViewClassSelect {
		return s, illegal(s, EventSelectClass, "")
	}
	if level < curriculum.MinClassLevel || level > curriculum.MaxClassLevel || !m.classAllowed(level) {
		return s, shared.WrapError("navigation", "Navigate", shared.ErrValueOutOfRange,
			fmt.Sprintf("class %d is not offered", level), shared.ErrClassNotAllowed)
	}

	s = clearTransient(s)
	s.Selector = s.Selector.WithClass(level)
	if curriculum.IsStreamedClass(level) {
		s.View = ViewStreamSelect
	} else {
		s.View = ViewSubjectSelect
	}
	return s, nil
}

func (m *Machine) selectStream(s SessionState, stream string) (SessionState, error) {
	if s.View != ViewStreamSelect {
		return s, illegal(s, EventSelectStream, "")
	}
	if curriculum.NormalizeText(stream) == "" {
		return s, invalid("stream is required")
	}

	s = clearTransient(s)
	s.Selector = s.Selector.WithStream(stream).Normalize()
	s.View = ViewSubjectSelect
	return s, nil
}

// selectSubject допустим на SUBJECT_SELECT и, для студента с заполненным
// профилем, прямо с домашнего экрана.
func (m *Machine) selectSubject(s SessionState, subject string) (SessionState, error) {
	fromHome := s.View == ViewStudentHome
	if s.View != ViewSubjectSelect && !fromHome {
		return s, illegal(s, EventSelectSubject, "")
	}
	if curriculum.NormalizeText(subject) == "" {
		return s, invalid("subject is required")
	}

	next := s.Selector.WithSubject(subject).Normalize()
	if err := next.ValidateSubject(); err != nil {
		return s, err
	}

	s = clearTransient(s)
	s.Selector = next
	s.View = ViewChapterSelect
	s.EnteredFromHome = fromHome
	return s, nil
}

// selectChapter не уходит с экрана, а открывает ворота выбора типа контента.
func (m *Machine) selectChapter(s SessionState, chapter string) (SessionState, error) {
	if s.View != ViewChapterSelect {
		return s, illegal(s, EventSelectChapter, "")
	}
	if curriculum.NormalizeText(chapter) == "" {
		return s, invalid("chapter is required")
	}

	s.Selector = s.Selector.WithChapter(chapter).Normalize()
	s.ContentTypeGateOpen = true
	s.PendingContentType = ""
	s.LastError = ""
	return s, nil
}

func (m *Machine) cancelContentType(s SessionState) (SessionState, error) {
	if s.View != ViewChapterSelect || !s.ContentTypeGateOpen {
		return s, illegal(s, EventCancelContentType, "content type gate is closed")
	}
	s.ContentTypeGateOpen = false
	s.Selector = s.Selector.WithChapter("")
	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Загрузка контента
// ─────────────────────────────────────────────────────────────────────────────

func (m *Machine) confirmContentType(s SessionState, ct curriculum.ContentType) (SessionState, error) {
	if s.View == ViewContentLoading {
		return s, shared.WrapError("navigation", "Navigate", shared.ErrInvalidState,
			"a content request is already in flight", shared.ErrRequestInFlight)
	}
	if s.View != ViewChapterSelect || !s.ContentTypeGateOpen {
		return s, illegal(s, EventConfirmContentType, "select a chapter first")
	}
	if !ct.IsRequestable() {
		return s, shared.ErrUnknownContent
	}

	s.View = ViewContentLoading
	s.ContentTypeGateOpen = false
	s.PendingContentType = ct
	s.RequestToken++
	s.Loading = LoadingGate{}
	s.ContentReady = false
	s.LastError = ""
	return s, nil
}

func (m *Machine) generationDone(s SessionState, token uint64) (SessionState, error) {
	if err := checkFresh(s, token); err != nil {
		return s, err
	}
	s.Loading.DataReady = true
	return completeIfReady(s), nil
}

func (m *Machine) minDurationElapsed(s SessionState, token uint64) (SessionState, error) {
	if err := checkFresh(s, token); err != nil {
		return s, err
	}
	s.Loading.MinTimeElapsed = true
	return completeIfReady(s), nil
}

// generationFailed возвращает на выбор главы с открытыми воротами,
// то есть ровно туда, откуда был подтверждён тип.
func (m *Machine) generationFailed(s SessionState, token uint64, reason string) (SessionState, error) {
	if err := checkFresh(s, token); err != nil {
		return s, err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "content generation failed"
	}
	s.View = ViewChapterSelect
	s.ContentTypeGateOpen = true
	s.Loading = LoadingGate{}
	s.LastError = reason
	return s, nil
}

func checkFresh(s SessionState, token uint64) error {
	if s.View != ViewContentLoading || token != s.RequestToken {
		return shared.NewDomainError("navigation", "Navigate", shared.ErrStaleResult,
			fmt.Sprintf("result for request %d arrived in %s (current request %d)", token, s.View, s.RequestToken))
	}
	return nil
}

func completeIfReady(s SessionState) SessionState {
	if s.Loading.Complete() {
		s.View = ViewLessonView
		s.ContentReady = true
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// BACK
// ─────────────────────────────────────────────────────────────────────────────

// back - детерминированная обратная таблица. Возврат на экран V очищает
// поле, выбираемое на V, и всё, что ниже.
func (m *Machine) back(s SessionState) (SessionState, error) {
	sel := s.Selector

	switch s.View {
	case ViewLessonView:
		s = clearTransient(s)
		s.View = ViewChapterSelect
		s.Selector = sel.WithChapter("")

	case ViewContentLoading:
		// Отмена: результат с текущим токеном придёт вне CONTENT_LOADING и будет устаревшим.
		s = clearTransient(s)
		s.View = ViewChapterSelect
		s.Selector = sel.WithChapter("")

	case ViewChapterSelect:
		if s.ContentTypeGateOpen {
			s.ContentTypeGateOpen = false
			s.Selector = sel.WithChapter("")
			s.LastError = ""
			return s, nil
		}
		s = clearTransient(s)
		if s.EnteredFromHome && s.IsAuthenticated() {
			s.EnteredFromHome = false
			s.View = s.Home()
			s.Selector = sel.WithSubject("")
			return s, nil
		}
		s.View = ViewSubjectSelect
		s.Selector = sel.WithSubject("")

	case ViewSubjectSelect:
		s = clearTransient(s)
		if sel.HasStream() {
			s.View = ViewStreamSelect
			s.Selector = sel.WithStream("")
		} else {
			s.View = ViewClassSelect
			s.Selector = sel.WithClass(0)
		}

	case ViewStreamSelect:
		s = clearTransient(s)
		s.View = ViewClassSelect
		s.Selector = sel.WithClass(0)

	case ViewClassSelect:
		s = clearTransient(s)
		s.View = ViewBoardSelect
		s.Selector = curriculum.Selector{}

	case ViewBoardSelect:
		if !s.IsAuthenticated() {
			return s, nil
		}
		s = clearTransient(s)
		s.View = s.Home()

	case ViewRules, ViewInfo:
		if !s.IsAuthenticated() {
			s.View = ViewBoardSelect
			return s, nil
		}
		s.View = s.Home()

	case ViewStudentHome, ViewAdminHome:
		return s, nil

	default:
		return s, illegal(s, EventBack, "unknown view")
	}
	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Личность
// ─────────────────────────────────────────────────────────────────────────────

func (m *Machine) login(s SessionState, ev Event) (SessionState, error) {
	if s.IsAuthenticated() {
		return s, illegal(s, EventLogin, "already logged in")
	}
	if ev.Identity == nil || ev.Identity.IsZero() {
		return s, invalid("identity is required")
	}
	return LoginState(*ev.Identity), nil
}

func (m *Machine) impersonate(s SessionState, ev Event) (SessionState, error) {
	if !s.Identity.IsAdmin() || s.IsImpersonating() {
		return s, shared.WrapError("navigation", "Impersonate", shared.ErrForbidden,
			"only an admin may impersonate", shared.ErrNotAdmin)
	}
	if s.View != ViewAdminHome {
		return s, illegal(s, EventImpersonate, "")
	}
	if ev.Identity == nil || ev.Identity.IsZero() || ev.Identity.IsAdmin() {
		return s, invalid("impersonation target must be a student")
	}

	snapshot := s.Identity
	next := LoginState(*ev.Identity)
	next.Impersonator = &snapshot
	next.RequestToken = s.RequestToken
	return next, nil
}

// returnFromImpersonation восстанавливает снимок администратора как есть:
// ничего из накопленного во время имперсонации не переносится.
func (m *Machine) returnFromImpersonation(s SessionState) (SessionState, error) {
	if !s.IsImpersonating() {
		return s, shared.ErrNotImpersonating
	}
	admin := *s.Impersonator
	next := LoginState(admin)
	next.RequestToken = s.RequestToken
	return next, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Служебные экраны
// ─────────────────────────────────────────────────────────────────────────────

func (m *Machine) openDetour(s SessionState, v View) (SessionState, error) {
	if !s.View.IsHome() {
		return s, illegal(s, EventKind("OPEN_"+string(v)), "detours open from a home view")
	}
	s.View = v
	return s, nil
}

func (m *Machine) goHome(s SessionState) (SessionState, error) {
	if !s.IsAuthenticated() {
		return s, illegal(s, EventGoHome, "not logged in")
	}
	next := LoginState(s.Identity)
	next.Impersonator = s.Impersonator
	next.RequestToken = s.RequestToken
	return next, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// helpers
// ─────────────────────────────────────────────────────────────────────────────

// clearTransient сбрасывает ворота, загрузку и ошибку. Токен не сбрасывается,
// чтобы поздние результаты старого запроса оставались устаревшими.
func clearTransient(s SessionState) SessionState {
	s.ContentTypeGateOpen = false
	s.PendingContentType = ""
	s.Loading = LoadingGate{}
	s.ContentReady = false
	s.LastError = ""
	return s
}

func illegal(s SessionState, kind EventKind, detail string) error {
	msg := fmt.Sprintf("%s not allowed in %s", kind, s.View)
	if detail != "" {
		msg += ": " + detail
	}
	return shared.WrapError("navigation", "Navigate", shared.ErrStateTransition, msg, shared.ErrIllegalTransition)
}

func invalid(msg string) error {
	return shared.NewDomainError("navigation", "Navigate", shared.ErrInvalidInput, msg)
}
