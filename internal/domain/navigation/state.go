// Package navigation содержит конечный автомат экранов сессии:
// board → class → stream → subject → chapter → lesson, плюс домашние экраны,
// страницы правил и информации и имперсонацию.
//
// Автомат чистый: Navigate принимает состояние и событие и возвращает новое
// состояние. Таймеры, генерация и хранилище живут в application/session.
package navigation

import (
	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
)

// ══════════════════════════════════════════════════════════════════════════════
// VIEW
// ══════════════════════════════════════════════════════════════════════════════

// View - закрытое перечисление экранов.
type View string

const (
	ViewBoardSelect    View = "BOARD_SELECT"
	ViewClassSelect    View = "CLASS_SELECT"
	ViewStreamSelect   View = "STREAM_SELECT"
	ViewSubjectSelect  View = "SUBJECT_SELECT"
	ViewChapterSelect  View = "CHAPTER_SELECT"
	ViewContentLoading View = "CONTENT_LOADING"
	ViewLessonView     View = "LESSON_VIEW"
	ViewStudentHome    View = "STUDENT_HOME"
	ViewAdminHome      View = "ADMIN_HOME"
	ViewRules          View = "RULES"
	ViewInfo           View = "INFO"
)

// AllViews возвращает все экраны.
func AllViews() []View {
	return []View{
		ViewBoardSelect, ViewClassSelect, ViewStreamSelect, ViewSubjectSelect,
		ViewChapterSelect, ViewContentLoading, ViewLessonView,
		ViewStudentHome, ViewAdminHome, ViewRules, ViewInfo,
	}
}

// IsValid проверяет, что экран из перечисления.
func (v View) IsValid() bool {
	switch v {
	case ViewBoardSelect, ViewClassSelect, ViewStreamSelect, ViewSubjectSelect,
		ViewChapterSelect, ViewContentLoading, ViewLessonView,
		ViewStudentHome, ViewAdminHome, ViewRules, ViewInfo:
		return true
	default:
		return false
	}
}

// IsHome - домашний экран роли.
func (v View) IsHome() bool {
	return v == ViewStudentHome || v == ViewAdminHome
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING GATE
// ══════════════════════════════════════════════════════════════════════════════

// LoadingGate - соединение двух независимых сигналов.
// Переход в LESSON_VIEW происходит только когда оба true; порядок не важен.
type LoadingGate struct {
	DataReady      bool `json:"data_ready"`
	MinTimeElapsed bool `json:"min_time_elapsed"`
}

// Complete - оба сигнала пришли.
func (g LoadingGate) Complete() bool {
	return g.DataReady && g.MinTimeElapsed
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STATE
// ══════════════════════════════════════════════════════════════════════════════

// SessionState - состояние сессии. Меняется только через Machine.Navigate.
type SessionState struct {
	View     View                `json:"view"`
	Selector curriculum.Selector `json:"selector"`
	Language curriculum.Language `json:"language"`

	// ContentTypeGateOpen - подсостояние CHAPTER_SELECT: глава выбрана,
	// ждём подтверждения типа контента.
	ContentTypeGateOpen bool                   `json:"content_type_gate_open"`
	PendingContentType  curriculum.ContentType `json:"pending_content_type,omitempty"`

	// RequestToken растёт с каждым CONFIRM_CONTENT_TYPE.
	// Результаты с другим токеном устарели.
	RequestToken uint64      `json:"request_token"`
	Loading      LoadingGate `json:"loading"`
	ContentReady bool        `json:"content_ready"`
	LastError    string      `json:"last_error,omitempty"`

	// EnteredFromHome - студент пришёл к главам с домашнего экрана,
	// BACK из CHAPTER_SELECT вернёт его туда.
	EnteredFromHome bool `json:"entered_from_home,omitempty"`

	Identity     account.Identity  `json:"identity"`
	Impersonator *account.Identity `json:"impersonator,omitempty"`
}

// InitialState - анонимная сессия на выборе доски.
func InitialState() SessionState {
	return SessionState{
		View:     ViewBoardSelect,
		Language: curriculum.LanguageEnglish,
	}
}

// LoginState - состояние сразу после входа: домашний экран роли
// с предвыбранными доской и классом из профиля.
func LoginState(id account.Identity) SessionState {
	s := InitialState()
	s.Identity = id
	s.View = homeFor(id)
	s.Selector = id.Profile.Selector()
	s.Language = curriculum.LanguageForBoard(id.Profile.Board)
	return s
}

// IsLoading - идёт загрузка контента.
func (s SessionState) IsLoading() bool {
	return s.View == ViewContentLoading
}

// IsAuthenticated - в сессии есть пользователь.
func (s SessionState) IsAuthenticated() bool {
	return !s.Identity.IsZero()
}

// IsImpersonating - администратор работает от имени студента.
func (s SessionState) IsImpersonating() bool {
	return s.Impersonator != nil
}

// Home - домашний экран текущей личности.
func (s SessionState) Home() View {
	return homeFor(s.Identity)
}

func homeFor(id account.Identity) View {
	if id.IsAdmin() {
		return ViewAdminHome
	}
	return ViewStudentHome
}
