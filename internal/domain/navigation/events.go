package navigation

import (
	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
)

// EventKind - вид навигационного события.
type EventKind string

const (
	EventSelectBoard             EventKind = "SELECT_BOARD"
	EventSelectClass             EventKind = "SELECT_CLASS"
	EventSelectStream            EventKind = "SELECT_STREAM"
	EventSelectSubject           EventKind = "SELECT_SUBJECT"
	EventSelectChapter           EventKind = "SELECT_CHAPTER"
	EventConfirmContentType      EventKind = "CONFIRM_CONTENT_TYPE"
	EventCancelContentType       EventKind = "CANCEL_CONTENT_TYPE"
	EventGenerationDone          EventKind = "GENERATION_DONE"
	EventGenerationFailed        EventKind = "GENERATION_FAILED"
	EventMinDurationElapsed      EventKind = "MIN_DURATION_ELAPSED"
	EventBack                    EventKind = "BACK"
	EventLogin                   EventKind = "LOGIN"
	EventLogout                  EventKind = "LOGOUT"
	EventImpersonate             EventKind = "IMPERSONATE"
	EventReturnFromImpersonation EventKind = "RETURN_FROM_IMPERSONATION"
	EventOpenRules               EventKind = "OPEN_RULES"
	EventOpenInfo                EventKind = "OPEN_INFO"
	EventGoHome                  EventKind = "GO_HOME"
)

// Event - событие с полезной нагрузкой. Заполняются только поля,
// относящиеся к Kind; удобнее создавать через конструкторы ниже.
type Event struct {
	Kind        EventKind              `json:"kind"`
	Value       string                 `json:"value,omitempty"`
	ClassLevel  int                    `json:"class_level,omitempty"`
	ContentType curriculum.ContentType `json:"content_type,omitempty"`
	Token       uint64                 `json:"token,omitempty"`
	Identity    *account.Identity      `json:"identity,omitempty"`
}

func SelectBoard(board string) Event     { return Event{Kind: EventSelectBoard, Value: board} }
func SelectClass(level int) Event        { return Event{Kind: EventSelectClass, ClassLevel: level} }
func SelectStream(stream string) Event   { return Event{Kind: EventSelectStream, Value: stream} }
func SelectSubject(subject string) Event { return Event{Kind: EventSelectSubject, Value: subject} }
func SelectChapter(chapter string) Event { return Event{Kind: EventSelectChapter, Value: chapter} }
func CancelContentType() Event           { return Event{Kind: EventCancelContentType} }
func Back() Event                        { return Event{Kind: EventBack} }
func Logout() Event                      { return Event{Kind: EventLogout} }
func ReturnFromImpersonation() Event     { return Event{Kind: EventReturnFromImpersonation} }
func OpenRules() Event                   { return Event{Kind: EventOpenRules} }
func OpenInfo() Event                    { return Event{Kind: EventOpenInfo} }
func GoHome() Event                      { return Event{Kind: EventGoHome} }

func ConfirmContentType(ct curriculum.ContentType) Event {
	return Event{Kind: EventConfirmContentType, ContentType: ct}
}

func GenerationDone(token uint64) Event {
	return Event{Kind: EventGenerationDone, Token: token}
}

// GenerationFailed несёт человекочитаемую причину.
func GenerationFailed(token uint64, reason string) Event {
	return Event{Kind: EventGenerationFailed, Token: token, Value: reason}
}

func MinDurationElapsed(token uint64) Event {
	return Event{Kind: EventMinDurationElapsed, Token: token}
}

func Login(id account.Identity) Event {
	return Event{Kind: EventLogin, Identity: &id}
}

func Impersonate(target account.Identity) Event {
	return Event{Kind: EventImpersonate, Identity: &target}
}
