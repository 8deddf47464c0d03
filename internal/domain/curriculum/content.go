package curriculum

import (
	"strings"
	"time"

	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT TYPE
// ══════════════════════════════════════════════════════════════════════════════

// ContentType определяет вид артефакта. От него зависит цена и промпт.
type ContentType string

const (
	ContentNotesSimple  ContentType = "NOTES_SIMPLE"
	ContentNotesPremium ContentType = "NOTES_PREMIUM"
	ContentExplanation  ContentType = "EXPLANATION"
	ContentMCQ          ContentType = "MCQ"
	ContentPDFNotes     ContentType = "PDF_NOTES"
	ContentAudioScript  ContentType = "AUDIO_SCRIPT"

	// ContentChapterIndex - служебный тип для закэшированного списка глав.
	// Пользователь не может его запросить.
	ContentChapterIndex ContentType = "CHAPTER_INDEX"
)

// RequestableContentTypes - все типы, которые можно выбрать в воротах типа контента.
func RequestableContentTypes() []ContentType {
	return []ContentType{
		ContentNotesSimple,
		ContentNotesPremium,
		ContentExplanation,
		ContentMCQ,
		ContentPDFNotes,
		ContentAudioScript,
	}
}

// IsValid проверяет, что тип известен (включая служебный).
func (c ContentType) IsValid() bool {
	return c.IsRequestable() || c == ContentChapterIndex
}

// IsRequestable - может ли пользователь запросить этот тип.
func (c ContentType) IsRequestable() bool {
	switch c {
	case ContentNotesSimple, ContentNotesPremium, ContentExplanation,
		ContentMCQ, ContentPDFNotes, ContentAudioScript:
		return true
	default:
		return false
	}
}

// Label - подпись типа, показывается как subtitle урока.
func (c ContentType) Label() string {
	switch c {
	case ContentNotesSimple:
		return "Quick Notes"
	case ContentNotesPremium:
		return "Premium Notes"
	case ContentExplanation:
		return "Concept Explanation"
	case ContentMCQ:
		return "Practice MCQs"
	case ContentPDFNotes:
		return "Printable Notes"
	case ContentAudioScript:
		return "Audio Lesson Script"
	case ContentChapterIndex:
		return "Chapters"
	default:
		return string(c)
	}
}

// ParseContentType разбирает тип без учёта регистра.
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToUpper(strings.TrimSpace(s)))
	if !ct.IsRequestable() {
		return "", shared.WrapError("curriculum", "ParseContentType", shared.ErrInvalidInput, s, shared.ErrUnknownContent)
	}
	return ct, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Source - откуда появилась запись.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceManual    Source = "manual"
)

// ContentRecord - сохранённый артефакт урока.
// После записи принадлежит хранилищу; оркестратор держит только временные ссылки.
// Последняя запись побеждает, версий нет.
type ContentRecord struct {
	ID          string      `json:"id"`
	Key         ContentKey  `json:"key"`
	Title       string      `json:"title"`
	Subtitle    string      `json:"subtitle"`
	Body        string      `json:"body"`
	ContentType ContentType `json:"content_type"`
	Language    Language    `json:"language"`
	SubjectName string      `json:"subject_name"`
	Selector    Selector    `json:"selector"`
	Source      Source      `json:"source"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Validate проверяет инварианты записи перед сохранением.
func (r *ContentRecord) Validate() error {
	if r == nil {
		return shared.NewDomainError("curriculum", "Validate", shared.ErrInvalidInput, "record is nil")
	}
	if r.Key == "" {
		return shared.NewDomainError("curriculum", "Validate", shared.ErrEmptyValue, "record key is empty")
	}
	if !r.ContentType.IsValid() {
		return shared.ErrUnknownContent
	}
	if strings.TrimSpace(r.Body) == "" {
		return shared.ErrEmptyContentBody
	}
	return nil
}

// Size - приблизительный размер записи в байтах для статистики хранилища.
func (r *ContentRecord) Size() int {
	return len(r.Key) + len(r.Title) + len(r.Subtitle) + len(r.Body) + len(r.SubjectName)
}

// Clone возвращает независимую копию.
func (r *ContentRecord) Clone() *ContentRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// ChapterTitles разбирает тело записи-оглавления.
func (r *ContentRecord) ChapterTitles() []string {
	var out []string
	for _, line := range strings.Split(r.Body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
