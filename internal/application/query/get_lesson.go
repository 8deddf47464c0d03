package query

import (
	"context"
	"fmt"
	"time"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LESSON QUERY
// Просмотр артефакта только из кэша: без генерации и без списания.
// ══════════════════════════════════════════════════════════════════════════════

// GetLessonQuery - адрес артефакта.
type GetLessonQuery struct {
	Selector    curriculum.Selector
	Language    curriculum.Language
	ContentType curriculum.ContentType
}

// Validate проверяет параметры.
func (q GetLessonQuery) Validate() error {
	if err := q.Selector.Validate(); err != nil {
		return err
	}
	if !q.Language.IsValid() {
		return fmt.Errorf("language %q: %w", q.Language, shared.ErrInvalidInput)
	}
	if !q.ContentType.IsRequestable() {
		return shared.ErrUnknownContent
	}
	return nil
}

// LessonDTO - артефакт для отображения.
type LessonDTO struct {
	Key          string    `json:"key"`
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle"`
	Body         string    `json:"body"`
	ContentType  string    `json:"content_type"`
	ContentLabel string    `json:"content_label"`
	Language     string    `json:"language"`
	SubjectName  string    `json:"subject_name"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
	Age          string    `json:"age"`
}

// NewLessonDTO собирает DTO из записи.
func NewLessonDTO(rec *curriculum.ContentRecord, now time.Time) LessonDTO {
	return LessonDTO{
		Key:          rec.Key.String(),
		Title:        rec.Title,
		Subtitle:     rec.Subtitle,
		Body:         rec.Body,
		ContentType:  string(rec.ContentType),
		ContentLabel: rec.ContentType.Label(),
		Language:     string(rec.Language),
		SubjectName:  rec.SubjectName,
		Source:       string(rec.Source),
		CreatedAt:    rec.CreatedAt,
		Age:          timeutil.FormatRelative(rec.CreatedAt, now),
	}
}

// GetLessonHandler обрабатывает запрос.
type GetLessonHandler struct {
	store curriculum.ContentStore
	clock timeutil.Clock
}

// NewGetLessonHandler создаёт обработчик.
func NewGetLessonHandler(store curriculum.ContentStore, clock timeutil.Clock) *GetLessonHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &GetLessonHandler{store: store, clock: clock}
}

// Handle возвращает shared.ErrContentNotFound, если артефакта ещё нет.
func (h *GetLessonHandler) Handle(ctx context.Context, q GetLessonQuery) (*LessonDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_lesson: validation failed: %w", err)
	}

	key := curriculum.ComposeKey(q.Selector, q.Language, q.ContentType)
	rec, err := h.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get_lesson: %w", err)
	}

	dto := NewLessonDTO(rec, h.clock.Now())
	return &dto, nil
}
