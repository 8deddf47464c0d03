package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST CHAPTERS QUERY
// Оглавление предмета. Первый запрос идёт в генератор, результат кэшируется
// под префиксом chapters/ и дальше отдаётся бесплатно.
// ══════════════════════════════════════════════════════════════════════════════

// ListChaptersQuery - предмет, для которого нужно оглавление.
type ListChaptersQuery struct {
	Selector curriculum.Selector
	Language curriculum.Language
}

// ChaptersDTO - список глав.
type ChaptersDTO struct {
	Subject  string   `json:"subject"`
	Chapters []string `json:"chapters"`
	Cached   bool     `json:"cached"`
}

// ListChaptersConfig - настройки обработчика.
type ListChaptersConfig struct {
	// Timeout ограничивает обращение к генератору.
	Timeout time.Duration
}

// ListChaptersHandler обрабатывает запрос.
type ListChaptersHandler struct {
	store     curriculum.ContentStore
	generator curriculum.Generator
	log       *logger.Logger
	config    ListChaptersConfig
	flights   singleflight.Group
}

// NewListChaptersHandler создаёт обработчик.
func NewListChaptersHandler(store curriculum.ContentStore, generator curriculum.Generator, log *logger.Logger, config ListChaptersConfig) *ListChaptersHandler {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ListChaptersHandler{
		store:     store,
		generator: generator,
		log:       log.With(logger.Component("list_chapters")),
		config:    config,
	}
}

// Handle выполняет запрос.
func (h *ListChaptersHandler) Handle(ctx context.Context, q ListChaptersQuery) (*ChaptersDTO, error) {
	if err := q.Selector.ValidateSubject(); err != nil {
		return nil, fmt.Errorf("list_chapters: validation failed: %w", err)
	}
	if !q.Language.IsValid() {
		return nil, fmt.Errorf("list_chapters: language %q: %w", q.Language, shared.ErrInvalidInput)
	}

	sel := q.Selector.WithChapter("").Normalize()
	key := curriculum.ChapterIndexKey(sel, q.Language)

	if rec, err := h.store.Get(ctx, key); err == nil {
		if titles := rec.ChapterTitles(); len(titles) > 0 {
			return &ChaptersDTO{Subject: sel.Subject, Chapters: titles, Cached: true}, nil
		}
	} else if !shared.IsNotFound(err) {
		h.log.Warn("chapter index read failed, asking generator", logger.ContentKey(key.String()), logger.Err(err))
	}

	v, err, _ := h.flights.Do(string(key), func() (any, error) {
		return h.fetch(ctx, key, sel, q.Language)
	})
	if err != nil {
		return nil, fmt.Errorf("list_chapters: %w", err)
	}
	return &ChaptersDTO{Subject: sel.Subject, Chapters: v.([]string)}, nil
}

func (h *ListChaptersHandler) fetch(ctx context.Context, key curriculum.ContentKey, sel curriculum.Selector, lang curriculum.Language) ([]string, error) {
	genCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	raw, err := h.generator.ListChapters(genCtx, sel, lang)
	if err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		return nil, curriculum.NewGenerationFailure(curriculum.FailureEmptyResponse, nil)
	}

	rec := &curriculum.ContentRecord{
		ID:          uuid.NewString(),
		Key:         key,
		Title:       sel.Subject,
		Body:        strings.Join(titles, "\n"),
		ContentType: curriculum.ContentChapterIndex,
		Language:    lang,
		SubjectName: sel.Subject,
		Selector:    sel,
		Source:      curriculum.SourceGenerated,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.store.Put(context.WithoutCancel(ctx), rec); err != nil {
		h.log.Warn("chapter index not cached", logger.ContentKey(key.String()), logger.Err(err))
	}
	return titles, nil
}
