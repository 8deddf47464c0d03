// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на изменения и запускают побочные эффекты:
// сброс кэша и журнал аудита.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CONTENT OVERWRITTEN HANDLER
// Оператор заменил артефакт. Общий кэш (redis) мог сохранить старую версию,
// записанную другим процессом, поэтому ключ сбрасывается.
// ═══════════════════════════════════════════════════════════════════════════

// CacheInvalidator сбрасывает закэшированный артефакт.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, key curriculum.ContentKey) error
}

// OnContentOverwrittenHandler сбрасывает кэш по ключу события.
type OnContentOverwrittenHandler struct {
	cache   CacheInvalidator
	log     *logger.Logger
	timeout time.Duration
}

// NewOnContentOverwrittenHandler создаёт обработчик.
func NewOnContentOverwrittenHandler(cache CacheInvalidator, log *logger.Logger) *OnContentOverwrittenHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &OnContentOverwrittenHandler{
		cache:   cache,
		log:     log.With(logger.Component("on_content_overwritten")),
		timeout: 5 * time.Second,
	}
}

// EventType - тип обрабатываемого события.
func (h *OnContentOverwrittenHandler) EventType() shared.EventType {
	return shared.EventContentOverwritten
}

// Handle обрабатывает событие.
func (h *OnContentOverwrittenHandler) Handle(event shared.Event) error {
	// События других инстансов приходят как RemoteEvent, поэтому
	// проверяется тип события, а не Go-тип.
	if event.EventType() != shared.EventContentOverwritten {
		return fmt.Errorf("on_content_overwritten: unexpected event %s", event.EventType())
	}
	operator, _ := event.Payload()["operator_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	key := curriculum.ContentKey(event.AggregateID())
	if err := h.cache.Invalidate(ctx, key); err != nil {
		h.log.Warn("cache invalidation failed", logger.ContentKey(key.String()), logger.Err(err))
		return fmt.Errorf("on_content_overwritten: %w", err)
	}

	h.log.Debug("cache invalidated", logger.ContentKey(key.String()), logger.UserID(operator))
	return nil
}
