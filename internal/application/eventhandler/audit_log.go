package eventhandler

import (
	"sync"

	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// AUDIT LOG
// Пишет каждое событие в структурированный лог и считает события по типам.
// Счётчики отдаются в /health как детали.
// ═══════════════════════════════════════════════════════════════════════════

// AuditLog - подписчик на все события.
type AuditLog struct {
	log *logger.Logger

	mu     sync.Mutex
	counts map[shared.EventType]int64
}

// NewAuditLog создаёт журнал.
func NewAuditLog(log *logger.Logger) *AuditLog {
	if log == nil {
		log = logger.NewNop()
	}
	return &AuditLog{
		log:    log.With(logger.Component("audit")),
		counts: make(map[shared.EventType]int64),
	}
}

// Handle записывает событие. Никогда не возвращает ошибку.
func (a *AuditLog) Handle(event shared.Event) error {
	a.mu.Lock()
	a.counts[event.EventType()]++
	a.mu.Unlock()

	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
		logger.String("aggregate_id", event.AggregateID()),
		logger.Time("occurred_at", event.OccurredAt()),
	}
	if c, ok := event.(interface{ Correlation() string }); ok && c.Correlation() != "" {
		fields = append(fields, logger.String("correlation_id", c.Correlation()))
	}
	for k, v := range event.Payload() {
		fields = append(fields, logger.Any(k, v))
	}

	switch event.EventType() {
	case shared.EventContentGenerationFailed, shared.EventContentAccessDenied, shared.EventUserLocked:
		a.log.Warn("audit", fields...)
	default:
		a.log.Info("audit", fields...)
	}
	return nil
}

// Counts возвращает копию счётчиков.
func (a *AuditLog) Counts() map[string]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int64, len(a.counts))
	for k, v := range a.counts {
		out[string(k)] = v
	}
	return out
}

// Register подписывает обработчики на шину.
func Register(bus shared.EventSubscriber, audit *AuditLog, overwritten *OnContentOverwrittenHandler) error {
	if audit != nil {
		if err := bus.SubscribeAll(audit.Handle); err != nil {
			return err
		}
	}
	if overwritten != nil {
		if err := bus.Subscribe(overwritten.EventType(), overwritten.Handle); err != nil {
			return err
		}
	}
	return nil
}
