package curriculum

import (
	"context"
	"errors"
	"fmt"

	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища контента. Реализации в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ContentStore - долговременное хранилище key → запись.
// Ошибки инфраструктуры оборачиваются в shared.ErrStoreUnavailable.
type ContentStore interface {
	// Get возвращает запись по ключу.
	// Возвращает shared.ErrContentNotFound, если записи нет.
	Get(ctx context.Context, key ContentKey) (*ContentRecord, error)

	// Put сохраняет запись под record.Key, перезаписывая существующую.
	Put(ctx context.Context, record *ContentRecord) error

	// Enumerate возвращает ключи с указанным префиксом в лексикографическом порядке.
	Enumerate(ctx context.Context, prefix string) ([]ContentKey, error)
}

// LessonUnitOfWork атомарно сохраняет запись и применяет дельту кредитов.
// Если любая половина не удалась, вторая откатывается.
type LessonUnitOfWork interface {
	// PutAndCharge возвращает новый баланс.
	// Ошибка хранилища - shared.ErrStoreUnavailable;
	// ошибка аккаунта - shared.ErrUserNotFound или shared.ErrInsufficientCredits.
	PutAndCharge(ctx context.Context, record *ContentRecord, userID shared.UserID, delta int) (int, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// GENERATOR PORT
// ══════════════════════════════════════════════════════════════════════════════

// GenerationRequest - полный контекст для удалённой генерации.
type GenerationRequest struct {
	Selector    Selector
	Language    Language
	ContentType ContentType
}

// Generator - удалённый генератор контента. Непрозрачный и ненадёжный.
type Generator interface {
	// Generate возвращает запись с Title/Subtitle/Body. Ключ, ID и время
	// проставляет вызывающая сторона. Ошибки - *GenerationFailure.
	Generate(ctx context.Context, req GenerationRequest) (*ContentRecord, error)

	// ListChapters возвращает названия глав предмета.
	ListChapters(ctx context.Context, sel Selector, lang Language) ([]string, error)
}

// FailureReason - причина неудачной генерации.
type FailureReason string

const (
	FailureTimeout       FailureReason = "TIMEOUT"
	FailureEmptyResponse FailureReason = "EMPTY_RESPONSE"
	FailureQuota         FailureReason = "QUOTA"
	FailureUpstream      FailureReason = "UPSTREAM"
	// FailureCancelled - запрос отменён вызывающей стороной (уход с экрана).
	FailureCancelled FailureReason = "CANCELLED"
)

// GenerationFailure - ошибка генератора с причиной.
// Сопоставляется с shared.ErrGenerationFailed через errors.Is.
type GenerationFailure struct {
	Reason FailureReason
	Err    error
}

func (e *GenerationFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("generation failed (%s)", e.Reason)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

func (e *GenerationFailure) Is(target error) bool {
	return target == shared.ErrGenerationFailed
}

// NewGenerationFailure создаёт ошибку генерации.
func NewGenerationFailure(reason FailureReason, err error) *GenerationFailure {
	return &GenerationFailure{Reason: reason, Err: err}
}

// FailureReasonOf извлекает причину. Неизвестные ошибки считаются UPSTREAM.
func FailureReasonOf(err error) FailureReason {
	var gf *GenerationFailure
	if errors.As(err, &gf) {
		return gf.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, context.Canceled) {
		return FailureCancelled
	}
	return FailureUpstream
}
