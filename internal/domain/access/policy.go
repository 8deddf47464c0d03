// Package access содержит политику доступа к генерации контента.
// Политика только вычисляет дельту кредитов и никогда не меняет баланс сама:
// дельту применяет оркестратор вместе с записью в кэш.
package access

import (
	"fmt"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Reason - причина решения политики.
type Reason string

const (
	ReasonPrivileged          Reason = "PRIVILEGED"
	ReasonCharged             Reason = "CHARGED"
	ReasonInsufficientCredits Reason = "INSUFFICIENT_CREDITS"
	ReasonAccountLocked       Reason = "ACCOUNT_LOCKED"
)

// Requester - снимок запрашивающего на момент оценки.
type Requester struct {
	UserID    shared.UserID
	IsAdmin   bool
	IsPremium bool
	IsLocked  bool
	Credits   int
}

// AccessGrant - результат оценки. Не сохраняется.
type AccessGrant struct {
	Allowed     bool
	CreditDelta int
	Reason      Reason
	Cost        int
}

// CostTable - цена генерации по типу контента.
type CostTable interface {
	Cost(ct curriculum.ContentType) int
}

// CostFunc адаптирует функцию к CostTable.
type CostFunc func(ct curriculum.ContentType) int

func (f CostFunc) Cost(ct curriculum.ContentType) int { return f(ct) }

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// Evaluator применяет правила доступа по порядку.
type Evaluator struct {
	costs CostTable
}

// NewEvaluator создаёт оценщик.
func NewEvaluator(costs CostTable) *Evaluator {
	return &Evaluator{costs: costs}
}

// Evaluate:
//  0. заблокированный аккаунт - отказ;
//  1. ADMIN или premium - бесплатно;
//  2. кредитов хватает - списание цены;
//  3. иначе - INSUFFICIENT_CREDITS.
func (e *Evaluator) Evaluate(req Requester, ct curriculum.ContentType) AccessGrant {
	cost := e.costs.Cost(ct)
	if cost < 0 {
		cost = 0
	}

	switch {
	case req.IsLocked:
		return AccessGrant{Allowed: false, Reason: ReasonAccountLocked, Cost: cost}
	case req.IsAdmin || req.IsPremium:
		return AccessGrant{Allowed: true, CreditDelta: 0, Reason: ReasonPrivileged, Cost: cost}
	case req.Credits >= cost:
		return AccessGrant{Allowed: true, CreditDelta: -cost, Reason: ReasonCharged, Cost: cost}
	default:
		return AccessGrant{Allowed: false, Reason: ReasonInsufficientCredits, Cost: cost}
	}
}

// Err превращает отказ в ACCESS_DENIED. Для разрешённого гранта - nil.
func (g AccessGrant) Err() error {
	if g.Allowed {
		return nil
	}
	kind := shared.ErrInsufficientCredits
	if g.Reason == ReasonAccountLocked {
		kind = shared.ErrAccountLocked
	}
	return shared.WrapError("access", "Evaluate", shared.ErrAccessDenied,
		fmt.Sprintf("access denied: %s (cost %d)", g.Reason, g.Cost), kind)
}
