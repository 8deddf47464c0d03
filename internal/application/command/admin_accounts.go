package command

import (
	"context"
	"fmt"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN ACCOUNT COMMANDS
// Credit adjustment, lock/unlock and the first-start admin bootstrap.
// ══════════════════════════════════════════════════════════════════════════════

func requireAdmin(ctx context.Context, dir OperatorDirectory, id shared.UserID) error {
	op, err := dir.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !op.IsAdmin() {
		return shared.ErrNotAdmin
	}
	return nil
}

// AdjustCreditsCommand adds (positive) or removes (negative) credits.
type AdjustCreditsCommand struct {
	OperatorID shared.UserID
	UserID     shared.UserID
	Delta      int
	Reason     string

	CorrelationID string
}

// Validate validates the command.
func (c AdjustCreditsCommand) Validate() error {
	if c.OperatorID.IsEmpty() || !c.UserID.IsValid() {
		return shared.ErrInvalidUserID
	}
	if c.Delta == 0 {
		return shared.NewDomainError("account", "AdjustCredits", shared.ErrInvalidInput, "delta must not be zero")
	}
	return nil
}

// AdjustCreditsResult contains the new balance.
type AdjustCreditsResult struct {
	UserID  shared.UserID
	Balance int
}

// AdjustCreditsHandler handles AdjustCreditsCommand.
type AdjustCreditsHandler struct {
	accounts       account.Repository
	eventPublisher shared.EventPublisher
	log            *logger.Logger
}

// NewAdjustCreditsHandler creates a new AdjustCreditsHandler.
func NewAdjustCreditsHandler(accounts account.Repository, eventPublisher shared.EventPublisher, log *logger.Logger) *AdjustCreditsHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &AdjustCreditsHandler{accounts: accounts, eventPublisher: eventPublisher, log: log.With(logger.Component("adjust_credits"))}
}

// Handle executes the adjustment. The balance never goes negative.
func (h *AdjustCreditsHandler) Handle(ctx context.Context, cmd AdjustCreditsCommand) (*AdjustCreditsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("adjust_credits: validation failed: %w", err)
	}
	if err := requireAdmin(ctx, h.accounts, cmd.OperatorID); err != nil {
		return nil, fmt.Errorf("adjust_credits: %w", err)
	}

	balance, err := h.accounts.AdjustBalance(ctx, cmd.UserID, cmd.Delta)
	if err != nil {
		return nil, fmt.Errorf("adjust_credits: %w", err)
	}

	event := shared.WithCorrelation(shared.NewCreditsAdjustedEvent(cmd.UserID.String(), cmd.Delta, balance, cmd.OperatorID.String()), cmd.CorrelationID)
	if err := h.eventPublisher.Publish(event); err != nil {
		h.log.Warn("failed to publish event", logger.Err(err))
	}
	h.log.Info("credits adjusted",
		logger.UserID(cmd.UserID.String()),
		logger.Int("delta", cmd.Delta),
		logger.Credits(balance),
		logger.String("reason", cmd.Reason),
	)

	return &AdjustCreditsResult{UserID: cmd.UserID, Balance: balance}, nil
}

// ══════════════════════════════════════════════════════════════════════════════

// SetAccountLockCommand locks or unlocks a student.
type SetAccountLockCommand struct {
	OperatorID shared.UserID
	UserID     shared.UserID
	Locked     bool

	CorrelationID string
}

// SetAccountLockHandler handles SetAccountLockCommand.
type SetAccountLockHandler struct {
	accounts       account.Repository
	eventPublisher shared.EventPublisher
	log            *logger.Logger
}

// NewSetAccountLockHandler creates a new SetAccountLockHandler.
func NewSetAccountLockHandler(accounts account.Repository, eventPublisher shared.EventPublisher, log *logger.Logger) *SetAccountLockHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &SetAccountLockHandler{accounts: accounts, eventPublisher: eventPublisher, log: log.With(logger.Component("account_lock"))}
}

// Handle executes the lock change. The admin account cannot be locked.
func (h *SetAccountLockHandler) Handle(ctx context.Context, cmd SetAccountLockCommand) error {
	if !cmd.UserID.IsValid() {
		return fmt.Errorf("set_account_lock: %w", shared.ErrInvalidUserID)
	}
	if err := requireAdmin(ctx, h.accounts, cmd.OperatorID); err != nil {
		return fmt.Errorf("set_account_lock: %w", err)
	}
	if cmd.UserID == shared.AdminUserID {
		return fmt.Errorf("set_account_lock: %w", shared.ErrForbidden)
	}

	if err := h.accounts.SetLocked(ctx, cmd.UserID, cmd.Locked); err != nil {
		return fmt.Errorf("set_account_lock: %w", err)
	}

	event := shared.WithCorrelation(shared.NewUserLockChangedEvent(cmd.UserID.String(), cmd.OperatorID.String(), cmd.Locked), cmd.CorrelationID)
	if err := h.eventPublisher.Publish(event); err != nil {
		h.log.Warn("failed to publish event", logger.Err(err))
	}
	h.log.Info("account lock changed", logger.UserID(cmd.UserID.String()), logger.Bool("locked", cmd.Locked))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════

// EnsureAdmin creates the ADMIN account on first start. An existing account
// is left as is. Returns true when the account was created.
func EnsureAdmin(ctx context.Context, accounts account.Repository, hasher account.PasswordHasher, password string) (bool, error) {
	exists, err := accounts.Exists(ctx, shared.AdminUserID)
	if err != nil {
		return false, fmt.Errorf("ensure_admin: %w", err)
	}
	if exists {
		return false, nil
	}
	if len(password) < MinPasswordLength {
		return false, fmt.Errorf("ensure_admin: admin password is not configured: %w", shared.ErrInvalidInput)
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return false, fmt.Errorf("ensure_admin: hash password: %w", err)
	}
	if err := accounts.Create(ctx, account.NewAdmin(hash)); err != nil && !shared.IsAlreadyExists(err) {
		return false, fmt.Errorf("ensure_admin: %w", err)
	}
	return true, nil
}
