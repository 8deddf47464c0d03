package command

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER COMMAND
// Creates a student account with an NST-xxxx id and the signup bonus.
// ══════════════════════════════════════════════════════════════════════════════

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 4

// RegisterCommand contains the data for a new student.
type RegisterCommand struct {
	Name     string
	Password string
	Profile  account.Profile

	CorrelationID string
}

// Validate validates the command.
func (c RegisterCommand) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return shared.NewDomainError("account", "Register", shared.ErrEmptyValue, "name is required")
	}
	if len(c.Password) < MinPasswordLength {
		return shared.NewDomainError("account", "Register", shared.ErrInvalidInput,
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if strings.TrimSpace(c.Profile.Board) == "" {
		return shared.NewDomainError("account", "Register", shared.ErrEmptyValue, "board is required")
	}
	if c.Profile.ClassLevel < curriculum.MinClassLevel || c.Profile.ClassLevel > curriculum.MaxClassLevel {
		return shared.ErrClassNotAllowed
	}
	return nil
}

// RegisterResult contains the created account.
type RegisterResult struct {
	User     *account.User
	Identity account.Identity
}

// RegisterHandlerConfig contains configuration for the handler.
type RegisterHandlerConfig struct {
	// MaxIDAttempts bounds retries on id collision.
	MaxIDAttempts int

	// NewID generates candidate ids. Defaults to a random NST-1000..NST-9999.
	NewID func() shared.UserID
}

// DefaultRegisterHandlerConfig returns default configuration.
func DefaultRegisterHandlerConfig() RegisterHandlerConfig {
	return RegisterHandlerConfig{
		MaxIDAttempts: 20,
		NewID: func() shared.UserID {
			return shared.StudentUserID(1000 + rand.IntN(9000))
		},
	}
}

// RegisterHandler handles RegisterCommand.
type RegisterHandler struct {
	accounts       account.Repository
	hasher         account.PasswordHasher
	settings       SettingsSource
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	config         RegisterHandlerConfig
}

// NewRegisterHandler creates a new RegisterHandler.
func NewRegisterHandler(
	accounts account.Repository,
	hasher account.PasswordHasher,
	settingsSource SettingsSource,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	config RegisterHandlerConfig,
) *RegisterHandler {
	def := DefaultRegisterHandlerConfig()
	if config.MaxIDAttempts <= 0 {
		config.MaxIDAttempts = def.MaxIDAttempts
	}
	if config.NewID == nil {
		config.NewID = def.NewID
	}
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RegisterHandler{
		accounts:       accounts,
		hasher:         hasher,
		settings:       settingsSource,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("register")),
		config:         config,
	}
}

// Handle executes the registration.
func (h *RegisterHandler) Handle(ctx context.Context, cmd RegisterCommand) (*RegisterResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("register: validation failed: %w", err)
	}

	sys, err := h.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("register: load settings: %w", err)
	}
	if sys.MaintenanceMode {
		return nil, fmt.Errorf("register: %w", shared.ErrMaintenance)
	}
	if !sys.AllowSignup {
		return nil, fmt.Errorf("register: %w", shared.ErrSignupDisabled)
	}
	if !sys.IsClassAllowed(cmd.Profile.ClassLevel) {
		return nil, fmt.Errorf("register: class %d: %w", cmd.Profile.ClassLevel, shared.ErrClassNotAllowed)
	}

	hash, err := h.hasher.Hash(cmd.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	profile := account.Profile{
		Board:      strings.ToUpper(strings.TrimSpace(cmd.Profile.Board)),
		ClassLevel: cmd.Profile.ClassLevel,
	}
	if curriculum.IsStreamedClass(cmd.Profile.ClassLevel) {
		profile.Stream = strings.TrimSpace(cmd.Profile.Stream)
	}

	for attempt := 0; attempt < h.config.MaxIDAttempts; attempt++ {
		user, err := account.NewStudent(h.config.NewID(), cmd.Name, hash, profile, sys.SignupBonus)
		if err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}

		err = h.accounts.Create(ctx, user)
		if shared.IsAlreadyExists(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("register: create account: %w", err)
		}

		event := shared.WithCorrelation(shared.NewUserRegisteredEvent(user.ID.String(), profile.Board, profile.ClassLevel, user.Credits), cmd.CorrelationID)
		if err := h.eventPublisher.Publish(event); err != nil {
			h.log.Warn("failed to publish event", logger.Err(err))
		}
		h.log.Info("student registered", logger.UserID(user.ID.String()), logger.Credits(user.Credits))

		return &RegisterResult{User: user, Identity: user.Identity()}, nil
	}

	return nil, fmt.Errorf("register: no free id after %d attempts: %w", h.config.MaxIDAttempts, shared.ErrAlreadyExists)
}
