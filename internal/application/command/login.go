package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/navigation"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN COMMAND
// Verifies credentials, issues a session token and returns the role home
// state with the student's board and class preselected.
// ══════════════════════════════════════════════════════════════════════════════

// LoginCommand contains credentials.
type LoginCommand struct {
	UserID   string
	Password string
}

// Validate validates the command.
func (c LoginCommand) Validate() error {
	if c.UserID == "" || c.Password == "" {
		return shared.ErrInvalidCredentials
	}
	return nil
}

// LoginResult contains the issued session.
type LoginResult struct {
	Token    string
	User     *account.User
	Identity account.Identity
	State    navigation.SessionState
}

// LoginHandlerConfig contains configuration for the handler.
type LoginHandlerConfig struct {
	// SessionTTL is the lifetime of an issued token.
	SessionTTL time.Duration
}

// DefaultLoginHandlerConfig returns default configuration.
func DefaultLoginHandlerConfig() LoginHandlerConfig {
	return LoginHandlerConfig{SessionTTL: 7 * 24 * time.Hour}
}

// LoginHandler handles LoginCommand and the token lifecycle.
type LoginHandler struct {
	accounts account.Repository
	hasher   account.PasswordHasher
	sessions account.SessionStore
	settings SettingsSource
	log      *logger.Logger
	config   LoginHandlerConfig
}

// NewLoginHandler creates a new LoginHandler.
func NewLoginHandler(
	accounts account.Repository,
	hasher account.PasswordHasher,
	sessions account.SessionStore,
	settingsSource SettingsSource,
	log *logger.Logger,
	config LoginHandlerConfig,
) *LoginHandler {
	if config.SessionTTL <= 0 {
		config = DefaultLoginHandlerConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &LoginHandler{
		accounts: accounts,
		hasher:   hasher,
		sessions: sessions,
		settings: settingsSource,
		log:      log.With(logger.Component("login")),
		config:   config,
	}
}

// Handle executes the login.
func (h *LoginHandler) Handle(ctx context.Context, cmd LoginCommand) (*LoginResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	id, err := shared.NewUserID(cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("login: %w", shared.ErrInvalidCredentials)
	}

	user, err := h.accounts.GetByID(ctx, id)
	if shared.IsNotFound(err) {
		return nil, fmt.Errorf("login: %w", shared.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, fmt.Errorf("login: load account: %w", err)
	}

	if err := h.hasher.Compare(user.PasswordHash, cmd.Password); err != nil {
		h.log.Info("login rejected", logger.UserID(id.String()))
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return nil, fmt.Errorf("login: %w", err)
		}
		return nil, fmt.Errorf("login: compare password: %w", err)
	}
	if user.IsLocked {
		return nil, fmt.Errorf("login: %w", shared.ErrAccountLocked)
	}

	if !user.IsAdmin() {
		sys, err := h.settings.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("login: load settings: %w", err)
		}
		if sys.MaintenanceMode {
			return nil, fmt.Errorf("login: %w", shared.ErrMaintenance)
		}
	}

	token, err := h.sessions.Create(ctx, user.ID, h.config.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("login: create session: %w", err)
	}

	identity := user.Identity()
	h.log.Info("user logged in", logger.UserID(id.String()), logger.String("role", string(user.Role)))

	return &LoginResult{
		Token:    token,
		User:     user,
		Identity: identity,
		State:    navigation.LoginState(identity),
	}, nil
}

// Authenticate resolves a token to its live account. Locked accounts are rejected.
func (h *LoginHandler) Authenticate(ctx context.Context, token string) (*account.User, error) {
	id, err := h.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	user, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if user.IsLocked {
		_ = h.sessions.Revoke(ctx, token)
		return nil, fmt.Errorf("authenticate: %w", shared.ErrAccountLocked)
	}
	return user, nil
}

// Logout revokes the token.
func (h *LoginHandler) Logout(ctx context.Context, token string) error {
	if err := h.sessions.Revoke(ctx, token); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
