package account

import (
	"context"
	"time"

	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище аккаунтов и их балансов.
type Repository interface {
	// Create создаёт пользователя.
	// Возвращает shared.ErrUserAlreadyExists, если ID занят.
	Create(ctx context.Context, user *User) error

	// GetByID возвращает пользователя.
	// Возвращает shared.ErrUserNotFound, если пользователь не найден.
	GetByID(ctx context.Context, id shared.UserID) (*User, error)

	// Update сохраняет профиль, premium и пароль. Баланс не трогает.
	Update(ctx context.Context, user *User) error

	// AdjustBalance атомарно применяет дельту и возвращает новый баланс.
	// Баланс не может стать отрицательным (shared.ErrInsufficientCredits).
	AdjustBalance(ctx context.Context, id shared.UserID, delta int) (int, error)

	// SetLocked блокирует или разблокирует аккаунт.
	SetLocked(ctx context.Context, id shared.UserID, locked bool) error

	// Exists проверяет существование пользователя.
	Exists(ctx context.Context, id shared.UserID) (bool, error)

	// List возвращает всех пользователей, отсортированных по ID.
	List(ctx context.Context) ([]*User, error)
}

// PasswordHasher хэширует и проверяет пароли.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare возвращает shared.ErrInvalidCredentials при несовпадении.
	Compare(hash, password string) error
}

// SessionStore хранит токены входа.
type SessionStore interface {
	// Create выдаёт новый токен для пользователя.
	Create(ctx context.Context, userID shared.UserID, ttl time.Duration) (string, error)

	// Resolve возвращает владельца токена.
	// Возвращает shared.ErrSessionNotFound для неизвестного или истёкшего токена.
	Resolve(ctx context.Context, token string) (shared.UserID, error)

	// Revoke удаляет токен.
	Revoke(ctx context.Context, token string) error
}
