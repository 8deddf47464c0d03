// Package account содержит доменную модель пользователя: роли, баланс кредитов,
// блокировку и снимок личности (Identity), который использует навигация.
package account

import (
	"strings"
	"time"

	"github.com/nst-ai/lesson-hub/internal/domain/access"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Role - роль пользователя.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdmin   Role = "ADMIN"
)

// IsValid проверяет, что роль корректна.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile - учебный профиль, выбранный при регистрации.
// Используется для предвыбора доски и класса при входе.
type Profile struct {
	Board      string `json:"board"`
	ClassLevel int    `json:"class_level"`
	Stream     string `json:"stream,omitempty"`
}

// Selector возвращает селектор с предвыбранными доской, классом и потоком.
func (p Profile) Selector() curriculum.Selector {
	if p.Board == "" {
		return curriculum.Selector{}
	}
	sel := curriculum.Selector{}.WithBoard(p.Board)
	if p.ClassLevel == 0 {
		return sel.Normalize()
	}
	sel = sel.WithClass(p.ClassLevel)
	if curriculum.IsStreamedClass(p.ClassLevel) && p.Stream != "" {
		sel = sel.WithStream(p.Stream)
	}
	return sel.Normalize()
}

// ══════════════════════════════════════════════════════════════════════════════
// USER
// ══════════════════════════════════════════════════════════════════════════════

// User - аккаунт студента или оператора.
type User struct {
	ID           shared.UserID
	Name         string
	Role         Role
	PasswordHash string
	Credits      int
	IsPremium    bool
	IsLocked     bool
	Profile      Profile
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewStudent создаёт студента с начальным бонусом.
func NewStudent(id shared.UserID, name, passwordHash string, profile Profile, signupBonus int) (*User, error) {
	if !id.IsValid() {
		return nil, shared.ErrInvalidUserID
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("account", "NewStudent", shared.ErrEmptyValue, "name is required")
	}
	if signupBonus < 0 {
		signupBonus = 0
	}
	now := time.Now().UTC()
	return &User{
		ID:           id,
		Name:         name,
		Role:         RoleStudent,
		PasswordHash: passwordHash,
		Credits:      signupBonus,
		Profile:      profile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NewAdmin создаёт аккаунт оператора.
func NewAdmin(passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           shared.AdminUserID,
		Name:         "Administrator",
		Role:         RoleAdmin,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsAdmin - является ли пользователь оператором.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Requester - снимок для политики доступа.
func (u *User) Requester() access.Requester {
	return access.Requester{
		UserID:    u.ID,
		IsAdmin:   u.IsAdmin(),
		IsPremium: u.IsPremium,
		IsLocked:  u.IsLocked,
		Credits:   u.Credits,
	}
}

// Identity - снимок личности для сессии.
func (u *User) Identity() Identity {
	return Identity{
		UserID:    u.ID,
		Name:      u.Name,
		Role:      u.Role,
		IsPremium: u.IsPremium,
		Profile:   u.Profile,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Identity - неизменяемый снимок того, "кто" ведёт сессию.
// При имперсонации снимок администратора сохраняется целиком и
// восстанавливается без слияния.
type Identity struct {
	UserID    shared.UserID `json:"user_id"`
	Name      string        `json:"name"`
	Role      Role          `json:"role"`
	IsPremium bool          `json:"is_premium"`
	Profile   Profile       `json:"profile"`
}

// IsZero - анонимная сессия.
func (i Identity) IsZero() bool {
	return i.UserID == ""
}

// IsAdmin - является ли личность оператором.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
