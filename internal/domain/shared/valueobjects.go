// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// AdminUserID is the fixed identifier of the bootstrap operator account.
const AdminUserID UserID = "ADMIN"

// UserID identifies an account. Students get NST-<4 digits>; the operator is ADMIN.
type UserID string

var userIDRegex = regexp.MustCompile(`^(ADMIN|NST-[0-9]{4,8})$`)

// IsValid checks the ID format.
func (u UserID) IsValid() bool {
	return userIDRegex.MatchString(string(u))
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID normalizes (trim, upper-case) and validates an ID.
func NewUserID(id string) (UserID, error) {
	uid := UserID(strings.ToUpper(strings.TrimSpace(id)))
	if !uid.IsValid() {
		return "", ErrInvalidUserID
	}
	return uid, nil
}

// StudentUserID formats the numeric suffix into a student ID.
func StudentUserID(n int) UserID {
	return UserID(fmt.Sprintf("NST-%04d", n))
}

// ═══════════════════════════════════════════════════════════════════════════
// Credits Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Credits is a non-negative credit balance.
type Credits int

// IsValid checks the balance is not negative.
func (c Credits) IsValid() bool {
	return c >= 0
}

// Int returns the underlying value.
func (c Credits) Int() int {
	return int(c)
}

// Covers reports whether the balance can pay cost.
func (c Credits) Covers(cost int) bool {
	return int(c) >= cost
}

// Apply adds a signed delta. A result below zero fails with ErrInsufficientCredits.
func (c Credits) Apply(delta int) (Credits, error) {
	next := int(c) + delta
	if next < 0 {
		return c, NewDomainError("account", "AdjustBalance", ErrInsufficientCredits,
			fmt.Sprintf("balance %d cannot absorb %d", c, delta))
	}
	return Credits(next), nil
}

// NewCredits creates a Credits value with validation.
func NewCredits(amount int) (Credits, error) {
	if amount < 0 {
		return 0, NewDomainError("shared", "NewCredits", ErrNegativeValue, "credits cannot be negative")
	}
	return Credits(amount), nil
}
