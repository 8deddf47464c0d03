package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// AccountRepository implements account.Repository.
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates an AccountRepository.
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, name, role, password_hash, credits, is_premium, is_locked,
	profile, created_at, updated_at`

// Create implements account.Repository.
func (r *AccountRepository) Create(ctx context.Context, u *account.User) error {
	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	res, err := r.db.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`,
		string(u.ID),
		u.Name,
		string(u.Role),
		u.PasswordHash,
		u.Credits,
		u.IsPremium,
		u.IsLocked,
		string(profile),
		formatTime(u.CreatedAt),
		formatTime(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrUserAlreadyExists
	}
	return nil
}

// GetByID implements account.Repository.
func (r *AccountRepository) GetByID(ctx context.Context, id shared.UserID) (*account.User, error) {
	row := r.db.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, string(id))
	u, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return u, nil
}

// Update implements account.Repository. Balance and lock are left untouched.
func (r *AccountRepository) Update(ctx context.Context, u *account.User) error {
	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	res, err := r.db.db.ExecContext(ctx, `
		UPDATE accounts SET name = ?, password_hash = ?, is_premium = ?, profile = ?, updated_at = ?
		WHERE id = ?
	`, u.Name, u.PasswordHash, u.IsPremium, string(profile), formatTime(time.Now()), string(u.ID))
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRow(res)
}

// AdjustBalance implements account.Repository.
func (r *AccountRepository) AdjustBalance(ctx context.Context, id shared.UserID, delta int) (int, error) {
	var balance int
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		balance, err = adjustBalance(ctx, tx, id, delta)
		return err
	})
	return balance, err
}

func adjustBalance(ctx context.Context, q querier, id shared.UserID, delta int) (int, error) {
	var current int
	err := q.QueryRowContext(ctx, `SELECT credits FROM accounts WHERE id = ?`, string(id)).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, shared.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}

	next, err := shared.Credits(current).Apply(delta)
	if err != nil {
		return current, err
	}

	if _, err := q.ExecContext(ctx,
		`UPDATE accounts SET credits = ?, updated_at = ? WHERE id = ?`,
		next.Int(), formatTime(time.Now()), string(id),
	); err != nil {
		return current, fmt.Errorf("failed to write balance: %w", err)
	}
	return next.Int(), nil
}

// SetLocked implements account.Repository.
func (r *AccountRepository) SetLocked(ctx context.Context, id shared.UserID, locked bool) error {
	res, err := r.db.db.ExecContext(ctx,
		`UPDATE accounts SET is_locked = ?, updated_at = ? WHERE id = ?`,
		locked, formatTime(time.Now()), string(id))
	if err != nil {
		return fmt.Errorf("failed to set lock: %w", err)
	}
	return requireRow(res)
}

// Exists implements account.Repository.
func (r *AccountRepository) Exists(ctx context.Context, id shared.UserID) (bool, error) {
	var n int
	err := r.db.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts WHERE id = ?`, string(id)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return n > 0, nil
}

// List implements account.Repository.
func (r *AccountRepository) List(ctx context.Context) ([]*account.User, error) {
	rows, err := r.db.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var users []*account.User
	for rows.Next() {
		u, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

func scanAccount(row scanner) (*account.User, error) {
	var (
		u                                   account.User
		id, role, profile, created, updated string
	)
	err := row.Scan(
		&id,
		&u.Name,
		&role,
		&u.PasswordHash,
		&u.Credits,
		&u.IsPremium,
		&u.IsLocked,
		&profile,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	u.ID = shared.UserID(id)
	u.Role = account.Role(role)
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	if err := json.Unmarshal([]byte(profile), &u.Profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &u, nil
}

var _ account.Repository = (*AccountRepository)(nil)
