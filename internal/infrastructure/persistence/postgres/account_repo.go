package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// AccountRepository implements account.Repository on the accounts table.
type AccountRepository struct {
	conn *Connection
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(conn *Connection) *AccountRepository {
	return &AccountRepository{conn: conn}
}

const accountColumns = `id, name, role, password_hash, credits, is_premium, is_locked,
	profile, created_at, updated_at`

// Create implements account.Repository.
func (r *AccountRepository) Create(ctx context.Context, u *account.User) error {
	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		string(u.ID),
		u.Name,
		string(u.Role),
		u.PasswordHash,
		u.Credits,
		u.IsPremium,
		u.IsLocked,
		profile,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// GetByID implements account.Repository.
func (r *AccountRepository) GetByID(ctx context.Context, id shared.UserID) (*account.User, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, string(id))
	u, err := scanAccount(row)
	if err != nil {
		if IsNoRows(err) {
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

	result, err := r.conn.Exec(ctx, `
		UPDATE accounts SET
			name = $1,
			password_hash = $2,
			is_premium = $3,
			profile = $4,
			updated_at = $5
		WHERE id = $6
	`,
		u.Name,
		u.PasswordHash,
		u.IsPremium,
		profile,
		time.Now().UTC(),
		string(u.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// AdjustBalance implements account.Repository.
func (r *AccountRepository) AdjustBalance(ctx context.Context, id shared.UserID, delta int) (int, error) {
	var balance int
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		balance, err = adjustBalance(ctx, tx, id, delta)
		return err
	})
	return balance, err
}

// adjustBalance locks the row, applies the delta in the domain, then writes it.
func adjustBalance(ctx context.Context, q Querier, id shared.UserID, delta int) (int, error) {
	var current int
	err := q.QueryRow(ctx, `SELECT credits FROM accounts WHERE id = $1 FOR UPDATE`, string(id)).Scan(&current)
	if err != nil {
		if IsNoRows(err) {
			return 0, shared.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}

	next, err := shared.Credits(current).Apply(delta)
	if err != nil {
		return current, err
	}

	if _, err := q.Exec(ctx,
		`UPDATE accounts SET credits = $1, updated_at = $2 WHERE id = $3`,
		next.Int(), time.Now().UTC(), string(id),
	); err != nil {
		return current, fmt.Errorf("failed to write balance: %w", err)
	}
	return next.Int(), nil
}

// SetLocked implements account.Repository.
func (r *AccountRepository) SetLocked(ctx context.Context, id shared.UserID, locked bool) error {
	result, err := r.conn.Exec(ctx,
		`UPDATE accounts SET is_locked = $1, updated_at = $2 WHERE id = $3`,
		locked, time.Now().UTC(), string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to set lock: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// Exists implements account.Repository.
func (r *AccountRepository) Exists(ctx context.Context, id shared.UserID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, string(id)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check account: %w", err)
	}
	return exists, nil
}

// List implements account.Repository.
func (r *AccountRepository) List(ctx context.Context) ([]*account.User, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
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

func scanAccount(row pgx.Row) (*account.User, error) {
	var (
		u        account.User
		id, role string
		profile  []byte
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
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.ID = shared.UserID(id)
	u.Role = account.Role(role)
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &u.Profile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
		}
	}
	return &u, nil
}

var _ account.Repository = (*AccountRepository)(nil)
