package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// UnitOfWork stores a generated artifact and charges its requester in one
// transaction.
type UnitOfWork struct {
	conn *Connection
}

// NewUnitOfWork creates a new UnitOfWork.
func NewUnitOfWork(conn *Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// PutAndCharge implements curriculum.LessonUnitOfWork.
// Account errors pass through unchanged; everything else is a store failure.
func (u *UnitOfWork) PutAndCharge(ctx context.Context, record *curriculum.ContentRecord, userID shared.UserID, delta int) (int, error) {
	var balance int
	err := u.conn.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		if balance, err = adjustBalance(ctx, tx, userID, delta); err != nil {
			return err
		}
		return upsertContent(ctx, tx, record)
	})
	if err != nil {
		if errors.Is(err, shared.ErrUserNotFound) || errors.Is(err, shared.ErrInsufficientCredits) {
			return balance, err
		}
		return 0, shared.WrapError("postgres", "PutAndCharge", shared.ErrStoreUnavailable, record.Key.String(), err)
	}
	return balance, nil
}

var _ curriculum.LessonUnitOfWork = (*UnitOfWork)(nil)
