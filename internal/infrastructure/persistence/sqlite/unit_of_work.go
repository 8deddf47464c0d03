package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// UnitOfWork implements curriculum.LessonUnitOfWork in one transaction.
type UnitOfWork struct {
	db *DB
}

// NewUnitOfWork creates a UnitOfWork.
func NewUnitOfWork(db *DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// PutAndCharge implements curriculum.LessonUnitOfWork.
func (u *UnitOfWork) PutAndCharge(ctx context.Context, record *curriculum.ContentRecord, userID shared.UserID, delta int) (int, error) {
	var balance int
	err := u.db.withTx(ctx, func(tx *sql.Tx) error {
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
		return 0, shared.WrapError("sqlite", "PutAndCharge", shared.ErrStoreUnavailable, record.Key.String(), err)
	}
	return balance, nil
}

var _ curriculum.LessonUnitOfWork = (*UnitOfWork)(nil)
