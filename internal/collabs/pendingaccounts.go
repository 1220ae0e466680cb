package collabs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// PendingAccountRow holds an in-flight verification code for a phone
// number that has not finished registration yet.
type PendingAccountRow struct {
	Number    string `gorm:"primaryKey"`
	Code      string
	CreatedAt time.Time `gorm:"default:now()"`
}

func (PendingAccountRow) TableName() string { return "pending_accounts" }

// PendingAccountsStore is the narrow contract accounts/manager drops a
// pending verification code through once a number has finished registering.
type PendingAccountsStore interface {
	Remove(ctx context.Context, number string) error
}

// GormPendingAccountsStore is the Postgres-backed PendingAccountsStore
// implementation.
type GormPendingAccountsStore struct {
	db *gorm.DB
}

func NewGormPendingAccountsStore(db *gorm.DB) *GormPendingAccountsStore {
	return &GormPendingAccountsStore{db: db}
}

func (s *GormPendingAccountsStore) Remove(ctx context.Context, number string) error {
	err := s.db.WithContext(ctx).Delete(&PendingAccountRow{}, "number = ?", number).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
