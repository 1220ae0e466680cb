package collabs

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReservedUsernameRow reserves a canonical username to a specific account,
// independent of whether that account currently has the username assigned.
type ReservedUsernameRow struct {
	Canonical string    `gorm:"primaryKey"`
	OwnerACI  uuid.UUID `gorm:"type:uuid;not null"`
}

func (ReservedUsernameRow) TableName() string { return "reserved_usernames" }

// ReservedUsernames is the narrow contract setUsername consults before
// assigning a username: reservations are account-scoped, so an account
// reserving its own username is never blocked by its own reservation.
type ReservedUsernames interface {
	IsReserved(ctx context.Context, canonical string, aci uuid.UUID) (bool, error)
}

// GormReservedUsernames is the Postgres-backed ReservedUsernames
// implementation.
type GormReservedUsernames struct {
	db *gorm.DB
}

func NewGormReservedUsernames(db *gorm.DB) *GormReservedUsernames {
	return &GormReservedUsernames{db: db}
}

func (r *GormReservedUsernames) IsReserved(ctx context.Context, canonical string, aci uuid.UUID) (bool, error) {
	var row ReservedUsernameRow
	err := r.db.WithContext(ctx).Where("canonical = ?", canonical).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.OwnerACI != aci, nil
}
