// Package directory implements the phone-number-identifier directory (C7):
// a total function from E.164 number to a stable pni, allocating one on
// first request.
package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PNIRow maps one phone number to the pni allocated for it. The mapping
// is permanent even after the number's account is deleted or changes
// number again — pni reuse is not part of this directory's contract.
type PNIRow struct {
	Number string    `gorm:"primaryKey"`
	PNI    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
}

func (PNIRow) TableName() string { return "phone_number_identifiers" }

// PNIDirectory is the narrow contract accounts/manager resolves a phone
// number's pni through.
type PNIDirectory interface {
	PNIFor(ctx context.Context, number string) (uuid.UUID, error)
}

// GormPNIDirectory is the Postgres-backed PNIDirectory implementation.
type GormPNIDirectory struct {
	db *gorm.DB
}

func NewGormPNIDirectory(db *gorm.DB) *GormPNIDirectory {
	return &GormPNIDirectory{db: db}
}

func (d *GormPNIDirectory) PNIFor(ctx context.Context, number string) (uuid.UUID, error) {
	var row PNIRow
	err := d.db.WithContext(ctx).Where("number = ?", number).First(&row).Error
	if err == nil {
		return row.PNI, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, err
	}

	row = PNIRow{Number: number, PNI: uuid.New()}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race with a concurrent first allocation; read back
			// the winner's pni instead of erroring.
			if readErr := d.db.WithContext(ctx).Where("number = ?", number).First(&row).Error; readErr != nil {
				return uuid.Nil, readErr
			}
			return row.PNI, nil
		}
		return uuid.Nil, err
	}
	return row.PNI, nil
}
