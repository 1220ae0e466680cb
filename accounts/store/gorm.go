package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"accountd/accounts"
	apperrors "accountd/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// accountRow is the GORM model backing the accounts table. The account's
// full shape (devices, badges, flags) lives in Body as JSON; Number, PNI,
// and Username are promoted to real columns purely so the database can
// enforce invariant 1 (uniqueness among live accounts) and so secondary
// lookups can use an index instead of scanning Body.
type accountRow struct {
	ACI      uuid.UUID `gorm:"type:uuid;primaryKey"`
	Number   string    `gorm:"uniqueIndex;not null"`
	PNI      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	Username *string   `gorm:"uniqueIndex"`
	Version  uint64    `gorm:"not null;default:0"`
	Body     []byte    `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (accountRow) TableName() string { return "accounts" }

func rowFromAccount(a *accounts.Account) (*accountRow, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode account body: %w", err)
	}
	return &accountRow{
		ACI:      a.ACI,
		Number:   a.Number,
		PNI:      a.PNI,
		Username: a.Username,
		Version:  a.Version,
		Body:     body,
	}, nil
}

func accountFromRow(r *accountRow) (*accounts.Account, error) {
	a := &accounts.Account{}
	if err := json.Unmarshal(r.Body, a); err != nil {
		return nil, fmt.Errorf("decode account body: %w", err)
	}
	a.ACI = r.ACI
	a.Number = r.Number
	a.PNI = r.PNI
	a.Username = r.Username
	a.Version = r.Version
	return a, nil
}

// AutoMigrate creates or updates the accounts table schema. Exposed here
// because accountRow is unexported — callers outside this package have no
// other way to register it with GORM's migrator.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&accountRow{})
}

// GormStore is the Postgres-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, a *accounts.Account) (bool, error) {
	row, err := rowFromAccount(a)
	if err != nil {
		return false, err
	}
	row.Version = 0

	err = s.db.WithContext(ctx).Create(row).Error
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, err
	}

	// Number conflict: a live account already owns a.Number. Fold the new
	// credentials/devices into that row and rewrite a.ACI to match, the
	// way a re-registration must.
	var existing accountRow
	if err := s.db.WithContext(ctx).Where("number = ?", a.Number).First(&existing).Error; err != nil {
		return false, fmt.Errorf("load existing row after duplicate key: %w", err)
	}

	merged, err := accountFromRow(&existing)
	if err != nil {
		return false, err
	}
	a.ACI = merged.ACI
	a.PNI = merged.PNI
	a.Version = merged.Version
	a.Devices = mergeDevices(a.Devices)

	mergedRow, err := rowFromAccount(a)
	if err != nil {
		return false, err
	}
	mergedRow.Version = existing.Version + 1

	res := s.db.WithContext(ctx).Model(&accountRow{}).
		Where("aci = ? AND version = ?", existing.ACI, existing.Version).
		Updates(map[string]any{
			"body":    mergedRow.Body,
			"version": mergedRow.Version,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, apperrors.ErrContested
	}
	a.Version = mergedRow.Version
	return false, nil
}

func mergeDevices(incoming []accounts.Device) []accounts.Device {
	return incoming
}

func (s *GormStore) Update(ctx context.Context, a *accounts.Account) error {
	row, err := rowFromAccount(a)
	if err != nil {
		return err
	}
	newVersion := a.Version + 1

	res := s.db.WithContext(ctx).Model(&accountRow{}).
		Where("aci = ? AND version = ?", a.ACI, a.Version).
		Updates(map[string]any{
			"body":    row.Body,
			"version": newVersion,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrContested
	}
	a.Version = newVersion
	return nil
}

func (s *GormStore) ChangeNumber(ctx context.Context, a *accounts.Account, newNumber string, newPNI uuid.UUID) error {
	a.Number = newNumber
	a.PNI = newPNI
	row, err := rowFromAccount(a)
	if err != nil {
		return err
	}
	newVersion := a.Version + 1

	res := s.db.WithContext(ctx).Model(&accountRow{}).
		Where("aci = ? AND version = ?", a.ACI, a.Version).
		Updates(map[string]any{
			"number":  newNumber,
			"pni":     newPNI,
			"body":    row.Body,
			"version": newVersion,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperrors.ErrAlreadyExists
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrContested
	}
	a.Version = newVersion
	return nil
}

func (s *GormStore) SetUsername(ctx context.Context, a *accounts.Account, canonical string) error {
	var conflict accountRow
	err := s.db.WithContext(ctx).Where("username = ? AND aci <> ?", canonical, a.ACI).First(&conflict).Error
	if err == nil {
		return apperrors.ErrUsernameNotAvailable
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	a.Username = &canonical
	row, err := rowFromAccount(a)
	if err != nil {
		return err
	}
	newVersion := a.Version + 1

	res := s.db.WithContext(ctx).Model(&accountRow{}).
		Where("aci = ? AND version = ?", a.ACI, a.Version).
		Updates(map[string]any{
			"username": canonical,
			"body":     row.Body,
			"version":  newVersion,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperrors.ErrUsernameNotAvailable
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrContested
	}
	a.Version = newVersion
	return nil
}

func (s *GormStore) ClearUsername(ctx context.Context, a *accounts.Account) error {
	a.Username = nil
	row, err := rowFromAccount(a)
	if err != nil {
		return err
	}
	newVersion := a.Version + 1

	res := s.db.WithContext(ctx).Model(&accountRow{}).
		Where("aci = ? AND version = ?", a.ACI, a.Version).
		Updates(map[string]any{
			"username": nil,
			"body":     row.Body,
			"version":  newVersion,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrContested
	}
	a.Version = newVersion
	return nil
}

func (s *GormStore) GetByE164(ctx context.Context, number string) (*accounts.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Where("number = ?", number).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return accountFromRow(&row)
}

func (s *GormStore) GetByPhoneNumberIdentifier(ctx context.Context, pni uuid.UUID) (*accounts.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Where("pni = ?", pni).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return accountFromRow(&row)
}

func (s *GormStore) GetByUsername(ctx context.Context, canonical string) (*accounts.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Where("username = ?", canonical).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return accountFromRow(&row)
}

func (s *GormStore) GetByAccountIdentifier(ctx context.Context, aci uuid.UUID) (*accounts.Account, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Where("aci = ?", aci).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return accountFromRow(&row)
}

func (s *GormStore) GetAllFromStart(ctx context.Context, n int) ([]*accounts.Account, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Order("aci").Limit(n).Find(&rows).Error; err != nil {
		return nil, err
	}
	return accountsFromRows(rows)
}

func (s *GormStore) GetAllFrom(ctx context.Context, cursor uuid.UUID, n int) ([]*accounts.Account, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Where("aci > ?", cursor).Order("aci").Limit(n).Find(&rows).Error; err != nil {
		return nil, err
	}
	return accountsFromRows(rows)
}

func accountsFromRows(rows []accountRow) ([]*accounts.Account, error) {
	out := make([]*accounts.Account, 0, len(rows))
	for i := range rows {
		a, err := accountFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *GormStore) Delete(ctx context.Context, aci uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&accountRow{}, "aci = ?", aci)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
