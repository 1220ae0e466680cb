// Package collabs holds the GORM/Redis/S3 adapters for every narrow
// collaborator interface the lifecycle coordinator (accounts/manager)
// depends on: prekeys, messages, profiles, pending accounts, reserved
// usernames, directory queue, presence, secure storage, secure backup.
package collabs

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdentityKey mirrors one device's long-term identity public key.
type IdentityKey struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	DeviceID  uint32    `gorm:"not null"`
	PublicKey []byte    `gorm:"not null"`
	IsActive  bool      `gorm:"default:true"`
	CreatedAt time.Time `gorm:"default:now()"`
}

func (IdentityKey) TableName() string { return "identity_keys" }

// SignedPreKey mirrors one device's currently-active signed prekey.
type SignedPreKey struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index"`
	DeviceID  uint32    `gorm:"not null"`
	KeyID     int       `gorm:"not null"`
	PublicKey []byte    `gorm:"not null"`
	Signature []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"default:now()"`
	IsActive  bool      `gorm:"default:true"`
}

func (SignedPreKey) TableName() string { return "signed_prekeys" }

// OneTimePreKey mirrors a single consumable prekey in a device's pool.
type OneTimePreKey struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	OwnerID    uuid.UUID `gorm:"type:uuid;not null;index"`
	DeviceID   uint32    `gorm:"not null"`
	KeyID      int       `gorm:"not null"`
	PublicKey  []byte    `gorm:"not null"`
	UploadedAt time.Time `gorm:"default:now()"`
	ConsumedAt sql.NullTime
}

func (OneTimePreKey) TableName() string { return "onetime_prekeys" }

// PreKeyStore is the narrow contract accounts/manager deletes prekeys
// through. Deletion is keyed by OwnerID, which the coordinator calls with
// both an account's aci and its pni (identity keys and prekey pools are
// indexed under both, mirroring how the wire protocol addresses either).
type PreKeyStore interface {
	Delete(ctx context.Context, ownerID uuid.UUID) error
}

// GormPreKeyStore is the Postgres-backed PreKeyStore implementation.
type GormPreKeyStore struct {
	db *gorm.DB
}

func NewGormPreKeyStore(db *gorm.DB) *GormPreKeyStore {
	return &GormPreKeyStore{db: db}
}

func (s *GormPreKeyStore) Delete(ctx context.Context, ownerID uuid.UUID) error {
	tx := s.db.WithContext(ctx)
	if err := tx.Delete(&IdentityKey{}, "owner_id = ?", ownerID).Error; err != nil {
		return err
	}
	if err := tx.Delete(&SignedPreKey{}, "owner_id = ?", ownerID).Error; err != nil {
		return err
	}
	if err := tx.Delete(&OneTimePreKey{}, "owner_id = ?", ownerID).Error; err != nil {
		return err
	}
	return nil
}
