package collabs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProfileRow is one account's profile blob: name, avatar, about text. Its
// content is opaque to the coordinator, which only ever deletes it wholesale.
type ProfileRow struct {
	ACI       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      []byte
	AvatarURL string
	About     []byte
	UpdatedAt time.Time `gorm:"default:now()"`
}

func (ProfileRow) TableName() string { return "profiles" }

// ProfilesManager is the narrow contract accounts/manager deletes
// profiles through.
type ProfilesManager interface {
	DeleteAll(ctx context.Context, aci uuid.UUID) error
}

// GormProfilesManager is the Postgres-backed ProfilesManager implementation.
type GormProfilesManager struct {
	db *gorm.DB
}

func NewGormProfilesManager(db *gorm.DB) *GormProfilesManager {
	return &GormProfilesManager{db: db}
}

func (p *GormProfilesManager) DeleteAll(ctx context.Context, aci uuid.UUID) error {
	return p.db.WithContext(ctx).Delete(&ProfileRow{}, "aci = ?", aci).Error
}
