package collabs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoredMessage is the minimal row shape the message store needs in order
// to locate and purge an owner's mail: the full message schema (content,
// reactions, receipts, mentions) is out of scope here, since this
// coordinator only ever tells the message store to clear an owner, never
// to read or deliver anything.
type StoredMessage struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	SenderID        uuid.UUID `gorm:"type:uuid;index"`
	RecipientUserID uuid.UUID `gorm:"type:uuid;index"`
	Ciphertext      []byte
	CreatedAt       time.Time `gorm:"default:now()"`
}

func (StoredMessage) TableName() string { return "messages" }

// MessagesManager is the narrow contract accounts/manager clears mail
// through, keyed by either an aci or a pni.
type MessagesManager interface {
	Clear(ctx context.Context, ownerID uuid.UUID) error
}

// GormMessagesManager is the Postgres-backed MessagesManager implementation.
type GormMessagesManager struct {
	db *gorm.DB
}

func NewGormMessagesManager(db *gorm.DB) *GormMessagesManager {
	return &GormMessagesManager{db: db}
}

func (m *GormMessagesManager) Clear(ctx context.Context, ownerID uuid.UUID) error {
	return m.db.WithContext(ctx).
		Delete(&StoredMessage{}, "sender_id = ? OR recipient_user_id = ?", ownerID, ownerID).
		Error
}
