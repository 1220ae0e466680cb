// Package manager implements the lifecycle coordinator (C5): the public
// surface (create/update/changeNumber/setUsername/clearUsername/delete/
// lookups) that owns ordering across the primary store, the cache, and
// every secondary collaborator.
package manager

import (
	"context"
	"time"

	"accountd/accounts"

	"github.com/google/uuid"
)

// SecureStorageClient deletes an account's footprint in the storage
// service. Kicked off asynchronously during delete and joined before the
// durable row is removed.
type SecureStorageClient interface {
	DeleteStoredData(ctx context.Context, aci uuid.UUID) error
}

// SecureBackupClient deletes an account's encrypted backup blobs.
type SecureBackupClient interface {
	DeleteBackups(ctx context.Context, aci uuid.UUID) error
}

// MessagesManager clears all mail addressed to or from an identifier.
type MessagesManager interface {
	Clear(ctx context.Context, ownerID uuid.UUID) error
}

// PreKeyStore deletes every prekey owned by an identifier.
type PreKeyStore interface {
	Delete(ctx context.Context, ownerID uuid.UUID) error
}

// ProfilesManager deletes an account's profile data wholesale.
type ProfilesManager interface {
	DeleteAll(ctx context.Context, aci uuid.UUID) error
}

// PendingAccountsStore drops an in-flight verification code.
type PendingAccountsStore interface {
	Remove(ctx context.Context, number string) error
}

// ReservedUsernames reports whether a canonical username is reserved to
// an account other than aci.
type ReservedUsernames interface {
	IsReserved(ctx context.Context, canonical string, aci uuid.UUID) (bool, error)
}

// UsernameValidator canonicalizes a raw username. Pure.
type UsernameValidator interface {
	Canonical(raw string) string
}

// PresenceManager best-effort disconnects a device's live connection.
type PresenceManager interface {
	DisconnectPresence(ctx context.Context, aci uuid.UUID, deviceID uint32) error
}

// DirectoryQueue propagates discoverability transitions downstream. Every
// method is treated as idempotent by its consumer.
type DirectoryQueue interface {
	DeleteAccount(ctx context.Context, a *accounts.Account) error
	RefreshAccount(ctx context.Context, a *accounts.Account) error
	ChangePhoneNumber(ctx context.Context, a *accounts.Account, oldNumber, newNumber string) error
}

// PNIDirectory resolves an E.164 number to its pni, allocating on first
// request.
type PNIDirectory interface {
	PNIFor(ctx context.Context, number string) (uuid.UUID, error)
}

// Clock supplies the current time, for badge timestamps and account
// creation time.
type Clock interface {
	Now() time.Time
}

// Metrics records counters and durations around public operations.
type Metrics interface {
	IncrCounter(name string, tags map[string]string)
	ObserveDuration(name string, tags map[string]string, seconds float64)
}
