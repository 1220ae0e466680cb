// Package store is the primary durable adapter (C2) for Account records: a
// single table with the account's full JSON body plus the columns needed
// for unique secondary lookups and optimistic concurrency.
package store

import (
	"context"

	"accountd/accounts"

	"github.com/google/uuid"
)

// Store is the primary store contract the optimistic update engine and the
// lifecycle coordinator persist through.
type Store interface {
	// Create inserts a. If a live record already exists for a.Number, it
	// instead updates that record's credentials/devices in place and
	// rewrites a.ACI to the existing record's ACI, returning fresh=false.
	Create(ctx context.Context, a *accounts.Account) (fresh bool, err error)

	// Update writes a back conditional on a.Version, returning
	// apperrors.ErrContested if the stored version has moved on.
	Update(ctx context.Context, a *accounts.Account) error

	// ChangeNumber atomically swaps the number and pni columns (and their
	// secondary indexes) for the row identified by a.ACI.
	ChangeNumber(ctx context.Context, a *accounts.Account, newNumber string, newPNI uuid.UUID) error

	// SetUsername atomically assigns canonical to a, returning
	// apperrors.ErrUsernameNotAvailable if another live account holds it.
	SetUsername(ctx context.Context, a *accounts.Account, canonical string) error

	// ClearUsername atomically clears a's username.
	ClearUsername(ctx context.Context, a *accounts.Account) error

	GetByE164(ctx context.Context, number string) (*accounts.Account, error)
	GetByPhoneNumberIdentifier(ctx context.Context, pni uuid.UUID) (*accounts.Account, error)
	GetByUsername(ctx context.Context, canonical string) (*accounts.Account, error)
	GetByAccountIdentifier(ctx context.Context, aci uuid.UUID) (*accounts.Account, error)

	// GetAllFromStart returns up to n accounts ordered by aci, from the
	// beginning of the table, for crawlers with no prior cursor.
	GetAllFromStart(ctx context.Context, n int) ([]*accounts.Account, error)

	// GetAllFrom returns up to n accounts ordered by aci, strictly after
	// cursor.
	GetAllFrom(ctx context.Context, cursor uuid.UUID, n int) ([]*accounts.Account, error)

	// Delete removes the row and all secondary index entries for aci.
	Delete(ctx context.Context, aci uuid.UUID) error
}
