// Package tombstone implements the deleted-accounts gate (C6): per-phone-
// number exclusive critical sections backed by a short-lived tombstone
// that lets a re-registration reclaim its previous aci.
package tombstone

import (
	"context"

	"github.com/google/uuid"
)

// TakeFn is run by LockAndTake while holding the exclusive section for
// number. maybeACI is the tombstoned aci for that number, if any existed.
type TakeFn func(ctx context.Context, maybeACI *uuid.UUID) error

// PutFn is run by LockAndPut while holding the exclusive section for
// number. Its return value becomes the new tombstone for that number.
type PutFn func(ctx context.Context) (uuid.UUID, error)

// CrossNumberFn is run by LockAndPutCrossNumber while holding both
// numbers' sections. deletedNewACI is the tombstone already on file for
// newNumber, if any. The returned displacedACI (if non-nil) becomes the
// new tombstone for oldNumber.
//
// The source's callback also receives the old number's own aci, but
// nothing in the reference implementation's callback body reads it — the
// displaced id always comes from either deletedNewACI or the caller's own
// delete of a live occupant of newNumber, both already in the caller's
// hands before the lease is taken. Dropping that redundant parameter is a
// deliberate simplification over spec.md's prose signature.
type CrossNumberFn func(ctx context.Context, deletedNewACI *uuid.UUID) (displacedACI *uuid.UUID, err error)

// Gate is the deleted-accounts gate contract.
type Gate interface {
	// LockAndTake acquires an exclusive lease on number, reads and removes
	// any tombstone for it, and passes that aci (or nil) to fn.
	LockAndTake(ctx context.Context, number string, fn TakeFn) error

	// LockAndPut acquires an exclusive lease on number, runs fn, and
	// stores its return as the new tombstone for number.
	LockAndPut(ctx context.Context, number string, fn PutFn) error

	// LockAndPutCrossNumber acquires exclusive leases on both oldNumber
	// and newNumber, in a stable order to avoid deadlock, then runs fn.
	LockAndPutCrossNumber(ctx context.Context, oldNumber, newNumber string, fn CrossNumberFn) error
}
