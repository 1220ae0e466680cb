// Package cache is the write-through cache adapter (C3): the JSON body of
// an Account plus its three secondary lookup keys, all sharing one TTL.
package cache

import (
	"context"

	"accountd/accounts"
)

// Cache is the narrow contract the lifecycle coordinator reads and
// invalidates through. Every method degrades to a miss or a swallowed
// failure rather than propagating a transport error — the primary store
// remains authoritative.
type Cache interface {
	// Set writes the account body and its secondary map entries, all with
	// the configured TTL. Best effort: implementations log and return nil
	// on transport failure rather than fail the caller's write.
	Set(ctx context.Context, a *accounts.Account) error

	// Delete removes the account body and the secondary map entries
	// derived from a. Callers must pass the pre-image of any secondary key
	// that is about to change — the new value can't derive the old key.
	Delete(ctx context.Context, a *accounts.Account) error

	// GetByACI returns the cached account, or (nil, nil) on a miss
	// (including a decode failure, which is treated as a miss).
	GetByACI(ctx context.Context, aci string) (*accounts.Account, error)

	// GetBySecondary resolves a number/pni/username map entry to an aci,
	// then dereferences it through GetByACI. Returns (nil, nil) on miss.
	GetBySecondary(ctx context.Context, key string) (*accounts.Account, error)
}
