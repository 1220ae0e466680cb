package accounts

import (
	"context"
	"errors"
	"fmt"

	apperrors "accountd/pkg/errors"
)

// MaxUpdateAttempts bounds how many times UpdateWithRetries will retry a
// contested write before giving up.
const MaxUpdateAttempts = 10

// Mutator applies an in-place change to a and reports whether it actually
// changed anything. A false return short-circuits the whole retry loop:
// either nothing needed to change, or a refetch already observed the
// desired end state.
type Mutator func(a *Account) bool

// Persister performs a single conditional write of a against the primary
// store. It must return apperrors.ErrContested (wrapped or bare, checked
// with errors.Is) when a's Version lost a race.
type Persister func(ctx context.Context, a *Account) error

// Refetcher returns the current authoritative copy of the account being
// updated, used to retry a mutator after a contested write.
type Refetcher func(ctx context.Context) (*Account, error)

// UpdateWithRetries applies mutator to a, persists the result with bounded
// retry on contention, and returns a detached clone of the final state.
//
// On entry, mutator runs once. If it reports no change, a is returned
// as-is: no write, no clone, no stale flag. Otherwise persister is called;
// on success the account is cloned, a is marked stale, and the clone is
// returned. On a contested write, a is replaced by refetch() and mutator
// runs again — if it now reports no change (someone else already reached
// the desired state), the refetched copy is returned directly. After
// MaxUpdateAttempts contested attempts, ErrRetryLimitExceeded is returned.
// ErrUsernameNotAvailable from persister propagates immediately, untried.
func UpdateWithRetries(ctx context.Context, a *Account, mutate Mutator, persist Persister, refetch Refetcher) (*Account, error) {
	if !mutate(a) {
		return a, nil
	}

	for attempt := 0; attempt < MaxUpdateAttempts; attempt++ {
		err := persist(ctx, a)
		if err == nil {
			clone, cloneErr := a.Clone()
			if cloneErr != nil {
				return nil, fmt.Errorf("clone account after update: %w", cloneErr)
			}
			a.MarkStale()
			return clone, nil
		}

		if errors.Is(err, apperrors.ErrUsernameNotAvailable) {
			return nil, err
		}

		if !errors.Is(err, apperrors.ErrContested) {
			return nil, err
		}

		refetched, refetchErr := refetch(ctx)
		if refetchErr != nil {
			return nil, fmt.Errorf("refetch after contested write: %w", refetchErr)
		}
		a = refetched

		if !mutate(a) {
			return a, nil
		}
	}

	return nil, apperrors.ErrRetryLimitExceeded
}
