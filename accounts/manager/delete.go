package manager

import (
	"context"
	"fmt"

	"accountd/accounts"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Delete removes a from the system: profiles, prekeys, messages, the
// secure-storage/backup footprint, the durable row, the cache, and every
// device's live presence, then writes a tombstone for re-registration.
func (m *Manager) Delete(ctx context.Context, a *accounts.Account, reason DeletionReason) error {
	done := m.timer("accounts.delete")
	defer done(map[string]string{"reason": reason.Tag()})

	err := m.gate.LockAndPut(ctx, a.Number, func(ctx context.Context) (uuid.UUID, error) {
		if err := m.deleteAccount(ctx, a); err != nil {
			return uuid.Nil, err
		}
		if err := m.directoryQueue.DeleteAccount(ctx, a); err != nil {
			m.log.WarnCtx(ctx, "directory queue deleteAccount failed during delete")
		}
		return a.ACI, nil
	})
	if err != nil {
		return err
	}

	m.metrics.IncrCounter("accounts.delete", map[string]string{
		"country": callingCode(a.Number),
		"reason":  reason.Tag(),
	})
	return nil
}

// deleteAccount fans out the actual deletion in the order spec.md's §4.5
// requires: secure-storage and secure-backup are kicked off concurrently
// first so a crash mid-flight leaves a retryable delete; everything else
// that touches only this process's dependencies runs synchronously; both
// async operations are joined before the durable row is removed.
func (m *Manager) deleteAccount(ctx context.Context, a *accounts.Account) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.secureStorage.DeleteStoredData(gctx, a.ACI) })
	g.Go(func() error { return m.secureBackup.DeleteBackups(gctx, a.ACI) })

	if err := m.profiles.DeleteAll(ctx, a.ACI); err != nil {
		m.log.WarnCtx(ctx, "profile deletion failed during account delete")
	}
	if err := m.prekeys.Delete(ctx, a.ACI); err != nil {
		m.log.WarnCtx(ctx, "prekey deletion failed during account delete")
	}
	if err := m.prekeys.Delete(ctx, a.PNI); err != nil {
		m.log.WarnCtx(ctx, "prekey deletion failed during account delete")
	}
	if err := m.messages.Clear(ctx, a.ACI); err != nil {
		m.log.WarnCtx(ctx, "message deletion failed during account delete")
	}
	if err := m.messages.Clear(ctx, a.PNI); err != nil {
		m.log.WarnCtx(ctx, "message deletion failed during account delete")
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("join secure-storage/secure-backup deletion for %s: %w", a.ACI, err)
	}

	if err := m.store.Delete(ctx, a.ACI); err != nil {
		return fmt.Errorf("delete account row %s: %w", a.ACI, err)
	}

	if err := m.cache.Delete(ctx, a); err != nil {
		m.log.WarnCtx(ctx, "cache invalidation failed during account delete")
	}

	for _, device := range a.Devices {
		if err := m.presence.DisconnectPresence(ctx, a.ACI, device.ID); err != nil {
			m.log.WarnCtx(ctx, "presence disconnect failed during account delete")
		}
	}

	return nil
}
