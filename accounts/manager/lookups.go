package manager

import (
	"context"
	"fmt"

	"accountd/accounts"

	"github.com/google/uuid"
)

// GetByE164 is a read-through lookup: cache first, then store on miss,
// populating the cache before returning.
func (m *Manager) GetByE164(ctx context.Context, number string) (*accounts.Account, error) {
	done := m.timer("accounts.getByNumber")
	defer done(nil)

	if cached, err := m.cache.GetBySecondary(ctx, number); err == nil && cached != nil {
		return cached, nil
	}

	a, err := m.store.GetByE164(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Set(ctx, a); err != nil {
		m.log.WarnCtx(ctx, "cache write failed after getByE164 miss")
	}
	return a, nil
}

// GetByPNI is a read-through lookup keyed by phone-number identifier.
func (m *Manager) GetByPNI(ctx context.Context, pni uuid.UUID) (*accounts.Account, error) {
	done := m.timer("accounts.getByPni")
	defer done(nil)

	if cached, err := m.cache.GetBySecondary(ctx, pni.String()); err == nil && cached != nil {
		return cached, nil
	}

	a, err := m.store.GetByPhoneNumberIdentifier(ctx, pni)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Set(ctx, a); err != nil {
		m.log.WarnCtx(ctx, "cache write failed after getByPni miss")
	}
	return a, nil
}

// GetByUsername is a read-through lookup keyed by canonical username.
func (m *Manager) GetByUsername(ctx context.Context, canonical string) (*accounts.Account, error) {
	done := m.timer("accounts.getByUsername")
	defer done(nil)

	if cached, err := m.cache.GetBySecondary(ctx, canonical); err == nil && cached != nil {
		return cached, nil
	}

	a, err := m.store.GetByUsername(ctx, canonical)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Set(ctx, a); err != nil {
		m.log.WarnCtx(ctx, "cache write failed after getByUsername miss")
	}
	return a, nil
}

// GetByACI is a read-through lookup keyed by account identifier.
func (m *Manager) GetByACI(ctx context.Context, aci uuid.UUID) (*accounts.Account, error) {
	done := m.timer("accounts.getByUuid")
	defer done(nil)

	if cached, err := m.cache.GetByACI(ctx, aci.String()); err == nil && cached != nil {
		return cached, nil
	}

	a, err := m.store.GetByAccountIdentifier(ctx, aci)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Set(ctx, a); err != nil {
		m.log.WarnCtx(ctx, "cache write failed after getByAci miss")
	}
	return a, nil
}

// GetAllFromStart is a thin passthrough to the store's paged crawl, for
// callers with no prior cursor (e.g. the first page of a batch job).
func (m *Manager) GetAllFromStart(ctx context.Context, n int) ([]*accounts.Account, error) {
	accts, err := m.store.GetAllFromStart(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("crawl accounts from start: %w", err)
	}
	return accts, nil
}

// GetAllFrom is a thin passthrough to the store's paged crawl, continuing
// strictly after cursor.
func (m *Manager) GetAllFrom(ctx context.Context, cursor uuid.UUID, n int) ([]*accounts.Account, error) {
	accts, err := m.store.GetAllFrom(ctx, cursor, n)
	if err != nil {
		return nil, fmt.Errorf("crawl accounts from %s: %w", cursor, err)
	}
	return accts, nil
}
