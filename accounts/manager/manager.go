package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"accountd/accounts"
	"accountd/accounts/cache"
	"accountd/accounts/store"
	"accountd/accounts/tombstone"
	apperrors "accountd/pkg/errors"
	"accountd/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DeletionReason classifies why an account was deleted, carried as a tag
// on the delete counter.
type DeletionReason int

const (
	DeletionReasonAdminDeleted DeletionReason = iota
	DeletionReasonExpired
	DeletionReasonUserRequest
)

// Tag returns the metric-tag spelling of the reason, matching the
// original implementation's enum literals.
func (r DeletionReason) Tag() string {
	switch r {
	case DeletionReasonAdminDeleted:
		return "admin"
	case DeletionReasonExpired:
		return "expired"
	case DeletionReasonUserRequest:
		return "userRequest"
	default:
		return "unknown"
	}
}

// AccountAttributes carries the caller-supplied fields populated onto a
// new account at creation time, and onto the primary device.
type AccountAttributes struct {
	RegistrationID                 uint32
	Name                            string
	Capabilities                   []string
	UnidentifiedAccessKey           []byte
	UnrestrictedUnidentifiedAccess  bool
	RegistrationLock                string
	DiscoverableByPhoneNumber       bool
	FetchesMessages                 bool
}

// Manager is the lifecycle coordinator. It has no wire protocol of its
// own; every field is a narrow collaborator contract.
type Manager struct {
	store  store.Store
	cache  cache.Cache
	gate   tombstone.Gate
	pni    PNIDirectory

	secureStorage     SecureStorageClient
	secureBackup      SecureBackupClient
	messages          MessagesManager
	prekeys           PreKeyStore
	profiles          ProfilesManager
	pendingAccounts   PendingAccountsStore
	reservedUsernames ReservedUsernames
	usernames         UsernameValidator
	presence          PresenceManager
	directoryQueue    DirectoryQueue
	clock             Clock
	metrics           Metrics

	log *logger.Logger
}

// Deps bundles every collaborator Manager needs, so construction reads as
// one literal instead of a seventeen-argument constructor call.
type Deps struct {
	Store             store.Store
	Cache             cache.Cache
	Gate              tombstone.Gate
	PNI               PNIDirectory
	SecureStorage     SecureStorageClient
	SecureBackup      SecureBackupClient
	Messages          MessagesManager
	PreKeys           PreKeyStore
	Profiles          ProfilesManager
	PendingAccounts   PendingAccountsStore
	ReservedUsernames ReservedUsernames
	Usernames         UsernameValidator
	Presence          PresenceManager
	DirectoryQueue    DirectoryQueue
	Clock             Clock
	Metrics           Metrics
	Log               *logger.Logger
}

func New(d Deps) *Manager {
	return &Manager{
		store:             d.Store,
		cache:             d.Cache,
		gate:              d.Gate,
		pni:               d.PNI,
		secureStorage:     d.SecureStorage,
		secureBackup:      d.SecureBackup,
		messages:          d.Messages,
		prekeys:           d.PreKeys,
		profiles:          d.Profiles,
		pendingAccounts:   d.PendingAccounts,
		reservedUsernames: d.ReservedUsernames,
		usernames:         d.Usernames,
		presence:          d.Presence,
		directoryQueue:    d.DirectoryQueue,
		clock:             d.Clock,
		metrics:           d.Metrics,
		log:               d.Log,
	}
}

func (m *Manager) timer(name string) func(tags map[string]string) {
	start := time.Now()
	return func(tags map[string]string) {
		m.metrics.ObserveDuration(name, tags, time.Since(start).Seconds())
	}
}

// Create registers a brand-new account for number, or folds into an
// existing live/recently-deleted identity per spec.md §4.5.
func (m *Manager) Create(ctx context.Context, number, password, userAgent string, attrs AccountAttributes, badges []accounts.Badge) (*accounts.Account, error) {
	done := m.timer("accounts.create")
	var result *accounts.Account
	var classification string

	err := m.gate.LockAndTake(ctx, number, func(ctx context.Context, maybeRecentlyDeletedACI *uuid.UUID) error {
		pni, err := m.pni.PNIFor(ctx, number)
		if err != nil {
			return fmt.Errorf("resolve pni for %s: %w", number, err)
		}

		salt, hash, err := hashPassword(password)
		if err != nil {
			return err
		}

		a := &accounts.Account{
			Number:                         number,
			PNI:                            pni,
			UnidentifiedAccessKey:          attrs.UnidentifiedAccessKey,
			UnrestrictedUnidentifiedAccess: attrs.UnrestrictedUnidentifiedAccess,
			RegistrationLock:               attrs.RegistrationLock,
			DiscoverableByPhoneNumber:      attrs.DiscoverableByPhoneNumber,
			Badges:                         badges,
			CreatedAt:                      m.clock.Now(),
			Devices: []accounts.Device{{
				ID:              accounts.PrimaryDeviceID,
				AuthToken:       hash,
				Salt:            salt,
				RegistrationID:  attrs.RegistrationID,
				FetchesMessages: attrs.FetchesMessages,
				UserAgent:       userAgent,
				Name:            attrs.Name,
				Capabilities:    attrs.Capabilities,
				CreatedAt:       m.clock.Now(),
				LastSeen:        m.clock.Now(),
			}},
		}

		if maybeRecentlyDeletedACI != nil {
			a.ACI = *maybeRecentlyDeletedACI
		} else {
			a.ACI = uuid.New()
		}
		fresh, err := m.store.Create(ctx, a)
		if err != nil {
			return fmt.Errorf("create account for %s: %w", number, err)
		}
		actualACI := a.ACI

		if err := m.cache.Set(ctx, a); err != nil {
			m.log.WarnCtx(ctx, "cache write failed after create")
		}

		if err := m.pendingAccounts.Remove(ctx, number); err != nil {
			m.log.WarnCtx(ctx, "pending account removal failed")
		}

		switch {
		case !fresh:
			classification = "re-registration"
			if err := m.messages.Clear(ctx, actualACI); err != nil {
				m.log.WarnCtx(ctx, "failed clearing residual messages on re-registration")
			}
			if err := m.prekeys.Delete(ctx, actualACI); err != nil {
				m.log.WarnCtx(ctx, "failed clearing residual prekeys on re-registration")
			}
			if err := m.profiles.DeleteAll(ctx, actualACI); err != nil {
				m.log.WarnCtx(ctx, "failed clearing residual profile on re-registration")
			}
		case maybeRecentlyDeletedACI != nil:
			classification = "recently-deleted"
		default:
			classification = "new"
		}

		if !a.ShouldBeVisibleInDirectory() {
			if err := m.directoryQueue.DeleteAccount(ctx, a); err != nil {
				m.log.WarnCtx(ctx, "directory queue deleteAccount failed for non-discoverable create")
			}
		}

		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.IncrCounter("accounts.create", map[string]string{
		"type":    classification,
		"country": callingCode(number),
	})
	done(map[string]string{"type": classification})
	return result, nil
}

func hashPassword(password string) (salt, hash string, err error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash device credential: %w", err)
	}
	return "", string(bytes), nil
}

// ChangeNumber moves a to newNumber, displacing any live account already
// registered at that number.
func (m *Manager) ChangeNumber(ctx context.Context, a *accounts.Account, newNumber string) (*accounts.Account, error) {
	if newNumber == a.Number {
		return a, nil
	}
	done := m.timer("accounts.changeNumber")
	defer done(nil)

	oldNumber := a.Number
	var result *accounts.Account

	err := m.gate.LockAndPutCrossNumber(ctx, oldNumber, newNumber, func(ctx context.Context, deletedNewACI *uuid.UUID) (*uuid.UUID, error) {
		if err := m.cache.Delete(ctx, a); err != nil {
			m.log.WarnCtx(ctx, "cache invalidation failed before changeNumber")
		}

		displaced := deletedNewACI
		if existing, err := m.store.GetByE164(ctx, newNumber); err == nil {
			if err := m.deleteAccount(ctx, existing); err != nil {
				return nil, fmt.Errorf("delete displaced account at %s: %w", newNumber, err)
			}
			if err := m.directoryQueue.DeleteAccount(ctx, existing); err != nil {
				m.log.WarnCtx(ctx, "directory queue deleteAccount failed for displaced account")
			}
			displacedACI := existing.ACI
			displaced = &displacedACI
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}

		newPNI, err := m.pni.PNIFor(ctx, newNumber)
		if err != nil {
			return nil, fmt.Errorf("resolve pni for %s: %w", newNumber, err)
		}

		updated, err := accounts.UpdateWithRetries(ctx, a,
			func(*accounts.Account) bool { return true },
			func(ctx context.Context, acc *accounts.Account) error {
				return m.store.ChangeNumber(ctx, acc, newNumber, newPNI)
			},
			func(ctx context.Context) (*accounts.Account, error) {
				return m.store.GetByAccountIdentifier(ctx, a.ACI)
			},
		)
		if err != nil {
			return nil, err
		}

		if err := m.cache.Set(ctx, updated); err != nil {
			m.log.WarnCtx(ctx, "cache write failed after changeNumber")
		}
		if err := m.directoryQueue.ChangePhoneNumber(ctx, updated, oldNumber, newNumber); err != nil {
			m.log.WarnCtx(ctx, "directory queue changePhoneNumber failed")
		}

		result = updated
		return displaced, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SetUsername canonicalizes raw and assigns it to a, failing with
// ErrUsernameNotAvailable if it is reserved to a different account.
func (m *Manager) SetUsername(ctx context.Context, a *accounts.Account, raw string) (*accounts.Account, error) {
	done := m.timer("accounts.setUsername")
	defer done(nil)

	canonical := m.usernames.Canonical(raw)
	if a.Username != nil && *a.Username == canonical {
		return a, nil
	}

	reserved, err := m.reservedUsernames.IsReserved(ctx, canonical, a.ACI)
	if err != nil {
		return nil, fmt.Errorf("check username reservation: %w", err)
	}
	if reserved {
		return nil, apperrors.ErrUsernameNotAvailable
	}

	if err := m.cache.Delete(ctx, a); err != nil {
		m.log.WarnCtx(ctx, "cache invalidation failed before setUsername")
	}

	return accounts.UpdateWithRetries(ctx, a,
		func(*accounts.Account) bool { return true },
		func(ctx context.Context, acc *accounts.Account) error {
			return m.store.SetUsername(ctx, acc, canonical)
		},
		func(ctx context.Context) (*accounts.Account, error) {
			return m.store.GetByAccountIdentifier(ctx, a.ACI)
		},
	)
}

// ClearUsername removes a's username, if any.
func (m *Manager) ClearUsername(ctx context.Context, a *accounts.Account) (*accounts.Account, error) {
	done := m.timer("accounts.clearUsername")
	defer done(nil)

	if err := m.cache.Delete(ctx, a); err != nil {
		m.log.WarnCtx(ctx, "cache invalidation failed before clearUsername")
	}

	return accounts.UpdateWithRetries(ctx, a,
		func(*accounts.Account) bool { return true },
		func(ctx context.Context, acc *accounts.Account) error {
			return m.store.ClearUsername(ctx, acc)
		},
		func(ctx context.Context) (*accounts.Account, error) {
			return m.store.GetByAccountIdentifier(ctx, a.ACI)
		},
	)
}

// Update applies mutate to a and persists the result. number, pni, and
// username must not change through this path — dedicated operations exist
// for those; a violation is logged, never raised.
func (m *Manager) Update(ctx context.Context, a *accounts.Account, mutate func(*accounts.Account) bool) (*accounts.Account, error) {
	done := m.timer("accounts.update")
	defer done(nil)

	wasVisible := a.ShouldBeVisibleInDirectory()
	originalNumber, originalPNI, originalUsername := a.Number, a.PNI, a.Username

	if err := m.cache.Delete(ctx, a); err != nil {
		m.log.WarnCtx(ctx, "cache invalidation failed before update")
	}

	updated, err := accounts.UpdateWithRetries(ctx, a, mutate, m.store.Update,
		func(ctx context.Context) (*accounts.Account, error) {
			return m.store.GetByAccountIdentifier(ctx, a.ACI)
		},
	)
	if err != nil {
		return nil, err
	}

	if updated.Number != originalNumber || updated.PNI != originalPNI || !sameUsername(updated.Username, originalUsername) {
		m.log.ErrorCtx(ctx, "update() mutated an immutable field; returning anyway")
	}

	if err := m.cache.Set(ctx, updated); err != nil {
		m.log.WarnCtx(ctx, "cache write failed after update")
	}

	if updated.ShouldBeVisibleInDirectory() != wasVisible {
		if err := m.directoryQueue.RefreshAccount(ctx, updated); err != nil {
			m.log.WarnCtx(ctx, "directory queue refreshAccount failed")
		}
	}

	return updated, nil
}

func sameUsername(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// UpdateDevice locates deviceID on a, applies devMutate to it, and
// persists through Update.
func (m *Manager) UpdateDevice(ctx context.Context, a *accounts.Account, deviceID uint32, devMutate func(*accounts.Device)) (*accounts.Account, error) {
	return m.Update(ctx, a, func(acc *accounts.Account) bool {
		device, ok := acc.DeviceByID(deviceID)
		if !ok {
			return false
		}
		devMutate(device)
		return true
	})
}

// UpdateDeviceLastSeen updates device's LastSeen to ts, skipping the write
// entirely if the stored value is already at least as recent — avoiding
// needless contested writes under heavy contention.
func (m *Manager) UpdateDeviceLastSeen(ctx context.Context, a *accounts.Account, deviceID uint32, ts time.Time) (*accounts.Account, error) {
	return m.Update(ctx, a, func(acc *accounts.Account) bool {
		device, ok := acc.DeviceByID(deviceID)
		if !ok {
			return false
		}
		if !device.LastSeen.Before(ts) {
			return false
		}
		device.LastSeen = ts
		return true
	})
}
