// Package accounts holds the Account record itself and the optimistic
// update engine that mutates it. It has no knowledge of storage, caching,
// or any secondary subsystem — those live in accounts/store, accounts/cache,
// and accounts/manager.
package accounts

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Device is one registered client of an account. Device id 1 is always the
// primary device, created alongside the account itself.
type Device struct {
	ID               uint32    `json:"id"`
	AuthToken        string    `json:"authToken"`
	Salt             string    `json:"salt"`
	RegistrationID   uint32    `json:"registrationId"`
	FetchesMessages  bool      `json:"fetchesMessages"`
	UserAgent        string    `json:"userAgent"`
	Name             string    `json:"name"`
	Capabilities     []string  `json:"capabilities"`
	CreatedAt        time.Time `json:"createdAt"`
	LastSeen         time.Time `json:"lastSeen"`
}

// PrimaryDeviceID is the reserved id of an account's first device.
const PrimaryDeviceID uint32 = 1

// Badge is an opaque directory/presence metadata attachment; its issuance
// policy is a non-goal here, only storage and round-tripping matter.
type Badge struct {
	ID          string     `json:"id"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	Visible     bool       `json:"visible"`
}

// Account is the root entity the whole coordinator revolves around. Every
// field except stale round-trips through JSON, because the cache and the
// optimistic-update clone both rely on JSON as the deep-copy mechanism.
type Account struct {
	ACI     uuid.UUID `json:"aci"`
	PNI     uuid.UUID `json:"pni"`
	Number  string    `json:"number"`
	Username *string  `json:"username,omitempty"`

	Devices []Device `json:"devices"`

	UnidentifiedAccessKey           []byte `json:"unidentifiedAccessKey,omitempty"`
	UnrestrictedUnidentifiedAccess  bool   `json:"unrestrictedUnidentifiedAccess"`
	RegistrationLock                string `json:"registrationLock,omitempty"`
	DiscoverableByPhoneNumber        bool   `json:"discoverableByPhoneNumber"`
	Disabled                         bool   `json:"disabled"`
	Badges                           []Badge `json:"badges"`

	CreatedAt time.Time `json:"createdAt"`

	// Version is bumped by the primary store on every successful write and
	// used as the optimistic-concurrency token.
	Version uint64 `json:"version"`

	// stale is flipped exactly once, by MarkStale, after this object has
	// been superseded by a fresh clone returned from an update. Being
	// unexported, it never participates in the JSON round-trip.
	stale atomic.Bool
}

// PrimaryDevice returns the account's device 1, if present.
func (a *Account) PrimaryDevice() (*Device, bool) {
	return a.DeviceByID(PrimaryDeviceID)
}

// DeviceByID returns the device with the given id, if present.
func (a *Account) DeviceByID(id uint32) (*Device, bool) {
	for i := range a.Devices {
		if a.Devices[i].ID == id {
			return &a.Devices[i], true
		}
	}
	return nil, false
}

// ShouldBeVisibleInDirectory reports whether contact discovery should be
// able to find this account: it must have opted into discoverability and
// must not be disabled.
func (a *Account) ShouldBeVisibleInDirectory() bool {
	return a.DiscoverableByPhoneNumber && !a.Disabled
}

// MarkStale flags this object as superseded. Any later read of IsStale
// indicates a caller is holding a copy that lost a race with a fresh clone
// returned from an update — a defensive assertion hook, not a control-flow
// mechanism.
func (a *Account) MarkStale() {
	a.stale.Store(true)
}

// IsStale reports whether MarkStale has been called on this object.
func (a *Account) IsStale() bool {
	return a.stale.Load()
}

// Clone produces a detached deep copy of a via a JSON round-trip, the way
// the optimistic update engine does after every successful persist: no
// mutable state is shared between the original and the copy, and the
// stale flag on the copy starts false regardless of the original's state.
func (a *Account) Clone() (*Account, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode account for clone: %w", err)
	}
	clone := &Account{}
	if err := json.Unmarshal(body, clone); err != nil {
		return nil, fmt.Errorf("decode account for clone: %w", err)
	}
	clone.ACI = a.ACI
	return clone, nil
}
