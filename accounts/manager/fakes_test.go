package manager

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"accountd/accounts"
	"accountd/accounts/tombstone"
	apperrors "accountd/pkg/errors"

	"github.com/google/uuid"
)

// fakeStore is an in-memory stand-in for accounts/store.Store, enforcing
// the same uniqueness and optimistic-concurrency contracts spec.md §4.2
// describes so tests can drive the coordinator's logic without a real
// Postgres instance.
type fakeStore struct {
	mu sync.Mutex

	byACI      map[uuid.UUID]*accounts.Account
	byNumber   map[string]uuid.UUID
	byPNI      map[uuid.UUID]uuid.UUID
	byUsername map[string]uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byACI:      make(map[uuid.UUID]*accounts.Account),
		byNumber:   make(map[string]uuid.UUID),
		byPNI:      make(map[uuid.UUID]uuid.UUID),
		byUsername: make(map[string]uuid.UUID),
	}
}

func (s *fakeStore) snapshot(a *accounts.Account) *accounts.Account {
	clone, err := a.Clone()
	if err != nil {
		panic(err)
	}
	clone.Version = a.Version
	return clone
}

func (s *fakeStore) Create(_ context.Context, a *accounts.Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingACI, ok := s.byNumber[a.Number]; ok {
		existing := s.byACI[existingACI]
		a.ACI = existing.ACI
		a.PNI = existing.PNI
		a.Version = existing.Version + 1
		merged := s.snapshot(a)
		s.byACI[existing.ACI] = merged
		return false, nil
	}

	a.Version = 0
	row := s.snapshot(a)
	s.byACI[a.ACI] = row
	s.byNumber[a.Number] = a.ACI
	s.byPNI[a.PNI] = a.ACI
	if a.Username != nil {
		s.byUsername[*a.Username] = a.ACI
	}
	return true, nil
}

func (s *fakeStore) Update(_ context.Context, a *accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byACI[a.ACI]
	if !ok {
		return apperrors.ErrNotFound
	}
	if existing.Version != a.Version {
		return apperrors.ErrContested
	}
	a.Version = existing.Version + 1
	s.byACI[a.ACI] = s.snapshot(a)
	return nil
}

func (s *fakeStore) ChangeNumber(_ context.Context, a *accounts.Account, newNumber string, newPNI uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byACI[a.ACI]
	if !ok {
		return apperrors.ErrNotFound
	}
	if existing.Version != a.Version {
		return apperrors.ErrContested
	}
	delete(s.byNumber, existing.Number)
	delete(s.byPNI, existing.PNI)

	a.Number = newNumber
	a.PNI = newPNI
	a.Version = existing.Version + 1
	s.byACI[a.ACI] = s.snapshot(a)
	s.byNumber[newNumber] = a.ACI
	s.byPNI[newPNI] = a.ACI
	return nil
}

func (s *fakeStore) SetUsername(_ context.Context, a *accounts.Account, canonical string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byUsername[canonical]; ok && owner != a.ACI {
		return apperrors.ErrUsernameNotAvailable
	}
	existing, ok := s.byACI[a.ACI]
	if !ok {
		return apperrors.ErrNotFound
	}
	if existing.Version != a.Version {
		return apperrors.ErrContested
	}
	if existing.Username != nil {
		delete(s.byUsername, *existing.Username)
	}
	a.Username = &canonical
	a.Version = existing.Version + 1
	s.byACI[a.ACI] = s.snapshot(a)
	s.byUsername[canonical] = a.ACI
	return nil
}

func (s *fakeStore) ClearUsername(_ context.Context, a *accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byACI[a.ACI]
	if !ok {
		return apperrors.ErrNotFound
	}
	if existing.Version != a.Version {
		return apperrors.ErrContested
	}
	if existing.Username != nil {
		delete(s.byUsername, *existing.Username)
	}
	a.Username = nil
	a.Version = existing.Version + 1
	s.byACI[a.ACI] = s.snapshot(a)
	return nil
}

func (s *fakeStore) GetByE164(_ context.Context, number string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	aci, ok := s.byNumber[number]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s.snapshot(s.byACI[aci]), nil
}

func (s *fakeStore) GetByPhoneNumberIdentifier(_ context.Context, pni uuid.UUID) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	aci, ok := s.byPNI[pni]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s.snapshot(s.byACI[aci]), nil
}

func (s *fakeStore) GetByUsername(_ context.Context, canonical string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	aci, ok := s.byUsername[canonical]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s.snapshot(s.byACI[aci]), nil
}

func (s *fakeStore) GetByAccountIdentifier(_ context.Context, aci uuid.UUID) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byACI[aci]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s.snapshot(a), nil
}

func (s *fakeStore) GetAllFromStart(_ context.Context, n int) ([]*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAfter(uuid.Nil, n), nil
}

func (s *fakeStore) GetAllFrom(_ context.Context, cursor uuid.UUID, n int) ([]*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAfter(cursor, n), nil
}

func (s *fakeStore) sortedAfter(cursor uuid.UUID, n int) []*accounts.Account {
	all := make([]*accounts.Account, 0, len(s.byACI))
	for _, a := range s.byACI {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ACI.String() < all[j].ACI.String() })

	out := make([]*accounts.Account, 0, n)
	for _, a := range all {
		if a.ACI.String() <= cursor.String() && cursor != uuid.Nil {
			continue
		}
		out = append(out, s.snapshot(a))
		if len(out) == n {
			break
		}
	}
	return out
}

func (s *fakeStore) Delete(_ context.Context, aci uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byACI[aci]
	if !ok {
		return apperrors.ErrNotFound
	}
	delete(s.byACI, aci)
	delete(s.byNumber, a.Number)
	delete(s.byPNI, a.PNI)
	if a.Username != nil {
		delete(s.byUsername, *a.Username)
	}
	return nil
}

// fakeCache is an in-memory stand-in for accounts/cache.Cache.
type fakeCache struct {
	mu        sync.Mutex
	byACI     map[uuid.UUID]*accounts.Account
	secondary map[string]uuid.UUID
	setCount  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		byACI:     make(map[uuid.UUID]*accounts.Account),
		secondary: make(map[string]uuid.UUID),
	}
}

func (c *fakeCache) Set(_ context.Context, a *accounts.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setCount++
	clone, err := a.Clone()
	if err != nil {
		return err
	}
	c.byACI[a.ACI] = clone
	c.secondary[a.Number] = a.ACI
	c.secondary[a.PNI.String()] = a.ACI
	if a.Username != nil {
		c.secondary[*a.Username] = a.ACI
	}
	return nil
}

func (c *fakeCache) Delete(_ context.Context, a *accounts.Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byACI, a.ACI)
	delete(c.secondary, a.Number)
	delete(c.secondary, a.PNI.String())
	if a.Username != nil {
		delete(c.secondary, *a.Username)
	}
	return nil
}

func (c *fakeCache) GetByACI(_ context.Context, aci string) (*accounts.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	parsed, err := uuid.Parse(aci)
	if err != nil {
		return nil, nil
	}
	a, ok := c.byACI[parsed]
	if !ok {
		return nil, nil
	}
	return a, nil
}

func (c *fakeCache) GetBySecondary(ctx context.Context, key string) (*accounts.Account, error) {
	c.mu.Lock()
	aci, ok := c.secondary[key]
	c.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return c.GetByACI(ctx, aci.String())
}

// fakeGate is an in-memory stand-in for accounts/tombstone.Gate; tests
// here exercise the coordinator's use of it, not the gate's own Redis
// wiring (covered in accounts/tombstone's own tests).
type fakeGate struct {
	mu          sync.Mutex
	tombstones  map[string]uuid.UUID
}

func newFakeGate() *fakeGate {
	return &fakeGate{tombstones: make(map[string]uuid.UUID)}
}

func (g *fakeGate) LockAndTake(ctx context.Context, number string, fn tombstone.TakeFn) error {
	g.mu.Lock()
	aci, ok := g.tombstones[number]
	if ok {
		delete(g.tombstones, number)
	}
	g.mu.Unlock()

	var maybe *uuid.UUID
	if ok {
		maybe = &aci
	}
	return fn(ctx, maybe)
}

func (g *fakeGate) LockAndPut(ctx context.Context, number string, fn tombstone.PutFn) error {
	aci, err := fn(ctx)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.tombstones[number] = aci
	g.mu.Unlock()
	return nil
}

func (g *fakeGate) LockAndPutCrossNumber(ctx context.Context, oldNumber, newNumber string, fn tombstone.CrossNumberFn) error {
	g.mu.Lock()
	deletedNew, ok := g.tombstones[newNumber]
	g.mu.Unlock()

	var maybe *uuid.UUID
	if ok {
		maybe = &deletedNew
	}
	displaced, err := fn(ctx, maybe)
	if err != nil {
		return err
	}
	if displaced == nil {
		return nil
	}
	g.mu.Lock()
	g.tombstones[oldNumber] = *displaced
	g.mu.Unlock()
	return nil
}

// fakePNI is a deterministic PNIDirectory: one uuid per number, allocated
// on first request.
type fakePNI struct {
	mu  sync.Mutex
	pni map[string]uuid.UUID
}

func newFakePNI() *fakePNI {
	return &fakePNI{pni: make(map[string]uuid.UUID)}
}

func (p *fakePNI) PNIFor(_ context.Context, number string) (uuid.UUID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.pni[number]; ok {
		return id, nil
	}
	id := uuid.New()
	p.pni[number] = id
	return id, nil
}

// recordingCalls is embedded by the collaborator fakes below that only
// need to prove "was I called, and with what" rather than simulate real
// side effects.
type recordingCalls struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (r *recordingCalls) record(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
}

func (r *recordingCalls) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingCalls) has(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == id {
			return true
		}
	}
	return false
}

type fakeMessages struct{ recordingCalls }

func (f *fakeMessages) Clear(_ context.Context, ownerID uuid.UUID) error {
	f.record(ownerID)
	return nil
}

type fakePreKeys struct{ recordingCalls }

func (f *fakePreKeys) Delete(_ context.Context, ownerID uuid.UUID) error {
	f.record(ownerID)
	return nil
}

type fakeProfiles struct{ recordingCalls }

func (f *fakeProfiles) DeleteAll(_ context.Context, aci uuid.UUID) error {
	f.record(aci)
	return nil
}

type fakePendingAccounts struct {
	mu       sync.Mutex
	removed  []string
}

func (f *fakePendingAccounts) Remove(_ context.Context, number string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, number)
	return nil
}

type fakeReservedUsernames struct {
	reservedTo map[string]uuid.UUID
}

func (f *fakeReservedUsernames) IsReserved(_ context.Context, canonical string, aci uuid.UUID) (bool, error) {
	owner, ok := f.reservedTo[canonical]
	if !ok {
		return false, nil
	}
	return owner != aci, nil
}

type fakeUsernameValidator struct{}

func (fakeUsernameValidator) Canonical(raw string) string { return strings.ToLower(raw) }

type fakePresence struct {
	mu          sync.Mutex
	disconnects map[uuid.UUID][]uint32
}

func newFakePresence() *fakePresence {
	return &fakePresence{disconnects: make(map[uuid.UUID][]uint32)}
}

func (f *fakePresence) DisconnectPresence(_ context.Context, aci uuid.UUID, deviceID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects[aci] = append(f.disconnects[aci], deviceID)
	return nil
}

type directoryQueueEvent struct {
	kind                  string
	aci                   uuid.UUID
	oldNumber, newNumber string
}

type fakeDirectoryQueue struct {
	mu     sync.Mutex
	events []directoryQueueEvent
}

func newFakeDirectoryQueue() *fakeDirectoryQueue { return &fakeDirectoryQueue{} }

func (f *fakeDirectoryQueue) DeleteAccount(_ context.Context, a *accounts.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, directoryQueueEvent{kind: "delete", aci: a.ACI})
	return nil
}

func (f *fakeDirectoryQueue) RefreshAccount(_ context.Context, a *accounts.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, directoryQueueEvent{kind: "refresh", aci: a.ACI})
	return nil
}

func (f *fakeDirectoryQueue) ChangePhoneNumber(_ context.Context, a *accounts.Account, oldNumber, newNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, directoryQueueEvent{kind: "changeNumber", aci: a.ACI, oldNumber: oldNumber, newNumber: newNumber})
	return nil
}

func (f *fakeDirectoryQueue) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.kind
	}
	return out
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeMetrics struct {
	mu       sync.Mutex
	counters []struct {
		name string
		tags map[string]string
	}
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{} }

func (m *fakeMetrics) IncrCounter(name string, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, struct {
		name string
		tags map[string]string
	}{name, tags})
}

func (m *fakeMetrics) ObserveDuration(string, map[string]string, float64) {}

// tagFor reports tagKey's value on the most recent counter named name.
func (m *fakeMetrics) tagFor(name, tagKey string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.counters) - 1; i >= 0; i-- {
		c := m.counters[i]
		if c.name == name {
			v, ok := c.tags[tagKey]
			return v, ok
		}
	}
	return "", false
}

// asyncClient lets delete-fan-out tests control exactly when secure
// storage/backup resolve, to assert S6's "both must finish before the row
// goes away" ordering.
type asyncClient struct {
	delay time.Duration
	done  chan struct{}
}

func newAsyncClient(delay time.Duration) *asyncClient {
	return &asyncClient{delay: delay, done: make(chan struct{})}
}

func (a *asyncClient) DeleteStoredData(ctx context.Context, aci uuid.UUID) error {
	return a.run(ctx)
}

func (a *asyncClient) DeleteBackups(ctx context.Context, aci uuid.UUID) error {
	return a.run(ctx)
}

func (a *asyncClient) run(ctx context.Context) error {
	select {
	case <-time.After(a.delay):
		close(a.done)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
