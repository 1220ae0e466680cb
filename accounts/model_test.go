package accounts

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAccount() *Account {
	return &Account{
		ACI:                       uuid.New(),
		PNI:                       uuid.New(),
		Number:                    "+15550100",
		DiscoverableByPhoneNumber: true,
		CreatedAt:                 time.Now(),
		Version:                   3,
		Devices: []Device{
			{ID: PrimaryDeviceID, Name: "primary"},
			{ID: 2, Name: "secondary"},
		},
	}
}

func TestAccount_PrimaryDeviceAndDeviceByID(t *testing.T) {
	a := sampleAccount()

	primary, ok := a.PrimaryDevice()
	require.True(t, ok)
	assert.Equal(t, "primary", primary.Name)

	second, ok := a.DeviceByID(2)
	require.True(t, ok)
	assert.Equal(t, "secondary", second.Name)

	_, ok = a.DeviceByID(99)
	assert.False(t, ok)
}

func TestAccount_ShouldBeVisibleInDirectory(t *testing.T) {
	a := sampleAccount()
	assert.True(t, a.ShouldBeVisibleInDirectory())

	a.Disabled = true
	assert.False(t, a.ShouldBeVisibleInDirectory())

	a.Disabled = false
	a.DiscoverableByPhoneNumber = false
	assert.False(t, a.ShouldBeVisibleInDirectory())
}

func TestAccount_MarkStale(t *testing.T) {
	a := sampleAccount()
	assert.False(t, a.IsStale())
	a.MarkStale()
	assert.True(t, a.IsStale())
}

func TestAccount_Clone_IsDetachedAndPreservesACI(t *testing.T) {
	a := sampleAccount()
	username := "alice"
	a.Username = &username

	clone, err := a.Clone()
	require.NoError(t, err)

	assert.Equal(t, a.ACI, clone.ACI)
	assert.Equal(t, a.Number, clone.Number)
	require.NotNil(t, clone.Username)
	assert.Equal(t, *a.Username, *clone.Username)

	// Mutating the clone's username pointer must not reach the original:
	// the whole point of the JSON round-trip is that no mutable state is
	// shared between the two.
	*clone.Username = "bob"
	assert.Equal(t, "alice", *a.Username)

	clone.Devices[0].Name = "renamed"
	assert.Equal(t, "primary", a.Devices[0].Name)

	assert.False(t, clone.IsStale())
}
