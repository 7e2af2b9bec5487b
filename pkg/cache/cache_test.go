package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSetExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := New[string](time.Minute, WithClock[string](clock))

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", "v1")
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "v1", got)

	// Just before expiry still serves.
	now = now.Add(59 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	// At expiry the entry is gone.
	now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestSetWithTTLOverridesDefault(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New[int](time.Minute, WithClock[int](func() time.Time { return now }))

	c.SetWithTTL("long", 1, time.Hour)
	now = now.Add(30 * time.Minute)
	_, ok := c.Get("long")
	assert.True(t, ok)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := New[int](0, WithClock[int](func() time.Time { return now }))

	c.Set("k", 7)
	now = now.Add(1000 * time.Hour)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 7, got)
}

func TestDeletePrefix(t *testing.T) {
	c := New[int](0)
	c.Set("tenant-1/creds", 1)
	c.Set("tenant-1/storage", 2)
	c.Set("tenant-2/creds", 3)

	c.DeletePrefix("tenant-1/")

	_, ok := c.Get("tenant-1/creds")
	assert.False(t, ok)
	_, ok = c.Get("tenant-1/storage")
	assert.False(t, ok)
	_, ok = c.Get("tenant-2/creds")
	assert.True(t, ok)
}
