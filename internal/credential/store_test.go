package credential

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SkewedExpiry(t *testing.T) {
	clock := NewFixedClock(time.Unix(1700000000, 0))
	store := NewStore(Options{Clock: clock})

	store.Set("A", 60*time.Second)

	clock.Advance(29 * time.Second)
	tok, ok := store.Valid()
	require.True(t, ok)
	assert.Equal(t, "A", tok)
	assert.False(t, store.IsExpired())

	clock.Advance(2 * time.Second)
	_, ok = store.Valid()
	assert.False(t, ok)
	assert.True(t, store.IsExpired())

	raw, present := store.Get()
	assert.True(t, present)
	assert.Equal(t, "A", raw)
}

func TestStore_ExpiryBoundaryIsExpired(t *testing.T) {
	clock := NewFixedClock(time.Unix(0, 0))
	store := NewStore(Options{Clock: clock, Skew: 10 * time.Second})

	store.Set("T", 20*time.Second)
	clock.Advance(10 * time.Second)

	assert.True(t, store.IsExpired())
}

func TestStore_EmptyAndClear(t *testing.T) {
	store := NewStore(Options{})
	assert.True(t, store.IsExpired())

	_, ok := store.Get()
	assert.False(t, ok)

	store.Set("T", time.Hour)
	assert.False(t, store.IsExpired())
	assert.Equal(t, "T", store.Snapshot().Value)

	store.Clear()
	assert.True(t, store.IsExpired())
	assert.True(t, store.Snapshot().IsZero())
}

func TestStore_NegativeSkewDisablesSkew(t *testing.T) {
	clock := NewFixedClock(time.Unix(0, 0))
	store := NewStore(Options{Clock: clock, Skew: -1})

	store.Set("T", 5*time.Second)
	clock.Advance(4 * time.Second)

	assert.False(t, store.IsExpired())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore(Options{})
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Set("T", time.Minute)
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Valid()
			_ = store.IsExpired()
		}()
	}
	wg.Wait()

	tok, ok := store.Valid()
	assert.True(t, ok)
	assert.Equal(t, "T", tok)
}
