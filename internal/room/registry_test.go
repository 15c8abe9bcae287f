// internal/room/registry_test.go
package room

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetOrCreateIsIdempotent(t *testing.T) {
	reg := NewRegistry()

	r1 := reg.GetOrCreate("AB12CD", "BNG-HOST01")
	r2 := reg.GetOrCreate("AB12CD", "BNG-OTHER1")
	assert.Same(t, r1, r2)
	assert.Equal(t, "BNG-HOST01", r2.HostID, "second hostID must not overwrite the first")

	got, ok := reg.Get("AB12CD")
	require.True(t, ok)
	assert.Same(t, r1, got)
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	reg.GetOrCreate("AB12CD", "BNG-HOST01")

	reg.Remove("AB12CD")
	_, ok := reg.Get("AB12CD")
	assert.False(t, ok)

	// Removing an absent code is a no-op.
	reg.Remove("AB12CD")
}

func TestRegistryOnEmptyWiredToRemove(t *testing.T) {
	reg := NewRegistry()
	r := reg.GetOrCreate("AB12CD", "BNG-HOST01")
	require.NotNil(t, r.OnEmpty)

	r.OnEmpty(r.Code)
	_, ok := reg.Get("AB12CD")
	assert.False(t, ok)
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	reg := NewRegistry()
	const workers = 32

	results := make([]*Room, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = reg.GetOrCreate("AB12CD", "BNG-HOST01")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}
