package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumfing/skirmish/pkg/core"
)

func TestPlayerCache_NewPlayerCache(t *testing.T) {
	cache := NewPlayerCache()

	require.NotNil(t, cache)
	assert.Equal(t, 0, cache.Len())
}

func TestPlayerCache_RegisterAndGet(t *testing.T) {
	cache := NewPlayerCache()

	alice := core.Player{ConnID: 10, Name: "alice"}
	bob := core.Player{ConnID: 11, Name: "bob"}
	assert.True(t, cache.Register(&alice))
	assert.True(t, cache.Register(&bob))
	assert.Equal(t, uint(1), alice.ID)
	assert.Equal(t, uint(2), bob.ID)

	got, ok := cache.Get(11)
	require.True(t, ok)
	assert.Equal(t, "bob", got.Name)

	_, ok = cache.Get(99)
	assert.False(t, ok)
}

func TestPlayerCache_RejoinKeepsID(t *testing.T) {
	cache := NewPlayerCache()

	first := core.Player{ConnID: 3, Name: "alice"}
	cache.Register(&first)
	again := core.Player{ConnID: 3, Name: "alice2"}
	assert.False(t, cache.Register(&again))

	assert.Equal(t, first.ID, again.ID)
	got, _ := cache.Get(3)
	assert.Equal(t, "alice2", got.Name)
	assert.Equal(t, 1, cache.Len())
}

func TestPlayerCache_SetTeam(t *testing.T) {
	cache := NewPlayerCache()
	cache.Register(&core.Player{ConnID: 1, Team: core.TeamRed})

	cache.SetTeam(1, core.TeamBlue)
	cache.SetTeam(2, core.TeamBlue)

	got, _ := cache.Get(1)
	assert.Equal(t, core.TeamBlue, got.Team)
	_, ok := cache.Get(2)
	assert.False(t, ok)
}

func TestPlayerCache_Reset(t *testing.T) {
	cache := NewPlayerCache()
	cache.Register(&core.Player{ConnID: 1})
	cache.Reset()

	assert.Equal(t, 0, cache.Len())
	p := core.Player{ConnID: 5}
	cache.Register(&p)
	assert.Equal(t, uint(1), p.ID, "ids restart after reset")
}

func TestPlayerCache_ConcurrentAccess(t *testing.T) {
	cache := NewPlayerCache()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(conn int) {
			defer wg.Done()
			p := core.Player{ConnID: conn}
			cache.Register(&p)
			cache.Get(conn)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, cache.Len())
}
