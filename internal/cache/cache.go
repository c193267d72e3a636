package cache

import (
	"sync"

	"github.com/dumfing/skirmish/pkg/core"
)

// PlayerCache tracks the players already registered with storage for the
// current round, keyed by connection id. A player rejoining under the same
// id keeps its storage id and is not inserted twice.
type PlayerCache struct {
	m       sync.Mutex
	players map[int]core.Player
	nextID  uint
}

func NewPlayerCache() *PlayerCache {
	return &PlayerCache{
		players: make(map[int]core.Player),
	}
}

func (c *PlayerCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.players = make(map[int]core.Player)
	c.nextID = 0
}

func (c *PlayerCache) Get(connID int) (core.Player, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	p, ok := c.players[connID]
	return p, ok
}

// Register stores p and assigns p.ID. It reports false when the connection
// was already registered this round, in which case p.ID is the earlier id.
func (c *PlayerCache) Register(p *core.Player) bool {
	c.m.Lock()
	defer c.m.Unlock()
	if existing, ok := c.players[p.ConnID]; ok {
		p.ID = existing.ID
		existing.Name = p.Name
		c.players[p.ConnID] = existing
		return false
	}
	c.nextID++
	p.ID = c.nextID
	c.players[p.ConnID] = *p
	return true
}

// SetTeam updates the cached team of a registered player.
func (c *PlayerCache) SetTeam(connID int, team core.Team) {
	c.m.Lock()
	defer c.m.Unlock()
	if p, ok := c.players[connID]; ok {
		p.Team = team
		c.players[connID] = p
	}
}

func (c *PlayerCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.players)
}
