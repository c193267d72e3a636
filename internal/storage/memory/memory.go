package memory

import (
	"errors"
	"sync"

	"github.com/dumfing/skirmish/internal/config"
	"github.com/dumfing/skirmish/pkg/core"
)

// ErrNoRound is returned when a round-scoped call arrives before StartRound.
var ErrNoRound = errors.New("no round in progress")

// PlayerRecord groups a player with all its time-series data
type PlayerRecord struct {
	Player core.Player
	States []core.SoldierState
}

// Backend stores round data in memory and exports to JSON
type Backend struct {
	cfg   config.MemoryConfig
	round *core.Round
	level *core.Level

	players map[int]*PlayerRecord // keyed by ConnID
	order   []int

	projectiles []core.ProjectileEvent
	hits        []core.HitEvent
	chats       []core.ChatEvent
	teamPicks   []core.TeamPickEvent
	tickStats   []core.TickStats
	endTick     uint

	idCounter          uint
	lastExportPath     string
	lastExportMetadata core.UploadMetadata
	mu                 sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:     cfg,
		players: make(map[int]*PlayerRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRound begins recording a new round
func (b *Backend) StartRound(round *core.Round, level *core.Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.round = round
	b.level = level

	b.players = make(map[int]*PlayerRecord)
	b.order = nil
	b.projectiles = nil
	b.hits = nil
	b.chats = nil
	b.teamPicks = nil
	b.tickStats = nil
	b.endTick = 0
	b.idCounter = 0

	return nil
}

// EndRound finalizes and exports the round data
func (b *Backend) EndRound() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.round == nil {
		return ErrNoRound
	}
	if err := b.exportJSON(); err != nil {
		return err
	}
	b.round = nil
	return nil
}

// AddPlayer registers a player. A player rejoining under the same
// connection id keeps its record.
func (b *Backend) AddPlayer(p *core.Player) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.players[p.ConnID]; ok {
		p.ID = rec.Player.ID
		rec.Player.Name = p.Name
		return nil
	}

	b.idCounter++
	p.ID = b.idCounter

	b.players[p.ConnID] = &PlayerRecord{
		Player: *p,
		States: make([]core.SoldierState, 0),
	}
	b.order = append(b.order, p.ConnID)
	return nil
}

// GetPlayer looks up a player by connection id
func (b *Backend) GetPlayer(connID int) (*core.Player, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if record, ok := b.players[connID]; ok {
		p := record.Player
		return &p, true
	}
	return nil, false
}

// RecordSoldierState records a soldier state sample
func (b *Backend) RecordSoldierState(s *core.SoldierState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bumpTick(s.Tick)
	if record, ok := b.players[s.ConnID]; ok {
		record.States = append(record.States, *s)
	}
	return nil // silently ignore unknown players
}

// RecordProjectileEvent records a finished projectile
func (b *Backend) RecordProjectileEvent(e *core.ProjectileEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bumpTick(e.EndTick)
	b.projectiles = append(b.projectiles, *e)
	return nil
}

// RecordHitEvent records a hit event
func (b *Backend) RecordHitEvent(e *core.HitEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bumpTick(e.Tick)
	b.hits = append(b.hits, *e)
	return nil
}

// RecordChatEvent records a chat event
func (b *Backend) RecordChatEvent(e *core.ChatEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chats = append(b.chats, *e)
	return nil
}

// RecordTeamPick records a team pick and updates the player's team
func (b *Backend) RecordTeamPick(e *core.TeamPickEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teamPicks = append(b.teamPicks, *e)
	if record, ok := b.players[e.ConnID]; ok {
		record.Player.Team = e.Team
	}
	return nil
}

// RecordTickStats records server performance
func (b *Backend) RecordTickStats(s *core.TickStats) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bumpTick(s.Tick)
	b.tickStats = append(b.tickStats, *s)
	return nil
}

func (b *Backend) bumpTick(t uint) {
	if t > b.endTick {
		b.endTick = t
	}
}
