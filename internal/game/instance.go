// Package game drives one world through a round: it applies queued events
// and inputs between simulation steps, broadcasts snapshots and feeds the
// recorder.
package game

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/dumfing/skirmish/internal/entity"
	"github.com/dumfing/skirmish/internal/levelmap"
	"github.com/dumfing/skirmish/internal/queue"
	"github.com/dumfing/skirmish/internal/world"
	"github.com/dumfing/skirmish/pkg/core"
	"github.com/dumfing/skirmish/pkg/protocol"
)

var (
	// ErrServerFull is returned by Admit when every slot is taken.
	ErrServerFull = errors.New("server full")
	// ErrTickPanic wraps a panic recovered inside Tick.
	ErrTickPanic = errors.New("tick panicked")
)

// Config holds the tunables of an Instance.
type Config struct {
	ServerName     string
	MaxPlayers     int
	TickRate       int
	BroadcastEvery int
	QueueSize      int
	MaxRequeue     int
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		ServerName:     "skirmish",
		MaxPlayers:     10,
		TickRate:       60,
		BroadcastEvery: 3,
		QueueSize:      1024,
		MaxRequeue:     120,
	}
}

// Option configures an Instance.
type Option func(*Instance)

// WithBroadcaster sets where snapshots and countdowns go.
func WithBroadcaster(b Broadcaster) Option {
	return func(g *Instance) {
		g.bcast = b
	}
}

// WithRecorder sets the round recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Instance) {
		g.rec = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Instance) {
		g.log = l
	}
}

// WithStateHook registers fn to run after every state change. It runs on
// the goroutine that caused the change.
func WithStateHook(fn func(from, to State)) Option {
	return func(g *Instance) {
		g.hooks = append(g.hooks, fn)
	}
}

type member struct {
	name   string
	team   core.Team
	picked bool
}

// Instance owns a world. Tick must be called from a single goroutine; the
// other exported methods are safe for concurrent use.
type Instance struct {
	cfg   Config
	world *world.World
	log   *slog.Logger
	bcast Broadcaster
	rec   Recorder
	hooks []func(from, to State)

	events *queue.Queue[Event]

	inputMu sync.Mutex
	inputs  map[int]core.Controls

	mu             sync.RWMutex
	state          State
	roster         map[int]*member
	countdownTicks int

	frameCount int
}

// New wraps w. The instance starts in Loading, or in Lobby when w already
// has a map.
func New(cfg Config, w *world.World, opts ...Option) *Instance {
	def := DefaultConfig()
	if cfg.TickRate <= 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.BroadcastEvery <= 0 {
		cfg.BroadcastEvery = def.BroadcastEvery
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = def.MaxPlayers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxRequeue <= 0 {
		cfg.MaxRequeue = def.MaxRequeue
	}

	g := &Instance{
		cfg:    cfg,
		world:  w,
		log:    slog.Default(),
		bcast:  nopBroadcaster{},
		rec:    NopRecorder{},
		events: queue.NewBounded[Event](cfg.QueueSize),
		inputs: make(map[int]core.Controls),
		roster: make(map[int]*member),
		state:  StateLoading,
	}
	for _, opt := range opts {
		opt(g)
	}
	if w.Map() != nil {
		g.state = StateLobby
	}
	return g
}

// Config returns the instance settings.
func (g *Instance) Config() Config {
	return g.cfg
}

// World returns the wrapped world. Only the tick goroutine may touch it
// while the instance is running.
func (g *Instance) World() *world.World {
	return g.world
}

// State returns the current state.
func (g *Instance) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

func (g *Instance) transition(to State) error {
	g.mu.Lock()
	from := g.state
	if err := checkTransition(from, to); err != nil {
		g.mu.Unlock()
		return err
	}
	g.state = to
	g.mu.Unlock()

	g.log.Info("state changed", "from", from.String(), "to", to.String())
	for _, fn := range g.hooks {
		fn(from, to)
	}
	return nil
}

// LoadMap installs a level and opens the lobby. Call it between ticks.
func (g *Instance) LoadMap(m *levelmap.Map) error {
	if m == nil {
		return fmt.Errorf("load map: %w", world.ErrWorldNotReady)
	}
	state := g.State()
	if state == StateRoundOver {
		if err := g.transition(StateLoading); err != nil {
			return err
		}
		state = StateLoading
	}
	if state != StateLoading {
		return fmt.Errorf("load map in %s: %w", state, ErrIllegalTransition)
	}
	g.world.SetMap(m)
	g.log.Info("level loaded", "level", m.Name(), "width", m.Width(), "height", m.Height())
	return g.transition(StateLobby)
}

// Admit reserves a player slot and queues the soldier's creation.
func (g *Instance) Admit(connID int, name string) error {
	g.mu.Lock()
	if _, ok := g.roster[connID]; ok {
		g.mu.Unlock()
		return fmt.Errorf("admit %d: %w", connID, world.ErrDuplicateEntity)
	}
	if len(g.roster) >= g.cfg.MaxPlayers {
		g.mu.Unlock()
		return ErrServerFull
	}
	g.roster[connID] = &member{name: name}
	g.mu.Unlock()

	if err := g.Enqueue(Join(connID, name)); err != nil {
		g.mu.Lock()
		delete(g.roster, connID)
		g.mu.Unlock()
		return err
	}
	return nil
}

// Release frees the slot of a disconnected player and queues removal of
// its soldier.
func (g *Instance) Release(connID int) {
	g.mu.Lock()
	delete(g.roster, connID)
	g.mu.Unlock()

	g.inputMu.Lock()
	delete(g.inputs, connID)
	g.inputMu.Unlock()

	if err := g.Enqueue(Leave(connID)); err != nil {
		g.log.Warn("leave event lost", "conn", connID, "error", err)
	}
}

// Enqueue hands an event to the tick loop.
func (g *Instance) Enqueue(e Event) error {
	if err := g.events.Push(e); err != nil {
		return fmt.Errorf("enqueue %s: %w", e.Kind, err)
	}
	return nil
}

// QueueDepth returns how many events wait for the next tick.
func (g *Instance) QueueDepth() int {
	return g.events.Len()
}

// SubmitInput stores the latest control snapshot of a player. Only the last
// snapshot received before a tick is applied.
func (g *Instance) SubmitInput(connID int, c core.Controls) {
	g.inputMu.Lock()
	g.inputs[connID] = c
	g.inputMu.Unlock()
}

// PlayerName returns the name a connection joined with.
func (g *Instance) PlayerName(connID int) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.roster[connID]
	if !ok {
		return "", false
	}
	return m.name, true
}

// Summary is the discovery answer for this server.
func (g *Instance) Summary() protocol.Summary {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return protocol.Summary{
		Num:        len(g.roster),
		Max:        g.cfg.MaxPlayers,
		ServerName: g.cfg.ServerName,
	}
}

// DetailedSummary reports team sizes for the team selection screen.
func (g *Instance) DetailedSummary() protocol.DetailedSummary {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var red, blue int
	for _, m := range g.roster {
		if !m.picked {
			continue
		}
		switch m.team {
		case core.TeamRed:
			red++
		case core.TeamBlue:
			blue++
		}
	}
	return protocol.NewDetailedSummary(red, blue, g.cfg.MaxPlayers)
}

// StartCountdown moves the lobby into a countdown of the given length.
func (g *Instance) StartCountdown(seconds int) error {
	if seconds < 0 {
		seconds = 0
	}
	if err := g.transition(StateCountdown); err != nil {
		return err
	}
	g.mu.Lock()
	g.countdownTicks = seconds * g.cfg.TickRate
	g.mu.Unlock()

	g.bcast.BroadcastReliable(protocol.GameCountdown{Seconds: seconds})
	return nil
}

// EndRound stops the simulation.
func (g *Instance) EndRound() error {
	return g.transition(StateRoundOver)
}

// Restart returns a finished round to the lobby with everyone healed and
// back at their spawns.
func (g *Instance) Restart() error {
	if err := g.transition(StateLobby); err != nil {
		return err
	}
	g.respawnAll()
	return nil
}

// Tick runs one server step: inputs, the world update while playing, queued
// events, then the periodic broadcast. A panic is reported and returned as
// ErrTickPanic; the instance stays usable.
func (g *Instance) Tick(dt float32) (err error) {
	defer g.recoverTick(&err)

	start := time.Now()
	state := g.State()

	g.applyInputs()

	if state == StatePlaying {
		res := g.world.Update(dt)
		g.recordTick(res, start)
	}

	g.drain()

	switch state {
	case StateCountdown:
		g.stepCountdown()
	case StatePlaying:
		g.frameCount++
		if g.frameCount >= g.cfg.BroadcastEvery {
			g.frameCount = 0
			g.broadcast(start)
		}
		g.checkRoundOver()
	}

	g.rec.RecordTickStats(core.TickStats{
		Time:        start,
		Tick:        g.world.Tick(),
		Duration:    time.Since(start),
		Soldiers:    g.world.SoldierCount(),
		Projectiles: g.world.ProjectileCount(),
		QueueDepth:  g.events.Len(),
		State:       state.String(),
	})
	return nil
}

func (g *Instance) recoverTick(err *error) {
	r := recover()
	if r == nil {
		return
	}
	g.log.Error("tick panic", "panic", r, "tick", g.world.Tick())

	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("server", g.cfg.ServerName)
		scope.SetTag("tick", fmt.Sprint(g.world.Tick()))
	})
	hub.Recover(r)

	*err = fmt.Errorf("%w: %v", ErrTickPanic, r)
}

func (g *Instance) applyInputs() {
	g.inputMu.Lock()
	pending := g.inputs
	g.inputs = make(map[int]core.Controls, len(pending))
	g.inputMu.Unlock()

	var early map[int]core.Controls
	for id, c := range pending {
		err := g.world.SetControls(id, c)
		if errors.Is(err, world.ErrUnknownEntity) {
			if early == nil {
				early = make(map[int]core.Controls)
			}
			early[id] = c
			continue
		}
		if err != nil {
			g.log.Debug("input dropped", "conn", id, "error", err)
		}
	}
	if early != nil {
		g.carryInputs(early)
	}
}

// carryInputs keeps input that arrived before its player's join was applied,
// unless newer input replaced it.
func (g *Instance) carryInputs(early map[int]core.Controls) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	g.inputMu.Lock()
	defer g.inputMu.Unlock()
	for id, c := range early {
		if _, admitted := g.roster[id]; !admitted {
			g.log.Debug("input dropped", "conn", id, "error", world.ErrUnknownEntity)
			continue
		}
		if _, newer := g.inputs[id]; !newer {
			g.inputs[id] = c
		}
	}
}

func (g *Instance) drain() {
	for _, e := range g.events.Drain() {
		g.apply(e)
	}
}

func (g *Instance) apply(e Event) {
	switch e.Kind {
	case EventJoin:
		g.join(e)
	case EventLeave:
		if err := g.world.RemoveSoldier(e.ConnID); err != nil {
			g.log.Debug("leave for unknown soldier", "conn", e.ConnID, "error", err)
		}
	case EventTeamPick:
		g.pickTeam(e)
	case EventClassPick:
		s, err := g.world.Soldier(e.ConnID)
		if err != nil {
			g.log.Warn("class pick dropped", "conn", e.ConnID, "error", err)
			return
		}
		s.Class = e.Class
	case EventChat:
		g.rec.RecordChat(core.ChatEvent{
			Time:    e.Received,
			Tick:    g.world.Tick(),
			ConnID:  e.ConnID,
			Name:    e.Name,
			Message: e.Message,
		})
	default:
		g.log.Warn("unknown event", "kind", e.Kind.String(), "conn", e.ConnID)
	}
}

func (g *Instance) join(e Event) {
	s := entity.NewSoldier(e.ConnID, 0, 0, core.TeamRed, e.Name)
	if err := g.world.AddSoldier(s); err != nil {
		g.log.Warn("join dropped", "conn", e.ConnID, "error", err)
		return
	}
	g.rec.RecordPlayer(core.Player{
		ConnID:   e.ConnID,
		Name:     e.Name,
		Team:     s.Team,
		Class:    s.Class,
		JoinTick: g.world.Tick(),
		JoinTime: e.Received,
	})
	g.log.Info("player joined", "conn", e.ConnID, "name", e.Name)
}

func (g *Instance) pickTeam(e Event) {
	if !e.Team.Valid() {
		g.log.Warn("team pick dropped", "conn", e.ConnID, "team", int(e.Team))
		return
	}
	s, err := g.world.Soldier(e.ConnID)
	if err != nil {
		g.log.Warn("team pick dropped", "conn", e.ConnID, "error", err)
		return
	}
	s.Team = e.Team

	spawn, err := g.world.SpawnSoldier(e.ConnID)
	if errors.Is(err, world.ErrWorldNotReady) {
		g.requeue(e)
		return
	}
	if err != nil {
		g.log.Warn("team pick dropped", "conn", e.ConnID, "error", err)
		return
	}

	g.mu.Lock()
	if m, ok := g.roster[e.ConnID]; ok {
		m.team = e.Team
		m.picked = true
	}
	g.mu.Unlock()

	g.rec.RecordTeamPick(core.TeamPickEvent{
		Time:   e.Received,
		Tick:   g.world.Tick(),
		ConnID: e.ConnID,
		Team:   e.Team,
		SpawnX: spawn.X,
		SpawnY: spawn.Y,
	})
}

func (g *Instance) requeue(e Event) {
	e.attempts++
	if e.attempts > g.cfg.MaxRequeue {
		g.log.Warn("event dropped after retries", "kind", e.Kind.String(), "conn", e.ConnID, "attempts", e.attempts)
		return
	}
	if err := g.events.Push(e); err != nil {
		g.log.Warn("requeue failed", "kind", e.Kind.String(), "conn", e.ConnID, "error", err)
	}
}

func (g *Instance) stepCountdown() {
	g.mu.Lock()
	g.countdownTicks--
	left := g.countdownTicks
	g.mu.Unlock()

	if left > 0 {
		if left%g.cfg.TickRate == 0 {
			g.bcast.BroadcastReliable(protocol.GameCountdown{Seconds: left / g.cfg.TickRate})
		}
		return
	}

	if err := g.transition(StatePlaying); err != nil {
		g.log.Warn("countdown finished in wrong state", "error", err)
		return
	}
	g.frameCount = 0
	g.respawnAll()
	g.bcast.BroadcastReliable(protocol.GameCountdown{Seconds: 0})
}

// respawnAll heals every soldier and moves it to its team spawn.
func (g *Instance) respawnAll() {
	g.world.EachSoldier(func(s *entity.Soldier) {
		s.Heal(s.MaxHealth())
		s.VX, s.VY = 0, 0
		s.ResetCollisions()
		if _, err := g.world.SpawnSoldier(s.ID); err != nil {
			g.log.Debug("respawn skipped", "conn", s.ID, "error", err)
		}
	})
}

func (g *Instance) broadcast(now time.Time) {
	snap := g.world.Snapshot()
	g.bcast.BroadcastUnreliable(snap.PlayerPositions())
	g.bcast.BroadcastUnreliable(snap.ProjectilePositions())
	g.bcast.BroadcastUnreliable(snap.FlagPositions())

	for _, s := range snap.Soldiers {
		g.rec.RecordSoldierState(core.SoldierState{
			ConnID:    s.ID,
			Time:      now,
			Tick:      snap.Tick,
			X:         s.Area.X,
			Y:         s.Area.Y,
			VX:        s.VX,
			VY:        s.VY,
			Health:    s.Health,
			Team:      s.Team,
			Animation: s.AnimationID,
			Grounded:  s.CanJump,
		})
	}
}

func (g *Instance) recordTick(res world.TickResult, now time.Time) {
	hitBy := make(map[uint]world.Hit, len(res.Hits))
	for _, h := range res.Hits {
		hitBy[h.ProjectileID] = h
		if h.MapHit() {
			continue
		}
		g.rec.RecordHit(core.HitEvent{
			Time:          now,
			Tick:          res.Tick,
			ShooterConnID: h.Shooter,
			VictimConnID:  h.Victim,
			Damage:        h.Damage,
			HealthAfter:   h.HealthAfter,
			X:             h.X,
			Y:             h.Y,
		})
	}

	for _, p := range res.Removed {
		ev := core.ProjectileEvent{
			ID:         p.ID,
			OwnerID:    p.Owner,
			Team:       p.Team,
			Time:       now,
			SpawnTick:  p.SpawnTick,
			EndTick:    res.Tick,
			Angle:      p.Angle,
			Speed:      p.Speed,
			Trajectory: p.Trail(),
		}
		if h, ok := hitBy[p.ID]; ok {
			if h.MapHit() {
				ev.HitMap = true
			} else {
				victim := h.Victim
				ev.HitConnID = &victim
			}
		}
		g.rec.RecordProjectile(ev)
	}
}

// checkRoundOver ends the round once a team that had soldiers has none
// left standing while the other team still does.
func (g *Instance) checkRoundOver() {
	red, blue := g.world.TeamCounts()
	if red == 0 || blue == 0 {
		return
	}
	redAlive, blueAlive := g.world.Alive(core.TeamRed), g.world.Alive(core.TeamBlue)
	if redAlive > 0 && blueAlive > 0 {
		return
	}
	winner := core.TeamRed
	if redAlive == 0 {
		winner = core.TeamBlue
	}
	if err := g.EndRound(); err != nil {
		g.log.Warn("round end failed", "error", err)
		return
	}
	g.bcast.BroadcastReliable(protocol.ServerChat{Message: fmt.Sprintf("%s team wins", winner)})
}
