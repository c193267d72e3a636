// Package world runs the shared simulation: soldiers, projectiles and their
// collisions against a level map. A World is owned by one goroutine; it takes
// no locks and hands observers copies through Snapshot.
package world

import (
	"fmt"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dumfing/skirmish/internal/entity"
	"github.com/dumfing/skirmish/internal/levelmap"
	"github.com/dumfing/skirmish/pkg/core"
)

// Option configures a World.
type Option func(*World)

// WithMap sets the level map at construction.
func WithMap(m *levelmap.Map) Option {
	return func(w *World) {
		w.SetMap(m)
	}
}

// WithPhysics overrides the default tuning.
func WithPhysics(p Physics) Option {
	return func(w *World) {
		w.physics = p
	}
}

// WithPriorityPolicy overrides the horizontal action order.
func WithPriorityPolicy(p Policy) Option {
	return func(w *World) {
		w.policy = p
	}
}

// WithResetCollisionFlags clears collision flags before each probe instead
// of letting them latch.
func WithResetCollisionFlags() Option {
	return func(w *World) {
		w.resetFlags = true
	}
}

// WithFriendlyFire lets projectiles hit soldiers of the shooter's team.
func WithFriendlyFire(enabled bool) Option {
	return func(w *World) {
		w.friendlyFire = enabled
	}
}

// Flag is a team flag on the map.
type Flag struct {
	X    float32
	Y    float32
	Team core.Team
}

// World is the simulation state of one round.
type World struct {
	soldiers    *orderedmap.OrderedMap[int, *entity.Soldier]
	projectiles []*entity.Projectile
	flags       []Flag
	level       *levelmap.Map

	physics      Physics
	policy       Policy
	resetFlags   bool
	friendlyFire bool

	tick         uint
	projectileID uint
}

// New creates an empty world.
func New(opts ...Option) *World {
	w := &World{
		soldiers: orderedmap.NewOrderedMap[int, *entity.Soldier](),
		physics:  DefaultPhysics(),
		policy:   DefaultPolicy,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetMap swaps the level and places one flag on each spawn.
func (w *World) SetMap(m *levelmap.Map) {
	w.level = m
	w.flags = nil
	if m == nil {
		return
	}
	for _, team := range []core.Team{core.TeamRed, core.TeamBlue} {
		p := m.Spawn(team)
		w.flags = append(w.flags, Flag{X: float32(p.X), Y: float32(p.Y), Team: team})
	}
}

// Map returns the current level, possibly nil.
func (w *World) Map() *levelmap.Map {
	return w.level
}

func (w *World) Physics() Physics { return w.physics }
func (w *World) Tick() uint       { return w.tick }

// AddSoldier registers s under s.ID.
func (w *World) AddSoldier(s *entity.Soldier) error {
	if _, ok := w.soldiers.Get(s.ID); ok {
		return fmt.Errorf("%w: %d", ErrDuplicateEntity, s.ID)
	}
	w.soldiers.Set(s.ID, s)
	return nil
}

// RemoveSoldier deletes a soldier. Its projectiles stay in flight.
func (w *World) RemoveSoldier(id int) error {
	if !w.soldiers.Delete(id) {
		return fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	return nil
}

// Soldier looks up a soldier by connection id.
func (w *World) Soldier(id int) (*entity.Soldier, error) {
	s, ok := w.soldiers.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	return s, nil
}

// SoldierCount returns the number of soldiers.
func (w *World) SoldierCount() int {
	return w.soldiers.Len()
}

// TeamCounts returns how many soldiers are on each team.
func (w *World) TeamCounts() (red, blue int) {
	for el := w.soldiers.Front(); el != nil; el = el.Next() {
		switch el.Value.Team {
		case core.TeamRed:
			red++
		case core.TeamBlue:
			blue++
		}
	}
	return red, blue
}

// ProjectileCount returns the number of live projectiles.
func (w *World) ProjectileCount() int {
	return len(w.projectiles)
}

// SetControls replaces the input snapshot of a soldier.
func (w *World) SetControls(id int, c core.Controls) error {
	s, err := w.Soldier(id)
	if err != nil {
		return err
	}
	s.SetControls(c)
	return nil
}

// SpawnPoint returns the spawn of team on the current map.
func (w *World) SpawnPoint(team core.Team) (core.GridPoint, error) {
	if w.level == nil {
		return core.GridPoint{}, ErrWorldNotReady
	}
	return w.level.Spawn(team), nil
}

// Teleport sets a soldier's position directly.
func (w *World) Teleport(id int, x, y float32) error {
	s, err := w.Soldier(id)
	if err != nil {
		return err
	}
	s.SetPos(x, y)
	return nil
}

// SpawnSoldier moves a soldier to its team's spawn.
func (w *World) SpawnSoldier(id int) (core.GridPoint, error) {
	s, err := w.Soldier(id)
	if err != nil {
		return core.GridPoint{}, err
	}
	p, err := w.SpawnPoint(s.Team)
	if err != nil {
		return core.GridPoint{}, err
	}
	s.SetPos(float32(p.X), float32(p.Y))
	return p, nil
}

func (w *World) solid(x, y int) bool {
	if w.level == nil {
		return false
	}
	return w.level.Solid(x, y)
}
