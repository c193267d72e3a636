// Package entity holds the per-player and per-projectile simulation state.
// Entities are plain data holders; the world package decides what they do
// each tick.
package entity

import "github.com/dumfing/skirmish/pkg/core"

// Soldier dimensions in world units.
const (
	SoldierWidth  float32 = 1
	SoldierHeight float32 = 2
)

// DefaultHealth is the starting and maximum health of a soldier.
const DefaultHealth = 100

// Collision flag slots. Slot 0 is unused.
const (
	CollideTop    = 1
	CollideBottom = 2
	CollideLeft   = 3
	CollideRight  = 4
)

// Soldier is the simulated combatant of one connection.
type Soldier struct {
	ID    int
	Name  string
	Area  core.Rect
	VX    float32
	VY    float32
	Team  core.Team
	Class core.Class

	CanJump    bool
	Collisions [5]bool

	Facing        core.Facing
	AnimationID   core.Animation
	AnimationTime float32

	health    int
	maxHealth int
	controls  core.Controls
}

// NewSoldier places a soldier with full health and no class.
func NewSoldier(id int, x, y float32, team core.Team, name string) *Soldier {
	return &Soldier{
		ID:        id,
		Name:      name,
		Area:      core.Rect{X: x, Y: y, Width: SoldierWidth, Height: SoldierHeight},
		Team:      team,
		Class:     core.ClassUnassigned,
		health:    DefaultHealth,
		maxHealth: DefaultHealth,
	}
}

// Update advances the animation clock. It never moves the soldier.
func (s *Soldier) Update(deltaTime float32) {
	s.AnimationTime += deltaTime
}

// Move adds velocity to position. Velocities are per tick.
func (s *Soldier) Move() {
	s.Area.X += s.VX
	s.Area.Y += s.VY
}

// SetPos teleports the soldier.
func (s *Soldier) SetPos(x, y float32) {
	s.Area.X = x
	s.Area.Y = y
}

func (s *Soldier) X() float32 { return s.Area.X }
func (s *Soldier) Y() float32 { return s.Area.Y }

// SetControls replaces the whole input snapshot.
func (s *Soldier) SetControls(c core.Controls) {
	s.controls = c
}

// Controls returns a pointer to the live snapshot.
func (s *Soldier) Controls() *core.Controls {
	return &s.controls
}

// MouseAngle is the aim angle in degrees.
func (s *Soldier) MouseAngle() float32 {
	return s.controls.Angle()
}

func (s *Soldier) Health() int    { return s.health }
func (s *Soldier) MaxHealth() int { return s.maxHealth }
func (s *Soldier) Alive() bool    { return s.health > 0 }

// SetMaxHealth changes the cap and clamps current health to it.
func (s *Soldier) SetMaxHealth(n int) {
	if n < 0 {
		n = 0
	}
	s.maxHealth = n
	s.health = clamp(s.health, 0, n)
}

// Damage lowers health by n, never below zero. It returns the health left.
func (s *Soldier) Damage(n int) int {
	if n < 0 {
		n = 0
	}
	s.health = clamp(s.health-n, 0, s.maxHealth)
	return s.health
}

// Heal raises health by n, never above the maximum.
func (s *Soldier) Heal(n int) int {
	if n < 0 {
		n = 0
	}
	s.health = clamp(s.health+n, 0, s.maxHealth)
	return s.health
}

// ResetCollisions clears all directional flags.
func (s *Soldier) ResetCollisions() {
	s.Collisions = [5]bool{}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
