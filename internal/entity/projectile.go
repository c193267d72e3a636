package entity

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/dumfing/skirmish/pkg/core"
)

// Projectile is a straight-flying shot. Angle is in degrees, counter
// clockwise from +x.
type Projectile struct {
	ID        uint
	Owner     int
	Team      core.Team
	X         float32
	Y         float32
	Speed     float32
	Angle     float32
	TimeAlive int
	Collided  bool
	SpawnTick uint

	step  mgl32.Vec2
	trail [][2]float32
}

// NewProjectile creates a projectile with zero age.
func NewProjectile(x, y, speed, angle float32, team core.Team, owner int) *Projectile {
	rad := mgl32.DegToRad(angle)
	dir := mgl32.Vec2{math32.Cos(rad), math32.Sin(rad)}
	return &Projectile{
		Owner: owner,
		Team:  team,
		X:     x,
		Y:     y,
		Speed: speed,
		Angle: angle,
		step:  dir.Mul(speed),
		trail: [][2]float32{{x, y}},
	}
}

// Advance moves one tick along the heading and ages the projectile.
func (p *Projectile) Advance() {
	p.X += p.step[0]
	p.Y += p.step[1]
	p.TimeAlive++
	p.trail = append(p.trail, [2]float32{p.X, p.Y})
}

// Expired reports whether the projectile reached maxLifetime ticks.
func (p *Projectile) Expired(maxLifetime int) bool {
	return p.TimeAlive >= maxLifetime
}

// Trail returns every position the projectile occupied, spawn first.
func (p *Projectile) Trail() [][2]float32 {
	out := make([][2]float32, len(p.trail))
	copy(out, p.trail)
	return out
}
