package world

import (
	"github.com/dumfing/skirmish/internal/entity"
	"github.com/dumfing/skirmish/pkg/core"
)

// Hit is a projectile striking a soldier or the map during one tick. Victim
// is -1 for a map hit.
type Hit struct {
	ProjectileID uint
	Shooter      int
	Victim       int
	Damage       int
	HealthAfter  int
	X            float32
	Y            float32
}

// MapHit reports whether the projectile hit level geometry.
func (h Hit) MapHit() bool {
	return h.Victim < 0
}

// TickResult describes what changed during one Update.
type TickResult struct {
	Tick      uint
	Decisions map[int]Decision
	Spawned   []entity.Projectile
	Hits      []Hit
	Removed   []entity.Projectile
}

// Update advances the world one tick: soldiers first, then projectile hits,
// then reaping.
func (w *World) Update(deltaTime float32) TickResult {
	w.tick++
	res := TickResult{
		Tick:      w.tick,
		Decisions: make(map[int]Decision, w.soldiers.Len()),
	}

	for el := w.soldiers.Front(); el != nil; el = el.Next() {
		s := el.Value
		s.Update(deltaTime)

		d := ResolveInput(s, w.physics, w.policy)
		if p := w.apply(s, d); p != nil {
			res.Spawned = append(res.Spawned, *p)
		}
		res.Decisions[s.ID] = d

		w.probe(s)
		s.Move()
	}

	res.Hits = w.detectHits()
	for i := range res.Hits {
		h := &res.Hits[i]
		if h.MapHit() {
			continue
		}
		if victim, ok := w.soldiers.Get(h.Victim); ok {
			h.HealthAfter = victim.Damage(h.Damage)
		}
	}

	res.Removed = w.reap()
	return res
}

// apply writes a decision into the soldier. It returns the projectile
// spawned by a shot, if any.
func (w *World) apply(s *entity.Soldier, d Decision) *entity.Projectile {
	if d.Jumped {
		s.VY = w.physics.JumpPower
		s.CanJump = false
	}

	var spawned *entity.Projectile
	switch d.Action {
	case ActionMoveLeft, ActionMoveRight:
		s.VX = d.VX
		s.Facing = d.Facing
	case ActionShoot:
		spawned = w.shoot(s)
	}

	composite := d.Composite()
	if composite != s.AnimationID {
		s.AnimationTime = 0
	}
	s.AnimationID = composite
	return spawned
}

// shoot spawns a projectile for ranged classes while under the cap. Melee
// classes and a full world make it a silent no-op.
func (w *World) shoot(s *entity.Soldier) *entity.Projectile {
	if !s.Class.Ranged() {
		return nil
	}
	if len(w.projectiles) >= w.physics.ProjectileCap {
		return nil
	}
	w.projectileID++
	p := entity.NewProjectile(s.X(), s.Y(), w.physics.ProjectileSpeed, s.MouseAngle(), s.Team, s.ID)
	p.ID = w.projectileID
	p.SpawnTick = w.tick
	w.projectiles = append(w.projectiles, p)
	return p
}

// probe samples four points around the soldier. Flags only ever latch true
// unless the world resets them first.
func (w *World) probe(s *entity.Soldier) {
	if w.resetFlags {
		s.ResetCollisions()
	}
	x, y := s.X(), s.Y()

	if w.solid(int(x+1), int(y+1)) {
		s.Collisions[entity.CollideRight] = true
	}
	if w.solid(int(x-1), int(y+1)) {
		s.Collisions[entity.CollideLeft] = true
	}
	if w.solid(int(x), int(y+s.Area.Height)) {
		s.Collisions[entity.CollideTop] = true
	}
	if w.solid(int(x), int(y)) {
		s.Collisions[entity.CollideBottom] = true
	}
}

// detectHits advances every projectile and records what it hits. The
// projectile list itself is not modified here.
func (w *World) detectHits() []Hit {
	var hits []Hit
	for _, p := range w.projectiles {
		p.Advance()

		if w.solid(int(p.X), int(p.Y)) {
			p.Collided = true
			hits = append(hits, Hit{ProjectileID: p.ID, Shooter: p.Owner, Victim: -1, X: p.X, Y: p.Y})
			continue
		}

		for el := w.soldiers.Front(); el != nil; el = el.Next() {
			s := el.Value
			if s.ID == p.Owner || !s.Alive() {
				continue
			}
			if s.Team == p.Team && !w.friendlyFire {
				continue
			}
			if !s.Area.Contains(p.X, p.Y) {
				continue
			}
			p.Collided = true
			hits = append(hits, Hit{
				ProjectileID: p.ID,
				Shooter:      p.Owner,
				Victim:       s.ID,
				Damage:       w.physics.ProjectileDamage,
				X:            p.X,
				Y:            p.Y,
			})
			break
		}
	}
	return hits
}

// reap removes expired and collided projectiles, walking backwards so
// removal does not shift what is still to be visited.
func (w *World) reap() []entity.Projectile {
	var removed []entity.Projectile
	for i := len(w.projectiles) - 1; i >= 0; i-- {
		p := w.projectiles[i]
		if !p.Expired(w.physics.MaxLifetime) && !p.Collided {
			continue
		}
		removed = append(removed, *p)
		w.projectiles = append(w.projectiles[:i], w.projectiles[i+1:]...)
	}
	return removed
}

// Projectiles returns copies of the live projectiles in creation order.
func (w *World) Projectiles() []entity.Projectile {
	out := make([]entity.Projectile, len(w.projectiles))
	for i, p := range w.projectiles {
		out[i] = *p
	}
	return out
}

// Flags returns the flags on the map.
func (w *World) Flags() []Flag {
	out := make([]Flag, len(w.flags))
	copy(out, w.flags)
	return out
}

// EachSoldier calls fn for every soldier in insertion order.
func (w *World) EachSoldier(fn func(*entity.Soldier)) {
	for el := w.soldiers.Front(); el != nil; el = el.Next() {
		fn(el.Value)
	}
}

// Alive returns the number of living soldiers on team.
func (w *World) Alive(team core.Team) int {
	n := 0
	for el := w.soldiers.Front(); el != nil; el = el.Next() {
		if el.Value.Team == team && el.Value.Alive() {
			n++
		}
	}
	return n
}
