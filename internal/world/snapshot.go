package world

import (
	"github.com/dumfing/skirmish/pkg/core"
	"github.com/dumfing/skirmish/pkg/protocol"
)

// SoldierView is a read-only copy of one soldier.
type SoldierView struct {
	ID          int
	Name        string
	Area        core.Rect
	VX          float32
	VY          float32
	Team        core.Team
	Class       core.Class
	Health      int
	MaxHealth   int
	CanJump     bool
	Facing      core.Facing
	AnimationID core.Animation
}

// ProjectileView is a read-only copy of one projectile.
type ProjectileView struct {
	ID        uint
	Owner     int
	X         float32
	Y         float32
	Angle     float32
	Team      core.Team
	TimeAlive int
}

// Snapshot is the full observable state of a world after a tick. It shares
// nothing with the world.
type Snapshot struct {
	Tick        uint
	Soldiers    []SoldierView
	Projectiles []ProjectileView
	Flags       []Flag
}

// Snapshot copies the current state.
func (w *World) Snapshot() Snapshot {
	snap := Snapshot{
		Tick:        w.tick,
		Soldiers:    make([]SoldierView, 0, w.soldiers.Len()),
		Projectiles: make([]ProjectileView, 0, len(w.projectiles)),
		Flags:       w.Flags(),
	}
	for el := w.soldiers.Front(); el != nil; el = el.Next() {
		s := el.Value
		snap.Soldiers = append(snap.Soldiers, SoldierView{
			ID:          s.ID,
			Name:        s.Name,
			Area:        s.Area,
			VX:          s.VX,
			VY:          s.VY,
			Team:        s.Team,
			Class:       s.Class,
			Health:      s.Health(),
			MaxHealth:   s.MaxHealth(),
			CanJump:     s.CanJump,
			Facing:      s.Facing,
			AnimationID: s.AnimationID,
		})
	}
	for _, p := range w.projectiles {
		snap.Projectiles = append(snap.Projectiles, ProjectileView{
			ID:        p.ID,
			Owner:     p.Owner,
			X:         p.X,
			Y:         p.Y,
			Angle:     p.Angle,
			Team:      p.Team,
			TimeAlive: p.TimeAlive,
		})
	}
	return snap
}

// PlayerPositions builds the soldier broadcast.
func (s Snapshot) PlayerPositions() protocol.PlayerPositions {
	out := protocol.PlayerPositions{Tick: s.Tick, Players: make([]protocol.PlayerInfo, 0, len(s.Soldiers))}
	for _, v := range s.Soldiers {
		out.Players = append(out.Players, protocol.PlayerInfo{
			ID:     v.ID,
			Rect:   v.Area,
			Team:   v.Team,
			Name:   v.Name,
			Health: v.Health,
		})
	}
	return out
}

// ProjectilePositions builds the projectile broadcast.
func (s Snapshot) ProjectilePositions() protocol.ProjectilePositions {
	out := protocol.ProjectilePositions{Tick: s.Tick, Projectiles: make([]protocol.ProjectileInfo, 0, len(s.Projectiles))}
	for _, p := range s.Projectiles {
		out.Projectiles = append(out.Projectiles, protocol.ProjectileInfo{X: p.X, Y: p.Y, Angle: p.Angle, Team: p.Team})
	}
	return out
}

// FlagPositions builds the flag broadcast.
func (s Snapshot) FlagPositions() protocol.FlagPositions {
	out := protocol.FlagPositions{Tick: s.Tick, Flags: make([]protocol.FlagInfo, 0, len(s.Flags))}
	for _, f := range s.Flags {
		out.Flags = append(out.Flags, protocol.FlagInfo{X: f.X, Y: f.Y, Team: f.Team})
	}
	return out
}
