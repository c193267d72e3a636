package convert

import (
	"strconv"
	"time"

	"github.com/dumfing/skirmish/internal/model"
	"github.com/dumfing/skirmish/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToXY converts a geom.Point back to a world position
func pointToXY(p geom.Point) (float32, float32) {
	coord, ok := p.Coordinates()
	if !ok {
		return 0, 0
	}
	return float32(coord.XY.X), float32(coord.XY.Y)
}

func pointToGrid(p geom.Point) core.GridPoint {
	coord, ok := p.Coordinates()
	if !ok {
		return core.GridPoint{}
	}
	return core.GridPoint{X: int(coord.XY.X), Y: int(coord.XY.Y)}
}

// lineStringToTrajectory converts a LineString geometry to per-tick positions
func lineStringToTrajectory(g geom.Geometry) [][2]float32 {
	if g.IsEmpty() {
		return nil
	}
	ls, ok := g.AsLineString()
	if !ok {
		return nil
	}
	seq := ls.Coordinates()
	out := make([][2]float32, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		pt := seq.GetXY(i)
		out[i] = [2]float32{float32(pt.X), float32(pt.Y)}
	}
	return out
}

func parseTeam(s string) core.Team {
	t, _ := core.ParseTeam(s)
	return t
}

// LevelToCore converts a GORM Level to a core.Level
func LevelToCore(l model.Level) core.Level {
	sum, _ := strconv.ParseUint(l.Checksum, 16, 64)
	return core.Level{
		ID:        l.ID,
		Name:      l.Name,
		Width:     l.Width,
		Height:    l.Height,
		Checksum:  sum,
		RedSpawn:  pointToGrid(l.RedSpawn),
		BlueSpawn: pointToGrid(l.BlueSpawn),
	}
}

// RoundToCore converts a GORM Round to a core.Round.
// The level name is taken from the preloaded Level association.
func RoundToCore(r *model.Round) core.Round {
	return core.Round{
		ID:            r.ID,
		ServerName:    r.ServerName,
		LevelName:     r.Level.Name,
		StartTime:     r.StartTime,
		TickRate:      r.TickRate,
		MaxPlayers:    r.MaxPlayers,
		ServerVersion: r.ServerVersion,
		Tag:           r.Tag,
	}
}

// PlayerToCore converts a GORM Player to a core.Player
func PlayerToCore(p model.Player) core.Player {
	return core.Player{
		ConnID:   p.ConnID,
		Name:     p.Name,
		Team:     parseTeam(p.Team),
		Class:    core.ParseClass(p.Class),
		JoinTick: p.JoinTick,
		JoinTime: p.JoinTime,
	}
}

// SoldierStateToCore converts a GORM SoldierState to a core.SoldierState
func SoldierStateToCore(s model.SoldierState) core.SoldierState {
	x, y := pointToXY(s.Position)
	return core.SoldierState{
		ConnID:    s.ConnID,
		Time:      s.Time,
		Tick:      s.Tick,
		X:         x,
		Y:         y,
		VX:        s.VX,
		VY:        s.VY,
		Health:    s.Health,
		Team:      parseTeam(s.Team),
		Animation: core.Animation(s.Animation),
		Grounded:  s.Grounded,
	}
}

// ProjectileEventToCore converts a GORM ProjectileEvent to a core.ProjectileEvent
func ProjectileEventToCore(p model.ProjectileEvent) core.ProjectileEvent {
	result := core.ProjectileEvent{
		ID:         p.ProjectileID,
		OwnerID:    p.OwnerConnID,
		Team:       parseTeam(p.Team),
		Time:       p.Time,
		SpawnTick:  p.SpawnTick,
		EndTick:    p.EndTick,
		Angle:      p.Angle,
		Speed:      p.Speed,
		Trajectory: lineStringToTrajectory(p.Trajectory),
		HitMap:     p.HitMap,
	}
	if p.HitConnID.Valid {
		id := int(p.HitConnID.Int32)
		result.HitConnID = &id
	}
	return result
}

// HitEventToCore converts a GORM HitEvent to a core.HitEvent
func HitEventToCore(h model.HitEvent) core.HitEvent {
	x, y := pointToXY(h.Position)
	return core.HitEvent{
		Time:          h.Time,
		Tick:          h.Tick,
		ShooterConnID: h.ShooterConnID,
		VictimConnID:  h.VictimConnID,
		Damage:        h.Damage,
		HealthAfter:   h.HealthAfter,
		X:             x,
		Y:             y,
	}
}

// ChatEventToCore converts a GORM ChatEvent to a core.ChatEvent
func ChatEventToCore(c model.ChatEvent) core.ChatEvent {
	return core.ChatEvent{
		Time:    c.Time,
		Tick:    c.Tick,
		ConnID:  c.ConnID,
		Name:    c.Name,
		Message: c.Message,
	}
}

// TeamPickToCore converts a GORM TeamPick to a core.TeamPickEvent
func TeamPickToCore(t model.TeamPick) core.TeamPickEvent {
	spawn := pointToGrid(t.Spawn)
	return core.TeamPickEvent{
		Time:   t.Time,
		Tick:   t.Tick,
		ConnID: t.ConnID,
		Team:   parseTeam(t.Team),
		SpawnX: spawn.X,
		SpawnY: spawn.Y,
	}
}

// TickStatToCore converts a GORM TickStat to a core.TickStats
func TickStatToCore(t model.TickStat) core.TickStats {
	return core.TickStats{
		Time:        t.Time,
		Tick:        t.Tick,
		Duration:    time.Duration(float64(t.DurationMs) * float64(time.Millisecond)),
		Soldiers:    t.Soldiers,
		Projectiles: t.Projectiles,
		QueueDepth:  t.QueueDepth,
		State:       t.State,
	}
}
