// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dumfing/skirmish/internal/model"
	"github.com/dumfing/skirmish/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// xyToPoint converts a world position to a geom.Point
func xyToPoint(x, y float32) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: float64(x), Y: float64(y)}})
}

// gridToPoint converts a tile coordinate to a geom.Point
func gridToPoint(p core.GridPoint) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: float64(p.X), Y: float64(p.Y)}})
}

// trajectoryToLineString converts per-tick projectile positions to a LineString.
// A line needs at least two distinct vertices, shorter flights are stored empty.
func trajectoryToLineString(t [][2]float32) geom.Geometry {
	if len(t) < 2 {
		return geom.Geometry{}
	}
	coords := make([]float64, 0, len(t)*2)
	for _, pt := range t {
		coords = append(coords, float64(pt[0]), float64(pt[1]))
	}
	seq := geom.NewSequence(coords, geom.DimXY)
	return geom.NewLineString(seq).AsGeometry()
}

// ChecksumString renders a level checksum the way it is stored.
func ChecksumString(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

// CoreToLevel converts a core.Level to a GORM model.Level.
func CoreToLevel(l core.Level) model.Level {
	return model.Level{
		Name:      l.Name,
		Width:     l.Width,
		Height:    l.Height,
		Checksum:  ChecksumString(l.Checksum),
		RedSpawn:  gridToPoint(l.RedSpawn),
		BlueSpawn: gridToPoint(l.BlueSpawn),
	}
}

// CoreToRound converts a core.Round to a GORM model.Round.
// settings is stored verbatim, nil becomes an empty object.
func CoreToRound(r core.Round, levelID uint, settings any) model.Round {
	raw := datatypes.JSON("{}")
	if settings != nil {
		if data, err := json.Marshal(settings); err == nil {
			raw = datatypes.JSON(data)
		}
	}
	return model.Round{
		ServerName:    r.ServerName,
		ServerVersion: r.ServerVersion,
		StartTime:     r.StartTime,
		LevelID:       levelID,
		TickRate:      r.TickRate,
		MaxPlayers:    r.MaxPlayers,
		Tag:           r.Tag,
		Settings:      raw,
	}
}

// CoreToPlayer converts a core.Player to a GORM model.Player.
// core.Player.ConnID forms the composite key together with the round.
func CoreToPlayer(p core.Player) model.Player {
	return model.Player{
		ConnID:   p.ConnID,
		JoinTime: p.JoinTime,
		JoinTick: p.JoinTick,
		Name:     p.Name,
		Team:     p.Team.String(),
		Class:    p.Class.String(),
	}
}

// CoreToSoldierState converts a core.SoldierState to a GORM model.SoldierState.
func CoreToSoldierState(s core.SoldierState) model.SoldierState {
	return model.SoldierState{
		Time:      s.Time,
		ConnID:    s.ConnID,
		Tick:      s.Tick,
		Position:  xyToPoint(s.X, s.Y),
		VX:        s.VX,
		VY:        s.VY,
		Health:    s.Health,
		Team:      s.Team.String(),
		Animation: int(s.Animation),
		Grounded:  s.Grounded,
	}
}

// CoreToProjectileEvent converts a core.ProjectileEvent to a GORM model.ProjectileEvent.
// The trajectory becomes a LineString with one vertex per tick alive.
func CoreToProjectileEvent(e core.ProjectileEvent) model.ProjectileEvent {
	result := model.ProjectileEvent{
		Time:         e.Time,
		ProjectileID: e.ID,
		OwnerConnID:  e.OwnerID,
		Team:         e.Team.String(),
		SpawnTick:    e.SpawnTick,
		EndTick:      e.EndTick,
		Angle:        e.Angle,
		Speed:        e.Speed,
		HitMap:       e.HitMap,
		Trajectory:   trajectoryToLineString(e.Trajectory),
	}
	if e.HitConnID != nil {
		result.HitConnID = sql.NullInt32{Int32: int32(*e.HitConnID), Valid: true}
	}
	return result
}

// CoreToHitEvent converts a core.HitEvent to a GORM model.HitEvent.
func CoreToHitEvent(e core.HitEvent) model.HitEvent {
	return model.HitEvent{
		Time:          e.Time,
		Tick:          e.Tick,
		ShooterConnID: e.ShooterConnID,
		VictimConnID:  e.VictimConnID,
		Damage:        e.Damage,
		HealthAfter:   e.HealthAfter,
		Position:      xyToPoint(e.X, e.Y),
	}
}

// CoreToChatEvent converts a core.ChatEvent to a GORM model.ChatEvent.
func CoreToChatEvent(e core.ChatEvent) model.ChatEvent {
	return model.ChatEvent{
		Time:    e.Time,
		Tick:    e.Tick,
		ConnID:  e.ConnID,
		Name:    e.Name,
		Message: e.Message,
	}
}

// CoreToTeamPick converts a core.TeamPickEvent to a GORM model.TeamPick.
func CoreToTeamPick(e core.TeamPickEvent) model.TeamPick {
	return model.TeamPick{
		Time:   e.Time,
		Tick:   e.Tick,
		ConnID: e.ConnID,
		Team:   e.Team.String(),
		Spawn:  gridToPoint(core.GridPoint{X: e.SpawnX, Y: e.SpawnY}),
	}
}

// CoreToTickStat converts a core.TickStats to a GORM model.TickStat.
func CoreToTickStat(s core.TickStats) model.TickStat {
	return model.TickStat{
		Time:        s.Time,
		Tick:        s.Tick,
		DurationMs:  float32(s.Duration.Microseconds()) / 1000,
		Soldiers:    s.Soldiers,
		Projectiles: s.Projectiles,
		QueueDepth:  s.QueueDepth,
		State:       s.State,
	}
}
