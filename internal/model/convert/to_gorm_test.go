package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dumfing/skirmish/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXYToPoint(t *testing.T) {
	pt := xyToPoint(12.5, 3)

	coord, ok := pt.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 12.5, coord.XY.X)
	assert.Equal(t, 3.0, coord.XY.Y)
}

func TestTrajectoryToLineString(t *testing.T) {
	g := trajectoryToLineString([][2]float32{{1, 2}, {3, 2}, {5, 2.5}})

	ls, ok := g.AsLineString()
	require.True(t, ok)
	seq := ls.Coordinates()
	require.Equal(t, 3, seq.Length())
	assert.Equal(t, 1.0, seq.GetXY(0).X)
	assert.Equal(t, 5.0, seq.GetXY(2).X)
	assert.Equal(t, 2.5, seq.GetXY(2).Y)
}

func TestTrajectoryToLineString_TooShort(t *testing.T) {
	assert.True(t, trajectoryToLineString(nil).IsEmpty())
	assert.True(t, trajectoryToLineString([][2]float32{{1, 1}}).IsEmpty())
}

func TestChecksumString(t *testing.T) {
	assert.Equal(t, "0000000000000abc", ChecksumString(0xabc))
	assert.Len(t, ChecksumString(^uint64(0)), 16)
}

func TestCoreToLevel(t *testing.T) {
	l := CoreToLevel(core.Level{
		Name:      "Fort Hill",
		Width:     64,
		Height:    32,
		Checksum:  0xbeef,
		RedSpawn:  core.GridPoint{X: 2, Y: 3},
		BlueSpawn: core.GridPoint{X: 60, Y: 3},
	})

	assert.Equal(t, "Fort Hill", l.Name)
	assert.Equal(t, "000000000000beef", l.Checksum)
	coord, ok := l.BlueSpawn.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 60.0, coord.XY.X)
}

func TestCoreToRound(t *testing.T) {
	start := time.Date(2026, 5, 3, 18, 30, 0, 0, time.UTC)
	r := CoreToRound(core.Round{
		ServerName: "arena",
		StartTime:  start,
		TickRate:   60,
		MaxPlayers: 10,
		Tag:        "ctf",
	}, 7, map[string]any{"friendlyFire": false})

	assert.Equal(t, uint(7), r.LevelID)
	assert.Equal(t, start, r.StartTime)
	assert.False(t, r.EndTime.Valid)

	var settings map[string]any
	require.NoError(t, json.Unmarshal(r.Settings, &settings))
	assert.Equal(t, false, settings["friendlyFire"])
}

func TestCoreToRound_NilSettings(t *testing.T) {
	r := CoreToRound(core.Round{}, 1, nil)
	assert.Equal(t, "{}", string(r.Settings))
}

func TestCoreToProjectileEvent(t *testing.T) {
	victim := 4
	e := CoreToProjectileEvent(core.ProjectileEvent{
		ID:         9,
		OwnerID:    2,
		Team:       core.TeamBlue,
		SpawnTick:  10,
		EndTick:    14,
		Angle:      1.5,
		Speed:      2,
		Trajectory: [][2]float32{{1, 1}, {3, 1}},
		HitConnID:  &victim,
	})

	assert.Equal(t, uint(9), e.ProjectileID)
	assert.Equal(t, "blue", e.Team)
	assert.True(t, e.HitConnID.Valid)
	assert.Equal(t, int32(4), e.HitConnID.Int32)
	assert.False(t, e.Trajectory.IsEmpty())
}

func TestCoreToProjectileEvent_NoHit(t *testing.T) {
	e := CoreToProjectileEvent(core.ProjectileEvent{HitMap: true})
	assert.False(t, e.HitConnID.Valid)
	assert.True(t, e.HitMap)
	assert.True(t, e.Trajectory.IsEmpty())
}

func TestCoreToTickStat(t *testing.T) {
	s := CoreToTickStat(core.TickStats{Tick: 30, Duration: 1500 * time.Microsecond, State: "playing"})
	assert.InDelta(t, 1.5, s.DurationMs, 0.001)
	assert.Equal(t, "playing", s.State)
}

func TestCoreToTeamPick(t *testing.T) {
	p := CoreToTeamPick(core.TeamPickEvent{ConnID: 3, Team: core.TeamRed, SpawnX: 2, SpawnY: 5})
	assert.Equal(t, "red", p.Team)
	coord, ok := p.Spawn.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 5.0, coord.XY.Y)
}
