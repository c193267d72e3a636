package convert

import (
	"testing"
	"time"

	"github.com/dumfing/skirmish/internal/model"
	"github.com/dumfing/skirmish/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
)

func TestPointToXY_Empty(t *testing.T) {
	x, y := pointToXY(geom.Point{})
	assert.Zero(t, x)
	assert.Zero(t, y)
}

// Round-trip: Core → GORM → Core
func TestLevelRoundTrip(t *testing.T) {
	original := core.Level{
		Name:      "Fort Hill",
		Width:     64,
		Height:    32,
		Checksum:  0xfeedface12345678,
		RedSpawn:  core.GridPoint{X: 2, Y: 3},
		BlueSpawn: core.GridPoint{X: 60, Y: 4},
	}

	rt := LevelToCore(CoreToLevel(original))
	assert.Equal(t, original, rt)
}

func TestPlayerRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	original := core.Player{
		ConnID:   5,
		Name:     "alice",
		Team:     core.TeamBlue,
		Class:    core.ClassArcher,
		JoinTick: 120,
		JoinTime: now,
	}

	rt := PlayerToCore(CoreToPlayer(original))
	assert.Equal(t, original, rt)
}

func TestPlayerToCore_UnknownClass(t *testing.T) {
	p := PlayerToCore(model.Player{Class: "wizard", Team: "green"})
	assert.Equal(t, core.ClassUnassigned, p.Class)
	assert.Equal(t, core.TeamRed, p.Team)
}

func TestSoldierStateRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	original := core.SoldierState{
		ConnID:    2,
		Time:      now,
		Tick:      300,
		X:         10.5,
		Y:         7,
		VX:        2,
		VY:        -1,
		Health:    75,
		Team:      core.TeamBlue,
		Animation: core.Compose(core.AnimWalk, core.FacingRight),
		Grounded:  true,
	}

	rt := SoldierStateToCore(CoreToSoldierState(original))
	assert.Equal(t, original, rt)
}

func TestProjectileEventRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	victim := 3
	original := core.ProjectileEvent{
		ID:         11,
		OwnerID:    1,
		Team:       core.TeamRed,
		Time:       now,
		SpawnTick:  40,
		EndTick:    43,
		Angle:      0.25,
		Speed:      2,
		Trajectory: [][2]float32{{4, 4}, {6, 4.5}, {8, 5}},
		HitConnID:  &victim,
	}

	rt := ProjectileEventToCore(CoreToProjectileEvent(original))
	assert.Equal(t, original.ID, rt.ID)
	assert.Equal(t, original.Trajectory, rt.Trajectory)
	if assert.NotNil(t, rt.HitConnID) {
		assert.Equal(t, victim, *rt.HitConnID)
	}
}

func TestHitEventRoundTrip(t *testing.T) {
	original := core.HitEvent{
		Time:          time.Now().Truncate(time.Millisecond),
		Tick:          50,
		ShooterConnID: 1,
		VictimConnID:  2,
		Damage:        25,
		HealthAfter:   50,
		X:             12,
		Y:             3.5,
	}

	assert.Equal(t, original, HitEventToCore(CoreToHitEvent(original)))
}

func TestChatAndTeamPickRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Millisecond)
	chat := core.ChatEvent{Time: now, Tick: 8, ConnID: 1, Name: "alice", Message: "gl hf"}
	assert.Equal(t, chat, ChatEventToCore(CoreToChatEvent(chat)))

	pick := core.TeamPickEvent{Time: now, Tick: 9, ConnID: 1, Team: core.TeamBlue, SpawnX: 60, SpawnY: 4}
	assert.Equal(t, pick, TeamPickToCore(CoreToTeamPick(pick)))
}

func TestRoundToCore(t *testing.T) {
	r := &model.Round{ServerName: "arena", TickRate: 60, Level: model.Level{Name: "Fort Hill"}}
	r.ID = 3

	c := RoundToCore(r)
	assert.Equal(t, uint(3), c.ID)
	assert.Equal(t, "Fort Hill", c.LevelName)
}

func TestTickStatRoundTrip(t *testing.T) {
	original := core.TickStats{
		Time:        time.Now().Truncate(time.Millisecond),
		Tick:        900,
		Duration:    1500 * time.Microsecond,
		Soldiers:    6,
		Projectiles: 3,
		QueueDepth:  1,
		State:       "PLAYING",
	}

	assert.Equal(t, original, TickStatToCore(CoreToTickStat(original)))
}
