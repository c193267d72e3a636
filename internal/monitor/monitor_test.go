package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dumfing/skirmish/internal/database"
	"github.com/dumfing/skirmish/internal/model"
	"github.com/dumfing/skirmish/internal/round"
	"github.com/dumfing/skirmish/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecording struct{ active atomic.Bool }

func (f *fakeRecording) Active() bool                     { return f.active.Load() }
func (f *fakeRecording) LastWriteDuration() time.Duration { return 1500 * time.Microsecond }

type fakeQueues struct{}

func (fakeQueues) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{SoldierStates: 12, HitEvents: 2}
}

func TestGetProgramStatus(t *testing.T) {
	rc := round.NewContext()
	rc.SetRound(&core.Round{ID: 7}, &core.Level{Name: "Fort Hill"})
	rc.SetState("PLAYING")

	s := NewService(Dependencies{
		RoundContext: rc,
		Recording:    &fakeRecording{},
		Queues:       fakeQueues{},
		Clients:      func() int { return 4 },
		EventQueue:   func() int { return 1 },
	})

	lines, perf := s.GetProgramStatus(true, true)
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "round=7")
	assert.Contains(t, lines[0], `level="Fort Hill"`)
	assert.Contains(t, lines[0], "state=PLAYING")
	assert.Contains(t, lines[1], `"soldierStates": 12`)

	assert.Equal(t, uint(7), perf.RoundID)
	assert.Equal(t, 4, perf.Clients)
	assert.Equal(t, 1, perf.EventQueue)
	assert.Equal(t, 12, perf.WriteQueueLengths.SoldierStates)
	assert.InDelta(t, 1.5, perf.LastWriteDurationMs, 0.001)
}

func TestGetProgramStatus_NoOptionalDeps(t *testing.T) {
	lines, perf := NewService(Dependencies{}).GetProgramStatus(false, false)
	assert.Len(t, lines, 1)
	assert.Zero(t, perf.RoundID)
	assert.Equal(t, model.WriteQueueLengths{}, perf.WriteQueueLengths)
}

func TestGetProgramStatus_Metrics(t *testing.T) {
	s := NewService(Dependencies{
		Metrics: func(context.Context) (map[string]float64, error) {
			return map[string]float64{"game.ticks": 120, "game.soldiers": 4}, nil
		},
	})
	lines, _ := s.GetProgramStatus(false, false)
	require.Len(t, lines, 2)
	assert.Equal(t, "metrics game.soldiers=4.000 game.ticks=120.000", lines[1])

	s = NewService(Dependencies{
		Metrics: func(context.Context) (map[string]float64, error) { return nil, errors.New("reader shut down") },
	})
	lines, _ = s.GetProgramStatus(false, false)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "reader shut down")

	s = NewService(Dependencies{
		Metrics: func(context.Context) (map[string]float64, error) { return nil, nil },
	})
	lines, _ = s.GetProgramStatus(false, false)
	assert.Len(t, lines, 1)
}

func TestStartStop_WritesStatusAndRows(t *testing.T) {
	dir := t.TempDir()
	db, err := database.GetSqliteDB(filepath.Join(dir, "perf.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.DatabaseModelsSQLite...))
	require.NoError(t, db.Create(&model.Round{ServerName: "arena", Settings: []byte("{}")}).Error)

	rc := round.NewContext()
	rc.SetRound(&core.Round{ID: 1}, &core.Level{Name: "Fort Hill"})
	rec := &fakeRecording{}
	rec.active.Store(true)

	s := NewService(Dependencies{
		DB:           db,
		RoundContext: rc,
		Recording:    rec,
		Queues:       fakeQueues{},
		StatusDir:    dir,
		Interval:     10 * time.Millisecond,
	})
	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool {
		var n int64
		db.Model(&model.ServerPerformance{}).Count(&n)
		return n > 0
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())

	status, err := os.ReadFile(filepath.Join(dir, StatusFileName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(status), "round=1"))
}

func TestStart_BadStatusDir(t *testing.T) {
	s := NewService(Dependencies{StatusDir: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, s.Start())
	assert.False(t, s.IsRunning())
}
