package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumfing/skirmish/pkg/core"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(Config{}, zerolog.Nop(), filepath.Join(t.TempDir(), "backup.lp.gz"))
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestConnect_UnreachableFallsBackToBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "backup.lp.gz")
	m := NewManager(Config{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "skirmish-metrics",
	}, zerolog.Nop(), backup)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)
	require.NotNil(t, m.BackupWriter)

	require.NoError(t, m.WriteTickStats("arena", core.TickStats{
		Time:        at,
		Tick:        42,
		Duration:    2 * time.Millisecond,
		Soldiers:    3,
		Projectiles: 5,
		State:       "PLAYING",
	}))
	require.NoError(t, m.WriteHit("arena", 9, core.HitEvent{Time: at, ShooterConnID: 1, VictimConnID: 2, Damage: 25, HealthAfter: 75}))
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "tick,server=arena,state=PLAYING")
	assert.Contains(t, out, "tick_duration_ms=2")
	assert.Contains(t, out, "hit,round=9,server=arena")
	assert.Contains(t, out, "damage=25i")
}

func TestWritePoint_NoBackend(t *testing.T) {
	m := NewManager(Config{Enabled: true}, zerolog.Nop(), "")
	err := m.WritePoint(BucketServer, TickPoint("arena", core.TickStats{Time: at}))
	assert.Error(t, err)
}

func TestTickPoint(t *testing.T) {
	p := TickPoint("arena", core.TickStats{
		Time:        at,
		Tick:        7,
		Duration:    1500 * time.Microsecond,
		Soldiers:    2,
		Projectiles: 1,
		QueueDepth:  4,
		State:       "LOBBY",
	})

	line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
	assert.Contains(t, line, "tick,server=arena,state=LOBBY ")
	assert.Contains(t, line, "tick_duration_ms=1.5")
	assert.Contains(t, line, "soldiers=2i")
	assert.Contains(t, line, "queue_depth=4i")
	assert.Contains(t, line, "tick=7i")
}
