package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dumfing/skirmish/pkg/core"
)

// RoundExport is the root JSON structure of a replay file
type RoundExport struct {
	ServerName    string           `json:"serverName"`
	ServerVersion string           `json:"serverVersion"`
	Tag           string           `json:"tag"`
	TickRate      int              `json:"tickRate"`
	StartTime     time.Time        `json:"startTime"`
	EndTick       uint             `json:"endTick"`
	Level         LevelJSON        `json:"level"`
	Players       []PlayerJSON     `json:"players"`
	Projectiles   []ProjectileJSON `json:"projectiles"`
	Events        [][]any          `json:"events"`
}

// LevelJSON describes the map.
type LevelJSON struct {
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Checksum  string `json:"checksum"`
	RedSpawn  [2]int `json:"redSpawn"`
	BlueSpawn [2]int `json:"blueSpawn"`
}

// PlayerJSON is one player and its samples.
// Positions: [tick, x, y, health, animation]
type PlayerJSON struct {
	ID        uint    `json:"id"`
	ConnID    int     `json:"connId"`
	Name      string  `json:"name"`
	Team      string  `json:"team"`
	Class     string  `json:"class"`
	JoinTick  uint    `json:"joinTick"`
	Positions [][]any `json:"positions"`
}

// ProjectileJSON is one projectile flight.
type ProjectileJSON struct {
	ID         uint         `json:"id"`
	Owner      int          `json:"owner"`
	Team       string       `json:"team"`
	SpawnTick  uint         `json:"spawnTick"`
	EndTick    uint         `json:"endTick"`
	Angle      float32      `json:"angle"`
	Trajectory [][2]float32 `json:"trajectory"`
	HitConnID  *int         `json:"hit,omitempty"`
	HitMap     bool         `json:"hitMap,omitempty"`
}

// exportJSON writes the round data to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	levelName := "unknown"
	if b.level != nil {
		levelName = b.level.Name
	}
	name := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(levelName)
	timestamp := b.round.StartTime.Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s.json", name, timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	write := b.writeJSON
	if b.cfg.CompressOutput {
		write = b.writeGzipJSON
	}
	if err := write(outputPath, export); err != nil {
		return err
	}

	var duration float64
	if b.round.TickRate > 0 {
		duration = float64(export.EndTick) / float64(b.round.TickRate)
	}
	b.lastExportPath = outputPath
	b.lastExportMetadata = core.UploadMetadata{
		LevelName:     levelName,
		ServerName:    b.round.ServerName,
		RoundDuration: duration,
		Tag:           b.round.Tag,
	}
	return nil
}

func (b *Backend) buildExport() RoundExport {
	export := RoundExport{
		ServerName:    b.round.ServerName,
		ServerVersion: b.round.ServerVersion,
		Tag:           b.round.Tag,
		TickRate:      b.round.TickRate,
		StartTime:     b.round.StartTime,
		EndTick:       b.endTick,
		Players:       make([]PlayerJSON, 0, len(b.order)),
		Projectiles:   make([]ProjectileJSON, 0, len(b.projectiles)),
		Events:        make([][]any, 0),
	}
	if b.level != nil {
		export.Level = LevelJSON{
			Name:      b.level.Name,
			Width:     b.level.Width,
			Height:    b.level.Height,
			Checksum:  fmt.Sprintf("%016x", b.level.Checksum),
			RedSpawn:  [2]int{b.level.RedSpawn.X, b.level.RedSpawn.Y},
			BlueSpawn: [2]int{b.level.BlueSpawn.X, b.level.BlueSpawn.Y},
		}
	}

	for _, connID := range b.order {
		record := b.players[connID]
		p := PlayerJSON{
			ID:        record.Player.ID,
			ConnID:    record.Player.ConnID,
			Name:      record.Player.Name,
			Team:      record.Player.Team.String(),
			Class:     record.Player.Class.String(),
			JoinTick:  record.Player.JoinTick,
			Positions: make([][]any, 0, len(record.States)),
		}
		for _, s := range record.States {
			p.Positions = append(p.Positions, []any{s.Tick, s.X, s.Y, s.Health, int(s.Animation)})
		}
		export.Players = append(export.Players, p)
	}

	for _, e := range b.projectiles {
		export.Projectiles = append(export.Projectiles, ProjectileJSON{
			ID:         e.ID,
			Owner:      e.OwnerID,
			Team:       e.Team.String(),
			SpawnTick:  e.SpawnTick,
			EndTick:    e.EndTick,
			Angle:      e.Angle,
			Trajectory: e.Trajectory,
			HitConnID:  e.HitConnID,
			HitMap:     e.HitMap,
		})
	}

	// [tick, "hit", shooter, victim, damage, healthAfter]
	for _, e := range b.hits {
		export.Events = append(export.Events, []any{e.Tick, "hit", e.ShooterConnID, e.VictimConnID, e.Damage, e.HealthAfter})
	}
	// [tick, "chat", connID, name, message]
	for _, e := range b.chats {
		export.Events = append(export.Events, []any{e.Tick, "chat", e.ConnID, e.Name, e.Message})
	}
	// [tick, "team", connID, team]
	for _, e := range b.teamPicks {
		export.Events = append(export.Events, []any{e.Tick, "team", e.ConnID, e.Team.String()})
	}
	sort.SliceStable(export.Events, func(i, j int) bool {
		return export.Events[i][0].(uint) < export.Events[j][0].(uint)
	})

	return export
}

func (b *Backend) writeJSON(path string, data RoundExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func (b *Backend) writeGzipJSON(path string, data RoundExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}

// GetExportedFilePath returns the path of the last export.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata returns metadata of the last export.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportMetadata
}
