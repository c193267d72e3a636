// Package storage defines what a round recorder writes to. Backends live in
// the subpackages.
package storage

import "github.com/dumfing/skirmish/pkg/core"

// Backend receives one round at a time. Records arrive between StartRound
// and EndRound; calls for the same record kind come in tick order.
type Backend interface {
	Init() error
	Close() error

	StartRound(round *core.Round, level *core.Level) error
	EndRound() error

	// AddPlayer sets p.ID.
	AddPlayer(p *core.Player) error
	RecordTeamPick(e *core.TeamPickEvent) error

	RecordSoldierState(s *core.SoldierState) error
	RecordProjectileEvent(e *core.ProjectileEvent) error
	RecordHitEvent(e *core.HitEvent) error
	RecordChatEvent(e *core.ChatEvent) error
	RecordTickStats(s *core.TickStats) error
}

// Uploadable is implemented by backends that leave a replay file behind
// for the replay site.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
