package game

import (
	"github.com/dumfing/skirmish/pkg/core"
	"github.com/dumfing/skirmish/pkg/protocol"
)

// Broadcaster sends messages to every connected client.
type Broadcaster interface {
	// BroadcastUnreliable is best-effort; messages may be dropped.
	BroadcastUnreliable(msg protocol.Message)
	// BroadcastReliable delivers in order or disconnects the peer.
	BroadcastReliable(msg protocol.Message)
}

// Recorder receives what happened during a round. Calls come from the tick
// goroutine and must not block it.
type Recorder interface {
	RecordPlayer(p core.Player)
	RecordSoldierState(s core.SoldierState)
	RecordProjectile(e core.ProjectileEvent)
	RecordHit(e core.HitEvent)
	RecordChat(e core.ChatEvent)
	RecordTeamPick(e core.TeamPickEvent)
	RecordTickStats(s core.TickStats)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordPlayer(core.Player)              {}
func (NopRecorder) RecordSoldierState(core.SoldierState)  {}
func (NopRecorder) RecordProjectile(core.ProjectileEvent) {}
func (NopRecorder) RecordHit(core.HitEvent)               {}
func (NopRecorder) RecordChat(core.ChatEvent)             {}
func (NopRecorder) RecordTeamPick(core.TeamPickEvent)     {}
func (NopRecorder) RecordTickStats(core.TickStats)        {}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastUnreliable(protocol.Message) {}
func (nopBroadcaster) BroadcastReliable(protocol.Message)   {}
