// Package streaming defines the envelope sent to live spectators of a round.
package streaming

import (
	"encoding/json"

	"github.com/dumfing/skirmish/pkg/core"
)

// Message type constants of the spectator stream.
const (
	TypeStartRound      = "start_round"
	TypeEndRound        = "end_round"
	TypeAddPlayer       = "add_player"
	TypeSoldierState    = "soldier_state"
	TypeProjectileEvent = "projectile_event"
	TypeHitEvent        = "hit_event"
	TypeChatEvent       = "chat_event"
	TypeTeamPick        = "team_pick"
	TypeTickStats       = "tick_stats"
)

// TypeAck is the only message type the receiving side sends back.
const TypeAck = "ack"

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartRoundPayload carries round and level data.
type StartRoundPayload struct {
	Round *core.Round `json:"round"`
	Level *core.Level `json:"level"`
}

// NeedsAck reports whether the sender waits for an ack of msgType.
func NeedsAck(msgType string) bool {
	return msgType == TypeStartRound || msgType == TypeEndRound
}
