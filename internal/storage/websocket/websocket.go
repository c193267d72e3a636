// Package websocket streams a round live to a spectator endpoint. Every
// record becomes one JSON envelope; start_round and end_round wait for an
// ack so the receiving side can open and close its replay file.
package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dumfing/skirmish/internal/cache"
	"github.com/dumfing/skirmish/internal/logging"
	"github.com/dumfing/skirmish/pkg/core"
	"github.com/dumfing/skirmish/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn    *connection
	cfg     Config
	players *cache.PlayerCache
}

// New creates a new WebSocket storage backend. logManager may be nil.
func New(cfg Config, logManager *logging.SlogManager) *Backend {
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}
	return &Backend{
		conn:    newConnection(logManager.Logger().With("component", "spectator")),
		cfg:     cfg,
		players: cache.NewPlayerCache(),
	}
}

// Init connects to the spectator endpoint.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the spectator endpoint.
func (b *Backend) Close() error {
	return b.conn.close()
}

// Dropped is the number of envelopes discarded because the send buffer was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope queues the envelope, waiting for an ack when the type needs one.
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	if streaming.NeedsAck(msgType) {
		return b.conn.sendAndWait(data, msgType, ackTimeout)
	}
	b.conn.send(data)
	return nil
}

// StartRound sends round and level data and waits for the ack.
func (b *Backend) StartRound(r *core.Round, l *core.Level) error {
	b.players.Reset()
	if r.StartTime.IsZero() {
		r.StartTime = time.Now()
	}
	data, err := marshalEnvelope(streaming.TypeStartRound, streaming.StartRoundPayload{Round: r, Level: l})
	if err != nil {
		return err
	}
	b.conn.setRoundStart(data)
	return b.conn.sendAndWait(data, streaming.TypeStartRound, ackTimeout)
}

// EndRound sends end_round and waits for the ack.
func (b *Backend) EndRound() error {
	err := b.sendEnvelope(streaming.TypeEndRound, nil)
	b.conn.setRoundStart(nil)
	return err
}

// AddPlayer assigns the player id and announces new players. Rejoins only
// refresh the id.
func (b *Backend) AddPlayer(p *core.Player) error {
	if !b.players.Register(p) {
		return nil
	}
	return b.sendEnvelope(streaming.TypeAddPlayer, p)
}

func (b *Backend) RecordSoldierState(s *core.SoldierState) error {
	return b.sendEnvelope(streaming.TypeSoldierState, s)
}

func (b *Backend) RecordProjectileEvent(e *core.ProjectileEvent) error {
	return b.sendEnvelope(streaming.TypeProjectileEvent, e)
}

func (b *Backend) RecordHitEvent(e *core.HitEvent) error {
	return b.sendEnvelope(streaming.TypeHitEvent, e)
}

func (b *Backend) RecordChatEvent(e *core.ChatEvent) error {
	return b.sendEnvelope(streaming.TypeChatEvent, e)
}

func (b *Backend) RecordTeamPick(e *core.TeamPickEvent) error {
	b.players.SetTeam(e.ConnID, e.Team)
	return b.sendEnvelope(streaming.TypeTeamPick, e)
}

func (b *Backend) RecordTickStats(s *core.TickStats) error {
	return b.sendEnvelope(streaming.TypeTickStats, s)
}
