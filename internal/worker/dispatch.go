package worker

import (
	"context"
	"fmt"

	"github.com/dumfing/skirmish/internal/dispatcher"
	"github.com/dumfing/skirmish/pkg/core"
)

// Recording commands.
const (
	CmdPlayer       = ":PLAYER:"
	CmdSoldierState = ":SOLDIER:STATE:"
	CmdProjectile   = ":PROJECTILE:"
	CmdHit          = ":HIT:"
	CmdChat         = ":CHAT:"
	CmdTeamPick     = ":TEAM:PICK:"
	CmdTickStats    = ":TICK:STATS:"
)

// RegisterHandlers registers all recording handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.dispatcher = d

	// Players and team picks - sync (must reach the backend before states)
	d.Register(CmdPlayer, m.handlePlayer, dispatcher.Logged())
	d.Register(CmdTeamPick, m.handleTeamPick, dispatcher.Logged())

	// High-volume samples - buffered
	d.Register(CmdSoldierState, m.handleSoldierState, dispatcher.Buffered(10000), dispatcher.Logged())
	d.Register(CmdTickStats, m.handleTickStats, dispatcher.Buffered(1000))

	// Combat and chat - buffered
	d.Register(CmdProjectile, m.handleProjectile, dispatcher.Buffered(5000), dispatcher.Logged())
	d.Register(CmdHit, m.handleHit, dispatcher.Buffered(2000), dispatcher.Logged())
	d.Register(CmdChat, m.handleChat, dispatcher.Buffered(1000), dispatcher.Logged())
}

// dispatch hands a record to its handler. Records outside a round are
// dropped, except tick stats which also feed the metrics.
func (m *Manager) dispatch(command string, payload any) {
	if m.dispatcher == nil {
		return
	}
	if command != CmdTickStats && !m.Active() {
		return
	}
	if err := m.dispatcher.Dispatch(dispatcher.Event{Command: command, Payload: payload}); err != nil {
		m.deps.LogManager.Logger().Debug("Record not dispatched", "command", command, "error", err)
	}
}

func (m *Manager) RecordPlayer(p core.Player)              { m.dispatch(CmdPlayer, p) }
func (m *Manager) RecordSoldierState(s core.SoldierState)  { m.dispatch(CmdSoldierState, s) }
func (m *Manager) RecordProjectile(e core.ProjectileEvent) { m.dispatch(CmdProjectile, e) }
func (m *Manager) RecordHit(e core.HitEvent)               { m.dispatch(CmdHit, e) }
func (m *Manager) RecordChat(e core.ChatEvent)             { m.dispatch(CmdChat, e) }
func (m *Manager) RecordTeamPick(e core.TeamPickEvent)     { m.dispatch(CmdTeamPick, e) }
func (m *Manager) RecordTickStats(s core.TickStats)        { m.dispatch(CmdTickStats, s) }

// payloadAs extracts the typed record from e.
func payloadAs[T any](e dispatcher.Event) (T, error) {
	v, ok := e.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s carries %T", ErrUnexpectedPayload, e.Command, e.Payload)
	}
	return v, nil
}

func (m *Manager) handlePlayer(e dispatcher.Event) error {
	p, err := payloadAs[core.Player](e)
	if err != nil {
		return err
	}
	if err := m.backend.AddPlayer(&p); err != nil {
		return fmt.Errorf("failed to record player: %w", err)
	}
	return nil
}

func (m *Manager) handleTeamPick(e dispatcher.Event) error {
	pick, err := payloadAs[core.TeamPickEvent](e)
	if err != nil {
		return err
	}
	if err := m.backend.RecordTeamPick(&pick); err != nil {
		return fmt.Errorf("failed to record team pick: %w", err)
	}
	return nil
}

func (m *Manager) handleSoldierState(e dispatcher.Event) error {
	s, err := payloadAs[core.SoldierState](e)
	if err != nil {
		return err
	}
	if err := m.backend.RecordSoldierState(&s); err != nil {
		return fmt.Errorf("failed to record soldier state: %w", err)
	}
	return nil
}

func (m *Manager) handleProjectile(e dispatcher.Event) error {
	p, err := payloadAs[core.ProjectileEvent](e)
	if err != nil {
		return err
	}
	if err := m.backend.RecordProjectileEvent(&p); err != nil {
		return fmt.Errorf("failed to record projectile: %w", err)
	}
	return nil
}

func (m *Manager) handleHit(e dispatcher.Event) error {
	h, err := payloadAs[core.HitEvent](e)
	if err != nil {
		return err
	}
	if m.deps.Influx != nil {
		var roundID uint
		if r := m.round.Load(); r != nil {
			roundID = r.ID
		}
		if err := m.deps.Influx.WriteHit(m.deps.ServerName, roundID, h); err != nil {
			m.deps.LogManager.Logger().Debug("Influx hit write failed", "error", err)
		}
	}
	if err := m.backend.RecordHitEvent(&h); err != nil {
		return fmt.Errorf("failed to record hit: %w", err)
	}
	return nil
}

func (m *Manager) handleChat(e dispatcher.Event) error {
	c, err := payloadAs[core.ChatEvent](e)
	if err != nil {
		return err
	}
	if err := m.backend.RecordChatEvent(&c); err != nil {
		return fmt.Errorf("failed to record chat: %w", err)
	}
	return nil
}

// handleTickStats feeds the metrics on every tick and the backend only
// while a round is recorded.
func (m *Manager) handleTickStats(e dispatcher.Event) error {
	s, err := payloadAs[core.TickStats](e)
	if err != nil {
		return err
	}
	if m.deps.TickMetrics != nil {
		m.deps.TickMetrics.Record(context.Background(), s)
	}
	if m.deps.Influx != nil {
		if err := m.deps.Influx.WriteTickStats(m.deps.ServerName, s); err != nil {
			m.deps.LogManager.Logger().Debug("Influx tick write failed", "error", err)
		}
	}
	if !m.Active() {
		return nil
	}
	if err := m.backend.RecordTickStats(&s); err != nil {
		return fmt.Errorf("failed to record tick stats: %w", err)
	}
	return nil
}
