// Package worker turns what happens during a round into storage writes.
// The game calls the Manager as its Recorder; every record becomes a
// dispatcher event handled off the tick goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dumfing/skirmish/internal/dispatcher"
	"github.com/dumfing/skirmish/internal/influx"
	"github.com/dumfing/skirmish/internal/logging"
	"github.com/dumfing/skirmish/internal/otel"
	"github.com/dumfing/skirmish/internal/storage"
	"github.com/dumfing/skirmish/pkg/core"
)

// ErrUnexpectedPayload is returned when an event carries the wrong record type.
var ErrUnexpectedPayload = errors.New("unexpected payload")

// drainTimeout bounds how long EndRound waits for buffered records.
const drainTimeout = 5 * time.Second

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager  *logging.SlogManager
	Influx      *influx.Manager   // optional
	TickMetrics *otel.TickMetrics // optional
	ServerName  string
}

// Manager records rounds into a storage backend.
type Manager struct {
	deps       Dependencies
	backend    storage.Backend
	dispatcher *dispatcher.Dispatcher

	// roundMu orders StartRound and EndRound against each other
	roundMu sync.Mutex
	active  atomic.Bool
	round   atomic.Pointer[core.Round]
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Active reports whether a round is being recorded.
func (m *Manager) Active() bool {
	return m.active.Load()
}

// Round returns the round being recorded, or nil.
func (m *Manager) Round() *core.Round {
	if !m.Active() {
		return nil
	}
	return m.round.Load()
}

// StartRound opens a round in the backend and registers the players
// already in the world. It blocks until the backend has created the round.
func (m *Manager) StartRound(r *core.Round, l *core.Level, players []core.Player) error {
	m.roundMu.Lock()
	defer m.roundMu.Unlock()

	if m.active.Load() {
		if err := m.endRoundLocked(); err != nil {
			m.deps.LogManager.Logger().Warn("Previous round did not close cleanly", "error", err)
		}
	}

	if err := m.backend.StartRound(r, l); err != nil {
		return fmt.Errorf("start round: %w", err)
	}
	m.round.Store(r)
	m.active.Store(true)

	for i := range players {
		if err := m.backend.AddPlayer(&players[i]); err != nil {
			m.deps.LogManager.Logger().Warn("Failed to record player", "conn", players[i].ConnID, "error", err)
		}
	}
	m.deps.LogManager.Logger().Info("Recording round", "round", r.ID, "level", l.Name, "players", len(players))
	return nil
}

// EndRound stops accepting records, waits for the buffered ones and closes
// the round in the backend.
func (m *Manager) EndRound() error {
	m.roundMu.Lock()
	defer m.roundMu.Unlock()
	if !m.active.Load() {
		return nil
	}
	return m.endRoundLocked()
}

func (m *Manager) endRoundLocked() error {
	m.active.Store(false)

	if m.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := m.dispatcher.Wait(ctx); err != nil {
			m.deps.LogManager.Logger().Warn("Records still queued at round end", "error", err)
		}
	}

	if err := m.backend.EndRound(); err != nil {
		return fmt.Errorf("end round: %w", err)
	}
	return nil
}

// Close ends any open round, stops the dispatcher queues and closes the
// backend.
func (m *Manager) Close() error {
	err := m.EndRound()
	if m.dispatcher != nil {
		m.dispatcher.Close()
	}
	return errors.Join(err, m.backend.Close())
}

// WriteDurationProvider is an optional interface that backends can implement
// to expose their last DB write duration for monitoring.
type WriteDurationProvider interface {
	LastWriteDuration() time.Duration
}

// LastWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) LastWriteDuration() time.Duration {
	if p, ok := m.backend.(WriteDurationProvider); ok {
		return p.LastWriteDuration()
	}
	return 0
}

// Backend returns the storage backend.
func (m *Manager) Backend() storage.Backend {
	return m.backend
}
