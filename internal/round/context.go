package round

import (
	"log/slog"
	"sync"

	"github.com/dumfing/skirmish/pkg/core"
)

// Context holds the round currently being recorded
type Context struct {
	mu    sync.RWMutex
	Round *core.Round
	Level *core.Level
	state string
}

// NewContext creates a new Context with placeholder values
func NewContext() *Context {
	return &Context{
		Round: &core.Round{ServerName: "No round loaded"},
		Level: &core.Level{Name: "No level loaded"},
		state: "LOBBY",
	}
}

// GetRound returns the current round
func (rc *Context) GetRound() *core.Round {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.Round
}

// GetLevel returns the current level
func (rc *Context) GetLevel() *core.Level {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.Level
}

// SetRound sets the current round and level
func (rc *Context) SetRound(round *core.Round, level *core.Level) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.Round = round
	rc.Level = level
}

// SetState records the game state name for log enrichment
func (rc *Context) SetState(state string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.state = state
}

// State returns the last recorded game state name
func (rc *Context) State() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.state
}

// LogAttrs reports the round being recorded. The logger groups them under
// "round".
func (rc *Context) LogAttrs() []slog.Attr {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return []slog.Attr{
		slog.Uint64("id", uint64(rc.Round.ID)),
		slog.String("level", rc.Level.Name),
		slog.String("state", rc.state),
	}
}
