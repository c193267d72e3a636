package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dumfing/skirmish/internal/dispatcher"
	"github.com/dumfing/skirmish/internal/game"
	"github.com/dumfing/skirmish/internal/storage"
	"github.com/dumfing/skirmish/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ game.Recorder = (*Manager)(nil)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) { l.add(msg) }
func (l *mockLogger) Info(msg string, keysAndValues ...any)  { l.add(msg) }
func (l *mockLogger) Error(msg string, keysAndValues ...any) { l.add(msg) }

func (l *mockLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu sync.Mutex

	players       []core.Player
	soldierStates []core.SoldierState
	projectiles   []core.ProjectileEvent
	hits          []core.HitEvent
	chats         []core.ChatEvent
	teamPicks     []core.TeamPickEvent
	tickStats     []core.TickStats
	rounds        int
	ended         int
	closeCalled   bool
	startErr      error
	writeDuration time.Duration
}

var _ storage.Backend = (*mockBackend)(nil)

func (b *mockBackend) Init() error { return nil }

func (b *mockBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeCalled = true
	return nil
}

func (b *mockBackend) StartRound(r *core.Round, l *core.Level) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return b.startErr
	}
	b.rounds++
	r.ID = uint(b.rounds)
	return nil
}

func (b *mockBackend) EndRound() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended++
	return nil
}

func (b *mockBackend) AddPlayer(p *core.Player) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p.ID = uint(len(b.players) + 1)
	b.players = append(b.players, *p)
	return nil
}

func (b *mockBackend) RecordSoldierState(s *core.SoldierState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.soldierStates = append(b.soldierStates, *s)
	return nil
}

func (b *mockBackend) RecordProjectileEvent(e *core.ProjectileEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.projectiles = append(b.projectiles, *e)
	return nil
}

func (b *mockBackend) RecordHitEvent(e *core.HitEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hits = append(b.hits, *e)
	return nil
}

func (b *mockBackend) RecordChatEvent(e *core.ChatEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chats = append(b.chats, *e)
	return nil
}

func (b *mockBackend) RecordTeamPick(e *core.TeamPickEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teamPicks = append(b.teamPicks, *e)
	return nil
}

func (b *mockBackend) RecordTickStats(s *core.TickStats) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tickStats = append(b.tickStats, *s)
	return nil
}

func (b *mockBackend) LastWriteDuration() time.Duration {
	return b.writeDuration
}

func newTestManager(t *testing.T) (*Manager, *mockBackend, *dispatcher.Dispatcher) {
	t.Helper()
	backend := &mockBackend{}
	d, err := dispatcher.New(&mockLogger{}, nil)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	m := NewManager(Dependencies{ServerName: "arena"}, backend)
	m.RegisterHandlers(d)
	return m, backend, d
}

func testRound() (*core.Round, *core.Level) {
	return &core.Round{ServerName: "arena", TickRate: 60}, &core.Level{Name: "Fort Hill"}
}

func TestRegisterHandlers(t *testing.T) {
	_, _, d := newTestManager(t)

	for _, cmd := range []string{CmdPlayer, CmdSoldierState, CmdProjectile, CmdHit, CmdChat, CmdTeamPick, CmdTickStats} {
		assert.True(t, d.Handles(cmd), cmd)
	}
}

func TestRecordsOutsideRoundAreDropped(t *testing.T) {
	m, backend, _ := newTestManager(t)

	m.RecordPlayer(core.Player{ConnID: 1})
	m.RecordSoldierState(core.SoldierState{ConnID: 1})
	m.RecordChat(core.ChatEvent{Message: "hello"})
	m.RecordTickStats(core.TickStats{Tick: 1})
	require.NoError(t, m.EndRound())

	assert.Empty(t, backend.players)
	assert.Empty(t, backend.soldierStates)
	assert.Empty(t, backend.chats)
	assert.Empty(t, backend.tickStats)
	assert.Zero(t, backend.ended, "no round to end")
}

func TestRoundLifecycle(t *testing.T) {
	m, backend, _ := newTestManager(t)
	r, l := testRound()

	lobby := []core.Player{{ConnID: 1, Name: "alice", Team: core.TeamBlue}, {ConnID: 2, Name: "bob"}}
	require.NoError(t, m.StartRound(r, l, lobby))
	assert.True(t, m.Active())
	assert.Equal(t, r, m.Round())

	victim := 2
	m.RecordPlayer(core.Player{ConnID: 3, Name: "carol"})
	m.RecordTeamPick(core.TeamPickEvent{ConnID: 3, Team: core.TeamRed})
	m.RecordSoldierState(core.SoldierState{ConnID: 1, Tick: 3})
	m.RecordProjectile(core.ProjectileEvent{ID: 1, OwnerID: 1, HitConnID: &victim})
	m.RecordHit(core.HitEvent{ShooterConnID: 1, VictimConnID: 2, Damage: 25})
	m.RecordChat(core.ChatEvent{ConnID: 1, Message: "gl"})
	m.RecordTickStats(core.TickStats{Tick: 3, State: "PLAYING"})

	require.NoError(t, m.EndRound())
	assert.False(t, m.Active())
	assert.Nil(t, m.Round())

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.players, 3)
	assert.Equal(t, "alice", backend.players[0].Name)
	assert.Equal(t, core.TeamBlue, backend.players[0].Team)
	assert.Len(t, backend.teamPicks, 1)
	assert.Len(t, backend.soldierStates, 1)
	assert.Len(t, backend.projectiles, 1)
	assert.Len(t, backend.hits, 1)
	assert.Len(t, backend.chats, 1)
	assert.Len(t, backend.tickStats, 1)
	assert.Equal(t, 1, backend.ended)
}

func TestStartRound_EndsPreviousRound(t *testing.T) {
	m, backend, _ := newTestManager(t)

	r1, l1 := testRound()
	require.NoError(t, m.StartRound(r1, l1, nil))
	r2, l2 := testRound()
	require.NoError(t, m.StartRound(r2, l2, nil))

	assert.Equal(t, 1, backend.ended)
	assert.Equal(t, 2, backend.rounds)
	assert.Equal(t, uint(2), m.Round().ID)
}

func TestStartRound_BackendError(t *testing.T) {
	m, backend, _ := newTestManager(t)
	backend.startErr = errors.New("db down")

	r, l := testRound()
	err := m.StartRound(r, l, nil)
	assert.ErrorIs(t, err, backend.startErr)
	assert.False(t, m.Active())
}

func TestHandler_WrongPayload(t *testing.T) {
	_, _, d := newTestManager(t)

	err := d.Dispatch(dispatcher.Event{Command: CmdPlayer, Payload: "not a player"})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)

	err = d.Dispatch(dispatcher.Event{Command: CmdTeamPick, Payload: core.ChatEvent{}})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
}

func TestHandlePlayer_Inline(t *testing.T) {
	m, backend, d := newTestManager(t)
	r, l := testRound()
	require.NoError(t, m.StartRound(r, l, nil))

	require.NoError(t, d.Dispatch(dispatcher.Event{Command: CmdPlayer, Payload: core.Player{ConnID: 4}}))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.players, 1)
	assert.Equal(t, 4, backend.players[0].ConnID)
}

func TestClose_StopsDispatcher(t *testing.T) {
	m, backend, d := newTestManager(t)
	r, l := testRound()
	require.NoError(t, m.StartRound(r, l, nil))

	require.NoError(t, m.Close())
	assert.True(t, backend.closeCalled)
	assert.Equal(t, 1, backend.ended)
	assert.ErrorIs(t, d.Dispatch(dispatcher.Event{Command: CmdChat}), dispatcher.ErrClosed)
}

func TestRecordWithoutDispatcher(t *testing.T) {
	backend := &mockBackend{}
	m := NewManager(Dependencies{}, backend)

	r, l := testRound()
	require.NoError(t, m.StartRound(r, l, nil))
	m.RecordChat(core.ChatEvent{Message: "lost"})
	require.NoError(t, m.EndRound())

	assert.Empty(t, backend.chats)
}

func TestLastWriteDuration(t *testing.T) {
	m, backend, _ := newTestManager(t)
	backend.writeDuration = 42 * time.Millisecond
	assert.Equal(t, 42*time.Millisecond, m.LastWriteDuration())
}

type plainBackend struct{ mockBackend }

func (*plainBackend) LastWriteDuration() {}

func TestLastWriteDuration_Unsupported(t *testing.T) {
	m := NewManager(Dependencies{}, &plainBackend{})
	assert.Zero(t, m.LastWriteDuration())
}
