package server

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumfing/skirmish/internal/game"
	"github.com/dumfing/skirmish/internal/levelmap"
	"github.com/dumfing/skirmish/internal/world"
	"github.com/dumfing/skirmish/pkg/core"
	"github.com/dumfing/skirmish/pkg/protocol"
)

const dt = float32(1) / 60

func testLevel() *levelmap.Map {
	const size = 16
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	img.SetNRGBA(2, size-3, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(12, size-3, color.NRGBA{B: 255, A: 255})
	return levelmap.New("arena", img)
}

func newTestServer(t *testing.T, maxPlayers int) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MinPlayers = 0
	gcfg := game.DefaultConfig()
	gcfg.MaxPlayers = maxPlayers

	s := New(cfg, world.New(world.WithMap(testLevel())), gcfg, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/play"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *ws.Conn, msg protocol.Message) {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(ws.TextMessage, data))
}

func receive(t *testing.T, conn *ws.Conn) protocol.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := protocol.Decode(data)
	require.NoError(t, err)
	return msg
}

func receiveKind(t *testing.T, conn *ws.Conn, kind protocol.Kind) protocol.Message {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := receive(t, conn)
		if msg.Kind() == kind {
			return msg
		}
	}
	t.Fatalf("no %s received", kind)
	return nil
}

func join(t *testing.T, ts *httptest.Server, name string) *ws.Conn {
	t.Helper()
	conn := dial(t, ts)
	send(t, conn, protocol.ConnectionRequest{PlayerName: name, Catalog: protocol.CatalogHash()})
	resp, err := protocol.As[protocol.Response](receive(t, conn))
	require.NoError(t, err)
	require.Equal(t, protocol.CodeConnected, resp.Code)
	return conn
}

func expectClosed(t *testing.T, conn *ws.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			t.Fatal("server did not close the connection")
		}
		return
	}
}

func TestConnect_SendsResponseAndDetailedSummary(t *testing.T) {
	_, ts := newTestServer(t, 4)
	conn := join(t, ts, "alice")

	d, err := protocol.As[protocol.DetailedSummary](receive(t, conn))
	require.NoError(t, err)
	assert.Equal(t, 2, d.RedMax)
	assert.Equal(t, 2, d.BlueMax)
}

func TestConnect_ServerFull(t *testing.T) {
	_, ts := newTestServer(t, 1)
	join(t, ts, "alice")

	conn := dial(t, ts)
	send(t, conn, protocol.ConnectionRequest{PlayerName: "bob"})
	resp, err := protocol.As[protocol.Response](receive(t, conn))
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeServerFull, resp.Code)
	assert.Equal(t, "SERVER_FULL", resp.Code.String())
}

func TestConnect_CatalogMismatchDisconnects(t *testing.T) {
	_, ts := newTestServer(t, 4)
	conn := dial(t, ts)
	send(t, conn, protocol.ConnectionRequest{PlayerName: "old", Catalog: 12345})
	expectClosed(t, conn)
}

func TestInfoRequestOverWebsocket(t *testing.T) {
	_, ts := newTestServer(t, 4)
	conn := dial(t, ts)
	send(t, conn, protocol.InfoRequest{})

	sum, err := protocol.As[protocol.Summary](receive(t, conn))
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Max)
	assert.Equal(t, "skirmish", sum.ServerName)
}

func TestChatRelay(t *testing.T) {
	_, ts := newTestServer(t, 4)
	alice := join(t, ts, "alice")
	bob := join(t, ts, "bob")

	send(t, alice, protocol.ClientChat{Message: "hello"})

	for _, conn := range []*ws.Conn{alice, bob} {
		chat, err := protocol.As[protocol.ServerChat](receiveKind(t, conn, protocol.KindServerChat))
		require.NoError(t, err)
		assert.Equal(t, "alice: hello", chat.Message)
	}
}

func TestReliableOverflowDoesNotBlockBroadcast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPlayers = 0
	cfg.SendBuffer = 4
	s := New(cfg, world.New(world.WithMap(testLevel())), game.DefaultConfig(), nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	// joins, then never reads again
	join(t, ts, "stalled")
	require.Eventually(t, func() bool { return len(s.joinedClients()) == 1 },
		time.Second, 10*time.Millisecond)

	big := protocol.ServerChat{Message: strings.Repeat("x", 60<<10)}
	for i := 0; i < 1000 && s.ClientCount() > 0; i++ {
		start := time.Now()
		s.BroadcastReliable(big)
		require.Less(t, time.Since(start), 200*time.Millisecond, "broadcast %d stalled", i)
	}
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestProtocolViolationsDisconnect(t *testing.T) {
	tests := []struct {
		name string
		send func(t *testing.T, conn *ws.Conn)
	}{
		{"malformed json", func(t *testing.T, conn *ws.Conn) {
			require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("{not json")))
		}},
		{"unknown kind", func(t *testing.T, conn *ws.Conn) {
			require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(`{"type":"teleport","payload":{}}`)))
		}},
		{"server-to-client kind", func(t *testing.T, conn *ws.Conn) {
			send(t, conn, protocol.GameCountdown{Seconds: 3})
		}},
		{"input before join", func(t *testing.T, conn *ws.Conn) {
			send(t, conn, protocol.Input{})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, 4)
			conn := dial(t, ts)
			tt.send(t, conn)
			expectClosed(t, conn)
		})
	}
}

func TestTeamPickAndBroadcast(t *testing.T) {
	s, ts := newTestServer(t, 4)
	conn := join(t, ts, "alice")
	g := s.Game()

	send(t, conn, protocol.PickedTeam{Picked: core.TeamBlue})
	require.Eventually(t, func() bool {
		_ = g.Tick(dt)
		return g.DetailedSummary().BlueTeam == 1
	}, 2*time.Second, 10*time.Millisecond)

	sol, err := g.World().Soldier(1)
	require.NoError(t, err)
	assert.Equal(t, core.ClassArcher, sol.Class)
	assert.Equal(t, float32(12), sol.X())

	s.BroadcastUnreliable(g.World().Snapshot().PlayerPositions())
	pp, err := protocol.As[protocol.PlayerPositions](receiveKind(t, conn, protocol.KindPlayerPositions))
	require.NoError(t, err)
	require.Len(t, pp.Players, 1)
	assert.Equal(t, "alice", pp.Players[0].Name)
}

func TestDisconnectReleasesSlot(t *testing.T) {
	s, ts := newTestServer(t, 1)
	conn := join(t, ts, "alice")
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return s.ClientCount() == 0 && s.Game().Summary().Num == 0
	}, 2*time.Second, 10*time.Millisecond)

	join(t, ts, "bob")
}

func TestStepStartsCountdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPlayers = 1
	cfg.CountdownSeconds = 0
	s := New(cfg, world.New(world.WithMap(testLevel())), game.DefaultConfig(), nil)
	g := s.Game()

	require.NoError(t, g.Admit(1, "solo"))
	require.NoError(t, g.Enqueue(game.TeamPick(1, core.TeamRed)))

	now := time.Now()
	s.Step(dt, now)
	assert.Equal(t, game.StateCountdown, g.State())
	s.Step(dt, now)
	assert.Equal(t, game.StatePlaying, g.State())
}

func TestServeUDP(t *testing.T) {
	s, _ := newTestServer(t, 6)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.ServeUDP(ctx, pc)

	conn, err := net.Dial("udp", pc.LocalAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	req, err := protocol.Msgpack.Marshal(protocol.InfoRequest{})
	require.NoError(t, err)
	_, err = conn.Write(req)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, maxDatagram)
	n, err := conn.Read(buf)
	require.NoError(t, err)

	msg, err := protocol.Msgpack.Unmarshal(buf[:n])
	require.NoError(t, err)
	sum, err := protocol.As[protocol.Summary](msg)
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Max)
}
