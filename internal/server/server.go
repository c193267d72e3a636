// Package server exposes a game instance over the network: a websocket
// session channel for players and a UDP channel for discovery.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/dumfing/skirmish/internal/game"
	"github.com/dumfing/skirmish/internal/world"
	"github.com/dumfing/skirmish/pkg/core"
	"github.com/dumfing/skirmish/pkg/protocol"
)

var (
	// ErrNotJoined is returned when a session message arrives before a
	// successful ConnectionRequest.
	ErrNotJoined = errors.New("connection has not joined")
	// ErrUnexpectedMessage is returned for server-to-client kinds sent by a
	// client.
	ErrUnexpectedMessage = errors.New("unexpected message direction")
	// ErrCatalogMismatch is returned when a client registered a different
	// message catalog.
	ErrCatalogMismatch = errors.New("message catalog mismatch")
)

// Config holds the network settings.
type Config struct {
	Addr         string
	UDPAddr      string
	Path         string
	SendBuffer   int
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DefaultClass is given to every soldier on join.
	DefaultClass core.Class
	// MinPlayers starts the countdown once that many players picked a team.
	// Zero disables automatic starts.
	MinPlayers       int
	CountdownSeconds int
	RestartDelay     time.Duration
}

// DefaultConfig listens on the standard ports.
func DefaultConfig() Config {
	return Config{
		Addr:             fmt.Sprintf(":%d", protocol.TCPPort),
		UDPAddr:          fmt.Sprintf(":%d", protocol.UDPPort),
		Path:             "/play",
		SendBuffer:       256,
		PingInterval:     25 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		DefaultClass:     core.ClassArcher,
		MinPlayers:       2,
		CountdownSeconds: 5,
		RestartDelay:     10 * time.Second,
	}
}

// Server owns the game instance and its connections.
type Server struct {
	cfg      Config
	game     *game.Instance
	log      *slog.Logger
	registry *protocol.Registry
	upgrader ws.Upgrader

	mu      sync.RWMutex
	clients map[int]*client
	nextID  atomic.Int64

	roundOverAt time.Time
}

// New builds a server and the game instance it drives. The server is
// installed as the instance's broadcaster.
func New(cfg Config, w *world.World, gcfg game.Config, log *slog.Logger, opts ...game.Option) *Server {
	def := DefaultConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		registry: protocol.NewRegistry(),
		clients:  make(map[int]*client),
		upgrader: ws.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	opts = append(opts, game.WithBroadcaster(s), game.WithLogger(log))
	s.game = game.New(gcfg, w, opts...)
	return s
}

// Game returns the driven instance.
func (s *Server) Game() *game.Instance {
	return s.game
}

// Handler serves the websocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.serveWS)
	return mux
}

// Run listens on both channels and ticks the game until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", s.cfg.Addr, err)
	}
	pc, err := net.ListenPacket("udp", s.cfg.UDPAddr)
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("listen udp %s: %w", s.cfg.UDPAddr, err)
	}

	httpSrv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", "error", err)
		}
	}()
	go s.ServeUDP(ctx, pc)

	s.log.Info("server listening", "tcp", ln.Addr().String(), "udp", pc.LocalAddr().String(), "path", s.cfg.Path)

	s.Loop(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = pc.Close()
	s.closeAll()
	return nil
}

// Loop ticks the game at its configured rate until ctx is cancelled.
func (s *Server) Loop(ctx context.Context) {
	rate := s.game.Config().TickRate
	period := time.Second / time.Duration(rate)
	dt := float32(period.Seconds())

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(dt, now)
		}
	}
}

// Step runs one tick and the automatic round flow.
func (s *Server) Step(dt float32, now time.Time) {
	if err := s.game.Tick(dt); err != nil {
		s.log.Error("tick failed", "error", err)
	}

	switch s.game.State() {
	case game.StateLobby:
		if s.cfg.MinPlayers <= 0 {
			return
		}
		d := s.game.DetailedSummary()
		if d.RedTeam+d.BlueTeam >= s.cfg.MinPlayers {
			if err := s.game.StartCountdown(s.cfg.CountdownSeconds); err != nil {
				s.log.Warn("countdown not started", "error", err)
			}
		}
	case game.StateRoundOver:
		if s.roundOverAt.IsZero() {
			s.roundOverAt = now
			return
		}
		if now.Sub(s.roundOverAt) >= s.cfg.RestartDelay {
			s.roundOverAt = time.Time{}
			if err := s.game.Restart(); err != nil {
				s.log.Warn("restart failed", "error", err)
			}
		}
	}
}

// BroadcastUnreliable sends msg to every joined client, dropping it for
// clients whose buffer is full.
func (s *Server) BroadcastUnreliable(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.log.Error("encode broadcast", "kind", msg.Kind(), "error", err)
		return
	}
	for _, c := range s.joinedClients() {
		c.trySend(data)
	}
}

// BroadcastReliable sends msg to every joined client. A client that cannot
// take it is disconnected.
func (s *Server) BroadcastReliable(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.log.Error("encode broadcast", "kind", msg.Kind(), "error", err)
		return
	}
	for _, c := range s.joinedClients() {
		c.sendReliable(data)
	}
}

// ClientCount returns the number of open connections.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) joinedClients() []*client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.joined.Load() {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()

	if ok && c.joined.Load() {
		s.game.Release(c.id)
	}
}

func (s *Server) closeAll() {
	s.mu.RLock()
	all := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		all = append(all, c)
	}
	s.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}
