package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/dumfing/skirmish/internal/game"
	"github.com/dumfing/skirmish/internal/util"
	"github.com/dumfing/skirmish/pkg/protocol"
)

const maxMessageSize = 64 << 10

// client is one websocket session. All writes go through send so only the
// write loop touches the connection for writing.
type client struct {
	id     int
	conn   *ws.Conn
	send   chan []byte
	done   chan struct{}
	joined atomic.Bool

	closeOnce sync.Once
	srv       *Server
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		id:   int(s.nextID.Add(1)),
		conn: conn,
		send: make(chan []byte, s.cfg.SendBuffer),
		done: make(chan struct{}),
		srv:  s,
	}
	s.register(c)
	s.log.Debug("client connected", "conn", c.id, "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop()
}

// readLoop decodes and handles messages until the peer goes away or breaks
// the protocol.
func (c *client) readLoop() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.ReadTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.srv.log.Debug("client read error", "conn", c.id, "error", err)
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.srv.log.Warn("protocol violation", "conn", c.id, "error", err)
			return
		}
		if err := c.srv.handle(c, msg); err != nil {
			c.srv.log.Warn("protocol violation", "conn", c.id, "kind", msg.Kind(), "error", err)
			return
		}
	}
}

// writeLoop owns the connection's write side and closes the connection
// when it exits.
func (c *client) writeLoop() {
	ticker := time.NewTicker(c.srv.cfg.PingInterval)
	defer ticker.Stop()
	defer c.shutdown()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.srv.log.Debug("client write error", "conn", c.id, "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// trySend queues data unless the buffer is full.
func (c *client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// sendReliable queues data or disconnects the client when it cannot keep
// up.
func (c *client) sendReliable(data []byte) {
	if !c.trySend(data) {
		c.srv.log.Warn("reliable send overflow, disconnecting", "conn", c.id)
		c.close()
	}
}

func (c *client) sendMessage(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if protocol.Reliable(msg.Kind()) {
		c.sendReliable(data)
	} else {
		c.trySend(data)
	}
	return nil
}

// close marks the client gone and returns at once. It may run on the tick
// goroutine, so the socket itself is torn down by writeLoop.
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.srv.unregister(c)
		// abort a write stuck on a peer that stopped reading
		_ = c.conn.UnderlyingConn().SetWriteDeadline(time.Now())
	})
}

func (c *client) shutdown() {
	c.close()
	_ = c.conn.WriteControl(ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = c.conn.Close()
	c.srv.log.Debug("client disconnected", "conn", c.id)
}

// handle applies one decoded message. A returned error disconnects the
// client.
func (s *Server) handle(c *client, msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.InfoRequest:
		return c.sendMessage(s.game.Summary())

	case protocol.ConnectionRequest:
		return s.handleConnect(c, m)

	case protocol.PickedTeam:
		if !c.joined.Load() {
			return ErrNotJoined
		}
		return s.game.Enqueue(game.TeamPick(c.id, m.Picked))

	case protocol.ClientChat:
		if !c.joined.Load() {
			return ErrNotJoined
		}
		text := util.SanitizeChat(m.Message)
		if text == "" {
			return nil
		}
		name, _ := s.game.PlayerName(c.id)
		s.BroadcastReliable(protocol.ServerChat{Message: protocol.FormatChat(name, text)})
		if err := s.game.Enqueue(game.Chat(c.id, name, text)); err != nil {
			s.log.Warn("chat not recorded", "conn", c.id, "error", err)
		}
		return nil

	case protocol.Input:
		if !c.joined.Load() {
			return ErrNotJoined
		}
		s.game.SubmitInput(c.id, m.Controls)
		return nil

	case protocol.Response, protocol.Summary, protocol.DetailedSummary, protocol.GameCountdown,
		protocol.ServerChat, protocol.PlayerPositions, protocol.ProjectilePositions, protocol.FlagPositions:
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Kind())

	default:
		return fmt.Errorf("%w: %T", protocol.ErrUnknownKind, msg)
	}
}

func (s *Server) handleConnect(c *client, m protocol.ConnectionRequest) error {
	if !s.registry.Compatible(m.Catalog) {
		return ErrCatalogMismatch
	}
	if c.joined.Load() {
		s.log.Debug("duplicate connection request", "conn", c.id)
		return nil
	}

	name := util.SanitizeName(m.PlayerName)
	err := s.game.Admit(c.id, name)
	if errors.Is(err, game.ErrServerFull) {
		s.log.Info("connection refused, server full", "conn", c.id, "name", name)
		return c.sendMessage(protocol.Response{Code: protocol.CodeServerFull})
	}
	if err != nil {
		return err
	}

	if err := s.game.Enqueue(game.ClassPick(c.id, s.cfg.DefaultClass)); err != nil {
		s.log.Warn("default class not queued", "conn", c.id, "error", err)
	}

	c.joined.Store(true)
	s.log.Info("player connected", "conn", c.id, "name", name)
	if err := c.sendMessage(protocol.Response{Code: protocol.CodeConnected}); err != nil {
		return err
	}
	return c.sendMessage(s.game.DetailedSummary())
}
