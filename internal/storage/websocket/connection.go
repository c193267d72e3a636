package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	ws "github.com/gorilla/websocket"

	"github.com/dumfing/skirmish/pkg/streaming"
)

const (
	sendChSize   = 10_000
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection owns one spectator socket. Writes happen only on writeLoop.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	quit   chan struct{} // closed when conn is replaced
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	closed bool

	ctx  context.Context // cancelled by close
	stop context.CancelFunc

	wsURL   string
	secret  string
	backoff time.Duration

	// start_round of the round in progress, replayed after a reconnect
	roundStart []byte

	dropped atomic.Uint64
	logger  *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	ctx, stop := context.WithCancel(context.Background())
	return &connection{
		sendCh:  make(chan []byte, sendChSize),
		ackCh:   make(chan streaming.AckMessage, ackChSize),
		ctx:     ctx,
		stop:    stop,
		backoff: time.Second,
		logger:  logger,
	}
}

// dial connects and starts the read and write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.quit = make(chan struct{})
	quit := c.quit
	c.mu.Unlock()

	go c.writeLoop(conn, quit)
	go c.readLoop(conn)
	return nil
}

func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.DialContext(c.ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh into conn. It hands over to reconnect on the
// first write error.
func (c *connection) writeLoop(conn *ws.Conn, quit <-chan struct{}) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-quit:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("Spectator stream deadline error", "error", err)
				go c.reconnect(conn)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("Spectator stream write error", "error", err)
				go c.reconnect(conn)
				return
			}
		}
	}
}

// readLoop routes acks to ackCh and ignores anything else.
func (c *connection) readLoop(conn *ws.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.logger.Warn("Spectator stream read error", "error", err)
				go c.reconnect(conn)
			}
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}
		select {
		case c.ackCh <- ack:
		default:
			c.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// reconnect replaces broken with a fresh socket, backing off
// exponentially between dials. Both loops call it on failure; only the
// first call for a socket proceeds.
func (c *connection) reconnect(broken *ws.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != broken {
		c.mu.Unlock()
		return
	}
	_ = broken.Close()
	close(c.quit)
	c.conn = nil
	c.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoff
	b.MaxInterval = maxBackoff

	// the first dial waits one interval too
	select {
	case <-c.ctx.Done():
		return
	case <-time.After(c.backoff):
	}

	attempt := 0
	conn, err := backoff.Retry(c.ctx, func() (*ws.Conn, error) {
		attempt++
		c.logger.Info("Reconnecting spectator stream", "attempt", attempt)
		return c.dialOnce()
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxReconnect),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "retryIn", next, "error", err)
		}),
	)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.logger.Error("Spectator stream reconnect failed", "attempts", attempt, "error", err)
		}
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.quit = make(chan struct{})
	quit := c.quit
	start := c.roundStart
	c.mu.Unlock()

	if start != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(ws.TextMessage, start); err != nil {
			c.logger.Warn("Failed to replay start_round after reconnect", "error", err)
			go c.reconnect(conn)
			return
		}
	}

	c.logger.Info("Spectator stream reconnected", "attempts", attempt)
	go c.writeLoop(conn, quit)
	go c.readLoop(conn)
}

// send queues data for the write loop without blocking.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.dropped.Add(1)
		c.logger.Warn("Spectator stream send channel full, dropping message")
	}
}

// sendAndWait queues data and blocks until an ack for ackFor arrives.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.ctx.Done():
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

func (c *connection) setRoundStart(data []byte) {
	c.mu.Lock()
	c.roundStart = data
	c.mu.Unlock()
}

// close sends a close frame and stops every goroutine.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stop()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return conn.Close()
}
