package server

import (
	"context"
	"errors"
	"net"

	"github.com/dumfing/skirmish/pkg/protocol"
)

const maxDatagram = 2048

// ServeUDP answers InfoRequest datagrams on pc with a msgpack Summary until
// ctx is cancelled or pc is closed. Anything else is ignored.
func (s *Server) ServeUDP(ctx context.Context, pc net.PacketConn) {
	go func() {
		<-ctx.Done()
		_ = pc.Close()
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			s.log.Debug("udp read error", "error", err)
			continue
		}

		msg, err := protocol.Msgpack.Unmarshal(buf[:n])
		if err != nil {
			s.log.Debug("bad datagram", "from", addr.String(), "error", err)
			continue
		}
		if _, ok := msg.(protocol.InfoRequest); !ok {
			s.log.Debug("unexpected datagram", "from", addr.String(), "kind", msg.Kind())
			continue
		}

		reply, err := protocol.Msgpack.Marshal(s.game.Summary())
		if err != nil {
			s.log.Error("encode summary", "error", err)
			continue
		}
		if _, err := pc.WriteTo(reply, addr); err != nil {
			s.log.Debug("udp write error", "to", addr.String(), "error", err)
		}
	}
}
