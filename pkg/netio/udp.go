// Package netio provides the UDP transport glue between raw sockets and
// the DHT server's packet dispatch: a read loop that decodes datagrams
// into (packet.Envelope, source address) pairs, and a write path that
// encodes and sends outbound envelopes.
package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/toxdht/dhtnode/pkg/bufpool"
	"github.com/toxdht/dhtnode/pkg/dhtlog"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// Inbound is one decoded datagram paired with where it came from.
type Inbound struct {
	Envelope packet.Envelope
	From     *net.UDPAddr
}

// Handler processes one inbound datagram. Implementations must not block
// the read loop for long; dispatch work off to a worker if needed.
type Handler func(Inbound)

// Socket wraps a UDP connection with a background read loop that decodes
// envelopes and hands them to a Handler, plus a Send method for the
// outbound direction. Modeled on the teacher's Connection lifecycle: a
// closeCh for shutdown and a sync.Once-guarded Close.
type Socket struct {
	conn    *net.UDPConn
	logger  *dhtlog.Logger
	handler Handler

	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	sendMu sync.Mutex
}

// Listen opens a UDP socket on addr and returns a Socket ready to Serve.
func Listen(addr string, logger *dhtlog.Logger) (*Socket, error) {
	if logger == nil {
		logger = dhtlog.NewDefault()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("netio: resolving %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("netio: listening on %q: %w", addr, err)
	}
	return &Socket{
		conn:    conn,
		logger:  logger.Component("netio"),
		closeCh: make(chan struct{}),
	}, nil
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Serve runs the read loop until ctx is cancelled or Close is called,
// decoding each datagram and invoking handler. One goroutine per Socket;
// Serve blocks the caller, so invoke it in its own goroutine.
func (s *Socket) Serve(ctx context.Context, handler Handler) {
	s.handler = handler
	s.wg.Add(1)
	defer s.wg.Done()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closeCh:
		}
	}()

	for {
		buf := bufpool.Packets.Get()
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			bufpool.Packets.Put(buf)
			select {
			case <-s.closeCh:
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Debug("read error, stopping loop", "error", err)
			return
		}

		env, decodeErr := packet.Decode(buf[:n])
		bufpool.Packets.Put(buf)
		if decodeErr != nil {
			s.logger.Debug("dropping malformed datagram", "from", from.String(), "error", decodeErr)
			continue
		}
		if s.handler != nil {
			s.handler(Inbound{Envelope: env, From: from})
		}
	}
}

// Send encodes env and writes it to dst.
func (s *Socket) Send(env packet.Envelope, dst *net.UDPAddr) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	data := env.Encode()
	if _, err := s.conn.WriteToUDP(data, dst); err != nil {
		return fmt.Errorf("netio: writing to %s: %w", dst, err)
	}
	return nil
}

// Close shuts the socket down; safe to call more than once.
func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}
