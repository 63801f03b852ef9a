package netio

import (
	"net"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// NetCrypto is the external collaborator handling the three net_crypto
// packet kinds (cookie request/response, crypto handshake). The DHT
// server holds an optional reference; when absent, those packet kinds
// are rejected with dhterrors.NetCryptoUninitialized.
type NetCrypto interface {
	HandleUDPCookieRequest(body []byte, senderPK cryptobox.PublicKey, from *net.UDPAddr) error
	HandleUDPCookieResponse(body []byte, senderPK cryptobox.PublicKey, from *net.UDPAddr) error
	HandleUDPCryptoHandshake(body []byte, senderPK cryptobox.PublicKey, from *net.UDPAddr) error
}

// TCPSink is the optional outbound collaborator for onion responses whose
// innermost OnionReturn names a TCP destination rather than a UDP one.
type TCPSink interface {
	SendOnionResponse(payload []byte, dest packet.SocketAddr) error
}

// Outbound is a single queued (packet, destination) pair on the bounded
// outbound queue the server writes to and a Socket drains from.
type Outbound struct {
	Envelope packet.Envelope
	Dest     *net.UDPAddr
}

// OutboundQueue is the fixed-capacity channel the server enqueues
// outbound datagrams into; a drain goroutine reads it and calls
// Socket.Send. It is not unbounded and has no internal buffer beyond the
// channel: once capacity datagrams are queued, Enqueue drops further ones
// instead of blocking.
type OutboundQueue struct {
	items chan Outbound
}

// NewOutboundQueue creates a queue with the given channel capacity. The
// server should size this generously (e.g. several thousand) since the
// producer (HandlePacket/Tick) must never block on a slow UDP writer.
func NewOutboundQueue(capacity int) *OutboundQueue {
	return &OutboundQueue{items: make(chan Outbound, capacity)}
}

// Enqueue submits an outbound datagram without blocking. It returns false
// if the queue is full and the datagram was dropped.
func (q *OutboundQueue) Enqueue(env packet.Envelope, dest *net.UDPAddr) bool {
	select {
	case q.items <- Outbound{Envelope: env, Dest: dest}:
		return true
	default:
		return false
	}
}

// Drain returns the channel for a writer goroutine to range over.
func (q *OutboundQueue) Drain() <-chan Outbound {
	return q.items
}

// Len reports the number of outbound datagrams currently queued.
func (q *OutboundQueue) Len() int {
	return len(q.items)
}

// RunWriter drains q and sends every item through sock until q's items
// channel is closed. Intended to run in its own goroutine.
func RunWriter(sock *Socket, q *OutboundQueue) {
	for ob := range q.Drain() {
		_ = sock.Send(ob.Envelope, ob.Dest)
	}
}

// Close closes the queue's channel, signalling RunWriter to exit once
// drained. Callers must stop enqueueing before calling Close.
func (q *OutboundQueue) Close() {
	close(q.items)
}
