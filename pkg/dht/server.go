// Package dht implements the Tox DHT node core: the server actor that
// owns the close list, friend list, bootstrap candidates, request
// correlation queue, onion announce table, and hole-punch controllers,
// and exposes the two concurrent entry points spec §5 names —
// HandlePacket and Tick — over a shared, lock-protected state machine.
package dht

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/toxdht/dhtnode/pkg/bootstrap"
	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/dhtconfig"
	"github.com/toxdht/dhtnode/pkg/dhterrors"
	"github.com/toxdht/dhtnode/pkg/dhtlog"
	"github.com/toxdht/dhtnode/pkg/dhtmetrics"
	"github.com/toxdht/dhtnode/pkg/friend"
	"github.com/toxdht/dhtnode/pkg/kbucket"
	"github.com/toxdht/dhtnode/pkg/netio"
	"github.com/toxdht/dhtnode/pkg/onionannounce"
	"github.com/toxdht/dhtnode/pkg/packet"
	"github.com/toxdht/dhtnode/pkg/pingsender"
	"github.com/toxdht/dhtnode/pkg/ratelimit"
	"github.com/toxdht/dhtnode/pkg/reqqueue"
)

// announceRateLimit bounds how many onion announce requests a single
// source address may make per window, independent of how many distinct
// ping-ids it cycles through (spec §4.6 has no such cap; this is an
// ambient anti-flood measure the rest of the dispatch path relies on).
const (
	announceRateLimitPerWindow = 20
	announceRateLimitWindow    = 10 * time.Second
)

// Server is the DHT node core. Field-granularity locks follow spec §5's
// order exactly — onion key → close nodes → bootstrap nodes → friends →
// request queue → ping sender — to prevent deadlock when a single
// operation (e.g. a NodesResponse) touches more than one.
type Server struct {
	ownPK cryptobox.PublicKey
	ownSK cryptobox.SecretKey

	cfg     *dhtconfig.Config
	logger  *dhtlog.Logger
	metrics *dhtmetrics.Metrics

	onionKeyring *onionannounce.Keyring // guards onion_symmetric_key, its time, and onion_announce

	closeMu        sync.RWMutex
	closeNodes     *kbucket.Kbucket
	lastPingReqAt  map[cryptobox.PublicKey]time.Time

	bootstrapMu     sync.RWMutex
	bootstrapNodes  *kbucket.Bucket
	roundCounter    *bootstrap.RoundCounter

	friends *friend.List

	reqQueue *reqqueue.Queue

	pingSender *pingsender.Queue

	tickMu           sync.Mutex
	lastNodesReqTime time.Time

	ipv6Mu sync.RWMutex
	ipv6   bool

	lanMu sync.RWMutex
	lan   bool

	bootstrapInfoMu sync.RWMutex
	bootstrapVer    uint32
	bootstrapMotd   []byte

	outbound  *netio.OutboundQueue
	netCrypto netio.NetCrypto
	tcpSink   netio.TCPSink

	announceLimiter *ratelimit.Keyed[string]
}

// New constructs a Server for the given long-term keypair and config.
// The outbound queue is supplied by the caller (typically sized and
// wired to a netio.Socket by cmd/dhtnode).
func New(ownPK cryptobox.PublicKey, ownSK cryptobox.SecretKey, cfg *dhtconfig.Config, logger *dhtlog.Logger, outbound *netio.OutboundQueue) (*Server, error) {
	if cfg == nil {
		cfg = dhtconfig.DefaultConfig()
	}
	if logger == nil {
		logger = dhtlog.NewDefault()
	}
	if outbound == nil {
		outbound = netio.NewOutboundQueue(4096)
	}

	keyring, err := onionannounce.NewKeyring(time.Now())
	if err != nil {
		return nil, fmt.Errorf("dht: constructing onion keyring: %w", err)
	}

	return &Server{
		ownPK:          ownPK,
		ownSK:          ownSK,
		cfg:            cfg,
		logger:         logger.Component("dht"),
		metrics:        dhtmetrics.New(),
		onionKeyring:   keyring,
		closeNodes:     kbucket.NewKbucket(ownPK, cfg.BucketCapacity),
		lastPingReqAt:  make(map[cryptobox.PublicKey]time.Time),
		bootstrapNodes: kbucket.NewBucket(ownPK, 0),
		roundCounter:   &bootstrap.RoundCounter{},
		friends:        friend.NewList(),
		reqQueue:       reqqueue.New(cfg.PingTimeout),
		pingSender:     pingsender.New(pingsender.DefaultCapacity),
		ipv6:           cfg.EnableIPv6,
		lan:            cfg.EnableLANDiscovery,
		bootstrapVer:    uint32(cfg.Version),
		bootstrapMotd:   []byte(cfg.Motd),
		outbound:        outbound,
		announceLimiter: ratelimit.NewKeyed[string](announceRateLimitPerWindow, announceRateLimitWindow),
	}, nil
}

// Metrics exposes the server's operational counters for an HTTP
// exposition layer to read.
func (s *Server) Metrics() *dhtmetrics.Metrics { return s.metrics }

// OwnPK returns the server's long-term public key.
func (s *Server) OwnPK() cryptobox.PublicKey { return s.ownPK }

// Configuration mutators (spec §6).

// EnableIPv6Mode toggles IPv4-mapped-IPv6 outbound address translation.
func (s *Server) EnableIPv6Mode(enable bool) {
	s.ipv6Mu.Lock()
	defer s.ipv6Mu.Unlock()
	s.ipv6 = enable
}

// EnableLANDiscovery toggles whether LanDiscovery packets are answered.
func (s *Server) EnableLANDiscovery(enable bool) {
	s.lanMu.Lock()
	defer s.lanMu.Unlock()
	s.lan = enable
}

// SetBootstrapInfo updates the version/motd served to BootstrapInfo
// probes.
func (s *Server) SetBootstrapInfo(version uint32, motd []byte) error {
	if len(motd) > 255 {
		return fmt.Errorf("dht: motd too long: %d bytes, max 255", len(motd))
	}
	s.bootstrapInfoMu.Lock()
	defer s.bootstrapInfoMu.Unlock()
	s.bootstrapVer = version
	s.bootstrapMotd = append([]byte(nil), motd...)
	return nil
}

// SetTCPOnionSink installs the optional TCP onion response sink.
func (s *Server) SetTCPOnionSink(sink netio.TCPSink) {
	s.tcpSink = sink
}

// SetNetCrypto installs the optional net-crypto collaborator.
func (s *Server) SetNetCrypto(nc netio.NetCrypto) {
	s.netCrypto = nc
}

// AddFriend registers pk as a friend to be located and hole-punched.
func (s *Server) AddFriend(pk cryptobox.PublicKey) {
	s.friends.Add(pk)
}

func (s *Server) isIPv6Enabled() bool {
	s.ipv6Mu.RLock()
	defer s.ipv6Mu.RUnlock()
	return s.ipv6
}

func (s *Server) isLANEnabled() bool {
	s.lanMu.RLock()
	defer s.lanMu.RUnlock()
	return s.lan
}

func (s *Server) bootstrapInfo() (uint32, []byte) {
	s.bootstrapInfoMu.RLock()
	defer s.bootstrapInfoMu.RUnlock()
	return s.bootstrapVer, append([]byte(nil), s.bootstrapMotd...)
}

// sendTo implements the outbound address policy (spec §4.8): in IPv6
// mode, IPv4 destinations are mapped into IPv4-mapped IPv6 form; in
// IPv4-only mode, IPv6 destinations are rejected outright. The envelope
// is enqueued on the bounded outbound queue, never sent synchronously
// (spec §5, "never hold a lock across an await on the outbound channel").
// When the queue is full the datagram is dropped with a debug log and
// sendTo still returns nil.
func (s *Server) sendTo(addr packet.SocketAddr, env packet.Envelope) error {
	dst := addr
	if s.isIPv6Enabled() {
		if addr.Family == packet.AddrFamilyIPv4 {
			mapped := addr.IP.To16()
			if mapped == nil {
				return fmt.Errorf("dht: could not map IPv4 address %v to IPv6", addr.IP)
			}
			dst = packet.SocketAddr{Family: packet.AddrFamilyIPv6, IP: mapped, Port: addr.Port}
		}
	} else if addr.Family == packet.AddrFamilyIPv6 {
		return dhterrors.AddressFamilyMismatch()
	}

	udpAddr := &net.UDPAddr{IP: dst.IP, Port: int(dst.Port)}
	if !s.outbound.Enqueue(env, udpAddr) {
		s.logger.Debug("outbound queue full, dropping datagram", "dest", udpAddr.String())
	}
	return nil
}

// sealedEnvelope encrypts payload under the shared key derived from our
// secret key and the peer's public key, wrapping it with the given kind.
func (s *Server) sealedEnvelope(kind packet.Kind, peerPK cryptobox.PublicKey, payload []byte) (packet.Envelope, error) {
	shared := cryptobox.Precompute(peerPK, s.ownSK)
	nonce, ciphertext, err := cryptobox.Seal(shared, payload)
	if err != nil {
		return packet.Envelope{}, fmt.Errorf("dht: sealing %s payload: %w", kind, err)
	}
	return packet.Envelope{Kind: kind, SenderPK: s.ownPK, Nonce: nonce, Body: ciphertext}, nil
}

// openEnvelope authenticated-decrypts env's body, returning the
// plaintext payload.
func (s *Server) openEnvelope(env packet.Envelope) ([]byte, bool) {
	shared := cryptobox.Precompute(env.SenderPK, s.ownSK)
	return cryptobox.Open(shared, env.Nonce, env.Body)
}
