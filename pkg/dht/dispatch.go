package dht

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/dhterrors"
	"github.com/toxdht/dhtnode/pkg/kbucket"
	"github.com/toxdht/dhtnode/pkg/packet"
	"github.com/toxdht/dhtnode/pkg/pingsender"
	"github.com/toxdht/dhtnode/pkg/safeconv"
)

// socketAddrFrom converts a UDP source address into the wire SocketAddr
// form, rejecting a port the wire format's uint16 field cannot carry
// rather than silently truncating it.
func socketAddrFrom(from *net.UDPAddr) (packet.SocketAddr, error) {
	port, err := safeconv.IntToUint16(from.Port)
	if err != nil {
		return packet.SocketAddr{}, fmt.Errorf("dht: source port: %w", err)
	}
	return packet.NewSocketAddr(from.IP, port)
}

// errBadAuth is the underlying cause wrapped by dhterrors.Decrypt whenever
// authenticated decryption of a packet body fails outright (as opposed to
// failing to parse an already-decrypted payload).
var errBadAuth = errors.New("authentication failed")

// HandlePacket dispatches one decoded inbound envelope per spec §4.2.
// Every error is confined to the packet that produced it: nothing here
// escapes as a process-level failure (spec §7). Callers should log the
// returned error at debug and move on.
func (s *Server) HandlePacket(env packet.Envelope, from *net.UDPAddr) error {
	now := time.Now()
	s.metrics.RecordPacket(env.Kind.String())

	var err error
	switch env.Kind {
	case packet.KindPingRequest:
		err = s.handlePingRequest(env, from, now)
	case packet.KindPingResponse:
		err = s.handlePingResponse(env, from, now)
	case packet.KindNodesRequest:
		err = s.handleNodesRequest(env, from, now)
	case packet.KindNodesResponse:
		err = s.handleNodesResponse(env, from, now)
	case packet.KindCookieRequest:
		err = s.handleNetCrypto(env, from, s.netCrypto.HandleUDPCookieRequest)
	case packet.KindCookieResponse:
		err = s.handleNetCrypto(env, from, s.netCrypto.HandleUDPCookieResponse)
	case packet.KindCryptoHandshake:
		err = s.handleNetCrypto(env, from, s.netCrypto.HandleUDPCryptoHandshake)
	case packet.KindDhtRequest:
		err = s.handleDhtRequest(env, from, now)
	case packet.KindLanDiscovery:
		err = s.handleLanDiscovery(env, from)
	case packet.KindOnionRequest0, packet.KindOnionRequest1, packet.KindOnionRequest2:
		err = s.handleOnionRequest(env, from)
	case packet.KindOnionAnnounceRequest, packet.KindOnionDataRequest:
		// These only ever appear as the innermost layer of an
		// OnionRequest2, never as a bare top-level wire packet; see
		// handleOnionExit.
		err = dhterrors.Unhandled(env.Kind.String())
	case packet.KindOnionResponse3, packet.KindOnionResponse2, packet.KindOnionResponse1:
		err = s.handleOnionResponse(env, from)
	case packet.KindBootstrapInfo:
		err = s.handleBootstrapInfo(env, from)
	default:
		err = dhterrors.Unhandled(env.Kind.String())
	}

	if err != nil {
		s.metrics.RecordPacketError()
		s.logger.Debug("packet handling failed", "kind", env.Kind.String(), "from", from.String(), "error", err)
	}
	return err
}

func (s *Server) handlePingRequest(env packet.Envelope, from *net.UDPAddr, now time.Time) error {
	plaintext, ok := s.openEnvelope(env)
	if !ok {
		return dhterrors.Decrypt(errBadAuth)
	}
	req, err := packet.DecodePingPayload(plaintext)
	if err != nil {
		return dhterrors.Decrypt(err)
	}
	if req.ID == 0 {
		return dhterrors.PingIDZero()
	}

	addr, err := socketAddrFrom(from)
	if err != nil {
		return err
	}
	respEnv, err := s.sealedEnvelope(packet.KindPingResponse, env.SenderPK, packet.PingPayload{ID: req.ID}.Encode())
	if err != nil {
		return err
	}
	if err := s.sendTo(addr, respEnv); err != nil {
		return err
	}

	s.pingSender.Enqueue(pingsender.Candidate{PK: env.SenderPK, Addr: addr})
	return nil
}

func (s *Server) handlePingResponse(env packet.Envelope, from *net.UDPAddr, now time.Time) error {
	plaintext, ok := s.openEnvelope(env)
	if !ok {
		return dhterrors.Decrypt(errBadAuth)
	}
	resp, err := packet.DecodePingPayload(plaintext)
	if err != nil {
		return dhterrors.Decrypt(err)
	}
	if resp.ID == 0 {
		return dhterrors.PingIDZero()
	}
	if err := s.reqQueue.CheckPingID(resp.ID, env.SenderPK, now); err != nil {
		return err
	}

	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if !s.closeNodes.Touch(env.SenderPK, now) {
		return dhterrors.UnknownNode()
	}
	return nil
}

func (s *Server) handleNodesRequest(env packet.Envelope, from *net.UDPAddr, now time.Time) error {
	plaintext, ok := s.openEnvelope(env)
	if !ok {
		return dhterrors.Decrypt(errBadAuth)
	}
	req, err := packet.DecodeNodesRequestPayload(plaintext)
	if err != nil {
		return dhterrors.Decrypt(err)
	}

	srcAddr, err := socketAddrFrom(from)
	if err != nil {
		return err
	}
	globalOnly := srcAddr.IsGlobal()
	nodes := s.closestNodes(req.Target, 4, globalOnly)

	payload, err := packet.NodesResponsePayload{ID: req.ID, Nodes: nodes}.Encode()
	if err != nil {
		return err
	}
	respEnv, err := s.sealedEnvelope(packet.KindNodesResponse, env.SenderPK, payload)
	if err != nil {
		return err
	}
	if err := s.sendTo(srcAddr, respEnv); err != nil {
		return err
	}

	s.pingSender.Enqueue(pingsender.Candidate{PK: env.SenderPK, Addr: srcAddr})
	return nil
}

// closestNodes merges the server's own close list with every friend's
// close bucket before ranking by XOR distance (spec §4.2 NodesRequest
// row: "assemble ≤4 closest nodes from close list + friends").
func (s *Server) closestNodes(target cryptobox.PublicKey, count int, globalOnly bool) []packet.PackedNode {
	s.closeMu.RLock()
	all := s.closeNodes.GetClosest(target, count, globalOnly)
	s.closeMu.RUnlock()

	for _, f := range s.friends.All() {
		for _, e := range f.CloseNodes.Entries() {
			if globalOnly && !e.Node.Addr.IsGlobal() {
				continue
			}
			all = append(all, e.Node)
		}
	}
	dedupeAndSortByDistance(all, target)
	if len(all) > count {
		all = all[:count]
	}
	return all
}

func dedupeAndSortByDistance(nodes []packet.PackedNode, target cryptobox.PublicKey) []packet.PackedNode {
	seen := make(map[cryptobox.PublicKey]bool, len(nodes))
	out := nodes[:0]
	for _, n := range nodes {
		if seen[n.PK] {
			continue
		}
		seen[n.PK] = true
		out = append(out, n)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && kbucket.Closer(target, out[j].PK, out[j-1].PK); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (s *Server) handleNodesResponse(env packet.Envelope, from *net.UDPAddr, now time.Time) error {
	plaintext, ok := s.openEnvelope(env)
	if !ok {
		return dhterrors.Decrypt(errBadAuth)
	}
	resp, err := packet.DecodeNodesResponsePayload(plaintext)
	if err != nil {
		return dhterrors.Decrypt(err)
	}
	if err := s.reqQueue.CheckPingID(resp.ID, env.SenderPK, now); err != nil {
		return err
	}

	for _, node := range resp.Nodes {
		s.closeMu.Lock()
		s.closeNodes.TryAdd(node, now)
		s.closeMu.Unlock()

		s.bootstrapMu.Lock()
		s.bootstrapNodes.TryAdd(node, now)
		s.bootstrapMu.Unlock()

		s.friends.TryAddToAll(node, now)
	}
	return nil
}

func (s *Server) handleNetCrypto(env packet.Envelope, from *net.UDPAddr, handler func([]byte, cryptobox.PublicKey, *net.UDPAddr) error) error {
	if s.netCrypto == nil {
		return dhterrors.NetCryptoUninitialized()
	}
	return handler(env.Body, env.SenderPK, from)
}

func (s *Server) handleDhtRequest(env packet.Envelope, from *net.UDPAddr, now time.Time) error {
	plaintext, ok := s.openEnvelope(env)
	if !ok {
		return dhterrors.Decrypt(errBadAuth)
	}
	req, err := packet.DecodeDhtRequestPayload(plaintext)
	if err != nil {
		return dhterrors.Decrypt(err)
	}

	if req.ReceiverPK != s.ownPK {
		s.closeMu.RLock()
		nodes := s.closeNodes.GetClosest(req.ReceiverPK, 1, false)
		s.closeMu.RUnlock()
		target, found := findExact(nodes, req.ReceiverPK)
		if !found {
			return nil // recipient unknown; drop silently per spec
		}
		fwdEnv := packet.Envelope{Kind: packet.KindDhtRequest, SenderPK: env.SenderPK, Nonce: env.Nonce, Body: env.Body}
		return s.sendTo(target.Addr, fwdEnv)
	}

	shared := cryptobox.Precompute(req.SenderPK, s.ownSK)
	inner, ok := cryptobox.Open(shared, req.Nonce, req.Inner)
	if !ok || len(inner) < 1 {
		return dhterrors.Decrypt(errBadAuth)
	}

	switch packet.InnerKind(inner[0]) {
	case packet.InnerKindNatPingRequest:
		return s.handleNatPingRequest(req.SenderPK, inner, from)
	case packet.InnerKindNatPingResponse:
		return s.handleNatPingResponse(req.SenderPK, inner, now)
	case packet.InnerKindDhtPkAnnounce:
		// Decoded and then dropped: nothing in this core consumes it (spec
		// §9 Open Questions). The signature is not verified.
		announce, err := packet.DecodeDhtPkAnnouncePayload(inner)
		if err != nil {
			s.logger.Debug("dropping malformed DhtPkAnnounce", "peer", req.SenderPK, "error", err)
			return nil
		}
		s.logger.Debug("dropping DhtPkAnnounce", "peer", req.SenderPK, "announced_pk", announce.AnnouncedPK)
		return nil
	default:
		return dhterrors.Unhandled(packet.InnerKind(inner[0]).String())
	}
}

func findExact(nodes []packet.PackedNode, pk cryptobox.PublicKey) (packet.PackedNode, bool) {
	for _, n := range nodes {
		if n.PK == pk {
			return n, true
		}
	}
	return packet.PackedNode{}, false
}

func (s *Server) handleNatPingRequest(senderPK cryptobox.PublicKey, inner []byte, from *net.UDPAddr) error {
	ping, err := packet.DecodeNatPingPayload(inner)
	if err != nil {
		return dhterrors.Decrypt(err)
	}
	respInner := packet.NatPingPayload{ID: ping.ID}.Encode(packet.InnerKindNatPingResponse)
	return s.sendDhtRequest(senderPK, respInner)
}

func (s *Server) handleNatPingResponse(senderPK cryptobox.PublicKey, inner []byte, now time.Time) error {
	ping, err := packet.DecodeNatPingPayload(inner)
	if err != nil {
		return dhterrors.Decrypt(err)
	}
	if ping.ID == 0 {
		return dhterrors.PingIDZero()
	}
	f, ok := s.friends.Get(senderPK)
	if !ok {
		return dhterrors.FriendNotFound()
	}
	f.HolePunch.CheckNatPingResponse(ping.ID, now)
	return nil
}

// sendDhtRequest wraps innerPlaintext (already tagged with its InnerKind
// byte) as a DhtRequest addressed to destPK, encrypting the inner layer
// under the shared secret with destPK and the outer envelope under the
// same (spec §4.2's DhtRequest is itself an encrypted envelope whose body
// carries a second, inner encryption layer).
func (s *Server) sendDhtRequest(destPK cryptobox.PublicKey, innerPlaintext []byte) error {
	s.closeMu.RLock()
	nodes := s.closeNodes.GetClosest(destPK, 1, false)
	s.closeMu.RUnlock()
	target, found := findExact(nodes, destPK)
	if !found {
		return nil
	}

	shared := cryptobox.Precompute(destPK, s.ownSK)
	innerNonce, innerCipher, err := cryptobox.Seal(shared, innerPlaintext)
	if err != nil {
		return err
	}
	reqPayload := packet.DhtRequestPayload{
		ReceiverPK: destPK,
		SenderPK:   s.ownPK,
		Nonce:      innerNonce,
		Inner:      innerCipher,
	}
	env, err := s.sealedEnvelope(packet.KindDhtRequest, destPK, reqPayload.Encode())
	if err != nil {
		return err
	}
	return s.sendTo(target.Addr, env)
}

func (s *Server) handleLanDiscovery(env packet.Envelope, from *net.UDPAddr) error {
	if !s.isLANEnabled() {
		return nil
	}
	payload, err := packet.DecodeLanDiscoveryPayload(env.Body)
	if err != nil {
		return err
	}
	if payload.PK == s.ownPK {
		return nil
	}

	addr, err := socketAddrFrom(from)
	if err != nil {
		return err
	}
	id, err := s.reqQueue.NewPingID(payload.PK, time.Now())
	if err != nil {
		return err
	}
	reqPayload := packet.NodesRequestPayload{Target: s.ownPK, ID: id}
	respEnv, err := s.sealedEnvelope(packet.KindNodesRequest, payload.PK, reqPayload.Encode())
	if err != nil {
		return err
	}
	return s.sendTo(addr, respEnv)
}

func (s *Server) handleBootstrapInfo(env packet.Envelope, from *net.UDPAddr) error {
	addr, err := socketAddrFrom(from)
	if err != nil {
		return err
	}
	version, motd := s.bootstrapInfo()
	payload, err := packet.BootstrapInfoPayload{Version: version, Motd: motd}.Encode()
	if err != nil {
		return err
	}
	respEnv := packet.Envelope{Kind: packet.KindBootstrapInfo, Body: payload}
	return s.sendTo(addr, respEnv)
}
