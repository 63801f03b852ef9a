package dht

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/dhterrors"
	"github.com/toxdht/dhtnode/pkg/onionannounce"
	"github.com/toxdht/dhtnode/pkg/onionforward"
	"github.com/toxdht/dhtnode/pkg/packet"
	"github.com/toxdht/dhtnode/pkg/safeconv"
)

// Onion request/response forwarding (spec §4.5, §4.6).
//
// Each of the three request hops decrypts exactly one layer with
// OpenRequestLayer, learns the next hop's address and the still-sealed
// payload meant for it, and forwards that payload onward wrapped in the
// next Kind. Every hop also appends its own OnionReturn cookie to the
// packet it forwards, nesting whatever cookie it itself received (none at
// the first hop), so that the response can retrace the path without any hop
// keeping state across the request/response round trip (spec §9, no
// cyclic or session-held path state). Cookies travel as a length-suffixed
// trailer on the envelope body: [ciphertext or payload] [cookie]
// [uint16 cookie length]; OnionRequest0 carries no trailer since it is
// the first hop and has no prior cookie to relay.

func splitTrailer(body []byte) (head, trailer []byte, err error) {
	if len(body) < 2 {
		return nil, nil, fmt.Errorf("dht: onion body too short for a trailer")
	}
	n := int(binary.BigEndian.Uint16(body[len(body)-2:]))
	if n > len(body)-2 {
		return nil, nil, fmt.Errorf("dht: onion trailer length %d exceeds body", n)
	}
	split := len(body) - 2 - n
	return body[:split], body[split : len(body)-2], nil
}

func appendTrailer(head, trailer []byte) ([]byte, error) {
	n, err := safeconv.LenToUint16(trailer)
	if err != nil {
		return nil, fmt.Errorf("dht: onion return cookie too large to frame: %w", err)
	}
	out := make([]byte, 0, len(head)+len(trailer)+2)
	out = append(out, head...)
	out = append(out, trailer...)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], n)
	return append(out, lenBuf[:]...), nil
}

// handleOnionRequest peels one layer of an OnionRequest0/1/2 packet and
// either forwards the next layer onward or, at the innermost hop,
// dispatches directly into the onion announce/data-request handlers.
func (s *Server) handleOnionRequest(env packet.Envelope, from *net.UDPAddr) error {
	now := time.Now()
	fromAddr, err := socketAddrFrom(from)
	if err != nil {
		return err
	}

	ciphertext := env.Body
	var incomingReturn []byte
	if env.Kind != packet.KindOnionRequest0 {
		ciphertext, incomingReturn, err = splitTrailer(env.Body)
		if err != nil {
			return dhterrors.OnionReturnInvalid(err)
		}
	}

	layer, err := onionforward.OpenRequestLayer(s.ownSK, env.SenderPK, env.Nonce, ciphertext)
	if err != nil {
		return err
	}

	returnCookie, err := onionforward.WrapReturn(s.onionKeyring.CurrentKey(), fromAddr, onionforward.ProtocolUDP, incomingReturn)
	if err != nil {
		return err
	}

	switch env.Kind {
	case packet.KindOnionRequest0:
		return s.forwardOnionRequest(packet.KindOnionRequest1, layer, returnCookie)
	case packet.KindOnionRequest1:
		return s.forwardOnionRequest(packet.KindOnionRequest2, layer, returnCookie)
	case packet.KindOnionRequest2:
		return s.handleOnionExit(layer.Payload, returnCookie, fromAddr, now)
	default:
		return dhterrors.Unhandled(env.Kind.String())
	}
}

// forwardOnionRequest sends the next layer's envelope (already fully
// formed inside layer.Payload: kind, ephemeral PK, nonce, ciphertext) on
// to layer.NextAddr, with this hop's return cookie appended as a trailer.
func (s *Server) forwardOnionRequest(kind packet.Kind, layer onionforward.RequestLayer, returnCookie []byte) error {
	next, err := packet.Decode(layer.Payload)
	if err != nil {
		return fmt.Errorf("dht: decoding forwarded onion layer: %w", err)
	}
	if next.Kind != kind {
		return fmt.Errorf("dht: forwarded onion layer carried kind %s, expected %s", next.Kind, kind)
	}
	body, err := appendTrailer(next.Body, returnCookie)
	if err != nil {
		return err
	}
	next.Body = body
	return s.sendTo(layer.NextAddr, next)
}

// handleOnionExit processes the innermost onion request payload, which
// the exit hop always receives as a 1-byte kind tag followed by either an
// OnionAnnounceRequest or OnionDataRequest payload (spec §4.6).
func (s *Server) handleOnionExit(payload []byte, returnCookie []byte, from packet.SocketAddr, now time.Time) error {
	if len(payload) < 1 {
		return fmt.Errorf("dht: empty onion exit payload")
	}
	switch packet.Kind(payload[0]) {
	case packet.KindOnionAnnounceRequest:
		if !s.announceLimiter.Allow(addrKey(from), now) {
			return dhterrors.RateLimited("OnionAnnounceRequest")
		}
		return s.handleOnionAnnounceRequest(payload[1:], returnCookie, now)
	case packet.KindOnionDataRequest:
		return s.handleOnionDataRequest(payload[1:], returnCookie, now)
	default:
		return dhterrors.Unhandled(packet.Kind(payload[0]).String())
	}
}

// addrKey renders a SocketAddr as a rate-limiter map key. The exit hop
// only ever sees the address of the last relay it received the request
// from, never the original announcer's (spec §4.6's onion-path point),
// so this caps flood volume per upstream hop rather than per client.
func addrKey(addr packet.SocketAddr) string {
	return fmt.Sprintf("%s/%d", addr.IP.String(), addr.Port)
}

// handleOnionAnnounceRequest stores or refreshes the sender's announce
// entry and returns a status plus fresh ping-id candidates and close
// nodes to retry against (spec §4.6).
func (s *Server) handleOnionAnnounceRequest(body []byte, returnCookie []byte, now time.Time) error {
	req, err := packet.DecodeOnionAnnounceRequestPayload(body)
	if err != nil {
		return dhterrors.Decrypt(err)
	}

	// The announcer's real address is deliberately never visible to the
	// exit hop (that's the point of routing the announce through an onion
	// path), so the ping-id binds to the zero-value address sentinel
	// rather than any network address — both sides derive it the same
	// way without either needing to know the other's location.
	candidates, err := s.onionKeyring.PingIDCandidates(packet.SocketAddr{}, req.PK)
	if err != nil {
		return err
	}
	wantPingID := candidates[0]

	status := onionannounce.OnionAnnounceFailed
	matched := false
	for _, c := range candidates {
		if req.PingID == c {
			matched = true
			break
		}
	}
	if matched {
		status = onionannounce.OnionAnnounceAnnounced
		s.onionKeyring.Table().Store(wantPingID, req.PK, packet.SocketAddr{}, req.DataPK, now)
		s.onionKeyring.Table().SetReturnPath(wantPingID, returnCookie)
	}

	s.closeMu.RLock()
	nodes := s.closeNodes.GetClosest(req.PK, 4, false)
	s.closeMu.RUnlock()

	resp := packet.OnionAnnounceResponsePayload{Status: status, PingID: wantPingID, Nodes: nodes}
	respBody, err := resp.Encode()
	if err != nil {
		return err
	}
	return s.sendOnionExitResponse(packet.KindOnionAnnounceResponse, respBody, returnCookie)
}

// handleOnionDataRequest looks up the destination announcer's stored
// return path and relays the opaque inner ciphertext to it as an
// OnionDataResponse (spec §4.6).
func (s *Server) handleOnionDataRequest(body []byte, returnCookie []byte, now time.Time) error {
	req, err := packet.DecodeOnionDataRequestPayload(body)
	if err != nil {
		return dhterrors.Decrypt(err)
	}

	entry, ok := s.onionKeyring.Table().LookupByPK(req.DestPK, now)
	if !ok || len(entry.ReturnPath) == 0 {
		return nil // destination not currently announced here; drop silently
	}

	resp := packet.OnionDataResponsePayload{SenderTempPK: req.NonceP, Nonce: req.Nonce, Inner: req.Inner}
	respBody := resp.Encode()
	return s.sendOnionExitResponse(packet.KindOnionDataResponse, respBody, entry.ReturnPath)
}

// sendOnionExitResponse wraps respBody as the innermost OnionResponse3
// envelope, with returnCookie as its trailer, and sends it back to
// whichever address this node received the corresponding request from
// (tracked entirely by the cookie, never by server-held state).
func (s *Server) sendOnionExitResponse(innerKind packet.Kind, respBody []byte, returnCookie []byte) error {
	layer, err := onionforward.OpenResponseReturn(s.onionKeyring.CurrentKey(), previousKeyPtr(s.onionKeyring), returnCookie)
	if err != nil {
		return err
	}

	payload := make([]byte, 0, 1+len(respBody))
	payload = append(payload, byte(innerKind))
	payload = append(payload, respBody...)
	body, err := appendTrailer(payload, layer.InnerReturn)
	if err != nil {
		return err
	}
	env := packet.Envelope{Kind: packet.KindOnionResponse3, Body: body}
	return s.sendTo(layer.Addr, env)
}

// previousKeyPtr adapts Keyring.PreviousKey's (value, ok) pair to the
// pointer-or-nil shape onionforward.Open expects.
func previousKeyPtr(k interface {
	PreviousKey() (cryptobox.SymmetricKey, bool)
}) *cryptobox.SymmetricKey {
	key, ok := k.PreviousKey()
	if !ok {
		return nil
	}
	return &key
}

// handleOnionResponse peels one OnionReturn layer from an
// OnionResponse3/2/1 packet, forwarding the remaining payload either
// onward to the next hop or, once innermost, to the original requester
// over UDP or TCP as the cookie's protocol field names (spec §4.5).
func (s *Server) handleOnionResponse(env packet.Envelope, from *net.UDPAddr) error {
	payload, cookie, err := splitTrailer(env.Body)
	if err != nil {
		return dhterrors.OnionReturnInvalid(err)
	}

	layer, err := onionforward.OpenResponseReturn(s.onionKeyring.CurrentKey(), previousKeyPtr(s.onionKeyring), cookie)
	if err != nil {
		return err
	}

	if layer.IsInnermost() {
		return s.deliverOnionResponse(layer, payload)
	}

	var nextKind packet.Kind
	switch env.Kind {
	case packet.KindOnionResponse3:
		nextKind = packet.KindOnionResponse2
	case packet.KindOnionResponse2:
		nextKind = packet.KindOnionResponse1
	default:
		return dhterrors.Unhandled(env.Kind.String())
	}

	body, err := appendTrailer(payload, layer.InnerReturn)
	if err != nil {
		return err
	}
	return s.sendTo(layer.Addr, packet.Envelope{Kind: nextKind, Body: body})
}

// deliverOnionResponse hands the fully-unwrapped response payload to the
// original requester, over UDP if it addressed itself directly or via
// the configured TCP sink if the cookie names the TCP protocol.
func (s *Server) deliverOnionResponse(layer onionforward.ResponseLayer, payload []byte) error {
	if layer.Protocol == onionforward.ProtocolTCP {
		if s.tcpSink == nil {
			return dhterrors.TCPSinkAbsent()
		}
		return s.tcpSink.SendOnionResponse(payload, layer.Addr)
	}
	return s.sendTo(layer.Addr, packet.Envelope{Kind: packet.KindOnionResponse1, Body: payload})
}
