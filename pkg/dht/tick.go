package dht

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/holepunch"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// SeedBootstrap files a freshly loaded seed list (spec §4.1 step 3) into
// the bootstrap candidate bucket for the next Tick to contact. Typically
// called once at startup with bootstrap.DefaultSeeds or a custom list.
func (s *Server) SeedBootstrap(seeds []packet.PackedNode, now time.Time) {
	s.bootstrapMu.Lock()
	defer s.bootstrapMu.Unlock()
	for _, n := range seeds {
		s.bootstrapNodes.TryAdd(n, now)
	}
}

// Tick runs one pass of the periodic maintenance loop (spec §4.1): it
// expires stale correlation state, rotates the onion symmetric key,
// contacts bootstrap candidates and close nodes, drives friend discovery,
// flushes the opportunistic ping-sender queue, and advances every
// friend's hole-punch attempt. Every step is independent and its errors
// are logged rather than propagated, so one failing peer never stalls
// the rest of the pass (spec §7).
func (s *Server) Tick(now time.Time) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	if n := s.reqQueue.ClearTimedOut(now); n > 0 {
		s.logger.Debug("expired outstanding ping ids", "count", n)
	}

	if err := s.onionKeyring.MaybeRotate(now); err != nil {
		s.logger.Debug("onion key rotation failed", "error", err)
	}
	s.onionKeyring.Table().ExpireOld(now)
	s.announceLimiter.EvictIdle(now.Add(-announceRateLimitWindow))

	s.tickBootstrapCandidates(now)
	s.tickCloseNodes(now)
	s.tickRandomNeighborRequest(now)
	s.tickFriends(now)
	s.tickPingSender()
	s.tickNatPunch(now)
}

// tickBootstrapCandidates sends a NodesRequest for our own PK to every
// pending bootstrap candidate, then drops it from the bucket: replies
// feed new nodes into the close list via handleNodesResponse, so the
// candidate itself need not be retained (spec §4.1 step 3).
func (s *Server) tickBootstrapCandidates(now time.Time) {
	s.bootstrapMu.Lock()
	entries := s.bootstrapNodes.Entries()
	for _, e := range entries {
		s.bootstrapNodes.Remove(e.Node.PK)
	}
	s.bootstrapMu.Unlock()

	for _, e := range entries {
		if err := s.sendNodesRequest(e.Node); err != nil {
			s.logger.Debug("bootstrap nodes request failed", "peer", e.Node.PK, "error", err)
		}
	}
}

// tickCloseNodes evicts close-list entries that have gone silent for more
// than three PingIntervals and re-pings the rest at PingInterval cadence
// (spec §4.1 step 4).
func (s *Server) tickCloseNodes(now time.Time) {
	s.closeMu.Lock()
	for _, pk := range s.closeNodes.EvictTimedOut(now, s.cfg.PingInterval*3) {
		delete(s.lastPingReqAt, pk)
	}
	due := make([]packet.PackedNode, 0)
	for _, e := range s.closeNodes.GetClosest(s.ownPK, kbucketScanWidth, false) {
		if last, ok := s.lastPingReqAt[e.PK]; !ok || now.Sub(last) >= s.cfg.PingInterval {
			due = append(due, e)
			s.lastPingReqAt[e.PK] = now
		}
	}
	s.closeMu.Unlock()

	for _, n := range due {
		if err := s.sendPingRequest(n); err != nil {
			s.logger.Debug("close node ping failed", "peer", n.PK, "error", err)
		}
	}
}

// kbucketScanWidth bounds how many close-list entries a single tick
// considers for re-pinging, keeping one slow pass from growing unbounded
// as the close list fills in.
const kbucketScanWidth = 32

// tickRandomNeighborRequest drives the aggressive bootstrap-phase cadence
// (MAX_BOOTSTRAP_TIMES rounds fired on effectively every tick) before
// settling into the steady-state NodesReqInterval cadence (spec §4.1
// step 5): fire unconditionally while the round counter hasn't reached
// MAX_BOOTSTRAP_TIMES, and gate on NodesReqInterval only afterward.
func (s *Server) tickRandomNeighborRequest(now time.Time) {
	bootstrapping := s.roundCounter.InProgress()
	if !bootstrapping && !s.lastNodesReqTime.IsZero() && now.Sub(s.lastNodesReqTime) < s.cfg.NodesReqInterval {
		return
	}
	s.lastNodesReqTime = now

	s.closeMu.RLock()
	good := s.closeNodes.GoodEntries(now, s.cfg.PingInterval)
	s.closeMu.RUnlock()
	if len(good) == 0 {
		return
	}
	idx, err := biasedIndex(len(good))
	if err != nil {
		s.logger.Debug("random neighbor target selection failed", "error", err)
		return
	}
	target := good[idx].Node

	if err := s.sendNodesRequest(target); err != nil {
		s.logger.Debug("random neighbor request failed", "peer", target.PK, "error", err)
		return
	}
	if bootstrapping {
		s.roundCounter.Increment()
	}
}

// biasedIndex picks an index into a good-node list of length n using the
// documented two-stage sample that biases toward smaller indices, i.e.
// closer nodes (spec §4.1 step 5; spec §9 Design Notes forbids
// simplifying this to a uniform random pick): draw r uniformly from
// [0, n), then if r != 0 replace it with a second draw uniformly from
// [0, r].
func biasedIndex(n int) (int, error) {
	r, err := randomUint32(uint32(n))
	if err != nil {
		return 0, err
	}
	ri := int(r)
	if ri != 0 {
		r2, err := randomUint32(uint32(ri + 1))
		if err != nil {
			return 0, err
		}
		ri -= int(r2)
	}
	return ri, nil
}

// randomUint32 draws a uniform random value in [0, bound) from the same
// CSPRNG used elsewhere in this package for protocol-level randomness
// (ping ids, hole-punch round ids).
func randomUint32(bound uint32) (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]) % bound, nil
}

// tickFriends runs send_nodes_req_packets for every friend due for
// another round (spec §4.1 step 6).
func (s *Server) tickFriends(now time.Time) {
	for _, f := range s.friends.All() {
		if !f.DueForNodesReq(now, s.cfg.NodesReqInterval) {
			continue
		}
		for _, n := range f.NodesReqTargets() {
			if err := s.sendNodesRequestFor(n, f.PK); err != nil {
				s.logger.Debug("friend nodes request failed", "friend", f.PK, "peer", n.PK, "error", err)
			}
		}
	}
}

// tickPingSender flushes candidates queued opportunistically while
// handling inbound packets (spec §4.1 step 7).
func (s *Server) tickPingSender() {
	for _, c := range s.pingSender.Drain() {
		if err := s.sendPingRequest(packet.PackedNode{PK: c.PK, Addr: c.Addr}); err != nil {
			s.logger.Debug("ping sender flush failed", "peer", c.PK, "error", err)
		}
	}
}

// tickNatPunch starts a fresh NatPingRequest round for every friend due
// for one and advances each friend's hole-punch state machine against
// its currently known candidate addresses (spec §4.1 step 8, §4.7).
func (s *Server) tickNatPunch(now time.Time) {
	if !s.holePunchingEnabled() {
		return
	}
	for _, f := range s.friends.All() {
		candidates := f.CandidateAddrs()
		if len(candidates) == 0 {
			continue
		}
		if f.HolePunch.Strategy() == holepunch.StrategyNone {
			id, err := f.HolePunch.NewRound(now)
			if err != nil {
				s.logger.Debug("nat ping round generation failed", "friend", f.PK, "error", err)
				continue
			}
			inner := packet.NatPingPayload{ID: id}.Encode(packet.InnerKindNatPingRequest)
			if err := s.sendDhtRequest(f.PK, inner); err != nil {
				s.logger.Debug("nat ping request failed", "friend", f.PK, "error", err)
			}
			continue
		}

		targets := holepunch.TryNatPunch(f.HolePunch, candidates, now)
		for _, addr := range targets {
			if err := s.sendPingRequest(packet.PackedNode{PK: f.PK, Addr: addr}); err != nil {
				s.logger.Debug("hole punch probe failed", "friend", f.PK, "addr", addr, "error", err)
			}
		}
	}
}

func (s *Server) holePunchingEnabled() bool {
	return s.cfg == nil || s.cfg.EnableHolePunching
}

// sendPingRequest sends a fresh PingRequest to n, correlating the reply
// through the request queue.
func (s *Server) sendPingRequest(n packet.PackedNode) error {
	id, err := s.reqQueue.NewPingID(n.PK, time.Now())
	if err != nil {
		return err
	}
	env, err := s.sealedEnvelope(packet.KindPingRequest, n.PK, packet.PingPayload{ID: id}.Encode())
	if err != nil {
		return err
	}
	return s.sendTo(n.Addr, env)
}

// sendNodesRequest sends a NodesRequest for our own PK to n.
func (s *Server) sendNodesRequest(n packet.PackedNode) error {
	return s.sendNodesRequestFor(n, s.ownPK)
}

// sendNodesRequestFor sends a NodesRequest for target to n, correlating
// the reply through the request queue.
func (s *Server) sendNodesRequestFor(n packet.PackedNode, target cryptobox.PublicKey) error {
	id, err := s.reqQueue.NewPingID(n.PK, time.Now())
	if err != nil {
		return err
	}
	req := packet.NodesRequestPayload{Target: target, ID: id}
	env, err := s.sealedEnvelope(packet.KindNodesRequest, n.PK, req.Encode())
	if err != nil {
		return err
	}
	return s.sendTo(n.Addr, env)
}
