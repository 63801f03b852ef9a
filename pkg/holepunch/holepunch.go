// Package holepunch implements the per-friend NAT-traversal state machine
// driven once per periodic tick: once a NatPingResponse confirms the
// friend is reachable, the controller advances through increasingly
// aggressive strategies to establish a direct path (spec §4.7).
package holepunch

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/toxdht/dhtnode/pkg/packet"
)

// NatPingInterval bounds how recent a NatPingResponse must be for the
// controller to consider punching eligible (spec §4.2, NAT_PING_INTERVAL).
const NatPingInterval = 3 * time.Second

// Strategy is the current stage of a friend's hole-punch attempt.
type Strategy int

const (
	// StrategyNone means no punching is in progress; the friend has not
	// been confirmed reachable yet.
	StrategyNone Strategy = iota
	// StrategyDirect means a direct send to the friend's last known
	// address is being attempted before resorting to punching.
	StrategyDirect
	// StrategyPunching means the controller is sending to every observed
	// candidate address concurrently.
	StrategyPunching
	// StrategyFountain means candidates are exhausted; the controller
	// sprays PingRequests across a predicted range of ports on the
	// friend's known IP, hoping to land on the NAT's chosen outbound port.
	StrategyFountain
)

func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyDirect:
		return "direct"
	case StrategyPunching:
		return "punching"
	case StrategyFountain:
		return "fountain"
	default:
		return "unknown"
	}
}

// FountainPortSpread is how many ports to either side of an observed
// candidate's port the fountain strategy probes.
const FountainPortSpread = 8

// State is one friend's hole-punch progress (spec data model: HolePunch).
type State struct {
	mu               sync.Mutex
	PingID           uint64
	LastSendPingTime time.Time
	LastRecvPingTime time.Time
	IsPunchingDone   bool
	strategy         Strategy
	candidates       []packet.SocketAddr
}

// NewState constructs an idle hole-punch state.
func NewState() *State {
	return &State{strategy: StrategyNone}
}

// ConfirmReachable is called when a NatPingResponse validates the
// friend's current ping_id within NatPingInterval: it advances an idle
// state to StrategyDirect.
func (s *State) ConfirmReachable(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastRecvPingTime = now
	if s.strategy == StrategyNone {
		s.strategy = StrategyDirect
	}
}

// CheckNatPingResponse reports whether a NatPingResponse carrying id
// confirms reachability: the response must arrive while the round that
// produced id is still fresh (elapsed(last_recv_ping_time) <
// NatPingInterval) and id must match the round's ping_id (spec §4.2,
// NatPingResponse row; matches the last_recv_ping_time check in the
// reference hole-punch handler). On success it advances an idle state to
// StrategyDirect and restamps LastRecvPingTime to the actual receive
// time; on failure state is unchanged.
func (s *State) CheckNatPingResponse(id uint64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := !s.LastRecvPingTime.IsZero() && now.Sub(s.LastRecvPingTime) < NatPingInterval
	if !fresh || id != s.PingID {
		return false
	}
	s.LastRecvPingTime = now
	if s.strategy == StrategyNone {
		s.strategy = StrategyDirect
	}
	return true
}

// Strategy returns the current strategy.
func (s *State) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// NewRound resets ping_id to a fresh nonzero random value and clears the
// punching-done flag, starting a new attempt (spec §4.7, "ping_id
// regenerated when a new round starts"). LastRecvPingTime is seeded to
// now as well, so CheckNatPingResponse's freshness window runs from the
// round's start until either a matching response arrives (which restamps
// it to the actual receive time) or NatPingInterval elapses.
func (s *State) NewRound(now time.Time) (uint64, error) {
	var buf [8]byte
	var id uint64
	for id == 0 {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		id = binary.LittleEndian.Uint64(buf[:])
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PingID = id
	s.LastSendPingTime = now
	s.LastRecvPingTime = now
	s.IsPunchingDone = false
	return id, nil
}

// TryNatPunch advances the state machine by one step given the currently
// known candidate addresses, returning the addresses (if any) that should
// receive a punch packet this tick (spec §4.7).
func TryNatPunch(s *State, candidates []packet.SocketAddr, now time.Time) []packet.SocketAddr {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.candidates = candidates
	if s.strategy == StrategyNone || len(candidates) == 0 {
		return nil
	}

	switch s.strategy {
	case StrategyDirect:
		s.strategy = StrategyPunching
		return candidates[:1]
	case StrategyPunching:
		if len(candidates) > 1 {
			return candidates
		}
		s.strategy = StrategyFountain
		return fountainAddrs(candidates[0])
	case StrategyFountain:
		return fountainAddrs(candidates[0])
	default:
		return nil
	}
}

func fountainAddrs(base packet.SocketAddr) []packet.SocketAddr {
	out := make([]packet.SocketAddr, 0, FountainPortSpread*2+1)
	for delta := -FountainPortSpread; delta <= FountainPortSpread; delta++ {
		port := int(base.Port) + delta
		if port < 1 || port > 65535 {
			continue
		}
		out = append(out, packet.SocketAddr{Family: base.Family, IP: base.IP, Port: uint16(port)})
	}
	return out
}

// MarkDone records that a direct path was established.
func (s *State) MarkDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IsPunchingDone = true
	s.strategy = StrategyNone
}
