// Package friend tracks the peers a local user has asked the DHT to help
// locate: each Friend owns its own close-node bucket (biased toward the
// friend's public key, never a shared reference to the server's own close
// list — spec §9 "Cyclic references") plus hole-punch state.
package friend

import (
	"sync"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/holepunch"
	"github.com/toxdht/dhtnode/pkg/kbucket"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// MaxNodesReqTargets bounds how many close-bucket entries a single
// send_nodes_req_packets pass contacts (spec §4.1 step 6).
const MaxNodesReqTargets = 4

// Friend is one searched-for peer: its own independent close-node bucket
// and hole-punch state machine.
type Friend struct {
	PK          cryptobox.PublicKey
	CloseNodes  *kbucket.Bucket
	HolePunch   *holepunch.State
	lastNodesReq time.Time
	mu          sync.Mutex
}

// New constructs a Friend for pk with a fresh, independent close-node
// bucket (capacity 8, per spec §9).
func New(pk cryptobox.PublicKey) *Friend {
	return &Friend{
		PK:         pk,
		CloseNodes: kbucket.NewBucket(pk, kbucket.DefaultCapacity),
		HolePunch:  holepunch.NewState(),
	}
}

// TryAddCandidate files a node discovered for this friend (e.g. from a
// NodesResponse) into the friend's own bucket. Because Friend.CloseNodes
// is a Bucket value distinct from the server's close list, this can never
// alias or mutate server state.
func (f *Friend) TryAddCandidate(node packet.PackedNode, now time.Time) bool {
	return f.CloseNodes.TryAdd(node, now)
}

// DueForNodesReq reports whether it is time to run another
// send_nodes_req_packets pass for this friend, and stamps now if so.
func (f *Friend) DueForNodesReq(now time.Time, interval time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.lastNodesReq.IsZero() && now.Sub(f.lastNodesReq) < interval {
		return false
	}
	f.lastNodesReq = now
	return true
}

// NodesReqTargets returns up to MaxNodesReqTargets entries from the
// friend's close bucket to send a NodesRequest for the friend's own PK
// (spec §4.1 step 6).
func (f *Friend) NodesReqTargets() []packet.PackedNode {
	entries := f.CloseNodes.Entries()
	if len(entries) > MaxNodesReqTargets {
		entries = entries[:MaxNodesReqTargets]
	}
	out := make([]packet.PackedNode, len(entries))
	for i, e := range entries {
		out[i] = e.Node
	}
	return out
}

// CandidateAddrs returns every address currently known for this friend,
// for the hole-punch controller to probe (spec §4.1 step 8).
func (f *Friend) CandidateAddrs() []packet.SocketAddr {
	entries := f.CloseNodes.Entries()
	out := make([]packet.SocketAddr, len(entries))
	for i, e := range entries {
		out[i] = e.Node.Addr
	}
	return out
}

// List is a concurrency-safe collection of friends keyed by public key.
type List struct {
	mu      sync.RWMutex
	friends map[cryptobox.PublicKey]*Friend
}

// NewList constructs an empty friend list.
func NewList() *List {
	return &List{friends: make(map[cryptobox.PublicKey]*Friend)}
}

// Add registers a new friend, returning the existing entry if pk is
// already present.
func (l *List) Add(pk cryptobox.PublicKey) *Friend {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.friends[pk]; ok {
		return f
	}
	f := New(pk)
	l.friends[pk] = f
	return f
}

// Get retrieves the friend entry for pk, if any.
func (l *List) Get(pk cryptobox.PublicKey) (*Friend, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.friends[pk]
	return f, ok
}

// Remove deletes the friend entry for pk.
func (l *List) Remove(pk cryptobox.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.friends, pk)
}

// All returns a snapshot slice of every current friend.
func (l *List) All() []*Friend {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Friend, 0, len(l.friends))
	for _, f := range l.friends {
		out = append(out, f)
	}
	return out
}

// TryAddToAll offers node to every friend's close bucket — used when a
// NodesResponse returns candidates that may usefully sit in more than one
// friend's bucket (spec dispatch table, NodesResponse row).
func (l *List) TryAddToAll(node packet.PackedNode, now time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, f := range l.friends {
		f.TryAddCandidate(node, now)
	}
}
