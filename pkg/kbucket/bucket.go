package kbucket

import (
	"sort"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// DefaultCapacity is the maximum number of entries a single Bucket holds,
// matching the reference close-list width.
const DefaultCapacity = 8

// Entry is a single close-list record: a node's address and key plus the
// bookkeeping needed to evict stale entries.
type Entry struct {
	Node     packet.PackedNode
	AddedAt  time.Time
	LastSeen time.Time
}

// Bucket holds up to Capacity entries ordered by ascending XOR distance
// from Owner, evicting the farthest entry when a closer candidate arrives
// at capacity (spec §4.4).
type Bucket struct {
	Owner    cryptobox.PublicKey
	Capacity int
	entries  []Entry
}

// NewBucket constructs an empty bucket of the given capacity, keyed by
// distance from owner. A capacity of 0 defaults to DefaultCapacity.
func NewBucket(owner cryptobox.PublicKey, capacity int) *Bucket {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bucket{Owner: owner, Capacity: capacity}
}

// Len returns the number of entries currently held.
func (b *Bucket) Len() int {
	return len(b.entries)
}

// Entries returns a copy of the bucket's entries, closest first.
func (b *Bucket) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Bucket) indexOf(pk cryptobox.PublicKey) int {
	for i, e := range b.entries {
		if e.Node.PK == pk {
			return i
		}
	}
	return -1
}

func (b *Bucket) insertSorted(e Entry) {
	dNew := Distance(b.Owner, e.Node.PK)
	i := sort.Search(len(b.entries), func(i int) bool {
		dExisting := Distance(b.Owner, b.entries[i].Node.PK)
		return lessOrEqual(dNew, dExisting)
	})
	b.entries = append(b.entries, Entry{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = e
}

// lessOrEqual reports whether a <= b under the same lexicographic ordering
// Distance uses to rank closeness.
func lessOrEqual(a, b [cryptobox.PublicKeySize]byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return true
}

// TryAdd inserts node, keeping the bucket sorted by ascending distance from
// Owner. If the node's key is already present, its address and LastSeen are
// refreshed in place. If the bucket is at capacity and node is farther than
// every current entry, it is rejected (returns false); otherwise the
// farthest entry is evicted to make room.
func (b *Bucket) TryAdd(node packet.PackedNode, now time.Time) bool {
	if node.PK == b.Owner {
		return false
	}
	if i := b.indexOf(node.PK); i >= 0 {
		addedAt := b.entries[i].AddedAt
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
		b.insertSorted(Entry{Node: node, AddedAt: addedAt, LastSeen: now})
		return true
	}
	if len(b.entries) < b.Capacity {
		b.insertSorted(Entry{Node: node, AddedAt: now, LastSeen: now})
		return true
	}
	farthest := b.entries[len(b.entries)-1]
	if !Closer(b.Owner, node.PK, farthest.Node.PK) {
		return false
	}
	b.entries = b.entries[:len(b.entries)-1]
	b.insertSorted(Entry{Node: node, AddedAt: now, LastSeen: now})
	return true
}

// Remove deletes the entry for pk, if present, returning whether one was
// removed.
func (b *Bucket) Remove(pk cryptobox.PublicKey) bool {
	i := b.indexOf(pk)
	if i < 0 {
		return false
	}
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return true
}

// Touch refreshes LastSeen for pk, reporting whether an entry was found.
func (b *Bucket) Touch(pk cryptobox.PublicKey, now time.Time) bool {
	if i := b.indexOf(pk); i >= 0 {
		b.entries[i].LastSeen = now
		return true
	}
	return false
}

// EvictTimedOut removes entries whose LastSeen is older than timeout,
// returning the keys of the entries removed so callers can prune any
// per-peer bookkeeping keyed alongside the close list.
func (b *Bucket) EvictTimedOut(now time.Time, timeout time.Duration) []cryptobox.PublicKey {
	kept := b.entries[:0]
	var removed []cryptobox.PublicKey
	for _, e := range b.entries {
		if now.Sub(e.LastSeen) > timeout {
			removed = append(removed, e.Node.PK)
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	return removed
}

