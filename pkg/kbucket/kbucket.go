package kbucket

import (
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// NumBuckets is the number of bit positions a 32-byte public key spans.
const NumBuckets = cryptobox.PublicKeySize * 8

// Kbucket is the full close list for one owning key: NumBuckets (256)
// Buckets, one per bit of XOR distance from Owner, each holding nodes whose highest
// differing bit from Owner falls at that index (spec §4.4).
type Kbucket struct {
	Owner    cryptobox.PublicKey
	Capacity int
	buckets  [NumBuckets]*Bucket
}

// NewKbucket constructs an empty close list keyed by owner. A capacity of
// 0 defaults to DefaultCapacity per bucket.
func NewKbucket(owner cryptobox.PublicKey, capacity int) *Kbucket {
	return &Kbucket{Owner: owner, Capacity: capacity}
}

func (k *Kbucket) bucketFor(pk cryptobox.PublicKey) (*Bucket, int) {
	idx := BitIndex(k.Owner, pk)
	if idx < 0 {
		return nil, idx
	}
	if k.buckets[idx] == nil {
		k.buckets[idx] = NewBucket(k.Owner, k.Capacity)
	}
	return k.buckets[idx], idx
}

// TryAdd files node into the bucket matching its distance from Owner. It
// refuses to add the owner's own key.
func (k *Kbucket) TryAdd(node packet.PackedNode, now time.Time) bool {
	b, idx := k.bucketFor(node.PK)
	if idx < 0 {
		return false
	}
	return b.TryAdd(node, now)
}

// Remove deletes pk from whichever bucket holds it.
func (k *Kbucket) Remove(pk cryptobox.PublicKey) bool {
	_, idx := k.bucketFor(pk)
	if idx < 0 || k.buckets[idx] == nil {
		return false
	}
	return k.buckets[idx].Remove(pk)
}

// Touch refreshes the LastSeen timestamp for pk, reporting whether an
// entry was found.
func (k *Kbucket) Touch(pk cryptobox.PublicKey, now time.Time) bool {
	_, idx := k.bucketFor(pk)
	if idx < 0 || k.buckets[idx] == nil {
		return false
	}
	return k.buckets[idx].Touch(pk, now)
}

// EvictTimedOut removes stale entries across every bucket, returning the
// keys of every entry removed.
func (k *Kbucket) EvictTimedOut(now time.Time, timeout time.Duration) []cryptobox.PublicKey {
	var removed []cryptobox.PublicKey
	for _, b := range k.buckets {
		if b != nil {
			removed = append(removed, b.EvictTimedOut(now, timeout)...)
		}
	}
	return removed
}

// Len returns the total number of entries held across all buckets.
func (k *Kbucket) Len() int {
	n := 0
	for _, b := range k.buckets {
		if b != nil {
			n += b.Len()
		}
	}
	return n
}

// GetClosest returns up to count nodes closest to target across all
// buckets, ordered by ascending distance. Matches spec §4.4's
// cross-bucket merge used to answer NodesRequest.
func (k *Kbucket) GetClosest(target cryptobox.PublicKey, count int, globalOnly bool) []packet.PackedNode {
	all := make([]packet.PackedNode, 0, k.Len())
	for _, b := range k.buckets {
		if b == nil {
			continue
		}
		for _, e := range b.Entries() {
			if globalOnly && !e.Node.Addr.IsGlobal() {
				continue
			}
			all = append(all, e.Node)
		}
	}
	sortByDistance(all, target)
	if len(all) > count {
		all = all[:count]
	}
	return all
}

func sortByDistance(nodes []packet.PackedNode, target cryptobox.PublicKey) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && Closer(target, nodes[j].PK, nodes[j-1].PK); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

// GoodEntries returns every non-bad entry across all buckets, ordered by
// ascending distance from Owner (index 0 is closest). An entry is bad
// once staleAfter has elapsed since it was last seen (spec §3).
func (k *Kbucket) GoodEntries(now time.Time, staleAfter time.Duration) []Entry {
	good := make([]Entry, 0, k.Len())
	for _, b := range k.buckets {
		if b == nil {
			continue
		}
		for _, e := range b.Entries() {
			if now.Sub(e.LastSeen) < staleAfter {
				good = append(good, e)
			}
		}
	}
	for i := 1; i < len(good); i++ {
		for j := i; j > 0 && Closer(k.Owner, good[j].Node.PK, good[j-1].Node.PK); j-- {
			good[j], good[j-1] = good[j-1], good[j]
		}
	}
	return good
}
