package kbucket

import (
	"net"
	"testing"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/packet"
)

func pk(b byte) cryptobox.PublicKey {
	var k cryptobox.PublicKey
	k[cryptobox.PublicKeySize-1] = b
	return k
}

func node(b byte) packet.PackedNode {
	addr, _ := packet.NewSocketAddr(net.ParseIP("127.0.0.1"), 33445)
	return packet.PackedNode{Addr: addr, PK: pk(b)}
}

func TestBitIndexIdenticalKeys(t *testing.T) {
	a := pk(1)
	if idx := BitIndex(a, a); idx != -1 {
		t.Errorf("expected -1 for identical keys, got %d", idx)
	}
}

func TestBitIndexDiffersOnLastBit(t *testing.T) {
	a := pk(0x00)
	b := pk(0x01)
	want := cryptobox.PublicKeySize*8 - 1
	if idx := BitIndex(a, b); idx != want {
		t.Errorf("got %d, want %d", idx, want)
	}
}

func TestBucketTryAddRejectsOwnKey(t *testing.T) {
	owner := pk(1)
	b := NewBucket(owner, 4)
	if b.TryAdd(packet.PackedNode{PK: owner}, time.Now()) {
		t.Error("expected rejecting owner's own key")
	}
}

func TestBucketTryAddOrdersByDistance(t *testing.T) {
	owner := pk(0x00)
	b := NewBucket(owner, 8)
	now := time.Now()
	for _, v := range []byte{0x08, 0x04, 0x02, 0x01} {
		if !b.TryAdd(node(v), now) {
			t.Fatalf("TryAdd(%x) should have succeeded", v)
		}
	}
	entries := b.Entries()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if !lessOrEqual(Distance(owner, entries[i-1].Node.PK), Distance(owner, entries[i].Node.PK)) {
			t.Errorf("entries not sorted by ascending distance at index %d", i)
		}
	}
}

func TestBucketTryAddEvictsFarthestWhenFull(t *testing.T) {
	owner := pk(0x00)
	b := NewBucket(owner, 2)
	now := time.Now()
	b.TryAdd(node(0x80), now) // far
	b.TryAdd(node(0xf0), now) // farther still, will be evicted

	closer := node(0x01)
	if !b.TryAdd(closer, now) {
		t.Fatalf("expected closer candidate to be accepted")
	}
	if b.Len() != 2 {
		t.Fatalf("expected bucket to stay at capacity 2, got %d", b.Len())
	}
	for _, e := range b.Entries() {
		if e.Node.PK == pk(0xf0) {
			t.Error("expected farthest entry to be evicted")
		}
	}
}

func TestBucketTryAddRejectsFartherThanFullBucket(t *testing.T) {
	owner := pk(0x00)
	b := NewBucket(owner, 1)
	now := time.Now()
	b.TryAdd(node(0x01), now)
	if b.TryAdd(node(0xff), now) {
		t.Error("expected farther candidate to be rejected when bucket full")
	}
}

func TestBucketRemoveAndTouch(t *testing.T) {
	owner := pk(0x00)
	b := NewBucket(owner, 4)
	now := time.Now()
	n := node(0x01)
	b.TryAdd(n, now)
	later := now.Add(time.Minute)
	if !b.Touch(n.PK, later) {
		t.Error("expected Touch to report the entry was found")
	}
	if b.Entries()[0].LastSeen != later {
		t.Error("Touch did not update LastSeen")
	}
	if !b.Remove(n.PK) {
		t.Error("expected Remove to report success")
	}
	if b.Len() != 0 {
		t.Error("expected bucket to be empty after Remove")
	}
}

func TestBucketTouchReportsMissingEntry(t *testing.T) {
	owner := pk(0x00)
	b := NewBucket(owner, 4)
	if b.Touch(pk(0x01), time.Now()) {
		t.Error("expected Touch to report false for an absent key")
	}
}

func TestBucketEvictTimedOut(t *testing.T) {
	owner := pk(0x00)
	b := NewBucket(owner, 4)
	now := time.Now()
	b.TryAdd(node(0x01), now.Add(-time.Hour))
	b.TryAdd(node(0x02), now)
	removed := b.EvictTimedOut(now, time.Minute)
	if len(removed) != 1 {
		t.Fatalf("expected 1 eviction, got %d", len(removed))
	}
	if removed[0] != node(0x01).PK {
		t.Errorf("expected evicted key to be node(0x01), got %x", removed[0])
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 remaining entry, got %d", b.Len())
	}
}

func TestKbucketTryAddAndGetClosest(t *testing.T) {
	owner := pk(0x00)
	kb := NewKbucket(owner, 8)
	now := time.Now()
	for _, v := range []byte{0x01, 0x02, 0x04, 0x08, 0x10} {
		if !kb.TryAdd(node(v), now) {
			t.Fatalf("TryAdd(%x) failed", v)
		}
	}
	closest := kb.GetClosest(owner, 3, false)
	if len(closest) != 3 {
		t.Fatalf("expected 3 closest nodes, got %d", len(closest))
	}
	if closest[0].PK != pk(0x01) {
		t.Errorf("expected closest node to be pk(0x01), got %x", closest[0].PK)
	}
}

func TestKbucketRemoveAndLen(t *testing.T) {
	owner := pk(0x00)
	kb := NewKbucket(owner, 8)
	now := time.Now()
	n := node(0x01)
	kb.TryAdd(n, now)
	if kb.Len() != 1 {
		t.Fatalf("expected len 1, got %d", kb.Len())
	}
	if !kb.Remove(n.PK) {
		t.Error("expected Remove to succeed")
	}
	if kb.Len() != 0 {
		t.Errorf("expected len 0 after remove, got %d", kb.Len())
	}
}

func TestKbucketEvictTimedOut(t *testing.T) {
	owner := pk(0x00)
	kb := NewKbucket(owner, 8)
	now := time.Now()
	kb.TryAdd(node(0x01), now.Add(-time.Hour))
	kb.TryAdd(node(0x02), now)
	removed := kb.EvictTimedOut(now, time.Minute)
	if len(removed) != 1 {
		t.Fatalf("expected 1 eviction, got %d", len(removed))
	}
	if removed[0] != node(0x01).PK {
		t.Errorf("expected evicted key to be node(0x01), got %x", removed[0])
	}
}

func TestKbucketTouchReportsFoundAndMissing(t *testing.T) {
	owner := pk(0x00)
	kb := NewKbucket(owner, 8)
	now := time.Now()
	n := node(0x01)
	kb.TryAdd(n, now)
	if !kb.Touch(n.PK, now) {
		t.Error("expected Touch to report the entry was found")
	}
	if kb.Touch(pk(0x02), now) {
		t.Error("expected Touch to report false for an absent key")
	}
}

func TestKbucketGoodEntriesExcludesStaleAndOrdersByDistance(t *testing.T) {
	owner := pk(0x00)
	kb := NewKbucket(owner, 8)
	now := time.Now()
	kb.TryAdd(node(0x04), now)
	kb.TryAdd(node(0x01), now)
	kb.TryAdd(node(0x02), now.Add(-time.Hour)) // stale, excluded

	good := kb.GoodEntries(now, time.Minute)
	if len(good) != 2 {
		t.Fatalf("expected 2 good entries, got %d", len(good))
	}
	if good[0].Node.PK != pk(0x01) || good[1].Node.PK != pk(0x04) {
		t.Errorf("expected good entries ordered by ascending distance, got %x then %x", good[0].Node.PK, good[1].Node.PK)
	}
	for _, e := range good {
		if e.Node.PK == pk(0x02) {
			t.Error("expected stale entry to be excluded from GoodEntries")
		}
	}
}
