package pingsender

import (
	"net"
	"testing"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/packet"
)

func testCandidate(t *testing.T, b byte) Candidate {
	t.Helper()
	addr, err := packet.NewSocketAddr(net.ParseIP("127.0.0.1"), 33445)
	if err != nil {
		t.Fatalf("NewSocketAddr: %v", err)
	}
	var pk cryptobox.PublicKey
	pk[0] = b
	return Candidate{PK: pk, Addr: addr}
}

func TestEnqueueAndDrain(t *testing.T) {
	q := New(4)
	for i := byte(0); i < 3; i++ {
		if !q.Enqueue(testCandidate(t, i)) {
			t.Fatalf("Enqueue(%d) unexpectedly dropped", i)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected len 3, got %d", q.Len())
	}
	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 drained, got %d", len(drained))
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue after drain, got %d", q.Len())
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	q := New(1)
	if !q.Enqueue(testCandidate(t, 1)) {
		t.Fatal("first enqueue should succeed")
	}
	if q.Enqueue(testCandidate(t, 2)) {
		t.Error("expected second enqueue to be dropped at capacity 1")
	}
	if q.Len() != 1 {
		t.Errorf("expected len 1, got %d", q.Len())
	}
}

func TestDrainOnEmptyQueue(t *testing.T) {
	q := New(4)
	if drained := q.Drain(); drained != nil {
		t.Errorf("expected nil drain on empty queue, got %v", drained)
	}
}
