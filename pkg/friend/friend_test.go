package friend

import (
	"net"
	"testing"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/packet"
)

func friendKey(b byte) cryptobox.PublicKey {
	var pk cryptobox.PublicKey
	pk[0] = b
	return pk
}

func testNode(t *testing.T, b byte) packet.PackedNode {
	t.Helper()
	addr, err := packet.NewSocketAddr(net.ParseIP("127.0.0.1"), 33445)
	if err != nil {
		t.Fatalf("NewSocketAddr: %v", err)
	}
	var pk cryptobox.PublicKey
	pk[1] = b
	return packet.PackedNode{Addr: addr, PK: pk}
}

func TestFriendBucketIsIndependent(t *testing.T) {
	f := New(friendKey(1))
	n := testNode(t, 1)
	now := time.Now()
	if !f.TryAddCandidate(n, now) {
		t.Fatal("expected TryAddCandidate to succeed")
	}
	if f.CloseNodes.Owner != friendKey(1) {
		t.Error("expected friend's bucket to be owned by the friend's key, not the server's")
	}
}

func TestDueForNodesReqRespectsInterval(t *testing.T) {
	f := New(friendKey(1))
	now := time.Now()
	if !f.DueForNodesReq(now, time.Second) {
		t.Fatal("expected first call to be due")
	}
	if f.DueForNodesReq(now.Add(time.Millisecond), time.Second) {
		t.Error("expected second call within interval to not be due")
	}
	if !f.DueForNodesReq(now.Add(2*time.Second), time.Second) {
		t.Error("expected call after interval elapsed to be due")
	}
}

func TestNodesReqTargetsCapped(t *testing.T) {
	f := New(friendKey(1))
	now := time.Now()
	for i := byte(1); i <= 6; i++ {
		f.TryAddCandidate(testNode(t, i), now)
	}
	targets := f.NodesReqTargets()
	if len(targets) > MaxNodesReqTargets {
		t.Errorf("expected at most %d targets, got %d", MaxNodesReqTargets, len(targets))
	}
}

func TestListAddGetRemove(t *testing.T) {
	l := NewList()
	pk := friendKey(5)
	f := l.Add(pk)
	if f2, ok := l.Get(pk); !ok || f2 != f {
		t.Fatal("expected Get to return the added friend")
	}
	if again := l.Add(pk); again != f {
		t.Error("expected Add to be idempotent for an existing friend")
	}
	l.Remove(pk)
	if _, ok := l.Get(pk); ok {
		t.Error("expected friend to be removed")
	}
}

func TestTryAddToAllOffersToEveryFriend(t *testing.T) {
	l := NewList()
	f1 := l.Add(friendKey(1))
	f2 := l.Add(friendKey(2))
	now := time.Now()
	l.TryAddToAll(testNode(t, 9), now)
	if f1.CloseNodes.Len() != 1 || f2.CloseNodes.Len() != 1 {
		t.Error("expected node to be added to both friends' buckets")
	}
}
