package onionannounce

import (
	"net"
	"testing"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/packet"
)

func testAddr(t *testing.T) packet.SocketAddr {
	t.Helper()
	addr, err := packet.NewSocketAddr(net.ParseIP("10.0.0.1"), 33445)
	if err != nil {
		t.Fatalf("NewSocketAddr: %v", err)
	}
	return addr
}

func TestPingIDDeterministic(t *testing.T) {
	key, err := cryptobox.GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("GenerateSymmetricKey: %v", err)
	}
	addr := testAddr(t)
	var pk cryptobox.PublicKey
	pk[0] = 1

	id1, err := PingID(key, addr, pk)
	if err != nil {
		t.Fatalf("PingID: %v", err)
	}
	id2, err := PingID(key, addr, pk)
	if err != nil {
		t.Fatalf("PingID: %v", err)
	}
	if id1 != id2 {
		t.Error("PingID not deterministic for identical inputs")
	}

	var otherPK cryptobox.PublicKey
	otherPK[0] = 2
	id3, err := PingID(key, addr, otherPK)
	if err != nil {
		t.Fatalf("PingID: %v", err)
	}
	if id1 == id3 {
		t.Error("PingID collided across different public keys")
	}
}

func TestStoreAndLookup(t *testing.T) {
	table := New(nil)
	now := time.Now()
	addr := testAddr(t)
	var pk, dataPK cryptobox.PublicKey
	pk[0] = 1
	dataPK[0] = 2
	var id [32]byte
	id[0] = 0xAB

	table.Store(id, pk, addr, dataPK, now)
	entry, ok := table.Lookup(id, now)
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if entry.PK != pk || entry.DataPK != dataPK {
		t.Errorf("lookup returned unexpected entry: %+v", entry)
	}
}

func TestLookupExpired(t *testing.T) {
	table := New(nil)
	now := time.Now()
	var id [32]byte
	id[0] = 1
	table.Store(id, cryptobox.PublicKey{}, testAddr(t), cryptobox.PublicKey{}, now)

	later := now.Add(EntryLifetime + time.Second)
	if _, ok := table.Lookup(id, later); ok {
		t.Error("expected expired entry to not be found")
	}
}

func TestExpireOldRemovesStaleEntries(t *testing.T) {
	table := New(nil)
	now := time.Now()
	var id1, id2 [32]byte
	id1[0] = 1
	id2[0] = 2
	table.Store(id1, cryptobox.PublicKey{}, testAddr(t), cryptobox.PublicKey{}, now.Add(-time.Hour))
	table.Store(id2, cryptobox.PublicKey{}, testAddr(t), cryptobox.PublicKey{}, now)

	removed := table.ExpireOld(now)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 remaining, got %d", table.Len())
	}
}

func TestKeyringRotationKeepsPreviousValid(t *testing.T) {
	now := time.Now()
	kr, err := NewKeyring(now)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	addr := testAddr(t)
	var pk cryptobox.PublicKey
	pk[0] = 9

	before, err := kr.PingIDCandidates(addr, pk)
	if err != nil {
		t.Fatalf("PingIDCandidates: %v", err)
	}
	if len(before) != 1 {
		t.Fatalf("expected 1 candidate before rotation, got %d", len(before))
	}

	rotated := now.Add(RefreshInterval + time.Second)
	if err := kr.MaybeRotate(rotated); err != nil {
		t.Fatalf("MaybeRotate: %v", err)
	}

	after, err := kr.PingIDCandidates(addr, pk)
	if err != nil {
		t.Fatalf("PingIDCandidates: %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("expected 2 candidates after rotation, got %d", len(after))
	}
	if after[1] != before[0] {
		t.Error("expected previous-generation candidate to match pre-rotation id")
	}
}

func TestKeyringPreviousKeyAvailableAfterRotation(t *testing.T) {
	now := time.Now()
	kr, err := NewKeyring(now)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	if _, ok := kr.PreviousKey(); ok {
		t.Error("expected no previous key before any rotation")
	}
	firstKey := kr.CurrentKey()

	if err := kr.MaybeRotate(now.Add(RefreshInterval + time.Second)); err != nil {
		t.Fatalf("MaybeRotate: %v", err)
	}
	prev, ok := kr.PreviousKey()
	if !ok {
		t.Fatal("expected previous key to be available after rotation")
	}
	if prev != firstKey {
		t.Error("expected previous key to equal the pre-rotation current key")
	}
}

func TestKeyringNoRotationBeforeInterval(t *testing.T) {
	now := time.Now()
	kr, err := NewKeyring(now)
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}
	if err := kr.MaybeRotate(now.Add(time.Second)); err != nil {
		t.Fatalf("MaybeRotate: %v", err)
	}
	addr := testAddr(t)
	var pk cryptobox.PublicKey
	candidates, err := kr.PingIDCandidates(addr, pk)
	if err != nil {
		t.Fatalf("PingIDCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("expected no rotation yet, got %d candidates", len(candidates))
	}
}
