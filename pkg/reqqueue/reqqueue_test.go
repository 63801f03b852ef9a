package reqqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/dhterrors"
)

func peerKey(b byte) cryptobox.PublicKey {
	var pk cryptobox.PublicKey
	pk[0] = b
	return pk
}

func TestNewPingIDNeverZero(t *testing.T) {
	q := New(time.Second)
	now := time.Now()
	for i := 0; i < 100; i++ {
		id, err := q.NewPingID(peerKey(1), now)
		if err != nil {
			t.Fatalf("NewPingID: %v", err)
		}
		if id == 0 {
			t.Fatal("NewPingID returned reserved zero id")
		}
	}
}

func TestCheckPingIDSucceedsOnce(t *testing.T) {
	q := New(time.Minute)
	now := time.Now()
	peer := peerKey(2)
	id, err := q.NewPingID(peer, now)
	if err != nil {
		t.Fatalf("NewPingID: %v", err)
	}
	if err := q.CheckPingID(id, peer, now); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if err := q.CheckPingID(id, peer, now); !errors.Is(err, dhterrors.PingIDMismatch()) {
		t.Fatalf("expected PingIDMismatch on reuse, got %v", err)
	}
}

func TestCheckPingIDRejectsZero(t *testing.T) {
	q := New(time.Minute)
	err := q.CheckPingID(0, peerKey(1), time.Now())
	if !errors.Is(err, dhterrors.PingIDZero()) {
		t.Fatalf("expected PingIDZero, got %v", err)
	}
}

func TestCheckPingIDRejectsWrongPeer(t *testing.T) {
	q := New(time.Minute)
	now := time.Now()
	id, err := q.NewPingID(peerKey(1), now)
	if err != nil {
		t.Fatalf("NewPingID: %v", err)
	}
	if err := q.CheckPingID(id, peerKey(2), now); !errors.Is(err, dhterrors.PingIDMismatch()) {
		t.Fatalf("expected PingIDMismatch for wrong peer, got %v", err)
	}
}

func TestCheckPingIDRejectsExpired(t *testing.T) {
	q := New(time.Second)
	now := time.Now()
	id, err := q.NewPingID(peerKey(1), now)
	if err != nil {
		t.Fatalf("NewPingID: %v", err)
	}
	later := now.Add(2 * time.Second)
	if err := q.CheckPingID(id, peerKey(1), later); !errors.Is(err, dhterrors.PingIDMismatch()) {
		t.Fatalf("expected PingIDMismatch for expired id, got %v", err)
	}
}

func TestClearTimedOut(t *testing.T) {
	q := New(time.Second)
	now := time.Now()
	if _, err := q.NewPingID(peerKey(1), now.Add(-time.Hour)); err != nil {
		t.Fatalf("NewPingID: %v", err)
	}
	if _, err := q.NewPingID(peerKey(2), now); err != nil {
		t.Fatalf("NewPingID: %v", err)
	}
	removed := q.ClearTimedOut(now)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", q.Len())
	}
}
