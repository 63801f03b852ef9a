// Package reqqueue correlates outbound requests with their eventual
// responses via a random, short-lived ping-id: NewPingID records an
// expected peer and returns the id to embed in the outbound packet;
// CheckPingID consumes it when a matching response arrives (spec §4.3).
package reqqueue

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/dhterrors"
)

// DefaultTimeout is how long an outstanding ping-id remains valid before
// ClearTimedOut evicts it (spec §5, PING_TIMEOUT).
const DefaultTimeout = 5 * time.Second

type entry struct {
	peerPK    cryptobox.PublicKey
	issuedAt  time.Time
	dhtPublic bool
}

// Queue is a time-bounded map from ping-id to the peer it was issued for.
// Ping-id zero is reserved and never issued (spec invariant 4).
type Queue struct {
	mu      sync.Mutex
	timeout time.Duration
	entries map[uint64]entry
}

// New constructs an empty queue with the given eviction timeout. A
// timeout of 0 defaults to DefaultTimeout.
func New(timeout time.Duration) *Queue {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Queue{timeout: timeout, entries: make(map[uint64]entry)}
}

// NewPingID generates a fresh non-zero ping-id bound to peerPK and records
// it as outstanding.
func (q *Queue) NewPingID(peerPK cryptobox.PublicKey, now time.Time) (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var id uint64
	for attempt := 0; attempt < 8; attempt++ {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, dhterrors.Wrap(dhterrors.KindUnhandled, "generating ping-id", err)
		}
		id = binary.LittleEndian.Uint64(buf[:])
		if id != 0 {
			break
		}
	}
	if id == 0 {
		id = 1
	}
	q.entries[id] = entry{peerPK: peerPK, issuedAt: now}
	return id, nil
}

// CheckPingID consumes id if it is outstanding and was issued for peerPK,
// returning nil on success. A zero id is always rejected.
func (q *Queue) CheckPingID(id uint64, peerPK cryptobox.PublicKey, now time.Time) error {
	if id == 0 {
		return dhterrors.PingIDZero()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return dhterrors.PingIDMismatch()
	}
	delete(q.entries, id)
	if now.Sub(e.issuedAt) > q.timeout {
		return dhterrors.PingIDMismatch()
	}
	if e.peerPK != peerPK {
		return dhterrors.PingIDMismatch()
	}
	return nil
}

// ClearTimedOut removes outstanding ping-ids older than the queue's
// timeout, returning the number removed. Called once per periodic tick.
func (q *Queue) ClearTimedOut(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, e := range q.entries {
		if now.Sub(e.issuedAt) > q.timeout {
			delete(q.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of outstanding ping-ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
