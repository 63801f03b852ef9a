// Package pingsender batches outbound PingRequests to candidate
// neighbors: a small bounded queue fed by the periodic loop and drained by
// the UDP writer, keeping the close-list refresh step from blocking on
// network I/O (spec component 6).
package pingsender

import (
	"sync"

	"github.com/toxdht/dhtnode/pkg/cryptobox"
	"github.com/toxdht/dhtnode/pkg/packet"
)

// DefaultCapacity bounds the queue so a burst of refresh candidates can
// never grow it unboundedly.
const DefaultCapacity = 256

// Candidate is one outbound ping target.
type Candidate struct {
	PK   cryptobox.PublicKey
	Addr packet.SocketAddr
}

// Queue is a small bounded FIFO of ping candidates. Full pushes are
// dropped rather than blocking the caller, matching the "never hold a
// lock across the outbound channel" policy: the periodic loop enqueues
// under its own lock and the drain happens outside of it.
type Queue struct {
	mu       sync.Mutex
	capacity int
	items    []Candidate
}

// New constructs an empty queue. A capacity of 0 defaults to
// DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{capacity: capacity}
}

// Enqueue appends a candidate, dropping it and reporting false if the
// queue is already at capacity.
func (q *Queue) Enqueue(c Candidate) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, c)
	return true
}

// Drain removes and returns every queued candidate.
func (q *Queue) Drain() []Candidate {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Len reports the number of queued candidates.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
