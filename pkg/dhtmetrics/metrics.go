// Package dhtmetrics provides operational counters and gauges for the DHT
// node: packets dispatched per kind, close-list occupancy, onion-forward
// throughput, and periodic-loop timing, exposed for scraping by an
// operator's monitoring stack.
package dhtmetrics

import (
	"sync"
	"sync/atomic"
)

// Counter is a monotonically increasing count.
type Counter struct {
	value int64
}

// NewCounter creates a zeroed counter.
func NewCounter() *Counter { return &Counter{} }

// Inc increments the counter by 1.
func (c *Counter) Inc() { atomic.AddInt64(&c.value, 1) }

// Add adds n to the counter.
func (c *Counter) Add(n int64) { atomic.AddInt64(&c.value, n) }

// Value returns the current count.
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.value) }

// Gauge is a value that can move up or down.
type Gauge struct {
	value int64
}

// NewGauge creates a zeroed gauge.
func NewGauge() *Gauge { return &Gauge{} }

// Set sets the gauge to value.
func (g *Gauge) Set(value int64) { atomic.StoreInt64(&g.value, value) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { atomic.AddInt64(&g.value, 1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { atomic.AddInt64(&g.value, -1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return atomic.LoadInt64(&g.value) }

// Metrics is the full set of operational instruments the DHT server
// updates as it runs.
type Metrics struct {
	// Packet dispatch, keyed by kind name.
	packetsByKind   map[string]*Counter
	packetErrors    *Counter
	packetsByKindMu sync.RWMutex

	// Close-list / friend occupancy.
	CloseListSize   *Gauge
	FriendCount     *Gauge
	BootstrapActive *Gauge

	// Request correlation.
	PingIDsOutstanding *Gauge
	PingIDMismatches   *Counter

	// Onion forwarding.
	OnionRequestsForwarded  *Counter
	OnionResponsesForwarded *Counter
	OnionReturnInvalid      *Counter

	// Periodic loop.
	TicksRun      *Counter
	LastTickNanos *Gauge
}

// New constructs a fresh, zeroed Metrics.
func New() *Metrics {
	return &Metrics{
		packetsByKind:           make(map[string]*Counter),
		packetErrors:            NewCounter(),
		CloseListSize:           NewGauge(),
		FriendCount:             NewGauge(),
		BootstrapActive:         NewGauge(),
		PingIDsOutstanding:      NewGauge(),
		PingIDMismatches:        NewCounter(),
		OnionRequestsForwarded:  NewCounter(),
		OnionResponsesForwarded: NewCounter(),
		OnionReturnInvalid:      NewCounter(),
		TicksRun:                NewCounter(),
		LastTickNanos:           NewGauge(),
	}
}

// RecordPacket increments the per-kind dispatch counter, creating it on
// first use.
func (m *Metrics) RecordPacket(kind string) {
	m.packetsByKindMu.RLock()
	c, ok := m.packetsByKind[kind]
	m.packetsByKindMu.RUnlock()
	if !ok {
		m.packetsByKindMu.Lock()
		c, ok = m.packetsByKind[kind]
		if !ok {
			c = NewCounter()
			m.packetsByKind[kind] = c
		}
		m.packetsByKindMu.Unlock()
	}
	c.Inc()
}

// RecordPacketError increments the total dispatch-error counter.
func (m *Metrics) RecordPacketError() {
	m.packetErrors.Inc()
}

// Snapshot is a point-in-time, read-only copy of every metric value
// except LastTickNanos, suitable for serialization by an HTTP handler.
type Snapshot struct {
	PacketsByKind           map[string]int64 `json:"packets_by_kind"`
	PacketErrors            int64            `json:"packet_errors"`
	CloseListSize           int64            `json:"close_list_size"`
	FriendCount             int64            `json:"friend_count"`
	BootstrapActive         int64            `json:"bootstrap_active"`
	PingIDsOutstanding      int64            `json:"ping_ids_outstanding"`
	PingIDMismatches        int64            `json:"ping_id_mismatches"`
	OnionRequestsForwarded  int64            `json:"onion_requests_forwarded"`
	OnionResponsesForwarded int64            `json:"onion_responses_forwarded"`
	OnionReturnInvalid      int64            `json:"onion_return_invalid"`
	TicksRun                int64            `json:"ticks_run"`
}

// Snapshot returns a copy of every metric's current value except
// LastTickNanos.
func (m *Metrics) Snapshot() Snapshot {
	m.packetsByKindMu.RLock()
	byKind := make(map[string]int64, len(m.packetsByKind))
	for k, c := range m.packetsByKind {
		byKind[k] = c.Value()
	}
	m.packetsByKindMu.RUnlock()

	return Snapshot{
		PacketsByKind:           byKind,
		PacketErrors:            m.packetErrors.Value(),
		CloseListSize:           m.CloseListSize.Value(),
		FriendCount:             m.FriendCount.Value(),
		BootstrapActive:         m.BootstrapActive.Value(),
		PingIDsOutstanding:      m.PingIDsOutstanding.Value(),
		PingIDMismatches:        m.PingIDMismatches.Value(),
		OnionRequestsForwarded:  m.OnionRequestsForwarded.Value(),
		OnionResponsesForwarded: m.OnionResponsesForwarded.Value(),
		OnionReturnInvalid:      m.OnionReturnInvalid.Value(),
		TicksRun:                m.TicksRun.Value(),
	}
}
