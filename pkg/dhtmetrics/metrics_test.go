package dhtmetrics

import "testing"

func TestCounterIncAndAdd(t *testing.T) {
	c := NewCounter()
	c.Inc()
	c.Inc()
	c.Add(5)
	if got := c.Value(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestGaugeSetIncDec(t *testing.T) {
	g := NewGauge()
	g.Set(10)
	g.Inc()
	g.Inc()
	g.Dec()
	if got := g.Value(); got != 11 {
		t.Fatalf("expected 11, got %d", got)
	}
}

func TestRecordPacketCreatesPerKindCounters(t *testing.T) {
	m := New()
	m.RecordPacket("ping_request")
	m.RecordPacket("ping_request")
	m.RecordPacket("ping_response")

	snap := m.Snapshot()
	if snap.PacketsByKind["ping_request"] != 2 {
		t.Errorf("expected 2 ping_request, got %d", snap.PacketsByKind["ping_request"])
	}
	if snap.PacketsByKind["ping_response"] != 1 {
		t.Errorf("expected 1 ping_response, got %d", snap.PacketsByKind["ping_response"])
	}
}

func TestRecordPacketErrorIncrements(t *testing.T) {
	m := New()
	m.RecordPacketError()
	m.RecordPacketError()
	if snap := m.Snapshot(); snap.PacketErrors != 2 {
		t.Errorf("expected 2 packet errors, got %d", snap.PacketErrors)
	}
}

func TestSnapshotReflectsGauges(t *testing.T) {
	m := New()
	m.CloseListSize.Set(42)
	m.FriendCount.Set(3)
	m.PingIDsOutstanding.Set(7)
	m.OnionRequestsForwarded.Add(9)
	m.TicksRun.Inc()

	snap := m.Snapshot()
	if snap.CloseListSize != 42 {
		t.Errorf("expected CloseListSize 42, got %d", snap.CloseListSize)
	}
	if snap.FriendCount != 3 {
		t.Errorf("expected FriendCount 3, got %d", snap.FriendCount)
	}
	if snap.PingIDsOutstanding != 7 {
		t.Errorf("expected PingIDsOutstanding 7, got %d", snap.PingIDsOutstanding)
	}
	if snap.OnionRequestsForwarded != 9 {
		t.Errorf("expected OnionRequestsForwarded 9, got %d", snap.OnionRequestsForwarded)
	}
	if snap.TicksRun != 1 {
		t.Errorf("expected TicksRun 1, got %d", snap.TicksRun)
	}
}

func TestSnapshotPacketsByKindIsIndependentCopy(t *testing.T) {
	m := New()
	m.RecordPacket("node_request")
	snap := m.Snapshot()
	snap.PacketsByKind["node_request"] = 999

	fresh := m.Snapshot()
	if fresh.PacketsByKind["node_request"] != 1 {
		t.Errorf("mutating a snapshot must not affect the metrics, got %d", fresh.PacketsByKind["node_request"])
	}
}
