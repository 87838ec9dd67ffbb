package signal

import (
	"sync"
	"testing"
)

type testSignalMetrics struct {
	mu sync.Mutex

	emitted     map[string]int
	dropped     map[string]int
	subscribers map[string]int
}

func newTestSignalMetrics() *testSignalMetrics {
	return &testSignalMetrics{
		emitted:     make(map[string]int),
		dropped:     make(map[string]int),
		subscribers: make(map[string]int),
	}
}

func (m *testSignalMetrics) RecordSignalEmitted(bus string, signal string, handlers int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitted[signal]++
}

func (m *testSignalMetrics) RecordSignalDropped(bus string, signal string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[reason]++
}

func (m *testSignalMetrics) SetSignalSubscribers(bus string, signal string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[signal] = count
}

func TestBus_RecordsMetrics(t *testing.T) {
	rec := newTestSignalMetrics()
	SetMetricsRecorder(rec)
	t.Cleanup(func() { SetMetricsRecorder(nil) })

	bus := NewBus()
	sub := bus.SubscribeFunc("a", func() {})
	bus.SubscribeFunc("a", func() {})
	bus.Emit("a")
	bus.Emit("a")
	bus.Emit("nope")
	bus.Unsubscribe(sub)

	if _, err := Subscribe(bus, keyScore, func(int) {}); err != nil {
		t.Fatal(err)
	}
	_ = Emit(bus, NewKey[string]("score"), "x")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.emitted["a"] != 2 {
		t.Errorf("expected 2 emits, got %d", rec.emitted["a"])
	}
	if rec.dropped[DropUnknownSignal] != 1 {
		t.Errorf("expected 1 unknown drop, got %d", rec.dropped[DropUnknownSignal])
	}
	if rec.dropped[DropPayloadMismatch] != 1 {
		t.Errorf("expected 1 mismatch drop, got %d", rec.dropped[DropPayloadMismatch])
	}
	if rec.subscribers["a"] != 1 {
		t.Errorf("expected 1 subscriber gauge, got %d", rec.subscribers["a"])
	}
}

func TestSetMetricsRecorder_NilResetsToNop(t *testing.T) {
	SetMetricsRecorder(nil)
	if _, ok := metricsRecorder().(*nopMetrics); !ok {
		t.Fatal("expected nop recorder")
	}
}
