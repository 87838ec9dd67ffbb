package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tickbus/tickbus/pkg/signal"
	"github.com/tickbus/tickbus/pkg/timer"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}
	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
	if m.Registry() == nil {
		t.Error("Expected a registry")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}
	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
}

func scrape(t *testing.T, m *Manager) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	return w.Body.String()
}

func TestMetricsHandler(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordSignalEmitted("global", "player.hit", 3)
	m.RecordSignalDropped("global", "missing", signal.DropUnknownSignal)
	m.SetSignalSubscribers("global", "player.hit", 3)
	m.RecordTimerCreated("world", "normal")
	m.RecordTimerFired("world", "normal")
	m.RecordTimerCleared("world", "normal", timer.ClearCompleted)
	m.RecordTick("world", "normal", 4, 20*time.Microsecond)
	m.RecordTickRejected("world", "normal", "negative_delta")
	m.SetActiveTimers("world", 2)
	m.RecordFrame(3 * time.Millisecond)
	m.RecordFixedSteps(2)
	m.RecordFramePanic()
	m.SetTimeScale(0.5)
	m.RecordRelayPublished("score")
	m.RecordRelayReceived("score")
	m.RecordRelayFailed("score", "publish")
	m.SetRelayBacklog(1)
	m.RecordHTTPRequest(context.Background(), "GET", "/api/v1/signals", "200", time.Millisecond)

	body := scrape(t, m)
	expectedMetrics := []string{
		"signal_emitted_total",
		"signal_handler_calls_total",
		"signal_dropped_total",
		"signal_subscribers",
		"timer_created_total",
		"timer_fired_total",
		"timer_cleared_total",
		"timer_active",
		"timer_tick_duration_seconds",
		"timer_steps_total",
		"timer_tick_rejected_total",
		"loop_frame_duration_seconds",
		"loop_fixed_steps_total",
		"loop_frame_panics_total",
		"loop_time_scale",
		"relay_published_total",
		"relay_received_total",
		"relay_failures_total",
		"relay_inbox_depth",
		"http_requests_total",
		"http_request_duration_seconds",
	}
	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	m := NewManager(Config{Enabled: false})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when disabled, got %d", w.Code)
	}
}

func TestInstall_WiresPackageRecorders(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Install()
	t.Cleanup(Uninstall)

	bus := signal.NewBus(signal.WithName("installed"))
	s := timer.NewScheduler(nil, timer.WithSchedulerName("installed"), timer.WithBus(bus))
	bus.SubscribeFunc("ping", func() {})
	bus.Emit("ping")
	s.SetTimeout(func() {}, time.Second)
	s.Tick(timer.LaneNormal, time.Second)

	body := scrape(t, m)
	for _, want := range []string{
		`signal_emitted_total{bus="installed",signal="ping"} 1`,
		`timer_fired_total{lane="normal",scheduler="installed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestNoOpManager(t *testing.T) {
	m := NoOpManager()

	if m.Enabled() {
		t.Error("NoOpManager should not be enabled")
	}

	// These should not panic
	m.RecordSignalEmitted("b", "s", 1)
	m.RecordTimerFired("s", "normal")
	m.RecordFrame(time.Millisecond)
	m.RecordRelayFailed("s", "x")
	m.RecordHTTPRequest(context.Background(), "GET", "/", "200", time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()
	if err := m.StartServer(context.Background(), 0, "/metrics"); err != nil {
		t.Errorf("disabled StartServer should return nil, got %v", err)
	}
}

func TestStartServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 19191

	m := NewManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.StartServer(ctx, cfg.Port, cfg.Path)
	}()

	var resp *http.Response
	var err error
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://localhost:19191/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Server error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("server did not stop")
	}
}

func BenchmarkRecordSignalEmitted(b *testing.B) {
	m := NewManager(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordSignalEmitted("global", "player.hit", 2)
	}
}

func BenchmarkRecordTick(b *testing.B) {
	m := NewManager(DefaultConfig())
	d := 10 * time.Microsecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordTick("world", "normal", 16, d)
	}
}

func BenchmarkNoOpRecording(b *testing.B) {
	m := NoOpManager()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordSignalEmitted("global", "player.hit", 2)
		m.RecordTick("world", "normal", 16, 0)
	}
}
