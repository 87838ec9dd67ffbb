package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"
)

const emitRoute = "/api/v1/signals/{name}/emit"

func spanContext(flags trace.TraceFlags) context.Context {
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xa1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{9, 8, 7, 6, 5, 4, 3, 2},
		TraceFlags: flags,
	})
	return trace.ContextWithSpanContext(context.Background(), spanCtx)
}

// durationExemplars returns the trace ids attached to http_request_duration_seconds buckets.
func durationExemplars(t *testing.T, m *Manager) []string {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var ids []string
	for _, mf := range families {
		if mf.GetName() != "http_request_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, bucket := range metric.GetHistogram().GetBucket() {
				for _, label := range bucket.GetExemplar().GetLabel() {
					if label.GetName() == "trace_id" {
						ids = append(ids, label.GetValue())
					}
				}
			}
		}
	}
	return ids
}

func TestRecordHTTPRequest_LabelsByRoutePattern(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordHTTPRequest(context.Background(), "POST", emitRoute, "202", 3*time.Millisecond)
	m.RecordHTTPRequest(context.Background(), "POST", emitRoute, "202", 4*time.Millisecond)
	m.RecordHTTPRequest(context.Background(), "POST", emitRoute, "409", time.Millisecond)
	m.RecordHTTPRequest(context.Background(), "GET", "/health", "200", time.Millisecond)

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", emitRoute, "202")); got != 2 {
		t.Errorf("emit 202 count = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.httpRequests); got != 3 {
		t.Errorf("request series = %d, want 3", got)
	}
	if got := testutil.CollectAndCount(m.httpDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestRecordHTTPRequest_Exemplars(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want int
	}{
		{name: "sampled span", ctx: spanContext(trace.FlagsSampled), want: 1},
		{name: "unsampled span", ctx: spanContext(0), want: 0},
		{name: "no span", ctx: context.Background(), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(DefaultConfig())
			m.RecordHTTPRequest(tt.ctx, "GET", "/api/v1/timers/{id}", "200", 2*time.Millisecond)

			ids := durationExemplars(t, m)
			if len(ids) != tt.want {
				t.Fatalf("exemplars = %v, want %d", ids, tt.want)
			}
			if tt.want > 0 {
				wantID := trace.SpanContextFromContext(tt.ctx).TraceID().String()
				if ids[0] != wantID {
					t.Errorf("exemplar trace_id = %s, want %s", ids[0], wantID)
				}
			}
		})
	}
}

func TestActiveConnections(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.IncActiveConnections()
	m.IncActiveConnections()
	m.DecActiveConnections()

	if got := testutil.ToFloat64(m.httpConnections); got != 1 {
		t.Errorf("active connections = %v, want 1", got)
	}
}

func TestHTTPRecording_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	m := NewManager(cfg)

	m.RecordHTTPRequest(spanContext(trace.FlagsSampled), "GET", "/health", "200", time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()
}

func TestTraceExemplarLabels_NilContext(t *testing.T) {
	if labels, ok := traceExemplarLabels(nil); ok {
		t.Fatalf("expected no labels for nil context, got %v", labels)
	}
}
