package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTimeout(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	handler := Timeout(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, hasDeadline = r.Context().Deadline()
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/timers", nil))

	if !hasDeadline {
		t.Fatal("expected request context to carry a deadline")
	}
	if time.Until(deadline) > time.Minute {
		t.Errorf("deadline %v is further than the timeout", deadline)
	}
}

func TestTimeout_Expires(t *testing.T) {
	var ctxErr error
	handler := Timeout(20 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		ctxErr = r.Context().Err()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !errors.Is(ctxErr, context.DeadlineExceeded) {
		t.Errorf("ctx err = %v, want deadline exceeded", ctxErr)
	}
}

func TestTimeout_SkipsWebSocketAndZero(t *testing.T) {
	check := func(name string, mw func(http.Handler) http.Handler, req *http.Request) {
		var hasDeadline bool
		mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, hasDeadline = r.Context().Deadline()
		})).ServeHTTP(httptest.NewRecorder(), req)
		if hasDeadline {
			t.Errorf("%s: expected no deadline", name)
		}
	}

	ws := httptest.NewRequest(http.MethodGet, "/ws/signals", nil)
	ws.Header.Set("Connection", "Upgrade")
	ws.Header.Set("Upgrade", "websocket")
	check("websocket", Timeout(time.Second), ws)

	check("zero timeout", Timeout(0), httptest.NewRequest(http.MethodGet, "/", nil))
}
