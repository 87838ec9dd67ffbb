package response

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tickbus/tickbus/pkg/fsm"
	"github.com/tickbus/tickbus/pkg/hub"
	"github.com/tickbus/tickbus/pkg/signal"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		data       interface{}
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success with data",
			statusCode: http.StatusOK,
			data:       map[string]string{"message": "success"},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"success"}`,
		},
		{
			name:       "created with data",
			statusCode: http.StatusCreated,
			data:       map[string]int{"id": 123},
			wantStatus: http.StatusCreated,
			wantBody:   `{"id":123}`,
		},
		{
			name:       "no content",
			statusCode: http.StatusNoContent,
			data:       nil,
			wantStatus: http.StatusNoContent,
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			JSON(w, tt.statusCode, tt.data)

			if w.Code != tt.wantStatus {
				t.Errorf("JSON() status = %v, want %v", w.Code, tt.wantStatus)
			}

			if tt.data == nil {
				if w.Body.Len() != 0 {
					t.Errorf("JSON() body = %q, want empty", w.Body.String())
				}
				return
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("JSON() Content-Type = %v, want application/json", ct)
			}

			var got, want interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if err := json.Unmarshal([]byte(tt.wantBody), &want); err != nil {
				t.Fatalf("failed to unmarshal expected: %v", err)
			}

			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(want)
			if string(gotJSON) != string(wantJSON) {
				t.Errorf("JSON() body = %s, want %s", gotJSON, wantJSON)
			}
		})
	}
}

func TestList(t *testing.T) {
	w := httptest.NewRecorder()
	List[string](w, nil)

	var body struct {
		Items []string `json:"items"`
		Count int      `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if body.Items == nil || body.Count != 0 {
		t.Errorf("List(nil) = %+v, want empty items", body)
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, ErrCodeNotFound, "signal not found", "req-456")

	if w.Code != http.StatusNotFound {
		t.Errorf("Error() status = %v, want %v", w.Code, http.StatusNotFound)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Code != ErrCodeNotFound {
		t.Errorf("Error() code = %v, want %v", resp.Error.Code, ErrCodeNotFound)
	}
	if resp.Error.Message != "signal not found" {
		t.Errorf("Error() message = %v", resp.Error.Message)
	}
	if resp.Error.RequestID != "req-456" {
		t.Errorf("Error() requestID = %v", resp.Error.RequestID)
	}
}

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrNotFound, http.StatusNotFound},
		{"unknown state", &fsm.UnknownStateError{Machine: "door", State: "ajar"}, http.StatusNotFound},
		{"invalid input", fmt.Errorf("decode: %w", ErrInvalidInput), http.StatusBadRequest},
		{"conflict", ErrConflict, http.StatusConflict},
		{"payload mismatch", &signal.PayloadMismatchError{Signal: "hit"}, http.StatusConflict},
		{"queue full", hub.ErrQueueFull, http.StatusServiceUnavailable},
		{"hub closed", hub.ErrHubClosed, http.StatusServiceUnavailable},
		{"deadline", fmt.Errorf("waiting for hub call: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown error", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusFromError(tt.err); got != tt.want {
				t.Errorf("HTTPStatusFromError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleError(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, hub.ErrQueueFull, "req-1")

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Code != ErrCodeServiceUnavailable {
		t.Errorf("code = %s, want %s", resp.Error.Code, ErrCodeServiceUnavailable)
	}
}

func TestErrorCodeFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusBadRequest, ErrCodeBadRequest},
		{http.StatusNotFound, ErrCodeNotFound},
		{http.StatusConflict, ErrCodeConflict},
		{http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{http.StatusGatewayTimeout, ErrCodeGatewayTimeout},
		{999, ErrCodeInternalServer},
	}

	for _, tt := range tests {
		if got := ErrorCodeFromStatus(tt.status); got != tt.want {
			t.Errorf("ErrorCodeFromStatus(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
