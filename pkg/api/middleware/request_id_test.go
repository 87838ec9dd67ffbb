package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name              string
		existingRequestID string
		wantGenerated     bool
	}{
		{
			name:              "generate new request ID",
			existingRequestID: "",
			wantGenerated:     true,
		},
		{
			name:              "use existing request ID",
			existingRequestID: "existing-123",
			wantGenerated:     false,
		},
		{
			name:              "replace malformed request ID",
			existingRequestID: "bad id\nwith newline",
			wantGenerated:     true,
		},
		{
			name:              "replace oversized request ID",
			existingRequestID: strings.Repeat("a", 65),
			wantGenerated:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var capturedRequestID string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				capturedRequestID = GetRequestID(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.existingRequestID != "" {
				req.Header.Set(RequestIDHeader, tt.existingRequestID)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			responseID := w.Header().Get(RequestIDHeader)
			if responseID == "" {
				t.Error("X-Request-ID header not set in response")
			}
			if responseID != capturedRequestID {
				t.Errorf("Response ID %v != Context ID %v", responseID, capturedRequestID)
			}

			if tt.wantGenerated {
				if _, err := uuid.Parse(capturedRequestID); err != nil {
					t.Errorf("Generated request ID is not a valid UUID: %v", err)
				}
			} else if capturedRequestID != tt.existingRequestID {
				t.Errorf("Request ID = %v, want %v", capturedRequestID, tt.existingRequestID)
			}
		})
	}
}

func TestRequestIDOrUnknown(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := RequestIDOrUnknown(req.Context()); got != "unknown" {
		t.Errorf("RequestIDOrUnknown() = %q, want unknown", got)
	}
}
