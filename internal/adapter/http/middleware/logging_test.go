package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggingMiddlewareRecordsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/queue/statistics", nil)
	rr := httptest.NewRecorder()

	NewLoggingMiddleware(logger).Wrap(next).ServeHTTP(rr, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log entry: %v", err)
	}

	if entry["method"] != http.MethodGet {
		t.Fatalf("expected method GET, got %v", entry["method"])
	}

	if entry["path"] != "/api/v1/queue/statistics" {
		t.Fatalf("expected request path in log entry, got %v", entry["path"])
	}

	if entry["status"] != float64(http.StatusNotFound) {
		t.Fatalf("expected status 404, got %v", entry["status"])
	}
}

func TestLoggingMiddlewareDefaultsStatusOK(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	NewLoggingMiddleware(logger).Wrap(next).ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log entry: %v", err)
	}

	if entry["status"] != float64(http.StatusOK) {
		t.Fatalf("expected implicit status 200, got %v", entry["status"])
	}
}
