package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func captureRequest(t *testing.T, handler http.HandlerFunc, path string) map[string]interface{} {
	t.Helper()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	loggedHandler := Logger(logger)(handler)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	loggedHandler.ServeHTTP(rec, req)

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}
	return logEntry
}

func TestLogger(t *testing.T) {
	logEntry := captureRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}, "/test")

	if logEntry["method"] != "GET" {
		t.Errorf("expected method GET, got %v", logEntry["method"])
	}
	if logEntry["path"] != "/test" {
		t.Errorf("expected path /test, got %v", logEntry["path"])
	}
	if logEntry["status"] != float64(200) {
		t.Errorf("expected status 200, got %v", logEntry["status"])
	}
	if logEntry["message"] != "request completed" {
		t.Errorf("expected message 'request completed', got %v", logEntry["message"])
	}
	if _, ok := logEntry["duration"]; !ok {
		t.Error("expected a duration field")
	}
}

func TestLoggerWithErrorStatus(t *testing.T) {
	logEntry := captureRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Not Found"))
	}, "/notfound")

	if logEntry["status"] != float64(404) {
		t.Errorf("expected status 404, got %v", logEntry["status"])
	}
}

func TestLoggerImplicitOK(t *testing.T) {
	// Handlers that never call WriteHeader still log 200
	logEntry := captureRequest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}, "/implicit")

	if logEntry["status"] != float64(200) {
		t.Errorf("expected implicit status 200, got %v", logEntry["status"])
	}
}
