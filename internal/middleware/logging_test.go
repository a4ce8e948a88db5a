package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
)

func decodeLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log: %v\nraw: %s", err, buf.String())
	}
	return entry
}

// TestLoggingMiddleware_LogsRequestFields はリクエストログに必要なフィールドが含まれることを検証する。
func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/workouts/u1", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, &buf)
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", entry["msg"])
	}
	if entry["method"] != "GET" {
		t.Errorf("method = %v, want GET", entry["method"])
	}
	if entry["path"] != "/api/workouts/u1" {
		t.Errorf("path = %v", entry["path"])
	}
	if status, _ := entry["status"].(float64); status != 200 {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("expected 'duration_ms' field in log entry")
	}
	if _, ok := entry["user_id"]; ok {
		t.Error("user_id should be omitted for anonymous requests")
	}
}

// TestLoggingMiddleware_IncludesInnerUserID は内側のセッションミドルウェアが注入したユーザーIDを記録することを検証する。
func TestLoggingMiddleware_IncludesInnerUserID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	inner := NewSessionMiddleware(sessionsFor("s1", "user-123"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	handler := chimw.RequestID(NewLoggingMiddleware(logger)(inner))

	req := httptest.NewRequest(http.MethodDelete, "/api/workouts/w1", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "s1"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeLogEntry(t, &buf)
	if entry["user_id"] != "user-123" {
		t.Errorf("user_id = %v, want user-123", entry["user_id"])
	}
	if entry["request_id"] == nil || entry["request_id"] == "" {
		t.Error("expected request_id")
	}
}

// TestLoggingMiddleware_LevelByStatus はステータスコードに応じてログレベルが変わることを検証する。
func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"2xxはINFO", http.StatusOK, "INFO"},
		{"4xxはWARN", http.StatusNotFound, "WARN"},
		{"5xxはERROR", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			handler := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

			entry := decodeLogEntry(t, &buf)
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %s", entry["level"], tt.level)
			}
		})
	}
}
