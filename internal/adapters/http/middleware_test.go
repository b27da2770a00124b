package httpadapter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

func TestRequestIDMiddlewareEchoesCallerID(t *testing.T) {
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := requestIDFromContext(r.Context()); got != "req-abc" {
			t.Fatalf("request id in context = %q, want %q", got, "req-abc")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-abc")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := res.Header().Get(requestIDHeader); got != "req-abc" {
		t.Fatalf("response header = %q, want %q", got, "req-abc")
	}
}

func TestRequestIDMiddlewareGeneratesWhenMissing(t *testing.T) {
	handler := requestIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a generated request id header")
	}
}

func TestRequestIDMiddlewareReplacesOversizedID(t *testing.T) {
	oversized := strings.Repeat("x", maxInboundRequestIDLen+1)
	handler := requestIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, oversized)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	got := res.Header().Get(requestIDHeader)
	if got == "" || got == oversized {
		t.Fatalf("oversized request id passed through: %q", got)
	}
}

func TestAccessLogCarriesTenantFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	answerer := &fakeAnswerer{answer: &domain.Answer{
		Text:   "The pool closes at 10pm.",
		Intent: domain.IntentResult{Intent: domain.IntentQuestion, Confidence: 0.9, ShouldRespond: true},
	}}
	handler := newTestRouter(answerer, &fakeIngestor{}, &fakeDocReader{})

	body := `{"workspace_id":"ws-1","bot_id":"bot-1","text":"when does the pool close?"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode access log %q: %v", buf.String(), err)
	}
	if entry["msg"] != "http_request" {
		t.Fatalf("log event = %v, want http_request", entry["msg"])
	}
	if entry["workspace_id"] != "ws-1" || entry["bot_id"] != "bot-1" {
		t.Fatalf("tenant fields = %v/%v, want ws-1/bot-1", entry["workspace_id"], entry["bot_id"])
	}
	if entry["request_id"] == "" || entry["request_id"] == nil {
		t.Fatalf("access log missing request_id: %v", entry)
	}
}

func TestAccessLogLevelByStatus(t *testing.T) {
	cases := []struct {
		status int
		want   slog.Level
	}{
		{http.StatusOK, slog.LevelInfo},
		{http.StatusBadRequest, slog.LevelWarn},
		{http.StatusBadGateway, slog.LevelError},
	}
	for _, tc := range cases {
		if got := accessLogLevel(tc.status); got != tc.want {
			t.Fatalf("accessLogLevel(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}
