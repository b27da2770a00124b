package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

func TestPostReplySendsScopedPayload(t *testing.T) {
	var got replyPayload
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "secret")
	scope := domain.TenantScope{WorkspaceID: "ws-1", BotID: "bot-1"}
	err := n.PostReply(context.Background(), scope, "ch-1", "th-1", "Check-out is at 11am.")
	if err != nil {
		t.Fatalf("PostReply() error = %v", err)
	}

	if got.WorkspaceID != "ws-1" || got.BotID != "bot-1" {
		t.Fatalf("scope = %s/%s, want ws-1/bot-1", got.WorkspaceID, got.BotID)
	}
	if got.Text != "Check-out is at 11am." {
		t.Fatalf("text = %q", got.Text)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestPostReplySurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "channel archived", http.StatusGone)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "")
	scope := domain.TenantScope{WorkspaceID: "ws-1", BotID: "bot-1"}
	err := n.PostReply(context.Background(), scope, "ch-1", "", "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "channel archived") {
		t.Fatalf("error = %v, want body included", err)
	}
}
