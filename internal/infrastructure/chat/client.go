// Package chat delivers answers back to the tenant's chat platform through
// its outgoing webhook.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

type WebhookNotifier struct {
	webhookURL string
	authToken  string
	httpClient *http.Client
}

func NewWebhookNotifier(webhookURL, authToken string) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: strings.TrimRight(webhookURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type replyPayload struct {
	WorkspaceID string `json:"workspace_id"`
	BotID       string `json:"bot_id"`
	ChannelID   string `json:"channel_id"`
	ThreadID    string `json:"thread_id,omitempty"`
	Text        string `json:"text"`
}

func (n *WebhookNotifier) PostReply(ctx context.Context, scope domain.TenantScope, channelID, threadID, text string) error {
	payload := replyPayload{
		WorkspaceID: scope.WorkspaceID,
		BotID:       scope.BotID,
		ChannelID:   channelID,
		ThreadID:    threadID,
		Text:        text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create reply request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.authToken)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			return fmt.Errorf("chat webhook status: %s", resp.Status)
		}
		return fmt.Errorf("chat webhook status: %s: %s", resp.Status, msg)
	}
	return nil
}
