package domain

import "time"

type ThreadRole string

const (
	RoleUser ThreadRole = "user"
	RoleBot  ThreadRole = "bot"
)

// ThreadTurn is one prior message in a chat thread. The classifier only needs
// the ordered roles and contents; everything else is bookkeeping.
type ThreadTurn struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id"`
	BotID       string     `json:"bot_id"`
	ChannelID   string     `json:"channel_id"`
	ThreadID    string     `json:"thread_id"`
	Role        ThreadRole `json:"role"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"created_at"`
}

type FeedbackKind string

const (
	FeedbackPositive   FeedbackKind = "positive"
	FeedbackNegative   FeedbackKind = "negative"
	FeedbackCorrection FeedbackKind = "correction"
)

type Feedback struct {
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspace_id"`
	BotID       string       `json:"bot_id"`
	ThreadID    string       `json:"thread_id"`
	Kind        FeedbackKind `json:"kind"`
	Message     string       `json:"message"`
	CreatedAt   time.Time    `json:"created_at"`
}
