package ports

import (
	"context"
	"io"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

// InboundMessage is what the chat-platform route layer hands to the core for
// one incoming message.
type InboundMessage struct {
	Scope         domain.TenantScope
	ChannelID     string
	ThreadID      string
	Text          string
	IsThreadReply bool
}

// MessageAnswerer is the inbound contract for the retrieval-and-ranking
// pipeline.
type MessageAnswerer interface {
	HandleMessage(ctx context.Context, msg InboundMessage) (*domain.Answer, error)
}

// DocumentIngestor is the inbound contract for document upload/sync intake.
type DocumentIngestor interface {
	Upload(ctx context.Context, workspaceID, title, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous processing of
// synced documents.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
