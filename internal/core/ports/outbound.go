package ports

import (
	"context"
	"io"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

// HybridSearcher is the external vector+keyword search primitive. The store
// computes both scores; the core only consumes them.
type HybridSearcher interface {
	HybridSearch(ctx context.Context, queryText string, queryEmbedding []float32, matchCount int, vectorWeight, keywordWeight float64, scope domain.TenantScope) ([]domain.RetrievedChunk, error)
}

// ChunkIndexer persists chunk text and embeddings for later retrieval.
type ChunkIndexer interface {
	IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator creates the final user-facing answer from ranked context.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, chunks []domain.RerankedChunk) (string, error)
}

// IntentModel is the model-based classification tier. It returns the raw
// model text; the classifier parses it defensively.
type IntentModel interface {
	ClassifyIntent(ctx context.Context, message string) (string, error)
}

// ThreadStore persists thread turns and feedback signals.
type ThreadStore interface {
	AppendTurn(ctx context.Context, turn domain.ThreadTurn) error
	ListTurns(ctx context.Context, scope domain.TenantScope, channelID, threadID string, limit int) ([]domain.ThreadTurn, error)
	HasBotReply(ctx context.Context, scope domain.TenantScope, channelID, threadID string) (bool, error)
	RecordFeedback(ctx context.Context, fb domain.Feedback) error
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetChunkCount(ctx context.Context, id string, chunkCount int) error
}

// ObjectStorage stores raw synced document bodies.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes document-sync events.
type MessageQueue interface {
	PublishDocumentSynced(ctx context.Context, documentID string) error
	SubscribeDocumentSynced(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document. Format specifics
// are a black box behind this interface.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits extracted text into retrieval units.
type Chunker interface {
	Split(text string) []string
}

// ChatNotifier delivers an answer back to the chat platform.
type ChatNotifier interface {
	PostReply(ctx context.Context, scope domain.TenantScope, channelID, threadID, text string) error
}
