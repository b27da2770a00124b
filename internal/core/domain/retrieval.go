package domain

// TenantScope identifies the workspace and bot that every retrieval call,
// cache entry and persisted row must be keyed by. Cross-tenant leakage is a
// correctness bug, not a tuning concern.
type TenantScope struct {
	WorkspaceID string `json:"workspace_id"`
	BotID       string `json:"bot_id"`
}

// RetrievedChunk is one hit returned by the external hybrid search primitive.
// Similarity carries the vector-search score, RankScore the store's pre-rerank
// composite. Instances are never mutated after retrieval.
type RetrievedChunk struct {
	ID            string  `json:"id"`
	Content       string  `json:"content"`
	DocumentTitle string  `json:"document_title"`
	SourceURL     string  `json:"source_url,omitempty"`
	Similarity    float64 `json:"similarity"`
	RankScore     float64 `json:"rank_score"`
}

// RerankedChunk attaches the second-pass score without touching the original
// fields. RerankScore is not a probability: caller-supplied weights are not
// renormalized, so values outside [0,1] are legal and only relative order is
// meaningful.
type RerankedChunk struct {
	RetrievedChunk
	RerankScore float64 `json:"rerank_score"`
}

type Answer struct {
	Text      string          `json:"text"`
	Intent    IntentResult    `json:"intent"`
	Sources   []RerankedChunk `json:"sources,omitempty"`
	NoContext bool            `json:"no_context,omitempty"`
	Skipped   bool            `json:"skipped,omitempty"`
	Cached    bool            `json:"cached,omitempty"`
}
