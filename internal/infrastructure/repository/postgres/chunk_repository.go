package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

// ChunkRepository stores chunk text plus embeddings and fronts the
// hybrid_search_chunks SQL function, which blends pgvector cosine similarity
// with full-text rank inside the database.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082602)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS document_chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	workspace_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	content_tsv TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', content)) STORED,
	embedding VECTOR(768) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chunks_workspace ON document_chunks(workspace_id);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_tsv ON document_chunks USING GIN(content_tsv);

CREATE OR REPLACE FUNCTION hybrid_search_chunks(
	query_text TEXT,
	query_embedding VECTOR(768),
	match_count INT,
	vector_weight DOUBLE PRECISION,
	keyword_weight DOUBLE PRECISION,
	p_workspace_id TEXT
) RETURNS TABLE (
	id TEXT,
	content TEXT,
	document_title TEXT,
	source_url TEXT,
	similarity DOUBLE PRECISION,
	rank_score DOUBLE PRECISION
) LANGUAGE sql STABLE AS $$
	SELECT
		c.id,
		c.content,
		d.title AS document_title,
		d.source_url,
		1 - (c.embedding <=> query_embedding) AS similarity,
		vector_weight * (1 - (c.embedding <=> query_embedding))
			+ keyword_weight * ts_rank(c.content_tsv, websearch_to_tsquery('english', query_text)) AS rank_score
	FROM document_chunks c
	JOIN documents d ON d.id = c.document_id
	WHERE c.workspace_id = p_workspace_id
	  AND d.status = 'ready'
	ORDER BY rank_score DESC
	LIMIT match_count
$$;
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// IndexChunks replaces a document's chunks atomically: reprocessing a document
// must never leave a mix of old and new chunks behind.
func (r *ChunkRepository) IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("delete stale chunks: %w", err)
	}

	for idx, chunk := range chunks {
		_, err := tx.ExecContext(ctx, `
INSERT INTO document_chunks (id, document_id, workspace_id, chunk_index, content, embedding)
VALUES ($1, $2, $3, $4, $5, $6::vector)
`,
			fmt.Sprintf("%s:%d", doc.ID, idx), doc.ID, doc.WorkspaceID, idx, chunk, vectorLiteral(vectors[idx]),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", idx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index tx: %w", err)
	}
	return nil
}

// HybridSearch runs the blended query against the workspace's knowledge
// base. Documents are indexed per workspace, not per bot: every bot in a
// workspace answers from the same corpus, and bot-level isolation applies to
// caches, threads and delivery, not to retrieval.
func (r *ChunkRepository) HybridSearch(
	ctx context.Context,
	queryText string,
	queryEmbedding []float32,
	matchCount int,
	vectorWeight, keywordWeight float64,
	scope domain.TenantScope,
) ([]domain.RetrievedChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, content, document_title, source_url, similarity, rank_score
FROM hybrid_search_chunks($1, $2::vector, $3, $4, $5, $6)
`,
		queryText, vectorLiteral(queryEmbedding), matchCount, vectorWeight, keywordWeight,
		scope.WorkspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("hybrid search query: %w", err)
	}
	defer rows.Close()

	var results []domain.RetrievedChunk
	for rows.Next() {
		var chunk domain.RetrievedChunk
		err := rows.Scan(
			&chunk.ID, &chunk.Content, &chunk.DocumentTitle, &chunk.SourceURL,
			&chunk.Similarity, &chunk.RankScore,
		)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// vectorLiteral renders the pgvector input syntax: [0.1,0.2,...].
func vectorLiteral(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
