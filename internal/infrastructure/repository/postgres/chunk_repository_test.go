package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

func newChunkRepoWithMock(t *testing.T) (*ChunkRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ChunkRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestHybridSearchScansBothScores(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "content", "document_title", "source_url", "similarity", "rank_score"}).
		AddRow("c-1", "Check-out is at 11am.", "House Rules", "", 0.91, 0.84).
		AddRow("c-2", "Late check-out can be arranged.", "House Rules", "", 0.82, 0.71)

	mock.ExpectQuery("FROM hybrid_search_chunks").
		WithArgs("check-out time", "[0.5,0.5]", 20, 0.7, 0.3, "ws-1").
		WillReturnRows(rows)

	scope := domain.TenantScope{WorkspaceID: "ws-1", BotID: "bot-1"}
	got, err := repo.HybridSearch(context.Background(), "check-out time", []float32{0.5, 0.5}, 20, 0.7, 0.3, scope)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Similarity != 0.91 || got[0].RankScore != 0.84 {
		t.Fatalf("scores = %v/%v, want 0.91/0.84", got[0].Similarity, got[0].RankScore)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHybridSearchEmptyResult(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	rows := sqlmock.NewRows([]string{"id", "content", "document_title", "source_url", "similarity", "rank_score"})
	mock.ExpectQuery("FROM hybrid_search_chunks").WillReturnRows(rows)

	scope := domain.TenantScope{WorkspaceID: "ws-1", BotID: "bot-1"}
	got, err := repo.HybridSearch(context.Background(), "anything", []float32{0.1}, 20, 0.7, 0.3, scope)
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIndexChunksReplacesInsideOneTransaction(t *testing.T) {
	repo, mock, done := newChunkRepoWithMock(t)
	defer done()

	doc := &domain.Document{ID: "doc-1", WorkspaceID: "ws-1", CreatedAt: time.Now().UTC()}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM document_chunks").
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO document_chunks").
		WithArgs("doc-1:0", "doc-1", "ws-1", 0, "first chunk", "[0.25,0.75]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_chunks").
		WithArgs("doc-1:1", "doc-1", "ws-1", 1, "second chunk", "[1,0]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.IndexChunks(context.Background(), doc,
		[]string{"first chunk", "second chunk"},
		[][]float32{{0.25, 0.75}, {1, 0}},
	)
	if err != nil {
		t.Fatalf("IndexChunks() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIndexChunksRejectsMismatchedVectors(t *testing.T) {
	repo, _, done := newChunkRepoWithMock(t)
	defer done()

	doc := &domain.Document{ID: "doc-1", WorkspaceID: "ws-1"}
	err := repo.IndexChunks(context.Background(), doc, []string{"one"}, nil)
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestVectorLiteral(t *testing.T) {
	got := vectorLiteral([]float32{0.5, -1, 0})
	if got != "[0.5,-1,0]" {
		t.Fatalf("vectorLiteral = %q", got)
	}
	if vectorLiteral(nil) != "[]" {
		t.Fatalf("empty vector literal = %q", vectorLiteral(nil))
	}
}
