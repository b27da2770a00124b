package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
)

type fakeDocRepo struct {
	docs      map[string]*domain.Document
	statuses  []domain.DocumentStatus
	lastError string
	chunkSet  int
}

func newFakeDocRepo(docs ...*domain.Document) *fakeDocRepo {
	r := &fakeDocRepo{docs: map[string]*domain.Document{}}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *fakeDocRepo) Create(ctx context.Context, doc *domain.Document) error {
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocRepo) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	return doc, nil
}

func (r *fakeDocRepo) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	r.statuses = append(r.statuses, status)
	r.lastError = errMessage
	return nil
}

func (r *fakeDocRepo) SetChunkCount(ctx context.Context, id string, chunkCount int) error {
	r.chunkSet = chunkCount
	return nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(ctx context.Context, doc *domain.Document) (string, error) {
	return f.text, f.err
}

type fakeChunker struct{ chunks []string }

func (f *fakeChunker) Split(text string) []string { return f.chunks }

type fakeStorage struct {
	saved map[string][]byte
}

func (f *fakeStorage) Save(ctx context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[key] = raw
	return nil
}

func (f *fakeStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.saved[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type fakeQueue struct {
	published []string
	err       error
}

func (f *fakeQueue) PublishDocumentSynced(ctx context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *fakeQueue) SubscribeDocumentSynced(ctx context.Context, handler func(context.Context, string) error) error {
	return nil
}

func TestProcessByIDHappyPath(t *testing.T) {
	repo := newFakeDocRepo(&domain.Document{ID: "doc-1", WorkspaceID: "ws-1", StoragePath: "ws-1/doc-1_rules.txt"})
	uc := NewProcessDocumentUseCase(
		repo,
		&fakeExtractor{text: "house rules text"},
		&fakeChunker{chunks: []string{"house rules", "text"}},
		&fakeEmbedder{vec: []float32{0.1}},
		&fakeChunkIndexer{},
	)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	want := []domain.DocumentStatus{domain.StatusProcessing, domain.StatusReady}
	if len(repo.statuses) != 2 || repo.statuses[0] != want[0] || repo.statuses[1] != want[1] {
		t.Fatalf("statuses = %v, want %v", repo.statuses, want)
	}
	if repo.chunkSet != 2 {
		t.Fatalf("chunk count = %d, want 2", repo.chunkSet)
	}
}

func TestProcessByIDMarksFailedWithMessage(t *testing.T) {
	repo := newFakeDocRepo(&domain.Document{ID: "doc-1"})
	uc := NewProcessDocumentUseCase(
		repo,
		&fakeExtractor{err: errors.New("corrupt pdf")},
		&fakeChunker{},
		&fakeEmbedder{},
		&fakeChunkIndexer{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if err == nil {
		t.Fatalf("ProcessByID() error = nil, want extraction failure")
	}
	last := repo.statuses[len(repo.statuses)-1]
	if last != domain.StatusFailed {
		t.Fatalf("final status = %v, want failed", last)
	}
	if !strings.Contains(repo.lastError, "corrupt pdf") {
		t.Fatalf("error message = %q, want extraction cause", repo.lastError)
	}
}

func TestProcessByIDRejectsEmptyExtraction(t *testing.T) {
	repo := newFakeDocRepo(&domain.Document{ID: "doc-1"})
	uc := NewProcessDocumentUseCase(
		repo,
		&fakeExtractor{text: ""},
		&fakeChunker{},
		&fakeEmbedder{},
		&fakeChunkIndexer{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("ProcessByID() error = %v, want invalid input", err)
	}
}

func TestProcessByIDRejectsVectorMismatch(t *testing.T) {
	repo := newFakeDocRepo(&domain.Document{ID: "doc-1"})
	embedder := &fakeEmbedder{vec: []float32{0.1}}
	uc := NewProcessDocumentUseCase(
		repo,
		&fakeExtractor{text: "some text"},
		&fakeChunker{chunks: []string{"a", "b"}},
		&mismatchEmbedder{inner: embedder},
		&fakeChunkIndexer{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("ProcessByID() error = %v, want invalid input", err)
	}
}

type mismatchEmbedder struct{ inner *fakeEmbedder }

func (m *mismatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{0.1}}, nil
}

func (m *mismatchEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.inner.EmbedQuery(ctx, text)
}

type fakeChunkIndexer struct {
	chunks  []string
	vectors [][]float32
}

func (f *fakeChunkIndexer) IndexChunks(ctx context.Context, doc *domain.Document, chunks []string, vectors [][]float32) error {
	f.chunks = chunks
	f.vectors = vectors
	return nil
}

func TestUploadStoresPersistsAndPublishes(t *testing.T) {
	repo := newFakeDocRepo()
	storage := &fakeStorage{}
	queue := &fakeQueue{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	doc, err := uc.Upload(context.Background(), "ws-1", "House Rules.txt", "text/plain", strings.NewReader("no parties"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Status != domain.StatusSynced || doc.Source != domain.SourceUpload {
		t.Fatalf("doc = %+v", doc)
	}
	if !strings.HasPrefix(doc.StoragePath, "ws-1/") || !strings.HasSuffix(doc.StoragePath, "House_Rules.txt") {
		t.Fatalf("storage path = %q", doc.StoragePath)
	}
	if _, ok := storage.saved[doc.StoragePath]; !ok {
		t.Fatalf("body not saved under %q", doc.StoragePath)
	}
	if len(queue.published) != 1 || queue.published[0] != doc.ID {
		t.Fatalf("published = %v", queue.published)
	}
	if _, ok := repo.docs[doc.ID]; !ok {
		t.Fatalf("metadata row missing")
	}
}

func TestUploadRequiresWorkspace(t *testing.T) {
	uc := NewIngestDocumentUseCase(newFakeDocRepo(), &fakeStorage{}, &fakeQueue{})

	_, err := uc.Upload(context.Background(), "  ", "x.txt", "text/plain", strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("Upload() error = %v, want invalid input", err)
	}
}

func TestUploadSanitizesTitle(t *testing.T) {
	if got := sanitizeTitle("../../etc/pass wd?.txt"); strings.ContainsAny(got, "/? ") {
		t.Fatalf("sanitizeTitle() = %q, unsafe characters survived", got)
	}
	if got := sanitizeTitle(""); got != "document.bin" {
		t.Fatalf("sanitizeTitle(\"\") = %q", got)
	}
}
