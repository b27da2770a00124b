package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MiscMich/villabot-sub004/internal/core/domain"
	"github.com/MiscMich/villabot-sub004/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

// Upload stores the raw document body, records metadata and hands the heavy
// processing to the worker via the sync queue.
func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	workspaceID, title, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", fmt.Errorf("workspace id is required"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s_%s", workspaceID, id, sanitizeTitle(title))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		WorkspaceID: workspaceID,
		Title:       title,
		MimeType:    mimeType,
		StoragePath: storageKey,
		Source:      domain.SourceUpload,
		Status:      domain.StatusSynced,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentSynced(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish sync event: %w", err)
	}

	return doc, nil
}

func sanitizeTitle(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.bin"
	}
	return base
}
