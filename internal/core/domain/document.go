package domain

import "time"

type DocumentStatus string

const (
	StatusSynced     DocumentStatus = "synced"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type DocumentSource string

const (
	SourceUpload DocumentSource = "upload"
	SourceDrive  DocumentSource = "drive"
	SourceWeb    DocumentSource = "web"
)

type Document struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Title       string         `json:"title"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	Source      DocumentSource `json:"source"`
	SourceURL   string         `json:"source_url,omitempty"`
	ChunkCount  int            `json:"chunk_count,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
