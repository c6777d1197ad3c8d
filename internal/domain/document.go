package domain

import "time"

// DocumentType is the closed set of ingest document kinds.
type DocumentType string

const (
	DocumentPDF     DocumentType = "pdf"
	DocumentURL     DocumentType = "url"
	DocumentWebhook DocumentType = "webhook"
)

// Document is produced by an ingest node and may be referenced by
// downstream nodes via id, or outlive the Run that produced it.
type Document struct {
	ID        string                 `json:"id"`
	Type      DocumentType           `json:"type"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

// UploadedFile is the external collaborator's record of a binary upload.
// The engine reads it only by id, for ingest.pdf.
type UploadedFile struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	StorageRef  string    `json:"storage_ref"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}
