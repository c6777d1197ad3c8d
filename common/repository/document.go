package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/dagrunner/common/db"
	"github.com/lyzr/dagrunner/internal/domain"
)

// DocumentRepository handles database operations for ingested documents.
type DocumentRepository struct {
	db *db.DB
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(database *db.DB) *DocumentRepository {
	return &DocumentRepository{db: database}
}

// Create inserts a new document.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	query := `
		INSERT INTO documents (id, type, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.Exec(ctx, query, id, doc.Type, doc.Content, metadata, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID retrieves a document by its id.
func (r *DocumentRepository) GetByID(ctx context.Context, docID string) (*domain.Document, error) {
	id, err := uuid.Parse(docID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id: %w", err)
	}
	query := `
		SELECT id, type, content, metadata, created_at
		FROM documents
		WHERE id = $1
	`
	doc := &domain.Document{}
	var dbID uuid.UUID
	var metadata []byte
	err = r.db.QueryRow(ctx, query, id).Scan(&dbID, &doc.Type, &doc.Content, &metadata, &doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	doc.ID = dbID.String()
	if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return doc, nil
}

// UploadedFileRepository handles database operations for binary uploads.
// Node handlers read these as the source for ingest.pdf.
type UploadedFileRepository struct {
	db *db.DB
}

// NewUploadedFileRepository creates a new uploaded file repository.
func NewUploadedFileRepository(database *db.DB) *UploadedFileRepository {
	return &UploadedFileRepository{db: database}
}

// GetByID retrieves an uploaded file's metadata by its id.
func (r *UploadedFileRepository) GetByID(ctx context.Context, fileID string) (*domain.UploadedFile, error) {
	id, err := uuid.Parse(fileID)
	if err != nil {
		return nil, fmt.Errorf("invalid file id: %w", err)
	}
	query := `
		SELECT id, owner_id, filename, content_type, storage_ref, size, created_at
		FROM uploaded_files
		WHERE id = $1
	`
	f := &domain.UploadedFile{}
	var dbID uuid.UUID
	err = r.db.QueryRow(ctx, query, id).Scan(&dbID, &f.OwnerID, &f.Filename, &f.ContentType, &f.StorageRef, &f.Size, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get uploaded file: %w", err)
	}
	f.ID = dbID.String()
	return f, nil
}
