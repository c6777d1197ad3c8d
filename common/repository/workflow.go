package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/dagrunner/common/db"
	"github.com/lyzr/dagrunner/internal/domain"
)

// WorkflowRepository handles database operations for workflow definitions.
type WorkflowRepository struct {
	db *db.DB
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(database *db.DB) *WorkflowRepository {
	return &WorkflowRepository{db: database}
}

// Create inserts a new workflow.
func (r *WorkflowRepository) Create(ctx context.Context, wf *domain.Workflow) error {
	id, err := uuid.Parse(wf.ID)
	if err != nil {
		return fmt.Errorf("invalid workflow id: %w", err)
	}
	nodes, err := json.Marshal(wf.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edges, err := json.Marshal(wf.Edges)
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}

	query := `
		INSERT INTO workflows (id, name, version, owner_id, active, nodes, edges, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Exec(ctx, query, id, wf.Name, wf.Version, wf.OwnerID, wf.Active, nodes, edges, wf.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// GetByID retrieves a workflow by its id.
func (r *WorkflowRepository) GetByID(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	id, err := uuid.Parse(workflowID)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow id: %w", err)
	}
	query := `
		SELECT id, name, version, owner_id, active, nodes, edges, created_at
		FROM workflows
		WHERE id = $1
	`
	wf := &domain.Workflow{}
	var dbID uuid.UUID
	var nodes, edges []byte
	err = r.db.QueryRow(ctx, query, id).Scan(
		&dbID, &wf.Name, &wf.Version, &wf.OwnerID, &wf.Active, &nodes, &edges, &wf.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	wf.ID = dbID.String()
	if err := json.Unmarshal(nodes, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &wf.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	return wf, nil
}
