package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/lyzr/dagrunner/common/db"
	"github.com/lyzr/dagrunner/internal/domain"
)

// RunRepository handles database operations for workflow runs.
//
// Run ids are plain strings everywhere above this package (domain,
// broker, HTTP API); this is the only place that translates them to and
// from Postgres's native uuid column type.
type RunRepository struct {
	db *db.DB
}

// NewRunRepository creates a new run repository.
func NewRunRepository(database *db.DB) *RunRepository {
	return &RunRepository{db: database}
}

// Create inserts a new run in the queued state.
func (r *RunRepository) Create(ctx context.Context, run *domain.Run) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}
	workflowID, err := uuid.Parse(run.WorkflowID)
	if err != nil {
		return fmt.Errorf("invalid workflow id: %w", err)
	}

	nodeStatus, err := json.Marshal(run.NodeStatus)
	if err != nil {
		return fmt.Errorf("marshal node_status: %w", err)
	}
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	outputs, err := json.Marshal(run.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	var plan []byte
	if run.Plan != nil {
		plan, err = json.Marshal(run.Plan)
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
	}

	query := `
		INSERT INTO runs (id, workflow_id, owner_id, status, created_at, started_at, completed_at, error, node_status, inputs, outputs, plan)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.Exec(ctx, query,
		id, workflowID, run.OwnerID, run.Status, run.CreatedAt,
		run.StartedAt, run.CompletedAt, run.Error, nodeStatus, inputs, outputs, plan,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by its id.
func (r *RunRepository) GetByID(ctx context.Context, runID string) (*domain.Run, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id: %w", err)
	}
	query := `
		SELECT id, workflow_id, owner_id, status, created_at, started_at, completed_at, error, node_status, inputs, outputs, plan
		FROM runs
		WHERE id = $1
	`
	row := r.db.QueryRow(ctx, query, id)
	return scanRun(row)
}

// Update persists the full mutable state of a run: status, timestamps,
// error, node_status, and outputs. Plan is written once, by SetPlan at run
// start, and never rewritten, so it is deliberately excluded here.
func (r *RunRepository) Update(ctx context.Context, run *domain.Run) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}
	nodeStatus, err := json.Marshal(run.NodeStatus)
	if err != nil {
		return fmt.Errorf("marshal node_status: %w", err)
	}
	outputs, err := json.Marshal(run.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	query := `
		UPDATE runs
		SET status = $2, started_at = $3, completed_at = $4, error = $5, node_status = $6, outputs = $7
		WHERE id = $1
	`
	_, err = r.db.Exec(ctx, query, id, run.Status, run.StartedAt, run.CompletedAt, run.Error, nodeStatus, outputs)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// SetPlan persists the execution plan computed once at run start.
func (r *RunRepository) SetPlan(ctx context.Context, runID string, plan *domain.Plan) error {
	id, err := uuid.Parse(runID)
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = r.db.Exec(ctx, `UPDATE runs SET plan = $2 WHERE id = $1`, id, data)
	if err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	return nil
}

// ListOptions filters and paginates the run listing.
type ListOptions struct {
	WorkflowID string
	Status     domain.RunStatus
	Skip       int
	Limit      int
}

// List retrieves runs matching the given filters, newest first.
func (r *RunRepository) List(ctx context.Context, opts ListOptions) ([]*domain.Run, error) {
	var workflowID *uuid.UUID
	if opts.WorkflowID != "" {
		id, err := uuid.Parse(opts.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("invalid workflow id: %w", err)
		}
		workflowID = &id
	}

	query := `
		SELECT id, workflow_id, owner_id, status, created_at, started_at, completed_at, error, node_status, inputs, outputs, plan
		FROM runs
		WHERE ($1::uuid IS NULL OR workflow_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		OFFSET $3 LIMIT $4
	`
	rows, err := r.db.Query(ctx, query, workflowID, string(opts.Status), opts.Skip, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*domain.Run, error) {
	run := &domain.Run{}
	var id, workflowID uuid.UUID
	var nodeStatus, inputs, outputs, plan []byte

	err := row.Scan(
		&id, &workflowID, &run.OwnerID, &run.Status, &run.CreatedAt,
		&run.StartedAt, &run.CompletedAt, &run.Error, &nodeStatus, &inputs, &outputs, &plan,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.ID = id.String()
	run.WorkflowID = workflowID.String()

	if err := json.Unmarshal(nodeStatus, &run.NodeStatus); err != nil {
		return nil, fmt.Errorf("unmarshal node_status: %w", err)
	}
	if err := json.Unmarshal(inputs, &run.Inputs); err != nil {
		return nil, fmt.Errorf("unmarshal inputs: %w", err)
	}
	if err := json.Unmarshal(outputs, &run.Outputs); err != nil {
		return nil, fmt.Errorf("unmarshal outputs: %w", err)
	}
	if len(plan) > 0 {
		run.Plan = &domain.Plan{}
		if err := json.Unmarshal(plan, run.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal plan: %w", err)
		}
	}
	return run, nil
}
