// Package orchestrator starts a Run: it builds the execution plan, flips
// the Run to running, and dispatches the initial frontier of nodes that
// have no predecessors.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/dagrunner/common/logger"
	"github.com/lyzr/dagrunner/internal/broker"
	"github.com/lyzr/dagrunner/internal/domain"
	"github.com/lyzr/dagrunner/internal/plan"
)

// RunStore is the slice of *repository.RunRepository the Orchestrator
// needs. Declared here, at the point of use, so tests can swap in an
// in-memory fake instead of a Postgres-backed repository.
type RunStore interface {
	GetByID(ctx context.Context, runID string) (*domain.Run, error)
	Update(ctx context.Context, run *domain.Run) error
	SetPlan(ctx context.Context, runID string, plan *domain.Plan) error
}

// WorkflowStore is the slice of *repository.WorkflowRepository the
// Orchestrator needs.
type WorkflowStore interface {
	GetByID(ctx context.Context, workflowID string) (*domain.Workflow, error)
}

// LogAppender is the slice of *repository.RunLogRepository the
// Orchestrator needs.
type LogAppender interface {
	Append(ctx context.Context, entry *domain.RunLog) error
}

// TaskPublisher is the slice of *broker.Broker the Orchestrator needs.
type TaskPublisher interface {
	PublishNodeTask(ctx context.Context, task broker.NodeTask) error
}

// Orchestrator owns the queued->running transition and initial dispatch
// for every Run in the system. One instance is constructed in cmd/worker
// and shared by the worker's run_start consumer loop.
type Orchestrator struct {
	runs      RunStore
	workflows WorkflowStore
	runLogs   LogAppender
	broker    TaskPublisher
	log       *logger.Logger
}

// New constructs an Orchestrator.
func New(runs RunStore, workflows WorkflowStore, runLogs LogAppender, b TaskPublisher, log *logger.Logger) *Orchestrator {
	return &Orchestrator{runs: runs, workflows: workflows, runLogs: runLogs, broker: b, log: log}
}

// Start handles one run_start message. It is idempotent: redelivering
// run_start against a Run that has already started (terminal, or running
// with started_at set) is a no-op.
func (o *Orchestrator) Start(ctx context.Context, runID string) error {
	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("orchestrator: load run %s: %w", runID, err)
	}

	if run.Status.Terminal() || (run.Status == domain.RunRunning && run.StartedAt != nil) {
		o.log.WithRunID(runID).Info("run_start redelivered against already-started run, ignoring")
		return nil
	}

	wf, err := o.workflows.GetByID(ctx, run.WorkflowID)
	if err != nil {
		return o.fail(ctx, run, fmt.Errorf("load workflow %s: %w", run.WorkflowID, err))
	}

	pl, err := plan.Build(wf)
	if err != nil {
		return o.fail(ctx, run, err)
	}

	run.Plan = pl
	for _, id := range pl.Order {
		run.NodeStatus[id] = domain.NodePending
	}
	if err := o.runs.SetPlan(ctx, run.ID, pl); err != nil {
		return fmt.Errorf("orchestrator: persist plan: %w", err)
	}

	now := time.Now()
	run.StartedAt = &now
	run.Status = domain.RunRunning

	if len(pl.Order) == 0 {
		run.Status = domain.RunSucceeded
		run.CompletedAt = &now
		if err := o.runs.Update(ctx, run); err != nil {
			return fmt.Errorf("orchestrator: update empty-workflow run: %w", err)
		}
		o.appendLog(ctx, run.ID, "", domain.LogInfo, "empty workflow, run succeeded immediately", nil)
		return nil
	}

	if err := o.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("orchestrator: transition run to running: %w", err)
	}
	o.appendLog(ctx, run.ID, "", domain.LogInfo, "run started", map[string]interface{}{"node_count": len(pl.Order)})

	frontier := plan.Frontier(pl)
	for _, nodeID := range frontier {
		pn := pl.Nodes[nodeID]
		task := broker.NodeTask{
			RunID:  run.ID,
			NodeID: nodeID,
			Kind:   pn.Kind,
			Config: pn.Config,
			Inputs: filterInputs(run.Inputs, pn.Kind.ConsumedKeys()),
		}
		if err := o.broker.PublishNodeTask(ctx, task); err != nil {
			return fmt.Errorf("orchestrator: dispatch frontier node %s: %w", nodeID, err)
		}
		run.NodeStatus[nodeID] = domain.NodeRunning
		o.appendLog(ctx, run.ID, nodeID, domain.LogInfo, "starting", nil)
	}

	return o.runs.Update(ctx, run)
}

// fail transitions run to failed with err's message and persists it. Used
// for structural failures discovered before any node is dispatched:
// missing workflow, or a cycle detected at plan construction.
func (o *Orchestrator) fail(ctx context.Context, run *domain.Run, cause error) error {
	now := time.Now()
	run.Status = domain.RunFailed
	run.Error = cause.Error()
	run.CompletedAt = &now
	if err := o.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("orchestrator: persist failure (caused by %w): %w", cause, err)
	}
	o.appendLog(ctx, run.ID, "", domain.LogError, cause.Error(), nil)
	return nil
}

func (o *Orchestrator) appendLog(ctx context.Context, runID, nodeID string, level domain.LogLevel, message string, payload map[string]interface{}) {
	entry := &domain.RunLog{
		ID:        uuid.New().String(),
		RunID:     runID,
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Payload:   payload,
	}
	if err := o.runLogs.Append(ctx, entry); err != nil {
		o.log.WithRunID(runID).Error("failed to append run log", "error", err)
	}
}

// filterInputs returns the subset of inputs whose keys appear in keep. A
// nil or empty keep list yields an empty map: the node consumes nothing
// from Run.Inputs directly (it relies entirely on its own config).
func filterInputs(inputs map[string]interface{}, keep []string) map[string]interface{} {
	out := make(map[string]interface{}, len(keep))
	for _, k := range keep {
		if v, ok := inputs[k]; ok {
			out[k] = v
		}
	}
	return out
}
