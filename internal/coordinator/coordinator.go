// Package coordinator reacts to node completion signals: it persists
// outputs, advances node status, detects run completion/failure, and
// dispatches whatever nodes become ready as a result.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/dagrunner/common/logger"
	"github.com/lyzr/dagrunner/internal/broker"
	"github.com/lyzr/dagrunner/internal/domain"
)

// RunStore is the slice of *repository.RunRepository the Coordinator
// needs. Declared here, at the point of use, so tests can swap in an
// in-memory fake instead of a Postgres-backed repository.
type RunStore interface {
	GetByID(ctx context.Context, runID string) (*domain.Run, error)
	Update(ctx context.Context, run *domain.Run) error
}

// LogAppender is the slice of *repository.RunLogRepository the
// Coordinator needs.
type LogAppender interface {
	Append(ctx context.Context, entry *domain.RunLog) error
}

// TaskPublisher is the slice of *broker.Broker the Coordinator needs.
type TaskPublisher interface {
	PublishNodeTask(ctx context.Context, task broker.NodeTask) error
}

// Coordinator owns every state transition that happens after a Run has
// started: recording a node's outcome, deciding whether the run is done,
// and dispatching newly-ready nodes. It never re-reads the Workflow — the
// Run's persisted Plan is the only source of topology it consults.
type Coordinator struct {
	runs    RunStore
	runLogs LogAppender
	broker  TaskPublisher
	log     *logger.Logger
}

// New constructs a Coordinator.
func New(runs RunStore, runLogs LogAppender, b TaskPublisher, log *logger.Logger) *Coordinator {
	return &Coordinator{runs: runs, runLogs: runLogs, broker: b, log: log}
}

// HandleCompletion processes one node_completed or node_failed signal. It
// is safe to call twice with the same (run_id, node_id): the second call
// observes node_status already at a terminal value and returns without
// further effect.
func (c *Coordinator) HandleCompletion(ctx context.Context, sig broker.CompletionSignal) error {
	run, err := c.runs.GetByID(ctx, sig.RunID)
	if err != nil {
		return fmt.Errorf("coordinator: load run %s: %w", sig.RunID, err)
	}

	if run.Status.Terminal() {
		c.log.WithRunID(sig.RunID).Info("completion signal for already-terminal run, ignoring", "node_id", sig.NodeID)
		return nil
	}

	if run.Plan == nil {
		return fmt.Errorf("coordinator: run %s has no persisted plan", sig.RunID)
	}

	if run.NodeStatus[sig.NodeID] == domain.NodeCompleted || run.NodeStatus[sig.NodeID] == domain.NodeFailed {
		c.log.WithRunID(sig.RunID).Info("redelivered completion, ignoring", "node_id", sig.NodeID)
		return nil
	}

	if sig.Status == domain.NodeFailed {
		return c.failRun(ctx, run, sig)
	}

	run.Outputs[sig.NodeID] = sig.Outputs
	run.NodeStatus[sig.NodeID] = domain.NodeCompleted
	c.appendLog(ctx, run.ID, sig.NodeID, domain.LogInfo, "completed", map[string]interface{}{"fallback_used": sig.FallbackUsed})

	if run.AllNodesCompleted() {
		now := time.Now()
		run.Status = domain.RunSucceeded
		run.CompletedAt = &now
		if err := c.runs.Update(ctx, run); err != nil {
			return fmt.Errorf("coordinator: persist run success: %w", err)
		}
		c.appendLog(ctx, run.ID, "", domain.LogInfo, "run succeeded", nil)
		return nil
	}

	ready := c.readyFrontier(run)
	for _, nodeID := range ready {
		pn := run.Plan.Nodes[nodeID]
		inputs := c.resolveInputs(run, nodeID)
		task := broker.NodeTask{
			RunID:  run.ID,
			NodeID: nodeID,
			Kind:   pn.Kind,
			Config: pn.Config,
			Inputs: inputs,
		}
		if err := c.broker.PublishNodeTask(ctx, task); err != nil {
			return fmt.Errorf("coordinator: dispatch node %s: %w", nodeID, err)
		}
		run.NodeStatus[nodeID] = domain.NodeRunning
		c.appendLog(ctx, run.ID, nodeID, domain.LogInfo, "starting", nil)
	}

	return c.runs.Update(ctx, run)
}

func (c *Coordinator) failRun(ctx context.Context, run *domain.Run, sig broker.CompletionSignal) error {
	run.NodeStatus[sig.NodeID] = domain.NodeFailed
	now := time.Now()
	run.Status = domain.RunFailed
	run.Error = sig.Error
	run.CompletedAt = &now
	if err := c.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("coordinator: persist run failure: %w", err)
	}
	c.appendLog(ctx, run.ID, sig.NodeID, domain.LogError, sig.Error, nil)
	return nil
}

// readyFrontier returns, in sorted node-id order, the nodes whose every
// predecessor is completed and which are not already completed or running.
// The running guard is what prevents double-enqueue under redelivery: two
// concurrent invocations computing the same ready set will each see the
// other's winners already marked running by the time they call Update.
func (c *Coordinator) readyFrontier(run *domain.Run) []string {
	var ready []string
	for _, nodeID := range run.Plan.Order {
		status := run.NodeStatus[nodeID]
		if status == domain.NodeCompleted || status == domain.NodeRunning {
			continue
		}
		allDepsDone := true
		for _, dep := range run.Plan.Deps[nodeID] {
			if run.NodeStatus[dep] != domain.NodeCompleted {
				allDepsDone = false
				break
			}
		}
		if allDepsDone {
			ready = append(ready, nodeID)
		}
	}
	sort.Strings(ready)
	return ready
}

// resolveInputs merges outputs of every predecessor of nodeID with the
// run's own declared inputs. Key collisions are resolved by deterministic
// node-id ordering: predecessors sorted ascending, each later predecessor's
// keys overwrite earlier ones; predecessor outputs take precedence over
// Run.Inputs, since a predecessor's output is the more specific, more
// recently produced value for that key.
func (c *Coordinator) resolveInputs(run *domain.Run, nodeID string) map[string]interface{} {
	merged := make(map[string]interface{}, len(run.Inputs))
	for k, v := range run.Inputs {
		merged[k] = v
	}

	deps := append([]string(nil), run.Plan.Deps[nodeID]...)
	sort.Strings(deps)
	for _, dep := range deps {
		for k, v := range run.Outputs[dep] {
			merged[k] = v
		}
	}
	return merged
}

func (c *Coordinator) appendLog(ctx context.Context, runID, nodeID string, level domain.LogLevel, message string, payload map[string]interface{}) {
	entry := &domain.RunLog{
		ID:        uuid.New().String(),
		RunID:     runID,
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Payload:   payload,
	}
	if err := c.runLogs.Append(ctx, entry); err != nil {
		c.log.WithRunID(runID).Error("failed to append run log", "error", err)
	}
}
