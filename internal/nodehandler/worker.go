package nodehandler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/dagrunner/common/logger"
	"github.com/lyzr/dagrunner/internal/broker"
	"github.com/lyzr/dagrunner/internal/domain"
)

// LogAppender is the slice of the run log repository a Worker needs.
type LogAppender interface {
	Append(ctx context.Context, entry *domain.RunLog) error
}

// CompletionPublisher is the slice of *broker.Broker a Worker needs to
// report a node's outcome back to the Coordinator.
type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, sig broker.CompletionSignal) error
}

// Worker drains one category queue, dispatches each task, and reports its
// outcome as a completion signal. A handler error is treated as an
// immediately terminal node failure rather than left to the broker's
// redelivery loop: node outcomes must always reach the Coordinator, and a
// task the broker eventually dead-letters without ever producing a
// completion signal would leave its run stuck in running forever.
type Worker struct {
	dispatcher *Dispatcher
	runLogs    LogAppender
	publisher  CompletionPublisher
	log        *logger.Logger
}

// NewWorker constructs a Worker.
func NewWorker(dispatcher *Dispatcher, runLogs LogAppender, publisher CompletionPublisher, log *logger.Logger) *Worker {
	return &Worker{dispatcher: dispatcher, runLogs: runLogs, publisher: publisher, log: log}
}

// HandleTask is the function ConsumeNodeTasks calls per delivered message.
// It never returns a non-nil error for a handler-level failure: that
// failure is instead recorded as a node_completed(failed) signal, and the
// message is acked. A non-nil return here is reserved for failure to even
// report the outcome (a publish error), which the broker should redeliver.
// Log-append errors are only logged and never returned.
func (w *Worker) HandleTask(ctx context.Context, task broker.NodeTask) error {
	w.appendLog(ctx, task.RunID, task.NodeID, domain.LogInfo, "starting", nil)

	result, err := w.dispatcher.Dispatch(ctx, Task{
		RunID:  task.RunID,
		NodeID: task.NodeID,
		Kind:   task.Kind,
		Config: task.Config,
		Inputs: task.Inputs,
	})
	if err != nil {
		w.appendLog(ctx, task.RunID, task.NodeID, domain.LogError, err.Error(), nil)
		return w.publisher.PublishCompletion(ctx, broker.CompletionSignal{
			RunID:  task.RunID,
			NodeID: task.NodeID,
			Status: domain.NodeFailed,
			Error:  err.Error(),
		})
	}

	w.appendLog(ctx, task.RunID, task.NodeID, domain.LogInfo, "completed", map[string]interface{}{"fallback_used": result.FallbackUsed})
	return w.publisher.PublishCompletion(ctx, broker.CompletionSignal{
		RunID:        task.RunID,
		NodeID:       task.NodeID,
		Status:       domain.NodeCompleted,
		Outputs:      result.Outputs,
		FallbackUsed: result.FallbackUsed,
	})
}

func (w *Worker) appendLog(ctx context.Context, runID, nodeID string, level domain.LogLevel, message string, payload map[string]interface{}) {
	entry := &domain.RunLog{
		ID:        uuid.New().String(),
		RunID:     runID,
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Payload:   payload,
	}
	if err := w.runLogs.Append(ctx, entry); err != nil {
		w.log.WithRunID(runID).WithNodeID(nodeID).Error("failed to append run log", "error", err)
	}
}
