// Package httpapi is the engine's HTTP control plane: create and run
// workflows, inspect and cancel runs, read a run's log stream. Every
// handler here is the single place an internal error or sentinel gets
// translated into an HTTP status code (§9's "exception-driven control flow
// replaced with explicit tagged results, translated once at the edge").
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/dagrunner/common/logger"
	"github.com/lyzr/dagrunner/common/repository"
	"github.com/lyzr/dagrunner/internal/domain"
	"github.com/lyzr/dagrunner/internal/plan"
)

// WorkflowStore is the slice of the workflow repository the API needs.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	GetByID(ctx context.Context, workflowID string) (*domain.Workflow, error)
}

// RunStore is the slice of the run repository the API needs. List's
// option type is the repository package's own, rather than a locally
// redeclared shape, since Go's structural typing requires an exact type
// match on parameter types, not just equivalent fields.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, runID string) (*domain.Run, error)
	Update(ctx context.Context, run *domain.Run) error
	List(ctx context.Context, opts repository.ListOptions) ([]*domain.Run, error)
}

// LogReader is the slice of the run log repository the API needs.
type LogReader interface {
	ListAfter(ctx context.Context, runID, after string, limit int) ([]*domain.RunLog, string, error)
}

// RunStartPublisher is the slice of *broker.Broker the API needs to kick
// off the Orchestrator for a newly created Run.
type RunStartPublisher interface {
	PublishRunStart(ctx context.Context, runID string) error
}

// Handler wires the HTTP surface to the persistence and broker layers.
type Handler struct {
	workflows WorkflowStore
	runs      RunStore
	runLogs   LogReader
	broker    RunStartPublisher
	log       *logger.Logger
}

// NewHandler constructs a Handler.
func NewHandler(workflows WorkflowStore, runs RunStore, runLogs LogReader, b RunStartPublisher, log *logger.Logger) *Handler {
	return &Handler{workflows: workflows, runs: runs, runLogs: runLogs, broker: b, log: log}
}

func isNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func errJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]interface{}{"error": msg})
}

// createWorkflowRequest is the POST /workflows body.
type createWorkflowRequest struct {
	Name  string        `json:"name"`
	Nodes []domain.Node `json:"nodes"`
	Edges []domain.Edge `json:"edges"`
}

// CreateWorkflow handles POST /workflows. The graph is validated by
// building its execution plan before it is ever persisted: an invalid DAG
// (cycle, dangling edge, duplicate id, unknown node type) never reaches
// storage.
func (h *Handler) CreateWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	owner, err := requireOwnerID(c)
	if err != nil {
		return err
	}

	var req createWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}

	wf := &domain.Workflow{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Version:   1,
		OwnerID:   owner,
		Active:    true,
		Nodes:     req.Nodes,
		Edges:     req.Edges,
		CreatedAt: time.Now(),
	}

	if _, err := plan.Build(wf); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid graph: "+err.Error())
	}

	if err := h.workflows.Create(ctx, wf); err != nil {
		h.log.WithContext(ctx).Error("failed to create workflow", "error", err)
		return errJSON(c, http.StatusInternalServerError, "failed to create workflow")
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{"workflow_id": wf.ID})
}

// GetWorkflow handles GET /workflows/{id}.
func (h *Handler) GetWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	wf, err := h.workflows.GetByID(ctx, c.Param("id"))
	if err != nil {
		if isNotFound(err) {
			return errJSON(c, http.StatusNotFound, "workflow not found")
		}
		return errJSON(c, http.StatusBadRequest, "invalid workflow id")
	}
	if wf.OwnerID != ownerID(c) {
		return errJSON(c, http.StatusForbidden, "not the workflow owner")
	}
	return c.JSON(http.StatusOK, wf)
}

// runWorkflowRequest is the POST /workflows/{id}/run body.
type runWorkflowRequest struct {
	Inputs map[string]interface{} `json:"inputs"`
}

// StartRun handles POST /workflows/{id}/run: it persists a queued Run and
// publishes run_start. The Orchestrator (consuming run_start elsewhere)
// does the actual planning and frontier dispatch.
func (h *Handler) StartRun(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("id")

	wf, err := h.workflows.GetByID(ctx, workflowID)
	if err != nil {
		if isNotFound(err) {
			return errJSON(c, http.StatusNotFound, "workflow not found")
		}
		return errJSON(c, http.StatusBadRequest, "invalid workflow id")
	}
	owner, err := requireOwnerID(c)
	if err != nil {
		return err
	}
	if wf.OwnerID != owner {
		return errJSON(c, http.StatusForbidden, "not the workflow owner")
	}

	var req runWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return errJSON(c, http.StatusBadRequest, "invalid request body")
	}

	run := domain.NewRun(uuid.New().String(), wf.ID, owner, req.Inputs)
	if err := h.runs.Create(ctx, run); err != nil {
		h.log.WithContext(ctx).Error("failed to create run", "error", err)
		return errJSON(c, http.StatusInternalServerError, "failed to create run")
	}
	if err := h.broker.PublishRunStart(ctx, run.ID); err != nil {
		h.log.WithContext(ctx).Error("failed to publish run_start", "run_id", run.ID, "error", err)
		return errJSON(c, http.StatusInternalServerError, "failed to enqueue run")
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{"run_id": run.ID, "status": string(run.Status)})
}

// GetRun handles GET /runs/{id}.
func (h *Handler) GetRun(c echo.Context) error {
	ctx := c.Request().Context()
	run, status, errMsg := h.loadOwnedRun(ctx, c)
	if errMsg != "" {
		return errJSON(c, status, errMsg)
	}
	return c.JSON(http.StatusOK, run)
}

// GetRunLogs handles GET /runs/{id}/logs.
func (h *Handler) GetRunLogs(c echo.Context) error {
	ctx := c.Request().Context()
	run, status, errMsg := h.loadOwnedRun(ctx, c)
	if errMsg != "" {
		return errJSON(c, status, errMsg)
	}

	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	logs, cursor, err := h.runLogs.ListAfter(ctx, run.ID, c.QueryParam("after"), limit)
	if err != nil {
		h.log.WithContext(ctx).Error("failed to list run logs", "run_id", run.ID, "error", err)
		return errJSON(c, http.StatusInternalServerError, "failed to list run logs")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":      run.ID,
		"logs":        logs,
		"next_cursor": cursor,
	})
}

// CancelRun handles POST /runs/{id}/cancel. Cancellation is cooperative
// only (§5): it sets Run.status = cancelled from a non-terminal state and
// does not attempt to interrupt an in-flight handler.
func (h *Handler) CancelRun(c echo.Context) error {
	ctx := c.Request().Context()
	run, status, errMsg := h.loadOwnedRun(ctx, c)
	if errMsg != "" {
		return errJSON(c, status, errMsg)
	}

	if run.Status.Terminal() {
		return errJSON(c, http.StatusBadRequest, "run is already in a terminal state")
	}

	now := time.Now()
	run.Status = domain.RunCancelled
	run.CompletedAt = &now
	if err := h.runs.Update(ctx, run); err != nil {
		h.log.WithContext(ctx).Error("failed to cancel run", "run_id", run.ID, "error", err)
		return errJSON(c, http.StatusInternalServerError, "failed to cancel run")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"message": "cancelled"})
}

// ListRuns handles GET /runs?workflow_id=&status=&skip=&limit=.
func (h *Handler) ListRuns(c echo.Context) error {
	ctx := c.Request().Context()

	opts := repository.ListOptions{
		WorkflowID: c.QueryParam("workflow_id"),
		Status:     domain.RunStatus(c.QueryParam("status")),
		Skip:       queryInt(c, "skip", 0),
		Limit:      queryInt(c, "limit", 50),
	}

	runs, err := h.runs.List(ctx, opts)
	if err != nil {
		h.log.WithContext(ctx).Error("failed to list runs", "error", err)
		return errJSON(c, http.StatusInternalServerError, "failed to list runs")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
		"skip":  opts.Skip,
		"limit": opts.Limit,
	})
}

// loadOwnedRun fetches the run named by the {id} path param and checks it
// against the caller's owner id, returning a (status, message) pair ready
// to hand to errJSON when non-empty.
func (h *Handler) loadOwnedRun(ctx context.Context, c echo.Context) (*domain.Run, int, string) {
	run, err := h.runs.GetByID(ctx, c.Param("id"))
	if err != nil {
		if isNotFound(err) {
			return nil, http.StatusNotFound, "run not found"
		}
		return nil, http.StatusBadRequest, "invalid run id"
	}
	if run.OwnerID != ownerID(c) {
		return nil, http.StatusForbidden, "not the run owner"
	}
	return run, 0, ""
}

func queryInt(c echo.Context, key string, def int) int {
	v := c.QueryParam(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
