package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/dagrunner/common/logger"
	"github.com/lyzr/dagrunner/common/repository"
	"github.com/lyzr/dagrunner/internal/domain"
)

type fakeWorkflowStore struct {
	workflows map[string]*domain.Workflow
	created   []*domain.Workflow
}

func (s *fakeWorkflowStore) Create(_ context.Context, wf *domain.Workflow) error {
	if s.workflows == nil {
		s.workflows = map[string]*domain.Workflow{}
	}
	s.workflows[wf.ID] = wf
	s.created = append(s.created, wf)
	return nil
}

func (s *fakeWorkflowStore) GetByID(_ context.Context, id string) (*domain.Workflow, error) {
	wf, ok := s.workflows[id]
	if !ok {
		return nil, errNotFound{}
	}
	return wf, nil
}

type fakeRunStore struct {
	runs map[string]*domain.Run
}

func (s *fakeRunStore) Create(_ context.Context, run *domain.Run) error {
	if s.runs == nil {
		s.runs = map[string]*domain.Run{}
	}
	s.runs[run.ID] = run
	return nil
}

func (s *fakeRunStore) GetByID(_ context.Context, id string) (*domain.Run, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, errNotFound{}
	}
	return run, nil
}

func (s *fakeRunStore) Update(_ context.Context, run *domain.Run) error {
	s.runs[run.ID] = run
	return nil
}

func (s *fakeRunStore) List(_ context.Context, opts repository.ListOptions) ([]*domain.Run, error) {
	var out []*domain.Run
	for _, r := range s.runs {
		if opts.WorkflowID != "" && r.WorkflowID != opts.WorkflowID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// errNotFound stands in for pgx.ErrNoRows in tests: isNotFound only checks
// errors.Is against pgx.ErrNoRows, so these fakes instead exercise the
// "any other error" 400 branch; a dedicated not-found test below
// constructs the handler-visible 404 path directly via pgx.ErrNoRows.
type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type fakeLogReader struct {
	logs []*domain.RunLog
}

func (r *fakeLogReader) ListAfter(_ context.Context, _, _ string, _ int) ([]*domain.RunLog, string, error) {
	return r.logs, "5", nil
}

type fakeRunStartPublisher struct {
	published []string
}

func (p *fakeRunStartPublisher) PublishRunStart(_ context.Context, runID string) error {
	p.published = append(p.published, runID)
	return nil
}

func testLogger() *logger.Logger { return logger.New("error", "json") }

func newTestHandler() (*Handler, *fakeWorkflowStore, *fakeRunStore, *fakeLogReader, *fakeRunStartPublisher) {
	workflows := &fakeWorkflowStore{}
	runs := &fakeRunStore{}
	logs := &fakeLogReader{}
	pub := &fakeRunStartPublisher{}
	return NewHandler(workflows, runs, logs, pub, testLogger()), workflows, runs, logs, pub
}

func newContext(method, target, body string, owner string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if owner != "" {
		req.Header.Set("X-Owner-ID", owner)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(ownerIDKey, owner)
	return c, rec
}

func TestCreateWorkflow_ValidGraphSucceeds(t *testing.T) {
	h, workflows, _, _, _ := newTestHandler()
	body := `{"name":"w1","nodes":[{"id":"a","type":"text.transform","config":{}}],"edges":[]}`
	c, rec := newContext(http.MethodPost, "/workflows", body, "alice")

	require.NoError(t, h.CreateWorkflow(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, workflows.created, 1)
	assert.Equal(t, "alice", workflows.created[0].OwnerID)
}

func TestCreateWorkflow_CyclicGraphRejected(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	body := `{"name":"w1","nodes":[{"id":"a","type":"text.transform"},{"id":"b","type":"text.transform"}],` +
		`"edges":[{"id":"e1","source":"a","target":"b"},{"id":"e2","source":"b","target":"a"}]}`
	c, rec := newContext(http.MethodPost, "/workflows", body, "alice")

	require.NoError(t, h.CreateWorkflow(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cycle")
}

func TestGetWorkflow_MissingWorkflowNotFound(t *testing.T) {
	h, _, _, _, _ := newTestHandler()
	h.workflows = pgxNotFoundWorkflowStore{}
	c, rec := newContext(http.MethodGet, "/workflows/ghost", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("ghost")

	require.NoError(t, h.GetWorkflow(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type pgxNotFoundWorkflowStore struct{}

func (pgxNotFoundWorkflowStore) Create(context.Context, *domain.Workflow) error { return nil }
func (pgxNotFoundWorkflowStore) GetByID(context.Context, string) (*domain.Workflow, error) {
	return nil, fmt.Errorf("query workflow: %w", pgx.ErrNoRows)
}

func TestGetWorkflow_WrongOwnerForbidden(t *testing.T) {
	h, workflows, _, _, _ := newTestHandler()
	workflows.workflows = map[string]*domain.Workflow{
		"wf-1": {ID: "wf-1", OwnerID: "alice"},
	}
	c, rec := newContext(http.MethodGet, "/workflows/wf-1", "", "mallory")
	c.SetParamNames("id")
	c.SetParamValues("wf-1")

	require.NoError(t, h.GetWorkflow(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStartRun_PublishesRunStartAndReturnsQueued(t *testing.T) {
	h, workflows, runs, _, pub := newTestHandler()
	workflows.workflows = map[string]*domain.Workflow{
		"wf-1": {ID: "wf-1", OwnerID: "alice"},
	}
	c, rec := newContext(http.MethodPost, "/workflows/wf-1/run", `{"inputs":{"k":"v"}}`, "alice")
	c.SetParamNames("id")
	c.SetParamValues("wf-1")

	require.NoError(t, h.StartRun(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, pub.published, 1)
	assert.Len(t, runs.runs, 1)
	assert.Contains(t, rec.Body.String(), `"status":"queued"`)
}

func TestCancelRun_TerminalRunRejected(t *testing.T) {
	h, _, runs, _, _ := newTestHandler()
	runs.runs = map[string]*domain.Run{
		"run-1": {ID: "run-1", OwnerID: "alice", Status: domain.RunSucceeded},
	}
	c, rec := newContext(http.MethodPost, "/runs/run-1/cancel", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("run-1")

	require.NoError(t, h.CancelRun(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelRun_RunningRunCancelled(t *testing.T) {
	h, _, runs, _, _ := newTestHandler()
	runs.runs = map[string]*domain.Run{
		"run-1": {ID: "run-1", OwnerID: "alice", Status: domain.RunRunning},
	}
	c, rec := newContext(http.MethodPost, "/runs/run-1/cancel", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("run-1")

	require.NoError(t, h.CancelRun(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.RunCancelled, runs.runs["run-1"].Status)
	assert.NotNil(t, runs.runs["run-1"].CompletedAt)
}

func TestGetRunLogs_ReturnsCursorAndEntries(t *testing.T) {
	h, _, runs, logReader, _ := newTestHandler()
	runs.runs = map[string]*domain.Run{
		"run-1": {ID: "run-1", OwnerID: "alice", Status: domain.RunRunning},
	}
	logReader.logs = []*domain.RunLog{{ID: "l1", RunID: "run-1", Message: "starting", Timestamp: time.Now()}}
	c, rec := newContext(http.MethodGet, "/runs/run-1/logs", "", "alice")
	c.SetParamNames("id")
	c.SetParamValues("run-1")

	require.NoError(t, h.GetRunLogs(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"next_cursor":"5"`)
}

func TestListRuns_FiltersByWorkflowID(t *testing.T) {
	h, _, runs, _, _ := newTestHandler()
	runs.runs = map[string]*domain.Run{
		"run-1": {ID: "run-1", WorkflowID: "wf-a"},
		"run-2": {ID: "run-2", WorkflowID: "wf-b"},
	}
	c, rec := newContext(http.MethodGet, "/runs?workflow_id=wf-a", "", "alice")

	require.NoError(t, h.ListRuns(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}
