package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/dagrunner/common/logger"
	"github.com/lyzr/dagrunner/internal/broker"
	"github.com/lyzr/dagrunner/internal/domain"
)

// fakeRunStore is an in-memory RunStore, in the same spirit as the
// teacher's mock CAS client: a narrow fake satisfying the interface the
// code under test actually calls.
type fakeRunStore struct {
	runs  map[string]*domain.Run
	plans map[string]*domain.Plan
}

func newFakeRunStore(runs ...*domain.Run) *fakeRunStore {
	s := &fakeRunStore{runs: map[string]*domain.Run{}, plans: map[string]*domain.Plan{}}
	for _, r := range runs {
		s.runs[r.ID] = r
	}
	return s
}

func (s *fakeRunStore) GetByID(_ context.Context, runID string) (*domain.Run, error) {
	r, ok := s.runs[runID]
	if !ok {
		return nil, errors.New("run not found")
	}
	return r, nil
}

func (s *fakeRunStore) Update(_ context.Context, run *domain.Run) error {
	s.runs[run.ID] = run
	return nil
}

func (s *fakeRunStore) SetPlan(_ context.Context, runID string, plan *domain.Plan) error {
	s.plans[runID] = plan
	return nil
}

type fakeWorkflowStore struct {
	workflows map[string]*domain.Workflow
}

func (s *fakeWorkflowStore) GetByID(_ context.Context, id string) (*domain.Workflow, error) {
	wf, ok := s.workflows[id]
	if !ok {
		return nil, errors.New("workflow not found")
	}
	return wf, nil
}

type fakeLogAppender struct {
	entries []*domain.RunLog
}

func (a *fakeLogAppender) Append(_ context.Context, entry *domain.RunLog) error {
	a.entries = append(a.entries, entry)
	return nil
}

type fakeTaskPublisher struct {
	tasks []broker.NodeTask
}

func (p *fakeTaskPublisher) PublishNodeTask(_ context.Context, task broker.NodeTask) error {
	p.tasks = append(p.tasks, task)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func linearWorkflow(id string) *domain.Workflow {
	return &domain.Workflow{
		ID: id,
		Nodes: []domain.Node{
			{ID: "a", Type: domain.NodeIngestWebhook},
			{ID: "b", Type: domain.NodeAISummarize},
		},
		Edges: []domain.Edge{{ID: "e1", Source: "a", Target: "b"}},
	}
}

func TestStart_DispatchesFrontierWithFilteredInputs(t *testing.T) {
	run := domain.NewRun("run-1", "wf-1", "owner-1", map[string]interface{}{"data": "payload", "unused": "x"})
	runs := newFakeRunStore(run)
	workflows := &fakeWorkflowStore{workflows: map[string]*domain.Workflow{"wf-1": linearWorkflow("wf-1")}}
	logs := &fakeLogAppender{}
	pub := &fakeTaskPublisher{}

	o := New(runs, workflows, logs, pub, testLogger())
	require.NoError(t, o.Start(context.Background(), "run-1"))

	got := runs.runs["run-1"]
	assert.Equal(t, domain.RunRunning, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.Equal(t, domain.NodeRunning, got.NodeStatus["a"])
	assert.Equal(t, domain.NodePending, got.NodeStatus["b"])

	require.Len(t, pub.tasks, 1)
	assert.Equal(t, "a", pub.tasks[0].NodeID)
	assert.Equal(t, map[string]interface{}{"data": "payload"}, pub.tasks[0].Inputs)
}

func TestStart_IdempotentAgainstAlreadyStartedRun(t *testing.T) {
	run := domain.NewRun("run-1", "wf-1", "owner-1", nil)
	run.Status = domain.RunSucceeded
	runs := newFakeRunStore(run)
	workflows := &fakeWorkflowStore{workflows: map[string]*domain.Workflow{}}
	pub := &fakeTaskPublisher{}

	o := New(runs, workflows, &fakeLogAppender{}, pub, testLogger())
	require.NoError(t, o.Start(context.Background(), "run-1"))

	assert.Empty(t, pub.tasks)
}

func TestStart_EmptyWorkflowSucceedsImmediately(t *testing.T) {
	run := domain.NewRun("run-1", "wf-1", "owner-1", nil)
	runs := newFakeRunStore(run)
	workflows := &fakeWorkflowStore{workflows: map[string]*domain.Workflow{"wf-1": {ID: "wf-1"}}}
	pub := &fakeTaskPublisher{}

	o := New(runs, workflows, &fakeLogAppender{}, pub, testLogger())
	require.NoError(t, o.Start(context.Background(), "run-1"))

	got := runs.runs["run-1"]
	assert.Equal(t, domain.RunSucceeded, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, pub.tasks)
}

func TestStart_CycleFailsRun(t *testing.T) {
	wf := &domain.Workflow{
		ID: "wf-1",
		Nodes: []domain.Node{
			{ID: "a", Type: domain.NodeAISummarize},
			{ID: "b", Type: domain.NodeAISummarize},
		},
		Edges: []domain.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "b", Target: "a"},
		},
	}
	run := domain.NewRun("run-1", "wf-1", "owner-1", nil)
	runs := newFakeRunStore(run)
	workflows := &fakeWorkflowStore{workflows: map[string]*domain.Workflow{"wf-1": wf}}
	pub := &fakeTaskPublisher{}

	o := New(runs, workflows, &fakeLogAppender{}, pub, testLogger())
	require.NoError(t, o.Start(context.Background(), "run-1"))

	got := runs.runs["run-1"]
	assert.Equal(t, domain.RunFailed, got.Status)
	assert.Contains(t, got.Error, "cycle")
	assert.Empty(t, pub.tasks)
}

func TestFilterInputs(t *testing.T) {
	inputs := map[string]interface{}{"data": "x", "extra": "y"}
	assert.Equal(t, map[string]interface{}{"data": "x"}, filterInputs(inputs, []string{"data"}))
	assert.Equal(t, map[string]interface{}{}, filterInputs(inputs, nil))
}
