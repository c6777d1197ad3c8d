package coordinator

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

type fakeRunStore struct {
	runs map[string]*domain.Run
}

func newFakeRunStore(runs ...*domain.Run) *fakeRunStore {
	s := &fakeRunStore{runs: map[string]*domain.Run{}}
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

// diamondRun builds a started run over a a->{b,c}->d diamond, with a
// already completed and b/c/d still pending, mirroring the state the
// Coordinator sees right after a's completion signal.
func diamondRun() *domain.Run {
	run := domain.NewRun("run-1", "wf-1", "owner-1", map[string]interface{}{"seed": "v"})
	run.Status = domain.RunRunning
	run.Plan = &domain.Plan{
		Nodes: map[string]domain.PlanNode{
			"a": {Kind: domain.NodeIngestWebhook},
			"b": {Kind: domain.NodeAISummarize},
			"c": {Kind: domain.NodeAIClassify},
			"d": {Kind: domain.NodeActSlack},
		},
		Deps: map[string][]string{
			"a": nil,
			"b": {"a"},
			"c": {"a"},
			"d": {"b", "c"},
		},
		Dependents: map[string][]string{
			"a": {"b", "c"},
			"b": {"d"},
			"c": {"d"},
			"d": nil,
		},
		Order: []string{"a", "b", "c", "d"},
	}
	run.NodeStatus = map[string]domain.NodeStatus{
		"a": domain.NodeCompleted,
		"b": domain.NodePending,
		"c": domain.NodePending,
		"d": domain.NodePending,
	}
	run.Outputs = map[string]map[string]interface{}{
		"a": {"content": "from-a"},
	}
	return run
}

func TestHandleCompletion_DispatchesBothReadySuccessors(t *testing.T) {
	run := diamondRun()
	runs := newFakeRunStore(run)
	pub := &fakeTaskPublisher{}

	// Drive the completion signal for a from pending, as the Coordinator
	// would see it on a's actual completion (diamondRun() otherwise starts
	// with a already marked completed, for the benefit of other tests).
	run.NodeStatus["a"] = domain.NodePending
	c := New(runs, &fakeLogAppender{}, pub, testLogger())
	sig := broker.CompletionSignal{RunID: "run-1", NodeID: "a", Status: domain.NodeCompleted, Outputs: map[string]interface{}{"content": "from-a"}}

	require.NoError(t, c.HandleCompletion(context.Background(), sig))

	got := runs.runs["run-1"]
	assert.Equal(t, domain.NodeCompleted, got.NodeStatus["a"])
	assert.Equal(t, domain.NodeRunning, got.NodeStatus["b"])
	assert.Equal(t, domain.NodeRunning, got.NodeStatus["c"])
	assert.Equal(t, domain.NodePending, got.NodeStatus["d"])
	require.Len(t, pub.tasks, 2)
	assert.Equal(t, "b", pub.tasks[0].NodeID)
	assert.Equal(t, "c", pub.tasks[1].NodeID)
}

func TestHandleCompletion_RedeliveredCompletionIsNoOp(t *testing.T) {
	run := diamondRun()
	runs := newFakeRunStore(run)
	pub := &fakeTaskPublisher{}

	c := New(runs, &fakeLogAppender{}, pub, testLogger())
	sig := broker.CompletionSignal{RunID: "run-1", NodeID: "a", Status: domain.NodeCompleted}

	require.NoError(t, c.HandleCompletion(context.Background(), sig))

	assert.Empty(t, pub.tasks)
	assert.Equal(t, domain.NodeCompleted, runs.runs["run-1"].NodeStatus["a"])
}

func TestHandleCompletion_AllNodesCompletedSucceedsRun(t *testing.T) {
	run := diamondRun()
	run.NodeStatus["b"] = domain.NodeCompleted
	run.NodeStatus["c"] = domain.NodeCompleted
	run.NodeStatus["d"] = domain.NodePending
	run.Outputs["b"] = map[string]interface{}{"summary": "s"}
	run.Outputs["c"] = map[string]interface{}{"label": "l"}
	runs := newFakeRunStore(run)
	pub := &fakeTaskPublisher{}

	c := New(runs, &fakeLogAppender{}, pub, testLogger())
	sig := broker.CompletionSignal{RunID: "run-1", NodeID: "d", Status: domain.NodeCompleted, Outputs: map[string]interface{}{"sent": true}}
	require.NoError(t, c.HandleCompletion(context.Background(), sig))

	got := runs.runs["run-1"]
	assert.Equal(t, domain.RunSucceeded, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, pub.tasks)
}

func TestHandleCompletion_NodeFailurePropagatesToRun(t *testing.T) {
	run := diamondRun()
	runs := newFakeRunStore(run)
	pub := &fakeTaskPublisher{}

	c := New(runs, &fakeLogAppender{}, pub, testLogger())
	sig := broker.CompletionSignal{RunID: "run-1", NodeID: "b", Status: domain.NodeFailed, Error: "boom"}
	require.NoError(t, c.HandleCompletion(context.Background(), sig))

	got := runs.runs["run-1"]
	assert.Equal(t, domain.RunFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, domain.NodeFailed, got.NodeStatus["b"])
	assert.Empty(t, pub.tasks)
}

func TestHandleCompletion_TerminalRunIgnoresSignal(t *testing.T) {
	run := diamondRun()
	run.Status = domain.RunFailed
	runs := newFakeRunStore(run)
	pub := &fakeTaskPublisher{}

	c := New(runs, &fakeLogAppender{}, pub, testLogger())
	sig := broker.CompletionSignal{RunID: "run-1", NodeID: "b", Status: domain.NodeCompleted}
	require.NoError(t, c.HandleCompletion(context.Background(), sig))

	assert.Empty(t, pub.tasks)
}

func TestResolveInputs_PredecessorOutputsOverrideRunInputsAndCollideDeterministically(t *testing.T) {
	run := diamondRun()
	run.Inputs = map[string]interface{}{"content": "seed-value", "keep": "me"}
	run.Outputs["b"] = map[string]interface{}{"content": "from-b"}
	run.Outputs["c"] = map[string]interface{}{"content": "from-c"}
	runs := newFakeRunStore(run)

	c := New(runs, &fakeLogAppender{}, &fakeTaskPublisher{}, testLogger())
	merged := c.resolveInputs(run, "d")

	// deps of d are {b, c}; sorted ascending, later predecessor (c) wins.
	assert.Equal(t, "from-c", merged["content"])
	assert.Equal(t, "me", merged["keep"])
}

func TestReadyFrontier_SkipsCompletedAndRunningNodes(t *testing.T) {
	run := diamondRun()
	// a completed, b already dispatched (running) so it must not be
	// re-dispatched, c still pending with its only dep (a) satisfied, d
	// not ready because its dep b isn't completed yet.
	run.NodeStatus["b"] = domain.NodeRunning
	runs := newFakeRunStore(run)

	c := New(runs, &fakeLogAppender{}, &fakeTaskPublisher{}, testLogger())
	ready := c.readyFrontier(run)

	assert.Equal(t, []string{"c"}, ready)
}
