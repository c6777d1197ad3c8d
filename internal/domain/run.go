package domain

import "time"

// RunStatus is one of the five states a Run visits in monotonic order:
// queued -> running -> {succeeded, failed, cancelled}.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether status is one of succeeded/failed/cancelled.
// Terminal statuses are never overwritten.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// NodeStatus tracks an individual node's progress within a Run. It only
// ever grows forward; once completed or failed it is not reassigned.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeRunning   NodeStatus = "running"
	NodeCompleted NodeStatus = "completed"
	NodeFailed    NodeStatus = "failed"
)

// PlanNode snapshots the parts of a Node the Coordinator needs to dispatch
// a successor without re-reading the Workflow: its kind (for queue
// placement and handler dispatch) and its config.
type PlanNode struct {
	Kind   NodeKind               `json:"kind"`
	Config map[string]interface{} `json:"config"`
}

// Plan is the execution plan computed once by the Orchestrator at run
// start and persisted on the Run. The Coordinator consults this instead of
// recomputing topology (or re-reading the Workflow) on every completion,
// closing the mid-run-edit inconsistency window a per-completion rebuild
// would otherwise open.
type Plan struct {
	Nodes      map[string]PlanNode `json:"nodes"`
	Deps       map[string][]string `json:"deps"`       // node id -> sorted predecessor ids
	Dependents map[string][]string `json:"dependents"` // node id -> sorted successor ids
	Order      []string            `json:"order"`      // topological order
}

// Run is one execution of a Workflow.
type Run struct {
	ID          string                            `json:"id"`
	WorkflowID  string                            `json:"workflow_id"`
	OwnerID     string                            `json:"owner_id"`
	Status      RunStatus                         `json:"status"`
	CreatedAt   time.Time                         `json:"created_at"`
	StartedAt   *time.Time                        `json:"started_at,omitempty"`
	CompletedAt *time.Time                        `json:"completed_at,omitempty"`
	Error       string                            `json:"error,omitempty"`
	NodeStatus  map[string]NodeStatus             `json:"node_status"`
	Inputs      map[string]interface{}            `json:"inputs"`
	Outputs     map[string]map[string]interface{} `json:"outputs"`
	Plan        *Plan                             `json:"plan,omitempty"`
}

// NewRun constructs a freshly queued Run with empty status/outputs maps.
func NewRun(id, workflowID, ownerID string, inputs map[string]interface{}) *Run {
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	return &Run{
		ID:         id,
		WorkflowID: workflowID,
		OwnerID:    ownerID,
		Status:     RunQueued,
		CreatedAt:  time.Now(),
		NodeStatus: map[string]NodeStatus{},
		Inputs:     inputs,
		Outputs:    map[string]map[string]interface{}{},
	}
}

// AllNodesCompleted reports whether every node named in the plan's
// topological order has reached NodeCompleted.
func (r *Run) AllNodesCompleted() bool {
	if r.Plan == nil {
		return true
	}
	for _, n := range r.Plan.Order {
		if r.NodeStatus[n] != NodeCompleted {
			return false
		}
	}
	return true
}
