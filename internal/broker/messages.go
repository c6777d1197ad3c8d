package broker

import "github.com/lyzr/dagrunner/internal/domain"

// RunStartMessage triggers the Orchestrator to plan and dispatch a Run. It
// is deliberately thin: the Orchestrator reloads the Run and its Workflow
// from the repository rather than trusting message contents, so a stale or
// duplicate redelivery is harmless.
type RunStartMessage struct {
	RunID string `json:"run_id"`
}

// NodeTask is one unit of dispatch: "run this node, with these resolved
// inputs". Inputs are computed and embedded at dispatch time (by the
// Orchestrator for frontier nodes, by the Coordinator otherwise) so a node
// handler never needs to re-read the Run to discover its predecessors'
// outputs.
type NodeTask struct {
	RunID   string                 `json:"run_id"`
	NodeID  string                 `json:"node_id"`
	Kind    domain.NodeKind        `json:"kind"`
	Config  map[string]interface{} `json:"config"`
	Inputs  map[string]interface{} `json:"inputs"`
}

// CompletionSignal reports a node's terminal outcome back to the
// Coordinator. Redelivery of the same signal after the node has already
// been recorded completed/failed must be a no-op.
type CompletionSignal struct {
	RunID         string                 `json:"run_id"`
	NodeID        string                 `json:"node_id"`
	Status        domain.NodeStatus      `json:"status"` // NodeCompleted or NodeFailed
	Outputs       map[string]interface{} `json:"outputs,omitempty"`
	Error         string                 `json:"error,omitempty"`
	FallbackUsed  bool                   `json:"fallback_used,omitempty"`
}
