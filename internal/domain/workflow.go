package domain

import "time"

// Node is one unit of work inside a Workflow. Config is opaque to the
// engine beyond the per-type contract each handler enforces.
type Node struct {
	ID     string                 `json:"id"`
	Type   NodeKind               `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// Edge expresses "target depends on source". Multiple edges into one
// target are conjunctive (AND).
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Workflow is a DAG definition. It is immutable with respect to a Run that
// has already started: a Run captures its own Plan at start time (see Plan)
// and never re-reads the Workflow's Nodes/Edges once running.
type Workflow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	OwnerID   string    `json:"owner_id"`
	Active    bool      `json:"active"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	CreatedAt time.Time `json:"created_at"`
}

// NodeByID returns the node with the given id, or false if absent.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
