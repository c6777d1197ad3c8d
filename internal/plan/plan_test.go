package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/dagrunner/internal/domain"
)

func node(id string, kind domain.NodeKind) domain.Node {
	return domain.Node{ID: id, Type: kind, Config: map[string]interface{}{}}
}

func edge(id, src, dst string) domain.Edge {
	return domain.Edge{ID: id, Source: src, Target: dst}
}

func TestBuild_LinearChain(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			node("a", domain.NodeIngestPDF),
			node("b", domain.NodeAISummarize),
			node("c", domain.NodeActSlack),
		},
		Edges: []domain.Edge{
			edge("e1", "a", "b"),
			edge("e2", "b", "c"),
		},
	}

	pl, err := Build(wf)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, pl.Order)
	assert.Empty(t, pl.Deps["a"])
	assert.Equal(t, []string{"a"}, pl.Deps["b"])
	assert.Equal(t, []string{"b"}, pl.Deps["c"])
	assert.Equal(t, []string{"a"}, Frontier(pl))
}

func TestBuild_DiamondIsDeterministic(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			node("a", domain.NodeIngestPDF),
			node("b", domain.NodeAISummarize),
			node("c", domain.NodeAIClassify),
			node("d", domain.NodeActSlack),
		},
		Edges: []domain.Edge{
			edge("e1", "a", "b"),
			edge("e2", "a", "c"),
			edge("e3", "b", "d"),
			edge("e4", "c", "d"),
		},
	}

	pl, err := Build(wf)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, pl.Deps["d"])
	assert.Equal(t, []string{"b", "c"}, pl.Dependents["a"])
	assert.Equal(t, "a", pl.Order[0])
	assert.Equal(t, "d", pl.Order[len(pl.Order)-1])
}

func TestBuild_EmptyWorkflow(t *testing.T) {
	pl, err := Build(&domain.Workflow{})
	require.NoError(t, err)
	assert.Empty(t, pl.Order)
	assert.Empty(t, Frontier(pl))
}

func TestBuild_DetectsCycle(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			node("a", domain.NodeIngestPDF),
			node("b", domain.NodeAISummarize),
			node("c", domain.NodeActSlack),
		},
		Edges: []domain.Edge{
			edge("e1", "a", "b"),
			edge("e2", "b", "c"),
			edge("e3", "c", "a"),
		},
	}

	_, err := Build(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestBuild_RejectsSelfLoop(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{node("a", domain.NodeIngestPDF)},
		Edges: []domain.Edge{edge("e1", "a", "a")},
	}
	_, err := Build(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self-loop")
}

func TestBuild_RejectsUnknownEdgeReference(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{node("a", domain.NodeIngestPDF)},
		Edges: []domain.Edge{edge("e1", "a", "ghost")},
	}
	_, err := Build(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target")
}

func TestBuild_RejectsDuplicateNodeID(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{
			node("a", domain.NodeIngestPDF),
			node("a", domain.NodeAISummarize),
		},
	}
	_, err := Build(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestBuild_RejectsUnknownNodeType(t *testing.T) {
	wf := &domain.Workflow{
		Nodes: []domain.Node{node("a", domain.NodeKind("bogus.kind"))},
	}
	_, err := Build(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}
