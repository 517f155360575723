package rendergraph

import (
	"testing"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/swapchain"
	"github.com/oxy-vk/render-engine/syncfab"
)

func TestApplyChangesCommitsStagedNodesAndEdges(t *testing.T) {
	g := NewGraph()
	a := NewEmptyNode("a")
	b := NewEmptyNode("b")
	g.AddNode(a)
	g.AddNode(b)
	g.AddEdge(&Link{From: "a", To: "b", Type: LinkCpuAsync, Connections: []Connection{
		PipelineConnection{Semaphore: "sem", SignalStage: 1, WaitStage: 1, Value: 1},
	}})

	if err := g.ApplyChanges(); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}

	if _, ok := g.FindNode("a"); !ok {
		t.Fatalf("expected node a to be committed")
	}
	succ := g.FindSuccessors("a")
	if len(succ) != 1 || succ[0] != "b" {
		t.Fatalf("expected a->b edge, got %v", succ)
	}
}

func TestApplyChangesRejectsDuplicateNode(t *testing.T) {
	g := NewGraph()
	g.AddNode(NewEmptyNode("a"))
	if err := g.ApplyChanges(); err != nil {
		t.Fatalf("first ApplyChanges: %v", err)
	}

	g.AddNode(NewEmptyNode("a"))
	err := g.ApplyChanges()
	if err == nil {
		t.Fatalf("expected duplicate node error")
	}
	if kind, ok := common.KindOf(err); !ok || kind != common.KindDuplicateNodeName {
		t.Fatalf("expected KindDuplicateNodeName, got %v", err)
	}
}

func TestApplyChangesRejectsRemovingNodeWithEdges(t *testing.T) {
	g := NewGraph()
	g.AddNode(NewEmptyNode("a"))
	g.AddNode(NewEmptyNode("b"))
	g.AddEdge(&Link{From: "a", To: "b", Type: LinkCpuAsync})
	if err := g.ApplyChanges(); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}

	g.RemoveNode("a")
	err := g.ApplyChanges()
	if err == nil {
		t.Fatalf("expected NodeHasEdges error")
	}
	if kind, ok := common.KindOf(err); !ok || kind != common.KindNodeHasEdges {
		t.Fatalf("expected KindNodeHasEdges, got %v", err)
	}

	// the committed view must be unchanged after a failed ApplyChanges
	if _, ok := g.FindNode("a"); !ok {
		t.Fatalf("expected node a to still be present after failed removal")
	}
}

func TestInboundConnectionsPullThroughInactivePredecessor(t *testing.T) {
	g := NewGraph()
	upstream := &pullThroughNode{name: "upstream", active: false}
	mid := &pullThroughNode{name: "mid", active: false}
	downstream := &pullThroughNode{name: "downstream", active: true}

	g.AddNode(upstream)
	g.AddNode(mid)
	g.AddNode(downstream)
	g.AddEdge(&Link{From: "upstream", To: "mid", Type: LinkCpuAsync, Connections: []Connection{
		PipelineConnection{Semaphore: "sem.a", WaitStage: 1, SignalStage: 1, Value: 1},
	}})
	g.AddEdge(&Link{From: "mid", To: "downstream", Type: LinkCpuAsync, Connections: []Connection{
		PipelineConnection{Semaphore: "sem.b", WaitStage: 2, SignalStage: 2, Value: 1},
	}})
	if err := g.ApplyChanges(); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}

	conns := g.InboundConnections("downstream", 0)
	if len(conns) != 2 {
		t.Fatalf("expected both upstream and mid connections pulled through, got %d", len(conns))
	}
}

func TestInboundConnectionsFiltersByImageIndex(t *testing.T) {
	g := NewGraph()
	g.AddNode(&pullThroughNode{name: "a", active: true})
	g.AddNode(&pullThroughNode{name: "b", active: true})
	img1 := uint32(1)
	g.AddEdge(&Link{From: "a", To: "b", Type: LinkCpuAsync, Connections: []Connection{
		PipelineConnection{Semaphore: "sem.any", WaitStage: 1, SignalStage: 1, Value: 1},
		PipelineConnection{Semaphore: "sem.img1", WaitStage: 1, SignalStage: 1, Value: 1, Image: &img1},
	}})
	if err := g.ApplyChanges(); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}

	if got := g.InboundConnections("b", 0); len(got) != 1 {
		t.Fatalf("expected only the unscoped connection for image 0, got %d", len(got))
	}
	if got := g.InboundConnections("b", 1); len(got) != 2 {
		t.Fatalf("expected both connections for image 1, got %d", len(got))
	}
}

func TestCpuSyncPredecessorsPullThroughInactiveMiddleNode(t *testing.T) {
	g := NewGraph()
	g.AddNode(&pullThroughNode{name: "a", active: true})
	g.AddNode(&pullThroughNode{name: "b", active: false})
	g.AddNode(&pullThroughNode{name: "c", active: true})
	g.AddEdge(&Link{From: "a", To: "b", Type: LinkCpuSync})
	g.AddEdge(&Link{From: "b", To: "c", Type: LinkCpuSync})
	if err := g.ApplyChanges(); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}

	preds := g.CpuSyncPredecessors("c")
	if len(preds) != 1 || preds[0] != "a" {
		t.Fatalf("expected a pulled through inactive b, got %v", preds)
	}
}

func TestCpuSyncPredecessorsStopAtCpuAsyncLink(t *testing.T) {
	g := NewGraph()
	g.AddNode(&pullThroughNode{name: "a", active: true})
	g.AddNode(&pullThroughNode{name: "b", active: false})
	g.AddNode(&pullThroughNode{name: "c", active: true})
	g.AddEdge(&Link{From: "a", To: "b", Type: LinkCpuAsync})
	g.AddEdge(&Link{From: "b", To: "c", Type: LinkCpuSync})
	if err := g.ApplyChanges(); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}

	if preds := g.CpuSyncPredecessors("c"); len(preds) != 0 {
		t.Fatalf("expected the CpuAsync link to break the chain, got %v", preds)
	}
}

// pullThroughNode is a minimal Node implementation for graph-only tests
// that never exercises CreateJob.
type pullThroughNode struct {
	name   string
	active bool
}

func (n *pullThroughNode) Name() string   { return n.name }
func (n *pullThroughNode) IsActive() bool { return n.active }
func (n *pullThroughNode) Accept(Visitor) {}
func (n *pullThroughNode) isNode()        {}

func (n *pullThroughNode) CreateJob(in *syncfab.SyncObject) Job {
	return func(ctx *swapchain.ExecutionContext, tracker *QueueSubmitTracker) error { return nil }
}
