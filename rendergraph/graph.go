package rendergraph

import (
	"fmt"
	"sync"

	"github.com/oxy-vk/render-engine/common"
)

// stagedCommand is one staged mutation waiting to be folded into the committed
// view by applyChanges.
type stagedCommand interface {
	apply(v *view) error
}

type addNodeCmd struct{ node Node }

func (c addNodeCmd) apply(v *view) error {
	if _, exists := v.nodes[c.node.Name()]; exists {
		return common.NewError("Graph.applyChanges", common.KindDuplicateNodeName,
			fmt.Errorf("node %q already exists", c.node.Name()))
	}
	v.nodes[c.node.Name()] = c.node
	return nil
}

type removeNodeCmd struct{ name string }

func (c removeNodeCmd) apply(v *view) error {
	if _, exists := v.nodes[c.name]; !exists {
		return common.NewError("Graph.applyChanges", common.KindNotFound,
			fmt.Errorf("node %q does not exist", c.name))
	}
	if len(v.outbound[c.name]) > 0 || len(v.inbound[c.name]) > 0 {
		return common.NewError("Graph.applyChanges", common.KindNodeHasEdges,
			fmt.Errorf("node %q still has edges", c.name))
	}
	delete(v.nodes, c.name)
	return nil
}

type addEdgeCmd struct{ link *Link }

func (c addEdgeCmd) apply(v *view) error {
	if _, ok := v.nodes[c.link.From]; !ok {
		return common.NewError("Graph.applyChanges", common.KindNotFound,
			fmt.Errorf("link references unknown node %q", c.link.From))
	}
	if _, ok := v.nodes[c.link.To]; !ok {
		return common.NewError("Graph.applyChanges", common.KindNotFound,
			fmt.Errorf("link references unknown node %q", c.link.To))
	}
	for _, l := range v.outbound[c.link.From] {
		if l.To == c.link.To {
			return common.NewError("Graph.applyChanges", common.KindDuplicateEdge,
				fmt.Errorf("edge %s->%s already exists", c.link.From, c.link.To))
		}
	}
	v.outbound[c.link.From] = append(v.outbound[c.link.From], c.link)
	v.inbound[c.link.To] = append(v.inbound[c.link.To], c.link)
	return nil
}

type removeEdgeCmd struct{ from, to string }

func (c removeEdgeCmd) apply(v *view) error {
	out := v.outbound[c.from]
	idx := -1
	for i, l := range out {
		if l.To == c.to {
			idx = i
			break
		}
	}
	if idx < 0 {
		return common.NewError("Graph.applyChanges", common.KindNotFound,
			fmt.Errorf("edge %s->%s does not exist", c.from, c.to))
	}
	v.outbound[c.from] = append(out[:idx], out[idx+1:]...)

	in := v.inbound[c.to]
	for i, l := range in {
		if l.From == c.from {
			v.inbound[c.to] = append(in[:i], in[i+1:]...)
			break
		}
	}
	return nil
}

// view is the committed graph state: nodes plus adjacency in both
// directions, read under Graph.commitMu.RLock().
type view struct {
	nodes    map[string]Node
	outbound map[string][]*Link
	inbound  map[string][]*Link
}

func newView() *view {
	return &view{
		nodes:    make(map[string]Node),
		outbound: make(map[string][]*Link),
		inbound:  make(map[string][]*Link),
	}
}

// Graph is the render graph model: a mutable set of Nodes and Links whose
// changes are staged and only become visible to readers through
// ApplyChanges, per spec.md §4.5's "staging queue committed by a single
// writer" design.
type Graph struct {
	stageMu sync.Mutex
	staged  []stagedCommand

	commitMu sync.RWMutex
	v        *view
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{v: newView()}
}

// AddNode stages the addition of node. The mutation is not visible to
// readers until ApplyChanges succeeds.
func (g *Graph) AddNode(node Node) {
	g.stageMu.Lock()
	defer g.stageMu.Unlock()
	g.staged = append(g.staged, addNodeCmd{node: node})
}

// RemoveNode stages the removal of the node named name. Fails at apply
// time if the node still has edges.
func (g *Graph) RemoveNode(name string) {
	g.stageMu.Lock()
	defer g.stageMu.Unlock()
	g.staged = append(g.staged, removeNodeCmd{name: name})
}

// AddEdge stages the addition of link.
func (g *Graph) AddEdge(link *Link) {
	g.stageMu.Lock()
	defer g.stageMu.Unlock()
	g.staged = append(g.staged, addEdgeCmd{link: link})
}

// RemoveEdge stages the removal of the edge from->to.
func (g *Graph) RemoveEdge(from, to string) {
	g.stageMu.Lock()
	defer g.stageMu.Unlock()
	g.staged = append(g.staged, removeEdgeCmd{from: from, to: to})
}

// ApplyChanges is the sole writer of the committed view: it takes the
// commit lock, clones the current view, applies every staged stagedCommand to
// the clone in order, and swaps it in only if every stagedCommand succeeded.
// Returns the first error encountered; on error the committed view is
// left entirely unchanged (all staged commands are dropped either way).
func (g *Graph) ApplyChanges() error {
	g.stageMu.Lock()
	staged := g.staged
	g.staged = nil
	g.stageMu.Unlock()

	if len(staged) == 0 {
		return nil
	}

	g.commitMu.Lock()
	defer g.commitMu.Unlock()

	next := cloneView(g.v)
	for _, c := range staged {
		if err := c.apply(next); err != nil {
			return err
		}
	}
	g.v = next
	return nil
}

func cloneView(v *view) *view {
	out := newView()
	for k, n := range v.nodes {
		out.nodes[k] = n
	}
	for k, links := range v.outbound {
		out.outbound[k] = append([]*Link{}, links...)
	}
	for k, links := range v.inbound {
		out.inbound[k] = append([]*Link{}, links...)
	}
	return out
}

// FindNode returns the node named name, or (nil, false) if absent.
func (g *Graph) FindNode(name string) (Node, bool) {
	g.commitMu.RLock()
	defer g.commitMu.RUnlock()
	n, ok := g.v.nodes[name]
	return n, ok
}

// FindEdgesFrom returns every link whose From is name.
func (g *Graph) FindEdgesFrom(name string) []*Link {
	g.commitMu.RLock()
	defer g.commitMu.RUnlock()
	return append([]*Link{}, g.v.outbound[name]...)
}

// FindEdgesTo returns every link whose To is name.
func (g *Graph) FindEdgesTo(name string) []*Link {
	g.commitMu.RLock()
	defer g.commitMu.RUnlock()
	return append([]*Link{}, g.v.inbound[name]...)
}

// FindPredecessors returns the names of every node with an edge into name.
func (g *Graph) FindPredecessors(name string) []string {
	g.commitMu.RLock()
	defer g.commitMu.RUnlock()
	out := make([]string, 0, len(g.v.inbound[name]))
	for _, l := range g.v.inbound[name] {
		out = append(out, l.From)
	}
	return out
}

// FindSuccessors returns the names of every node name has an edge to.
func (g *Graph) FindSuccessors(name string) []string {
	g.commitMu.RLock()
	defer g.commitMu.RUnlock()
	out := make([]string, 0, len(g.v.outbound[name]))
	for _, l := range g.v.outbound[name] {
		out = append(out, l.To)
	}
	return out
}

// Nodes returns every committed node, in no particular order.
func (g *Graph) Nodes() []Node {
	g.commitMu.RLock()
	defer g.commitMu.RUnlock()
	out := make([]Node, 0, len(g.v.nodes))
	for _, n := range g.v.nodes {
		out = append(out, n)
	}
	return out
}

// InboundConnections collects every Connection a node named name must
// wait on for the given render-target image index, pulling through
// inactive predecessors via breadth-first search (spec.md §4.5: "an
// inactive node's own inbound connections are folded into its successors'
// wait set, iteratively, since it will never run"). Implemented
// iteratively (an explicit queue) rather than recursively so a long
// inactive chain cannot overflow the call stack.
func (g *Graph) InboundConnections(name string, image uint32) []Connection {
	g.commitMu.RLock()
	defer g.commitMu.RUnlock()

	var out []Connection
	visited := map[string]bool{}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, l := range g.v.inbound[cur] {
			out = append(out, l.connectionsFor(image)...)
			if pred, ok := g.v.nodes[l.From]; ok && pred.IsActive() {
				continue
			}
			if !visited[l.From] {
				visited[l.From] = true
				queue = append(queue, l.From)
			}
		}
	}
	return out
}

// OutboundConnections collects every Connection a node named name must
// signal for the given render-target image index, pulling through
// inactive successors the same way InboundConnections pulls through
// inactive predecessors.
func (g *Graph) OutboundConnections(name string, image uint32) []Connection {
	g.commitMu.RLock()
	defer g.commitMu.RUnlock()

	var out []Connection
	visited := map[string]bool{}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, l := range g.v.outbound[cur] {
			out = append(out, l.connectionsFor(image)...)
			if succ, ok := g.v.nodes[l.To]; ok && !succ.IsActive() && !visited[l.To] {
				visited[l.To] = true
				queue = append(queue, l.To)
			}
		}
	}
	return out
}

// CpuSyncPredecessors returns the names of the nearest active nodes that
// must complete on the CPU before name may be dispatched, following
// CpuSync links and pulling through inactive intermediate nodes: for
// A -> B(inactive) -> C with both links CpuSync, C's CPU predecessor is A.
// A CpuAsync link breaks the chain — it carries no CPU-side ordering.
func (g *Graph) CpuSyncPredecessors(name string) []string {
	g.commitMu.RLock()
	defer g.commitMu.RUnlock()

	var out []string
	seen := map[string]bool{}
	visited := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, l := range g.v.inbound[cur] {
			if l.Type != LinkCpuSync {
				continue
			}
			pred, ok := g.v.nodes[l.From]
			if !ok {
				continue
			}
			if pred.IsActive() {
				if !seen[l.From] {
					seen[l.From] = true
					out = append(out, l.From)
				}
				continue
			}
			if !visited[l.From] {
				visited[l.From] = true
				queue = append(queue, l.From)
			}
		}
	}
	return out
}
