package rendergraph

import (
	"sync"
	"testing"
	"time"

	"github.com/oxy-vk/render-engine/swapchain"
	"github.com/oxy-vk/render-engine/syncfab"
)

// recordingTask is an ICpuTask that appends its name to a shared log when
// it runs, optionally sleeping first, used to assert CpuSync ordering
// between nodes.
type recordingTask struct {
	mu   sync.Mutex
	name string
	log  *[]string
	wait time.Duration
}

func (t *recordingTask) Run(ctx *swapchain.ExecutionContext) error {
	if t.wait > 0 {
		time.Sleep(t.wait)
	}
	t.mu.Lock()
	*t.log = append(*t.log, t.name)
	t.mu.Unlock()
	return nil
}

func TestTaskflowSchedulerRunsCpuSyncNodesInOrder(t *testing.T) {
	g := NewGraph()
	var log []string

	first := NewCpuNode("first", &recordingTask{name: "first", log: &log, wait: 20 * time.Millisecond})
	second := NewCpuNode("second", &recordingTask{name: "second", log: &log})

	g.AddNode(first)
	g.AddNode(second)
	g.AddEdge(&Link{From: "first", To: "second", Type: LinkCpuSync})
	if err := g.ApplyChanges(); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}

	sched := NewTaskflowScheduler(g, 2)
	primitives := syncfab.NewPrimitives()
	ctx := swapchain.NewExecutionContext(1, primitives, nil)
	tracker := &QueueSubmitTracker{}

	if err := sched.RunFrame(ctx, primitives, tracker); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}

	if len(log) != 2 || log[0] != "first" || log[1] != "second" {
		t.Fatalf("expected first before second under CpuSync, got %v", log)
	}
}

func TestTaskflowSchedulerRunsIndependentNodesConcurrently(t *testing.T) {
	g := NewGraph()
	var log []string

	a := NewCpuNode("a", &recordingTask{name: "a", log: &log, wait: 10 * time.Millisecond})
	b := NewCpuNode("b", &recordingTask{name: "b", log: &log})

	g.AddNode(a)
	g.AddNode(b)
	if err := g.ApplyChanges(); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}

	sched := NewTaskflowScheduler(g, 2)
	primitives := syncfab.NewPrimitives()
	ctx := swapchain.NewExecutionContext(1, primitives, nil)
	tracker := &QueueSubmitTracker{}

	if err := sched.RunFrame(ctx, primitives, tracker); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}

	if len(log) != 2 {
		t.Fatalf("expected both nodes to run, got %v", log)
	}
	// with no CpuSync edge both tasks run at once on the two workers, so b
	// (no sleep) finishes before a (10ms sleep) whichever is dispatched first.
	if log[0] != "b" {
		t.Fatalf("expected b to finish first when not CpuSync-ordered, got %v", log)
	}
}
