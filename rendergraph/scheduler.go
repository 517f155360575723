package rendergraph

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/oxy-vk/render-engine/swapchain"
	"github.com/oxy-vk/render-engine/syncfab"
)

// TaskflowScheduler materializes one frame's active subgraph into a
// concurrent task DAG and dispatches it onto a worker pool. Every active
// node runs as soon as its CpuSync predecessors (a genuine CPU-side
// happens-before relationship, distinct from GPU semaphore waits) have
// returned; CpuAsync-linked nodes may run concurrently, their ordering
// left entirely to the GPU's semaphore waits.
//
// The `worker` package's Task is a flat submit/run primitive with no
// native DAG support, so the dependency ordering lives here: each task
// decrements its successors' outstanding-predecessor counters on
// completion and dispatches any that reach zero (design notes §9,
// SPEC_FULL.md §6 §4.8).
type TaskflowScheduler struct {
	graph  *Graph
	pool   worker.DynamicWorkerPool
	taskID uint64
}

// NewTaskflowScheduler creates a scheduler driving graph's active subgraph
// on a pool of workers workers, each with a queue depth of 256 tasks and a
// 1s idle timeout, matching the teacher's compute pool sizing in
// engine/scene/scene.go.
func NewTaskflowScheduler(graph *Graph, workers int) *TaskflowScheduler {
	return &TaskflowScheduler{
		graph: graph,
		pool:  worker.NewDynamicWorkerPool(workers, 256, 1*time.Second),
	}
}

// taskNode is one frame's scheduling record for an active graph node.
type taskNode struct {
	node       Node
	job        Job
	remaining  int32
	successors []*taskNode
}

// RunFrame builds the active subgraph's SyncObjects, wires CpuSync
// dependency counters, and drives every task to completion, returning the
// first error any job reported. ctx is the ExecutionContext the frame is
// scheduled against (its pool index selects which per-image link
// connections apply); tracker collects fences jobs submit so the caller
// can wait on them before recycling ctx.
func (s *TaskflowScheduler) RunFrame(ctx *swapchain.ExecutionContext, primitives *syncfab.Primitives, tracker *QueueSubmitTracker) error {
	var image uint32
	if idx, ok := ctx.PoolIndex(); ok {
		image = idx.RenderTargetIndex
	}

	active := map[string]*taskNode{}
	for _, n := range s.graph.Nodes() {
		if !n.IsActive() {
			continue
		}
		so := syncfab.NewSyncObject(primitives)
		_, isPresent := n.(*PresentNode)
		for _, c := range s.graph.InboundConnections(n.Name(), image) {
			group := syncfab.GroupInternal
			switch {
			case isPresent:
				group = syncfab.GroupPresent
			default:
				if _, ext := c.(ExternalConnection); ext {
					group = syncfab.GroupExternal
				}
			}
			so.AddWait(group, c.SemaphoreName(), waitStageOf(c), valueOf(c))
		}
		for _, c := range s.graph.OutboundConnections(n.Name(), image) {
			// an ExternalConnection's signal side is outside the graph's
			// control, so only pipeline connections produce signal ops
			if pc, ok := c.(PipelineConnection); ok {
				so.AddSignal(syncfab.GroupInternal, pc.Semaphore, pc.SignalStage, pc.Value)
			}
		}

		active[n.Name()] = &taskNode{node: n, job: n.CreateJob(so)}
	}

	for name, tn := range active {
		for _, predName := range s.graph.CpuSyncPredecessors(name) {
			pred, ok := active[predName]
			if !ok {
				continue
			}
			tn.remaining++
			pred.successors = append(pred.successors, tn)
		}
	}

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	recordErr := func(err error) {
		if err == nil {
			return
		}
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
	}

	var dispatch func(tn *taskNode)
	dispatch = func(tn *taskNode) {
		wg.Add(1)
		node := tn
		s.pool.SubmitTask(worker.Task{
			ID: int(atomic.AddUint64(&s.taskID, 1)),
			Do: func() (any, error) {
				defer wg.Done()
				err := node.job(ctx, tracker)
				recordErr(err)
				for _, succ := range node.successors {
					if atomic.AddInt32(&succ.remaining, -1) == 0 {
						dispatch(succ)
					}
				}
				return nil, err
			},
		})
	}

	for _, tn := range active {
		if tn.remaining == 0 {
			dispatch(tn)
		}
	}
	wg.Wait()

	return firstErr
}

func waitStageOf(c Connection) uint64 {
	switch v := c.(type) {
	case PipelineConnection:
		return v.WaitStage
	case ExternalConnection:
		return v.WaitStage
	default:
		return 0
	}
}

func valueOf(c Connection) uint64 {
	switch v := c.(type) {
	case PipelineConnection:
		return v.Value
	case ExternalConnection:
		return v.Value
	default:
		return 0
	}
}
