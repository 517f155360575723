// Package rendergraph implements the render graph model (nodes, links, the
// mutable Graph with staged `applyChanges`), the fluent RenderGraphBuilder,
// and the TaskflowScheduler that materializes a frame's subgraph into a
// concurrent task DAG. See SPEC_FULL.md §6 (§4.5-§4.8 realization notes).
package rendergraph

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/command"
	"github.com/oxy-vk/render-engine/device"
	"github.com/oxy-vk/render-engine/engine/renderer"
	"github.com/oxy-vk/render-engine/resource"
	"github.com/oxy-vk/render-engine/swapchain"
	"github.com/oxy-vk/render-engine/syncfab"
	"github.com/oxy-vk/render-engine/transfer"
)

// QueueSubmitTracker collects the fences a frame's jobs submit against, so
// the engine can wait on all of them before recycling the ExecutionContext
// that drove the frame. Jobs run concurrently on the worker pool, so the
// fence set is mutex-guarded. Optional: nodes whose work completes
// synchronously (CpuNode, EmptyNode) are not required to track anything.
type QueueSubmitTracker struct {
	mu     sync.Mutex
	fences []vk.Fence
}

// Track records a fence a job submitted against. Safe to call from
// multiple jobs concurrently.
func (t *QueueSubmitTracker) Track(f vk.Fence) {
	if f == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fences = append(t.fences, f)
}

// Fences returns a snapshot of every fence tracked so far this frame.
func (t *QueueSubmitTracker) Fences() []vk.Fence {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]vk.Fence{}, t.fences...)
}

// Job is the opaque callable a Node's CreateJob returns: it is handed the
// frame's ExecutionContext (for the current pool index) and may record
// submitted fences on tracker for the engine to wait on.
type Job func(ctx *swapchain.ExecutionContext, tracker *QueueSubmitTracker) error

// submissionGroup folds a SyncObject's internal group together with its
// external wait operations (externally signaled semaphores have no signal
// side the graph controls) into the single group handed to a queue
// submission.
func submissionGroup(in *syncfab.SyncObject) syncfab.OperationGroup {
	g := in.MustGroup(syncfab.GroupInternal)
	ext := in.MustGroup(syncfab.GroupExternal)
	g.Wait = append(g.Wait, ext.Wait...)
	return g
}

// IComputeTask is the external collaborator contract for ComputeNode
// (spec.md §6): an opaque unit of GPU work the graph does not implement
// itself (e.g. CUDA interop via external memory/semaphores).
type IComputeTask interface {
	Run(ops syncfab.OperationGroup, ctx *swapchain.ExecutionContext) error
	IsActive() bool
}

// ICpuTask is the external collaborator contract for CpuNode: pure CPU
// work with no GPU submission (e.g. swapchain image acquisition, input
// polling).
type ICpuTask interface {
	Run(ctx *swapchain.ExecutionContext) error
}

// Node is the sealed interface every graph node variant implements.
// isNode is unexported so no type outside this package can satisfy it,
// matching design notes §9's "tagged variants" re-expression of the
// original deep virtual hierarchy.
type Node interface {
	// Name returns this node's unique identifier within its Graph.
	Name() string
	// IsActive reports whether this node should be scheduled this frame.
	// Inactive nodes are skipped by the scheduler; their links are still
	// honored for synchronization via pull-through (spec.md §4.5).
	IsActive() bool
	// CreateJob builds this node's per-frame job given the SyncObject the
	// scheduler assembled from its inbound/outbound link connections.
	CreateJob(in *syncfab.SyncObject) Job
	// Accept dispatches to the Visitor method matching this node's
	// variant, the Go re-expression of the original visitor pattern as a
	// single match statement (design notes §9).
	Accept(v Visitor)

	isNode()
}

// Visitor is implemented by callers that need to dispatch on node variant
// without a type switch at every call site (e.g. a debug dumper).
type Visitor interface {
	VisitRender(*RenderNode)
	VisitTransfer(*TransferNode)
	VisitCompute(*ComputeNode)
	VisitPresent(*PresentNode)
	VisitCpu(*CpuNode)
	VisitEmpty(*EmptyNode)
}

// RenderNode records draw calls through a Renderer into a command buffer
// recorded for the current render-target index, then submits it on the
// graphics queue family using the link's wait/signal group for that index.
type RenderNode struct {
	name     string
	active   bool
	ctx      *command.Context
	renderer renderer.Renderer
	family   *device.QueueFamily
	fence    vk.Fence
}

// NewRenderNode creates a RenderNode bound to a command context, a
// Renderer, and the queue family it submits on.
func NewRenderNode(name string, ctx *command.Context, r renderer.Renderer, family *device.QueueFamily, fence vk.Fence) *RenderNode {
	return &RenderNode{name: name, active: true, ctx: ctx, renderer: r, family: family, fence: fence}
}

func (n *RenderNode) Name() string     { return n.name }
func (n *RenderNode) IsActive() bool   { return n.active }
func (n *RenderNode) SetActive(a bool) { n.active = a }
func (n *RenderNode) Accept(v Visitor) { v.VisitRender(n) }
func (n *RenderNode) isNode()          {}

// CreateJob records this frame's draw calls and submits them, using slot
// (the ExecutionContext's sync-object index) as the command pool tray, and
// imageIndex (the render-target index) as the image the renderer draws
// into.
func (n *RenderNode) CreateJob(in *syncfab.SyncObject) Job {
	return func(ctx *swapchain.ExecutionContext, tracker *QueueSubmitTracker) error {
		idx, ok := ctx.PoolIndex()
		if !ok {
			return nil
		}

		n.renderer.OnFrameBegin(int(idx.RenderTargetIndex))

		cb, err := n.ctx.CreateCommandBuffer(uint32(idx.SyncObjectIndex))
		if err != nil {
			return err
		}

		if err := n.renderer.Draw(cb, int(idx.RenderTargetIndex)); err != nil {
			return err
		}

		group := submissionGroup(in)
		queue := n.family.AcquireQueue()
		defer queue.Release()

		if err := n.family.Submit(queue, in.Primitives(), cb, group, n.fence); err != nil {
			return err
		}
		tracker.Track(n.fence)
		return nil
	}
}

// TransferNode runs the transfer scheduler's pending upload/download tasks
// using the in-operations as the bridging sync for the first/last
// submission of each task's chain. It is active only while the scheduler
// has pending work, per spec.md §4.5.
type TransferNode struct {
	name      string
	scheduler *transfer.Scheduler
	recorder  resource.BarrierRecorder
	copier    transfer.CopyRecorder
	submitter transfer.Submitter
	pending   func() bool
}

// NewTransferNode creates a TransferNode driving scheduler's pending
// tasks. pending reports whether the scheduler currently has any queued
// work (IsActive delegates to it); when pending is nil, IsActive asks
// scheduler.HasPending instead.
func NewTransferNode(name string, scheduler *transfer.Scheduler, recorder resource.BarrierRecorder, copier transfer.CopyRecorder, submitter transfer.Submitter, pending func() bool) *TransferNode {
	return &TransferNode{name: name, scheduler: scheduler, recorder: recorder, copier: copier, submitter: submitter, pending: pending}
}

func (n *TransferNode) Name() string     { return n.name }
func (n *TransferNode) IsActive() bool {
	if n.pending == nil {
		return n.scheduler.HasPending()
	}
	return n.pending()
}
func (n *TransferNode) Accept(v Visitor) { v.VisitTransfer(n) }
func (n *TransferNode) isNode()          {}

func (n *TransferNode) CreateJob(in *syncfab.SyncObject) Job {
	return func(ctx *swapchain.ExecutionContext, tracker *QueueSubmitTracker) error {
		return n.scheduler.ExecuteTasks(submissionGroup(in), n.recorder, n.copier, n.submitter)
	}
}

// ComputeNode forwards the in-operations and ExecutionContext to an
// external IComputeTask, the CUDA-interop seam described in spec.md §6.
type ComputeNode struct {
	name string
	task IComputeTask
}

// NewComputeNode creates a ComputeNode wrapping an external compute task.
func NewComputeNode(name string, task IComputeTask) *ComputeNode {
	return &ComputeNode{name: name, task: task}
}

func (n *ComputeNode) Name() string     { return n.name }
func (n *ComputeNode) IsActive() bool   { return n.task != nil && n.task.IsActive() }
func (n *ComputeNode) Accept(v Visitor) { v.VisitCompute(n) }
func (n *ComputeNode) isNode()          {}

func (n *ComputeNode) CreateJob(in *syncfab.SyncObject) Job {
	return func(ctx *swapchain.ExecutionContext, tracker *QueueSubmitTracker) error {
		return n.task.Run(submissionGroup(in), ctx)
	}
}

// PresentNode builds a VkPresentInfoKHR filled with the in-wait operations
// and calls QueuePresent, the dedicated present step at the end of every
// frame's graph.
type PresentNode struct {
	name      string
	active    bool
	swapchain vk.Swapchain
	family    *device.QueueFamily
}

// NewPresentNode creates a PresentNode presenting swapchain on family.
func NewPresentNode(name string, family *device.QueueFamily, sc vk.Swapchain) *PresentNode {
	return &PresentNode{name: name, active: true, swapchain: sc, family: family}
}

func (n *PresentNode) Name() string     { return n.name }
func (n *PresentNode) IsActive() bool   { return n.active }
func (n *PresentNode) SetActive(a bool) { n.active = a }
func (n *PresentNode) Accept(v Visitor) { v.VisitPresent(n) }
func (n *PresentNode) isNode()          {}

func (n *PresentNode) CreateJob(in *syncfab.SyncObject) Job {
	return func(ctx *swapchain.ExecutionContext, tracker *QueueSubmitTracker) error {
		idx, ok := ctx.PoolIndex()
		if !ok {
			return nil
		}
		group := in.MustGroup(syncfab.GroupPresent)
		ext := in.MustGroup(syncfab.GroupExternal)
		group.Wait = append(group.Wait, ext.Wait...)
		queue := n.family.AcquireQueue()
		defer queue.Release()
		return n.family.Present(queue, in.Primitives(), group, n.swapchain, idx.RenderTargetIndex)
	}
}

// CpuNode runs pure CPU work with no GPU submission (e.g. image
// acquisition, asset streaming decisions).
type CpuNode struct {
	name string
	task ICpuTask
}

// NewCpuNode creates a CpuNode wrapping an external CPU-only task.
func NewCpuNode(name string, task ICpuTask) *CpuNode {
	return &CpuNode{name: name, task: task}
}

func (n *CpuNode) Name() string     { return n.name }
func (n *CpuNode) IsActive() bool   { return true }
func (n *CpuNode) Accept(v Visitor) { v.VisitCpu(n) }
func (n *CpuNode) isNode()          {}

func (n *CpuNode) CreateJob(in *syncfab.SyncObject) Job {
	return func(ctx *swapchain.ExecutionContext, tracker *QueueSubmitTracker) error {
		return n.task.Run(ctx)
	}
}

// EmptyNode is a pure sync-aggregation point: it performs no work of its
// own, it exists so several links can converge on (or fan out from) one
// name in the graph.
type EmptyNode struct {
	name string
}

// NewEmptyNode creates an EmptyNode.
func NewEmptyNode(name string) *EmptyNode {
	return &EmptyNode{name: name}
}

func (n *EmptyNode) Name() string     { return n.name }
func (n *EmptyNode) IsActive() bool   { return true }
func (n *EmptyNode) Accept(v Visitor) { v.VisitEmpty(n) }
func (n *EmptyNode) isNode()          {}

func (n *EmptyNode) CreateJob(in *syncfab.SyncObject) Job {
	return func(ctx *swapchain.ExecutionContext, tracker *QueueSubmitTracker) error {
		return nil
	}
}

var (
	_ Node = &RenderNode{}
	_ Node = &TransferNode{}
	_ Node = &ComputeNode{}
	_ Node = &PresentNode{}
	_ Node = &CpuNode{}
	_ Node = &EmptyNode{}
)
