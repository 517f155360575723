package rendergraph

import (
	"fmt"

	"github.com/oxy-vk/render-engine/syncfab"
)

// RenderGraphBuilder is the fluent entry point for assembling a graph:
// node registration helpers, link helpers, and semaphore registration.
// Link synchronization is declared through a session-typed sub-builder
// (GpuLinkInit -> GpuLinkAwaitingWait / GpuLinkAwaitingExternalWait),
// each state exposing only the methods legal in that state, so calling
// waitOnGpu before signalOnGpu fails to compile rather than at runtime
// (design notes §9: the original's template-tag GpuLinkBuilder<FLAG>).
//
// Builder errors (semaphore creation failure, duplicate registration) are
// accumulated and surfaced by Reset, matching the staged-commit error
// model of Graph.ApplyChanges.
type RenderGraphBuilder struct {
	name       string
	graph      *Graph
	primitives *syncfab.Primitives
	factory    syncfab.Factory
	autoCount  uint64
	err        error
}

// NewRenderGraphBuilder starts a builder session for a graph named name.
// primitives is the semaphore registry links resolve against; factory
// mints the underlying Vulkan semaphores for auto-generated and
// builder-registered names.
func NewRenderGraphBuilder(name string, primitives *syncfab.Primitives, factory syncfab.Factory) *RenderGraphBuilder {
	if primitives == nil {
		panic("rendergraph: NewRenderGraphBuilder requires a primitives registry")
	}
	return &RenderGraphBuilder{
		name:       name,
		graph:      NewGraph(),
		primitives: primitives,
		factory:    factory,
	}
}

func (b *RenderGraphBuilder) addNode(n Node) *RenderGraphBuilder {
	b.graph.AddNode(n)
	return b
}

// AddRenderNode stages a RenderNode.
func (b *RenderGraphBuilder) AddRenderNode(n *RenderNode) *RenderGraphBuilder { return b.addNode(n) }

// AddTransferNode stages a TransferNode.
func (b *RenderGraphBuilder) AddTransferNode(n *TransferNode) *RenderGraphBuilder {
	return b.addNode(n)
}

// AddComputeNode stages a ComputeNode.
func (b *RenderGraphBuilder) AddComputeNode(n *ComputeNode) *RenderGraphBuilder { return b.addNode(n) }

// AddCpuNode stages a CpuNode.
func (b *RenderGraphBuilder) AddCpuNode(n *CpuNode) *RenderGraphBuilder { return b.addNode(n) }

// AddPresentNode stages a PresentNode.
func (b *RenderGraphBuilder) AddPresentNode(n *PresentNode) *RenderGraphBuilder { return b.addNode(n) }

// AddEmptyNode stages an EmptyNode named name.
func (b *RenderGraphBuilder) AddEmptyNode(name string) *RenderGraphBuilder {
	return b.addNode(NewEmptyNode(name))
}

// RegisterBinarySemaphore creates a binary semaphore via the builder's
// factory and registers it under name, for links that reference a
// caller-owned semaphore by name (signalOnGpu variant 3).
func (b *RenderGraphBuilder) RegisterBinarySemaphore(name string) *RenderGraphBuilder {
	if b.err != nil {
		return b
	}
	handle, err := b.factory.CreateBinarySemaphore()
	if err != nil {
		b.err = err
		return b
	}
	if _, err := b.primitives.Register(name, syncfab.KindBinary, handle, 1, b.name); err != nil {
		b.err = err
	}
	return b
}

// RegisterTimelineSemaphore creates a timeline semaphore starting at
// initial with the given stepping width and registers it under name
// (signalOnGpu variant 4).
func (b *RenderGraphBuilder) RegisterTimelineSemaphore(name string, initial, width uint64) *RenderGraphBuilder {
	if b.err != nil {
		return b
	}
	handle, err := b.factory.CreateTimelineSemaphore(initial)
	if err != nil {
		b.err = err
		return b
	}
	if _, err := b.primitives.Register(name, syncfab.KindTimeline, handle, width, b.name); err != nil {
		b.err = err
	}
	return b
}

// AddCpuSyncLink stages a link from -> to whose downstream node must wait
// on the CPU for the upstream node's job to return, and opens the
// session-typed GPU-connection sub-builder for it.
func (b *RenderGraphBuilder) AddCpuSyncLink(from, to string) GpuLinkInit {
	return b.addLink(from, to, LinkCpuSync)
}

// AddCpuAsyncLink stages a link from -> to whose endpoints may run
// concurrently on the CPU, ordered only by the GPU-side connections
// declared on it.
func (b *RenderGraphBuilder) AddCpuAsyncLink(from, to string) GpuLinkInit {
	return b.addLink(from, to, LinkCpuAsync)
}

func (b *RenderGraphBuilder) addLink(from, to string, t LinkType) GpuLinkInit {
	link := &Link{From: from, To: to, Type: t}
	b.graph.AddEdge(link)
	return GpuLinkInit{b: b, link: link}
}

// Reset applies every staged node and edge, returning the finalized graph
// (or the first accumulated builder / validation error), and starts a
// fresh empty graph under newName for further edits — the committed graph
// is immutable-for-the-frame from the caller's perspective.
func (b *RenderGraphBuilder) Reset(newName string) (*Graph, error) {
	if b.err != nil {
		err := b.err
		b.err = nil
		b.graph = NewGraph()
		b.name = newName
		return nil, err
	}
	built := b.graph
	if err := built.ApplyChanges(); err != nil {
		b.graph = NewGraph()
		b.name = newName
		return nil, err
	}
	b.graph = NewGraph()
	b.name = newName
	return built, nil
}

// GpuLinkInit is the initial session state of a link's GPU-connection
// builder: the only legal next step is one of the signalOnGpu variants.
type GpuLinkInit struct {
	b    *RenderGraphBuilder
	link *Link
}

// SignalOnGpu declares that this link carries no signal of its own; the
// subsequent wait must name an externally signaled semaphore (e.g. the
// swapchain's image-available semaphore).
func (l GpuLinkInit) SignalOnGpu() GpuLinkAwaitingExternalWait {
	return GpuLinkAwaitingExternalWait{b: l.b, link: l.link}
}

// SignalOnGpuAtStage auto-generates a binary semaphore signaled at stage
// by the upstream node; the subsequent WaitOnGpu completes the
// PipelineConnection.
func (l GpuLinkInit) SignalOnGpuAtStage(stage uint64) GpuLinkAwaitingWait {
	l.b.autoCount++
	name := fmt.Sprintf("%s.%s-%s.%d", l.b.name, l.link.From, l.link.To, l.b.autoCount)
	if l.b.err == nil {
		handle, err := l.b.factory.CreateBinarySemaphore()
		if err != nil {
			l.b.err = err
		} else if _, err := l.b.primitives.Register(name, syncfab.KindBinary, handle, 1, l.b.name); err != nil {
			l.b.err = err
		}
	}
	return GpuLinkAwaitingWait{b: l.b, link: l.link, semaphore: name, signalStage: stage}
}

// SignalOnGpuBinary uses the caller-registered binary semaphore named
// semaphore, signaled at stage.
func (l GpuLinkInit) SignalOnGpuBinary(semaphore string, stage uint64) GpuLinkAwaitingWait {
	return GpuLinkAwaitingWait{b: l.b, link: l.link, semaphore: semaphore, signalStage: stage}
}

// SignalOnGpuTimeline uses the caller-registered timeline semaphore named
// semaphore, signaled with the logical value at stage.
func (l GpuLinkInit) SignalOnGpuTimeline(semaphore string, value, stage uint64) GpuLinkAwaitingWait {
	return GpuLinkAwaitingWait{b: l.b, link: l.link, semaphore: semaphore, signalStage: stage, value: value}
}

// GpuLinkAwaitingWait is the session state after a signal has been
// declared: the only legal next step is WaitOnGpu (optionally scoped to
// one render-target image index).
type GpuLinkAwaitingWait struct {
	b           *RenderGraphBuilder
	link        *Link
	semaphore   string
	signalStage uint64
	value       uint64
}

// WaitOnGpu completes the PipelineConnection with the downstream wait
// stage and returns to the top-level builder.
func (w GpuLinkAwaitingWait) WaitOnGpu(stage uint64) *RenderGraphBuilder {
	w.link.Connections = append(w.link.Connections, PipelineConnection{
		Semaphore:   w.semaphore,
		SignalStage: w.signalStage,
		WaitStage:   stage,
		Value:       w.value,
	})
	return w.b
}

// WaitOnGpuForImage is WaitOnGpu restricted to one render-target image
// index, for connections whose ordering depends on which swapchain image
// the frame landed on (inter-frame ordering).
func (w GpuLinkAwaitingWait) WaitOnGpuForImage(stage uint64, image uint32) *RenderGraphBuilder {
	img := image
	w.link.Connections = append(w.link.Connections, PipelineConnection{
		Semaphore:   w.semaphore,
		SignalStage: w.signalStage,
		WaitStage:   stage,
		Value:       w.value,
		Image:       &img,
	})
	return w.b
}

// GpuLinkAwaitingExternalWait is the session state after SignalOnGpu():
// the wait must name an externally signaled semaphore.
type GpuLinkAwaitingExternalWait struct {
	b    *RenderGraphBuilder
	link *Link
}

// WaitOnGpu completes the ExternalConnection: the downstream node waits
// on semaphore at stage (value applies to timeline semaphores only).
func (w GpuLinkAwaitingExternalWait) WaitOnGpu(semaphore string, stage, value uint64) *RenderGraphBuilder {
	w.link.Connections = append(w.link.Connections, ExternalConnection{
		Semaphore: semaphore,
		WaitStage: stage,
		Value:     value,
	})
	return w.b
}

// WaitOnGpuForImage is WaitOnGpu restricted to one render-target image
// index.
func (w GpuLinkAwaitingExternalWait) WaitOnGpuForImage(semaphore string, stage, value uint64, image uint32) *RenderGraphBuilder {
	img := image
	w.link.Connections = append(w.link.Connections, ExternalConnection{
		Semaphore: semaphore,
		WaitStage: stage,
		Value:     value,
		Image:     &img,
	})
	return w.b
}
