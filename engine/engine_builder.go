package engine

import (
	"time"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/engine/window"
	"github.com/oxy-vk/render-engine/rendergraph"
	"github.com/oxy-vk/render-engine/swapchain"
	"github.com/oxy-vk/render-engine/syncfab"
	"github.com/oxy-vk/render-engine/transfer"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// The tick callback will be called at this rate for game logic updates.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Second / time.Duration(fps)
	}
}

// WithWindow sets a custom configured window for the engine to use rather than allowing the engine
// to create and manage one internally.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithLogicalDevice sets the logical device the engine waits its
// per-frame fences against once the render graph's scheduler returns.
//
// Parameters:
//   - device: the logical device owning the fences tracked in
//     QueueSubmitTracker
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogicalDevice(device vk.Device) EngineBuilderOption {
	return func(e *engine) {
		e.logical = device
	}
}

// WithRenderGraph wires a compiled render graph and the worker pool size
// its TaskflowScheduler dispatches jobs on. The graph must already have
// had ApplyChanges called on it.
//
// Parameters:
//   - graph: the compiled render graph to drive every frame
//   - workers: the worker pool size backing the graph's per-frame task DAG
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderGraph(graph *rendergraph.Graph, workers int) EngineBuilderOption {
	return func(e *engine) {
		e.graph = graph
		e.scheduler = rendergraph.NewTaskflowScheduler(graph, workers)
	}
}

// WithBackBuffers configures the ring of per-sync-slot ExecutionContexts
// and the swapchain image selector the engine acquires frames through,
// registering one image-available binary semaphore per sync slot.
// backBufferCount must match the swapchain's image count.
//
// Parameters:
//   - primitives: the semaphore/fence registry shared by every
//     ExecutionContext and the render graph's nodes
//   - factory: mints the per-slot image-available semaphores (nil skips
//     registration, for callers that registered their own)
//   - backBufferCount: number of in-flight sync slots (and swapchain images)
//   - acquirer: the swapchain to probe for the next presentable image
//   - feedback: optional render-finished completion tracker; nil disables
//     WaitSlot/SignalSlot bookkeeping
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBackBuffers(primitives *syncfab.Primitives, factory syncfab.Factory, backBufferCount int, acquirer swapchain.Acquirer, feedback swapchain.SyncFeedback) EngineBuilderOption {
	return func(e *engine) {
		e.primitives = primitives
		e.acquirer = acquirer
		e.selector = swapchain.NewSelector(backBufferCount)

		contexts := make([]*swapchain.ExecutionContext, backBufferCount)
		for i := range contexts {
			if factory != nil {
				name := imageAvailableSemaphoreName(i)
				if _, exists := primitives.Get(name); !exists {
					if handle, err := factory.CreateBinarySemaphore(); err == nil {
						primitives.Register(name, syncfab.KindBinary, handle, 1, "engine")
					}
				}
			}
			contexts[i] = swapchain.NewExecutionContext(backBufferCount, primitives, feedback)
			e.selector.Attach(contexts[i])
		}
		e.contexts = contexts
	}
}

// WithTransferScheduler wires the transfer scheduler whose staging memory
// the engine reclaims after each frame's fences signal.
//
// Parameters:
//   - s: the transfer scheduler driven by the graph's TransferNode
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTransferScheduler(s *transfer.Scheduler) EngineBuilderOption {
	return func(e *engine) {
		e.transfers = s
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Second / time.Duration(fps)
	}
}
