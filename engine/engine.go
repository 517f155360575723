// Package engine implements ParallelRenderEngine: the top-level driver
// that owns a compiled render graph, a ring of per-back-buffer
// ExecutionContexts, and the window/surface it presents to. It replaces
// the teacher's scene-tick-loop engine with one that ticks game logic on
// a fixed schedule and drives the render graph's TaskflowScheduler once
// per frame, per SPEC_FULL.md §4.6-§4.9.
package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/engine/profiler"
	"github.com/oxy-vk/render-engine/engine/window"
	"github.com/oxy-vk/render-engine/rendergraph"
	"github.com/oxy-vk/render-engine/swapchain"
	"github.com/oxy-vk/render-engine/syncfab"
	"github.com/oxy-vk/render-engine/transfer"
)

// engine implements the Engine interface.
// Coordinates the engine tick loop, the render loop, and window management.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window  window.Window
	logical vk.Device

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	graph       *rendergraph.Graph
	scheduler   *rendergraph.TaskflowScheduler
	primitives  *syncfab.Primitives
	selector    *swapchain.Selector
	acquirer    swapchain.Acquirer
	contexts    []*swapchain.ExecutionContext
	transfers   *transfer.Scheduler
	frameNumber uint64
}

// Engine is the main entry point for the engine.
// It orchestrates the engine loop, render loop, and window management.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for game logic, physics, input processing, and animation updates.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called each render frame,
	// after the render graph's frame has been scheduled.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run starts the main engine loop (blocks until window closes).
	Run()

	// Quit signals all engine goroutines to stop and shuts down the engine.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Initializes message channels and profiler with sensible defaults.
// Options are applied directly to the engine struct via the option-builder pattern.
//
// Parameters:
//   - options: functional options for engine configuration (window, render graph, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		running:          false,
		wg:               sync.WaitGroup{},
		profiler:         profiler.NewProfiler(),
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	return e
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Run() {
	e.handle()
	e.window.ProcessMessages()
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the engine, render, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.running = true
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own
// goroutine. Each iteration acquires a swapchain image through the
// selector, binds the ExecutionContext for the chosen sync slot, drives
// the render graph's active subgraph through the TaskflowScheduler, waits
// for the frame's submitted fences, and clears the pool index so the sync
// slot is released back to the selector. Recovers from panics to avoid
// crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			if e.graph != nil && e.scheduler != nil && e.selector != nil {
				if err := e.renderFrame(); err != nil {
					if common.IsKind(err, common.KindSurfaceLost) {
						e.signalQuit()
						return
					}
					// swapchain loss (OUT_OF_DATE/SUBOPTIMAL) is reported as
					// (nil, nil) by the selector, so reaching here is always
					// a hard failure worth logging but not fatal on its own.
					log.Printf("[Engine] frame failed: %v", err)
				}
			}

			if e.renderCallback != nil {
				e.renderCallback(dt)
			}

			if e.profilingEnabled && e.profiler != nil {
				e.profiler.Tick()
			}

			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// renderFrame drives exactly one frame through acquire -> schedule ->
// fence-wait -> release. Returns nil (not an error) when the swapchain
// reports OUT_OF_DATE/SUBOPTIMAL, per spec.md §8 scenario 6: the frame is
// simply skipped (no partial submission is performed) after asking the
// window to recreate its swapchain.
func (e *engine) renderFrame() error {
	idx, err := e.selector.GetNextImage(e.acquirer, e.imageAvailableSemaphore)
	if err != nil {
		return err
	}
	if idx == nil {
		if e.window != nil {
			if err := e.window.ReinitSwapChain(); err != nil {
				return common.NewError("engine.renderFrame", common.KindSurfaceLost, err)
			}
			if sc := e.window.SwapChain(); sc != nil {
				if rb, ok := e.acquirer.(interface{ Rebind(vk.Swapchain) }); ok {
					rb.Rebind(sc.Handle)
				}
			}
		}
		return nil
	}

	ctx := e.contexts[idx.SyncObjectIndex]
	ctx.SetPoolIndex(*idx)
	e.frameNumber++
	ctx.SetFrameNumber(e.frameNumber)
	defer ctx.ClearPoolIndex()

	tracker := &rendergraph.QueueSubmitTracker{}
	if err := e.scheduler.RunFrame(ctx, e.primitives, tracker); err != nil {
		return err
	}

	if e.logical != nil {
		fences := tracker.Fences()
		if len(fences) > 0 {
			if ret := vk.WaitForFences(e.logical, uint32(len(fences)), fences, vk.True, vk.MaxUint64); ret != vk.Success {
				e.dumpLogbook()
				return common.NewError("engine.renderFrame", common.KindFenceWaitFailed,
					fmt.Errorf("vkWaitForFences returned %d", ret))
			}
			vk.ResetFences(e.logical, uint32(len(fences)), fences)
		}
		if e.profilingEnabled {
			e.profiler.AddSubmits(len(fences))
		}
	}
	if e.transfers != nil {
		// the frame's fences have signaled, so staging memory the GPU was
		// reading this frame can be reclaimed and downloads delivered
		e.transfers.ReclaimStaging()
	}
	ctx.SignalSlot(idx.SyncObjectIndex)
	return nil
}

// dumpLogbook writes the process-wide semaphore operation log, the
// post-mortem diagnostic trail for a failed sync wait.
func (e *engine) dumpLogbook() {
	book := syncfab.Logbook()
	for _, rec := range book.Semaphores() {
		log.Printf("[SyncLogbook] semaphore %s kind=%s owner=%s", rec.Name, rec.Kind, rec.Owner)
	}
	for i, entry := range book.Dump() {
		log.Printf("[SyncLogbook] %4d %s %s", i, entry.Op, entry.Name)
	}
}

// imageAvailableSemaphore resolves the binary image-available semaphore
// for a given sync slot, registered under a per-slot name at engine
// construction. Used as the Selector.GetNextImage wait semaphore.
func (e *engine) imageAvailableSemaphore(slot int) vk.Semaphore {
	sem, ok := e.primitives.Get(imageAvailableSemaphoreName(slot))
	if !ok {
		return nil
	}
	return sem.Handle()
}

func imageAvailableSemaphoreName(slot int) string {
	return fmt.Sprintf("ImageAvailable.%d", slot)
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Second / time.Duration(fps)

	if e.running {
		// Send to channel for immediate update in running engine loop
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			// Channel has a pending update, drain and send new value
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		// Engine not running, just update the field
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Second / time.Duration(fps)
}
