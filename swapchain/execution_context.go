// Package swapchain implements per-back-buffer sync object pooling and
// forward-progress swapchain image acquisition: the hardest synchronization
// rule in the engine, because the render-target index the driver hands
// back need not equal the sync slot the CPU just chose. See SPEC_FULL.md
// §6 (§4.9 realization notes) for the authoritative behavior.
package swapchain

import (
	"sync"

	"github.com/oxy-vk/render-engine/syncfab"
)

// PoolIndex identifies a swapchain image together with the sync slot
// chosen to synchronize work on it. RenderTargetIndex and SyncObjectIndex
// are deliberately independent — the driver's acquired image index and the
// CPU's chosen sync slot are decoupled by design (spec.md §4.9).
type PoolIndex struct {
	RenderTargetIndex uint32
	SyncObjectIndex   int
}

// SyncFeedback exposes per-sync-slot completion waiting, backing the
// "render-finished" timeline value gate described in spec.md §4.9 and the
// Open Question decision to never use frame-counter modulo arithmetic.
type SyncFeedback interface {
	// WaitSlot blocks until the render-finished timeline value recorded
	// for slot has been reached by the GPU.
	WaitSlot(slot int) error
	// SignalSlot advances the render-finished timeline value tracked for
	// slot; called once the frame driven on that slot has been submitted.
	SignalSlot(slot int)
}

// EventBus lets ExecutionContext owners (the selector, the scheduler)
// react to a pool index being claimed or released without a hard
// dependency between the two packages, mirroring spec.md §3's
// "{on_pool_index_set, on_pool_index_clear}" event bus.
type EventBus struct {
	mu             sync.Mutex
	onPoolIndexSet []func(PoolIndex)
	onClear        []func(PoolIndex)
}

// OnPoolIndexSet registers a callback invoked every time SetPoolIndex is
// called.
func (b *EventBus) OnPoolIndexSet(fn func(PoolIndex)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPoolIndexSet = append(b.onPoolIndexSet, fn)
}

// OnPoolIndexClear registers a callback invoked every time ClearPoolIndex
// is called.
func (b *EventBus) OnPoolIndexClear(fn func(PoolIndex)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClear = append(b.onClear, fn)
}

func (b *EventBus) fireSet(idx PoolIndex) {
	b.mu.Lock()
	fns := append([]func(PoolIndex){}, b.onPoolIndexSet...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(idx)
	}
}

func (b *EventBus) fireClear(idx PoolIndex) {
	b.mu.Lock()
	fns := append([]func(PoolIndex){}, b.onClear...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(idx)
	}
}

// ExecutionContext is the per-frame mutable record spec.md §3 describes: the
// current frame number, the current pool index, a ring of SyncObjects sized
// to the back-buffer count, and the event bus fired when the pool index is
// set/cleared. A ring of ExecutionContexts (one per back-buffer slot) is
// owned by the engine and cycled frame to frame.
type ExecutionContext struct {
	mu          sync.Mutex
	frameNumber uint64
	poolIndex   *PoolIndex
	syncObjects []*syncfab.SyncObject
	feedback    SyncFeedback
	Events      EventBus
}

// NewExecutionContext creates an ExecutionContext with backBufferCount
// SyncObjects, each bound to the given semaphore primitives registry.
func NewExecutionContext(backBufferCount int, primitives *syncfab.Primitives, feedback SyncFeedback) *ExecutionContext {
	objs := make([]*syncfab.SyncObject, backBufferCount)
	for i := range objs {
		objs[i] = syncfab.NewSyncObject(primitives)
	}
	return &ExecutionContext{syncObjects: objs, feedback: feedback}
}

// FrameNumber returns the current frame number this context is driving.
func (c *ExecutionContext) FrameNumber() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameNumber
}

// SetFrameNumber records the frame number this context is about to drive.
func (c *ExecutionContext) SetFrameNumber(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameNumber = n
}

// PoolIndex returns the currently bound pool index, or (zero, false) if
// none is set.
func (c *ExecutionContext) PoolIndex() (PoolIndex, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poolIndex == nil {
		return PoolIndex{}, false
	}
	return *c.poolIndex, true
}

// SetPoolIndex binds this context to idx for the current frame and fires
// OnPoolIndexSet callbacks.
func (c *ExecutionContext) SetPoolIndex(idx PoolIndex) {
	c.mu.Lock()
	c.poolIndex = &idx
	c.mu.Unlock()
	c.Events.fireSet(idx)
}

// ClearPoolIndex releases the currently bound pool index (if any) and
// fires OnPoolIndexClear callbacks, allowing the selector to reclaim the
// sync slot.
func (c *ExecutionContext) ClearPoolIndex() {
	c.mu.Lock()
	idx := c.poolIndex
	c.poolIndex = nil
	c.mu.Unlock()
	if idx != nil {
		c.Events.fireClear(*idx)
	}
}

// SyncObject returns the SyncObject belonging to slot in this context's
// ring.
func (c *ExecutionContext) SyncObject(slot int) *syncfab.SyncObject {
	return c.syncObjects[slot]
}

// WaitSlot blocks until the render-finished timeline value for slot has
// been reached, delegating to the feedback service configured at
// construction.
func (c *ExecutionContext) WaitSlot(slot int) error {
	if c.feedback == nil {
		return nil
	}
	return c.feedback.WaitSlot(slot)
}

// SignalSlot advances the render-finished timeline value tracked for slot.
func (c *ExecutionContext) SignalSlot(slot int) {
	if c.feedback != nil {
		c.feedback.SignalSlot(slot)
	}
}
