// Package device wraps the Vulkan physical/logical device and its queue
// families: per-family load-balanced queue acquisition, submission, and
// present, with the locking discipline and stage-support validation
// spec.md §4.1 describes. See SPEC_FULL.md §6 (§4.1 realization notes).
package device

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/syncfab"
)

// trackedQueue is one VkQueue plus its own mutex and access counter, the
// unit a QueueFamily load-balances across.
type trackedQueue struct {
	mu     sync.Mutex
	handle vk.Queue
	uses   uint64
}

// QueueFamily wraps every VkQueue belonging to one queue family, handing
// out load-balanced, lock-held access via AcquireQueue, and validating
// that a requested pipeline stage is legal for this family's capability
// bits (graphics/compute/transfer) before a submission proceeds.
type QueueFamily struct {
	index  common.QueueFamilyIndex
	flags  vk.QueueFlags
	queues []*trackedQueue
}

// NewQueueFamily wraps count queues already retrieved via vkGetDeviceQueue
// for the given family index and capability flags.
func NewQueueFamily(index common.QueueFamilyIndex, flags vk.QueueFlags, handles []vk.Queue) *QueueFamily {
	queues := make([]*trackedQueue, len(handles))
	for i, h := range handles {
		queues[i] = &trackedQueue{handle: h}
	}
	return &QueueFamily{index: index, flags: flags, queues: queues}
}

// Index returns this family's queue family index.
func (f *QueueFamily) Index() common.QueueFamilyIndex { return f.index }

// SupportsStage reports whether stage is legal for this family's
// capability bits. A family advertising no matching capability bit fails
// validation so a caller can return UnsupportedStage instead of letting
// the driver reject the submission with a more opaque error.
func (f *QueueFamily) SupportsStage(stage common.StageMask) bool {
	switch {
	case stage == common.StageNone, stage == common.StageTopOfPipe, stage == common.StageBottomOfPipe,
		stage == common.StageHost, stage == common.StageAllCommands:
		return true
	case stage == common.StageDrawIndirect, stage == common.StageVertexInput, stage == common.StageVertexShader,
		stage == common.StageFragmentShader, stage == common.StageColorAttachmentOutput, stage == common.StageAllGraphics:
		return f.flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
	case stage == common.StageComputeShader:
		return f.flags&vk.QueueFlags(vk.QueueComputeBit) != 0 || f.flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
	case stage == common.StageTransfer:
		return f.flags&(vk.QueueFlags(vk.QueueGraphicsBit)|vk.QueueFlags(vk.QueueComputeBit)|vk.QueueFlags(vk.QueueTransferBit)) != 0
	default:
		return false
	}
}

// GuardedQueue is a single queue handle with its mutex already held;
// Release must be called exactly once to unlock it.
type GuardedQueue struct {
	family *QueueFamily
	tq     *trackedQueue
}

// Release unlocks the underlying queue's mutex.
func (g *GuardedQueue) Release() {
	g.tq.mu.Unlock()
}

// Handle returns the raw VkQueue. Only valid between AcquireQueue and
// Release.
func (g *GuardedQueue) Handle() vk.Queue { return g.tq.handle }

// AcquireQueue picks the queue in this family with the smallest access
// counter, increments it, locks its mutex, and returns a GuardedQueue
// holding that lock. Callers must call Release when done.
func (f *QueueFamily) AcquireQueue() *GuardedQueue {
	var chosen *trackedQueue
	var min uint64 = ^uint64(0)
	for _, q := range f.queues {
		uses := atomic.LoadUint64(&q.uses)
		if uses < min {
			min = uses
			chosen = q
		}
	}
	atomic.AddUint64(&chosen.uses, 1)
	chosen.mu.Lock()
	return &GuardedQueue{family: f, tq: chosen}
}

// Submit merges the operation group's semaphores into a VkSubmitInfo and
// calls vkQueueSubmit under the queue's lock, validating every operation's
// stage is legal for this family first.
//
// Parameters:
//   - queue: a GuardedQueue already acquired from this family
//   - cb: the command buffer to submit
//   - ops: wait/signal semaphore operations to attach
//   - fence: signaled once the submission completes, or the zero value for none
//
// Returns:
//   - error: common.KindUnsupportedStage if an operation names an illegal stage,
//     common.KindQueueSubmitFailed if the driver call fails
func (f *QueueFamily) Submit(queue *GuardedQueue, primitives *syncfab.Primitives, cb vk.CommandBuffer, ops syncfab.OperationGroup, fence vk.Fence) error {
	waitSemaphores := make([]vk.Semaphore, 0, len(ops.Wait))
	waitDstStage := make([]vk.PipelineStageFlags, 0, len(ops.Wait))
	waitValues := make([]uint64, 0, len(ops.Wait))
	for _, op := range ops.Wait {
		if !f.SupportsStage(common.StageMask(op.Stage)) {
			return common.NewError("QueueFamily.Submit", common.KindUnsupportedStage,
				fmt.Errorf("stage %#x not supported by queue family %d", op.Stage, f.index))
		}
		sem, ok := primitives.Get(op.Semaphore)
		if !ok {
			continue
		}
		value := sem.AbsoluteValue(op.Value)
		waitSemaphores = append(waitSemaphores, sem.Handle())
		waitDstStage = append(waitDstStage, vk.PipelineStageFlags(op.Stage))
		waitValues = append(waitValues, value)
		stage := op.Stage
		syncfab.Logbook().Record(syncfab.LogEntry{Op: syncfab.OpWait, Name: op.Semaphore, Handle: sem.Handle(), Stage: &stage, Value: &value})
	}

	signalSemaphores := make([]vk.Semaphore, 0, len(ops.Signal))
	signalValues := make([]uint64, 0, len(ops.Signal))
	for _, op := range ops.Signal {
		if !f.SupportsStage(common.StageMask(op.Stage)) {
			return common.NewError("QueueFamily.Submit", common.KindUnsupportedStage,
				fmt.Errorf("stage %#x not supported by queue family %d", op.Stage, f.index))
		}
		sem, ok := primitives.Get(op.Semaphore)
		if !ok {
			continue
		}
		value := sem.AbsoluteValue(op.Value)
		signalSemaphores = append(signalSemaphores, sem.Handle())
		signalValues = append(signalValues, value)
		stage := op.Stage
		syncfab.Logbook().Record(syncfab.LogEntry{Op: syncfab.OpSignal, Name: op.Semaphore, Handle: sem.Handle(), Stage: &stage, Value: &value})
	}

	timelineInfo := vk.TimelineSemaphoreSubmitInfo{
		SType:                     vk.StructureTypeTimelineSemaphoreSubmitInfo,
		WaitSemaphoreValueCount:   uint32(len(waitValues)),
		PWaitSemaphoreValues:      waitValues,
		SignalSemaphoreValueCount: uint32(len(signalValues)),
		PSignalSemaphoreValues:    signalValues,
	}
	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		PNext:                unsafe.Pointer(&timelineInfo),
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitDstStage,
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{cb},
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	if ret := vk.QueueSubmit(queue.Handle(), 1, []vk.SubmitInfo{submitInfo}, fence); ret != vk.Success {
		return common.NewError("QueueFamily.Submit", common.KindQueueSubmitFailed,
			fmt.Errorf("vkQueueSubmit returned %d", ret))
	}
	return nil
}

// Present calls vkQueuePresentKHR under the queue's lock, attaching ops's
// wait semaphores.
func (f *QueueFamily) Present(queue *GuardedQueue, primitives *syncfab.Primitives, ops syncfab.OperationGroup, swapchain vk.Swapchain, imageIndex uint32) error {
	waitSemaphores := make([]vk.Semaphore, 0, len(ops.Wait))
	for _, op := range ops.Wait {
		sem, ok := primitives.Get(op.Semaphore)
		if !ok {
			continue
		}
		waitSemaphores = append(waitSemaphores, sem.Handle())
		syncfab.Logbook().Record(syncfab.LogEntry{Op: syncfab.OpWaitAtPresent, Name: op.Semaphore, Handle: sem.Handle()})
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(waitSemaphores)),
		PWaitSemaphores:    waitSemaphores,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{swapchain},
		PImageIndices:      []uint32{imageIndex},
	}

	if ret := vk.QueuePresent(queue.Handle(), &presentInfo); ret != vk.Success && ret != vk.Suboptimal {
		return common.NewError("QueueFamily.Present", common.KindPresentFailed,
			fmt.Errorf("vkQueuePresentKHR returned %d", ret))
	}
	return nil
}
