package swapchain

import (
	"fmt"
	"sync"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/syncfab"
)

// probeTimeout is the short acquire timeout the selector loops on. The
// Vulkan spec does not guarantee forward progress if a caller holds more
// images than the swapchain's minimum, so a single long-timeout acquire can
// stall the whole frame loop; looping on a short probe yields to the driver
// instead (spec.md §4.9, Open Question decision #2 in SPEC_FULL.md §9:
// each 1ms probe blocks inside the driver, and a TIMEOUT result loops
// straight into the next probe without sleeping).
const probeTimeout = time.Millisecond

// Acquirer is implemented by the device/window package: it performs the
// actual vkAcquireNextImageKHR call against one swapchain.
type Acquirer interface {
	AcquireNextImage(timeout time.Duration, semaphore vk.Semaphore, fence vk.Fence) (imageIndex uint32, result vk.Result)
}

// Selector implements the SwapChainImageSelector protocol: picking a free
// sync slot, then probing the driver in a short-timeout loop until an
// image is acquired or the swapchain is reported lost. It decouples "which
// sync slot is this frame scheduled on" from "which swapchain image did
// the driver hand back" per spec.md §4.9.
type Selector struct {
	imageCount int

	mu       sync.RWMutex
	occupied map[int]struct{}
}

// NewSelector creates a Selector over a swapchain with imageCount sync
// slots (normally equal to the back-buffer count).
func NewSelector(imageCount int) *Selector {
	s := &Selector{imageCount: imageCount, occupied: make(map[int]struct{}, imageCount)}
	return s
}

// Attach wires the selector to an ExecutionContext's event bus so a sync
// slot is automatically released back to the free set when the context
// clears its pool index.
func (s *Selector) Attach(ctx *ExecutionContext) {
	ctx.Events.OnPoolIndexClear(func(idx PoolIndex) {
		s.mu.Lock()
		delete(s.occupied, idx.SyncObjectIndex)
		s.mu.Unlock()
	})
}

// pickSlot returns the smallest sync-slot index not currently occupied and
// marks it occupied. Blocks (spinning with a short sleep) if every slot is
// occupied, since that means every ExecutionContext in the ring is still
// in flight — a transient condition under normal frame pacing, not a
// protocol violation.
func (s *Selector) pickSlot() int {
	for {
		s.mu.Lock()
		for i := 0; i < s.imageCount; i++ {
			if _, busy := s.occupied[i]; !busy {
				s.occupied[i] = struct{}{}
				s.mu.Unlock()
				return i
			}
		}
		s.mu.Unlock()
		time.Sleep(probeTimeout)
	}
}

// release returns slot to the free set without waiting on an
// ExecutionContext event, used by callers that picked a slot but failed to
// acquire an image for it (swapchain lost before any work was scheduled).
func (s *Selector) release(slot int) {
	s.mu.Lock()
	delete(s.occupied, slot)
	s.mu.Unlock()
}

// GetNextImage implements the full protocol: pick a free sync slot, then
// probe acquirer in a short-timeout loop using that slot's image-available
// semaphore until an image is acquired or the swapchain reports
// OUT_OF_DATE/SUBOPTIMAL. On loss, returns (nil, nil) — the caller is
// expected to call reinitSwapChain and the frame is skipped, exactly as
// spec.md §8 scenario 6 requires ("no partial submission performed").
//
// Parameters:
//   - acquirer: the swapchain to probe
//   - imageAvailable: a function returning the binary semaphore to use for
//     a given sync slot's image-available wait (one semaphore per slot,
//     owned by the caller's SyncObject pool)
//
// Returns:
//   - *PoolIndex: the acquired render-target/sync-slot pair, or nil on swapchain loss
//   - error: common.KindSurfaceLost if the driver reports a hard failure
func (s *Selector) GetNextImage(acquirer Acquirer, imageAvailable func(slot int) vk.Semaphore) (*PoolIndex, error) {
	slot := s.pickSlot()

	for {
		sem := imageAvailable(slot)
		imageIndex, result := acquirer.AcquireNextImage(probeTimeout, sem, nil)
		switch result {
		case vk.Success:
			value := uint64(imageIndex)
			syncfab.Logbook().Record(syncfab.LogEntry{Op: syncfab.OpImageAcquire, Handle: sem, Value: &value})
			return &PoolIndex{RenderTargetIndex: imageIndex, SyncObjectIndex: slot}, nil
		case vk.Timeout:
			continue
		case vk.ErrorOutOfDate, vk.Suboptimal:
			s.release(slot)
			return nil, nil
		default:
			s.release(slot)
			return nil, common.NewError("Selector.GetNextImage", common.KindSurfaceLost,
				fmt.Errorf("vkAcquireNextImageKHR returned %d", result))
		}
	}
}

// ImageCount returns the number of sync slots this selector manages.
func (s *Selector) ImageCount() int { return s.imageCount }
