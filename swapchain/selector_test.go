package swapchain

import (
	"testing"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/syncfab"
)

type scriptedAcquirer struct {
	results []vk.Result
	call    int
}

func (a *scriptedAcquirer) AcquireNextImage(timeout time.Duration, semaphore vk.Semaphore, fence vk.Fence) (uint32, vk.Result) {
	r := a.results[a.call]
	idx := uint32(a.call)
	a.call++
	return idx, r
}

func TestSelectorAcquiresSuccessfully(t *testing.T) {
	s := NewSelector(3)
	acq := &scriptedAcquirer{results: []vk.Result{vk.Success}}

	pi, err := s.GetNextImage(acq, func(slot int) vk.Semaphore { return vk.NullSemaphore })
	if err != nil {
		t.Fatalf("GetNextImage: %v", err)
	}
	if pi == nil {
		t.Fatalf("expected a pool index")
	}
	if pi.SyncObjectIndex != 0 {
		t.Fatalf("expected first free slot 0, got %d", pi.SyncObjectIndex)
	}
}

func TestSelectorRetriesOnTimeout(t *testing.T) {
	s := NewSelector(2)
	acq := &scriptedAcquirer{results: []vk.Result{vk.Timeout, vk.Timeout, vk.Success}}

	pi, err := s.GetNextImage(acq, func(slot int) vk.Semaphore { return vk.NullSemaphore })
	if err != nil {
		t.Fatalf("GetNextImage: %v", err)
	}
	if pi == nil || pi.RenderTargetIndex != 2 {
		t.Fatalf("expected the third probe's image index to win, got %+v", pi)
	}
}

func TestSelectorReturnsNilOnOutOfDate(t *testing.T) {
	s := NewSelector(2)
	acq := &scriptedAcquirer{results: []vk.Result{vk.ErrorOutOfDate}}

	pi, err := s.GetNextImage(acq, func(slot int) vk.Semaphore { return vk.NullSemaphore })
	if err != nil {
		t.Fatalf("expected no error on OUT_OF_DATE, got %v", err)
	}
	if pi != nil {
		t.Fatalf("expected nil pool index on swapchain loss")
	}
}

func TestSelectorPicksDistinctSlotsAcrossConcurrentFrames(t *testing.T) {
	s := NewSelector(3)
	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		acq := &scriptedAcquirer{results: []vk.Result{vk.Success}}
		pi, err := s.GetNextImage(acq, func(slot int) vk.Semaphore { return vk.NullSemaphore })
		if err != nil {
			t.Fatalf("GetNextImage: %v", err)
		}
		if seen[pi.SyncObjectIndex] {
			t.Fatalf("slot %d reused before release", pi.SyncObjectIndex)
		}
		seen[pi.SyncObjectIndex] = true
	}
}

func TestSelectorReleasesSlotOnHardFailure(t *testing.T) {
	s := NewSelector(1)
	acq := &scriptedAcquirer{results: []vk.Result{vk.ErrorDeviceLost}}

	_, err := s.GetNextImage(acq, func(slot int) vk.Semaphore { return vk.NullSemaphore })
	if err == nil {
		t.Fatalf("expected an error on device loss")
	}
	kind, ok := common.KindOf(err)
	if !ok || kind != common.KindSurfaceLost {
		t.Fatalf("expected KindSurfaceLost, got %v", err)
	}

	// the slot must have been released so a subsequent call can proceed
	acq2 := &scriptedAcquirer{results: []vk.Result{vk.Success}}
	pi, err := s.GetNextImage(acq2, func(slot int) vk.Semaphore { return vk.NullSemaphore })
	if err != nil || pi == nil {
		t.Fatalf("expected slot 0 to be reusable after release, got pi=%v err=%v", pi, err)
	}
}

func TestSelectorBlocksWhenAllSlotsOccupiedUntilRelease(t *testing.T) {
	s := NewSelector(2)
	primitives := syncfab.NewPrimitives()

	ctxs := make([]*ExecutionContext, 2)
	for i := range ctxs {
		ctxs[i] = NewExecutionContext(2, primitives, nil)
		s.Attach(ctxs[i])
	}

	// occupy both slots
	for i := 0; i < 2; i++ {
		acq := &scriptedAcquirer{results: []vk.Result{vk.Success}}
		pi, err := s.GetNextImage(acq, func(slot int) vk.Semaphore { return vk.NullSemaphore })
		if err != nil || pi == nil {
			t.Fatalf("setup acquire %d failed: %v", i, err)
		}
		ctxs[i].SetPoolIndex(*pi)
	}

	// a third acquire must block until a slot frees, then succeed; this is
	// the over-subscription forward-progress guarantee
	done := make(chan *PoolIndex, 1)
	go func() {
		acq := &scriptedAcquirer{results: []vk.Result{vk.Success}}
		pi, _ := s.GetNextImage(acq, func(slot int) vk.Semaphore { return vk.NullSemaphore })
		done <- pi
	}()

	select {
	case <-done:
		t.Fatalf("third acquire completed while every slot was still occupied")
	case <-time.After(20 * time.Millisecond):
	}

	ctxs[0].ClearPoolIndex()

	select {
	case pi := <-done:
		if pi == nil {
			t.Fatalf("expected an acquired pool index after release")
		}
		if _, busy := s.occupied[pi.SyncObjectIndex]; !busy {
			t.Fatalf("acquired slot must be marked occupied")
		}
	case <-time.After(time.Second):
		t.Fatalf("third acquire deadlocked after slot release")
	}
}
