package device

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/syncfab"
)

// CreateBinarySemaphore creates a standard binary semaphore on this device.
//
// Returns:
//   - vk.Semaphore: the created semaphore
//   - error: common.KindOutOfMemory if the driver call fails
func (d *Device) CreateBinarySemaphore() (vk.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	var sem vk.Semaphore
	if ret := vk.CreateSemaphore(d.logical, &info, nil, &sem); ret != vk.Success {
		return vk.NullSemaphore, common.NewError("Device.CreateBinarySemaphore", common.KindOutOfMemory,
			fmt.Errorf("vkCreateSemaphore returned %d", ret))
	}
	return sem, nil
}

// CreateTimelineSemaphore creates a timeline semaphore starting at initial.
//
// Parameters:
//   - initial: the timeline's starting counter value
//
// Returns:
//   - vk.Semaphore: the created semaphore
//   - error: common.KindOutOfMemory if the driver call fails
func (d *Device) CreateTimelineSemaphore(initial uint64) (vk.Semaphore, error) {
	typeInfo := vk.SemaphoreTypeCreateInfo{
		SType:         vk.StructureTypeSemaphoreTypeCreateInfo,
		SemaphoreType: vk.SemaphoreTypeTimeline,
		InitialValue:  initial,
	}
	info := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
		PNext: unsafe.Pointer(&typeInfo),
	}
	var sem vk.Semaphore
	if ret := vk.CreateSemaphore(d.logical, &info, nil, &sem); ret != vk.Success {
		return vk.NullSemaphore, common.NewError("Device.CreateTimelineSemaphore", common.KindOutOfMemory,
			fmt.Errorf("vkCreateSemaphore returned %d", ret))
	}
	return sem, nil
}

// CreateFence creates a fence, optionally pre-signaled (the usual state for
// per-back-buffer fences so the first frame's wait returns immediately).
//
// Parameters:
//   - signaled: whether the fence starts in the signaled state
//
// Returns:
//   - vk.Fence: the created fence
//   - error: common.KindOutOfMemory if the driver call fails
func (d *Device) CreateFence(signaled bool) (vk.Fence, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if ret := vk.CreateFence(d.logical, &info, nil, &fence); ret != vk.Success {
		return vk.NullFence, common.NewError("Device.CreateFence", common.KindOutOfMemory,
			fmt.Errorf("vkCreateFence returned %d", ret))
	}
	return fence, nil
}

// WaitSemaphoreValue blocks until the timeline semaphore reaches value,
// the CPU-side suspension point used when a downstream CPU action needs
// GPU completion.
//
// Parameters:
//   - sem: the timeline semaphore to wait on
//   - value: the absolute counter value to wait for
//   - timeout: nanoseconds to wait; vk.MaxUint64 for unbounded
//
// Returns:
//   - error: common.KindSemaphoreWaitFailed if the wait does not complete
func (d *Device) WaitSemaphoreValue(sem vk.Semaphore, value uint64, timeout uint64) error {
	info := vk.SemaphoreWaitInfo{
		SType:          vk.StructureTypeSemaphoreWaitInfo,
		SemaphoreCount: 1,
		PSemaphores:    []vk.Semaphore{sem},
		PValues:        []uint64{value},
	}
	if ret := vk.WaitSemaphores(d.logical, &info, timeout); ret != vk.Success {
		return common.NewError("Device.WaitSemaphoreValue", common.KindSemaphoreWaitFailed,
			fmt.Errorf("vkWaitSemaphores returned %d", ret))
	}
	return nil
}

var _ syncfab.Factory = (*Device)(nil)
