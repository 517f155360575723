package device

import (
	"sync"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/swapchain"
	"github.com/oxy-vk/render-engine/syncfab"
	"github.com/oxy-vk/render-engine/transfer"
)

// CopyRecorder records the buffer<->image and buffer<->buffer copy
// commands the transfer scheduler plans. Copies assume the resource has
// already been transitioned to the matching TRANSFER_SRC/DST layout by
// the scheduler's barriers.
type CopyRecorder struct{}

var _ transfer.CopyRecorder = CopyRecorder{}

func (CopyRecorder) RecordBufferToImage(cb vk.CommandBuffer, staging vk.Buffer, dst vk.Image, aspect vk.ImageAspectFlags, extent vk.Extent3D) {
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: aspect,
			LayerCount: 1,
		},
		ImageExtent: extent,
	}
	vk.CmdCopyBufferToImage(cb, staging, dst, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (CopyRecorder) RecordImageToBuffer(cb vk.CommandBuffer, src vk.Image, staging vk.Buffer, aspect vk.ImageAspectFlags, extent vk.Extent3D) {
	region := vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: aspect,
			LayerCount: 1,
		},
		ImageExtent: extent,
	}
	vk.CmdCopyImageToBuffer(cb, src, vk.ImageLayoutTransferSrcOptimal, staging, 1, []vk.BufferImageCopy{region})
}

func (CopyRecorder) RecordBufferToBuffer(cb vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize) {
	vk.CmdCopyBuffer(cb, src, dst, 1, []vk.BufferCopy{{Size: size}})
}

// FamilySubmitter adapts Device's queue-family registry to the transfer
// scheduler's Submitter seam: it resolves the family, load-balances a
// queue, and submits under that queue's lock.
type FamilySubmitter struct {
	device     *Device
	primitives *syncfab.Primitives
}

// NewFamilySubmitter creates a FamilySubmitter over device, resolving
// semaphore names against primitives.
func NewFamilySubmitter(device *Device, primitives *syncfab.Primitives) *FamilySubmitter {
	return &FamilySubmitter{device: device, primitives: primitives}
}

var _ transfer.Submitter = (*FamilySubmitter)(nil)

// Submit submits cb on a load-balanced queue of the given family.
func (s *FamilySubmitter) Submit(family common.QueueFamilyIndex, cb vk.CommandBuffer, ops syncfab.OperationGroup, fence vk.Fence) error {
	f, err := s.device.Family(family)
	if err != nil {
		return err
	}
	queue := f.AcquireQueue()
	defer queue.Release()
	return f.Submit(queue, s.primitives, cb, ops, fence)
}

// SwapchainAcquirer adapts one VkSwapchainKHR to the selector's Acquirer
// seam. Rebind swaps the underlying handle after swapchain recreation so
// the next acquire probes the new swapchain.
type SwapchainAcquirer struct {
	mu        sync.Mutex
	logical   vk.Device
	swapchain vk.Swapchain
}

// NewSwapchainAcquirer wraps swapchain for image acquisition on logical.
func NewSwapchainAcquirer(logical vk.Device, sc vk.Swapchain) *SwapchainAcquirer {
	return &SwapchainAcquirer{logical: logical, swapchain: sc}
}

var _ swapchain.Acquirer = (*SwapchainAcquirer)(nil)

// Rebind replaces the wrapped swapchain handle, called by the engine
// after the window recreates its swapchain on OUT_OF_DATE/SUBOPTIMAL.
func (a *SwapchainAcquirer) Rebind(sc vk.Swapchain) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.swapchain = sc
}

// AcquireNextImage calls vkAcquireNextImageKHR with the given probe
// timeout; the selector loops on TIMEOUT, so a short timeout here is the
// forward-progress mechanism rather than an error.
func (a *SwapchainAcquirer) AcquireNextImage(timeout time.Duration, semaphore vk.Semaphore, fence vk.Fence) (uint32, vk.Result) {
	a.mu.Lock()
	sc := a.swapchain
	a.mu.Unlock()
	var imageIndex uint32
	ret := vk.AcquireNextImage(a.logical, sc, uint64(timeout.Nanoseconds()), semaphore, fence, &imageIndex)
	return imageIndex, ret
}
