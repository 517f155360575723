package command

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
)

// SingleShotContext is a per-thread transient command pool: each buffer it
// allocates is expected to be submitted exactly once and its memory
// reclaimed after a fence wait or queue idle, rather than reset and
// reused like a regular Context's buffers. The pool itself is created with
// TRANSIENT_BIT to hint the driver at the short buffer lifetimes.
type SingleShotContext struct {
	mu          sync.Mutex
	logical     vk.Device
	queueFamily common.QueueFamilyIndex
	pool        vk.CommandPool
}

// NewSingleShotContext creates a SingleShotContext with its pool created
// lazily on first CreateCommandBuffer call.
func NewSingleShotContext(logical vk.Device, queueFamily common.QueueFamilyIndex) *SingleShotContext {
	return &SingleShotContext{logical: logical, queueFamily: queueFamily}
}

// QueueFamilyIndex returns the queue family this context's command buffers
// are recorded for.
func (c *SingleShotContext) QueueFamilyIndex() common.QueueFamilyIndex { return c.queueFamily }

func (c *SingleShotContext) ensurePool() (vk.CommandPool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		return c.pool, nil
	}
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
		QueueFamilyIndex: uint32(c.queueFamily),
	}
	var pool vk.CommandPool
	if ret := vk.CreateCommandPool(c.logical, &info, nil, &pool); ret != vk.Success {
		return nil, common.NewError("SingleShotContext.ensurePool", common.KindQueueUnavailable,
			fmt.Errorf("vkCreateCommandPool returned %d", ret))
	}
	c.pool = pool
	return pool, nil
}

// CreateCommandBuffer allocates one primary command buffer from this
// context's transient pool.
func (c *SingleShotContext) CreateCommandBuffer() (vk.CommandBuffer, error) {
	pool, err := c.ensurePool()
	if err != nil {
		return nil, err
	}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)
	if ret := vk.AllocateCommandBuffers(c.logical, &info, buffers); ret != vk.Success {
		return nil, common.NewError("SingleShotContext.CreateCommandBuffer", common.KindQueueUnavailable,
			fmt.Errorf("vkAllocateCommandBuffers returned %d", ret))
	}
	return buffers[0], nil
}

// Destroy frees the pool. The caller must have already waited for the
// owning device to go idle.
func (c *SingleShotContext) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		return
	}
	vk.DestroyCommandPool(c.logical, c.pool, nil)
	c.pool = nil
}
