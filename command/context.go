package command

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
)

// Context is the regular (non-single-shot) command context: one command
// pool per back-buffer slot, created with RESET_COMMAND_BUFFER_BIT so
// buffers allocated from it can be individually reset and re-recorded
// each frame. A Context belongs to exactly one goroutine's frame work —
// callers obtain one per command.Scope token, never share it across
// goroutines, matching the original engine's thread-local pool map.
type Context struct {
	mu          sync.Mutex
	logical     vk.Device
	queueFamily common.QueueFamilyIndex
	pools       map[uint32]vk.CommandPool
}

// NewContext creates a Context with no pools yet; pools are created lazily
// per slot on first use.
func NewContext(logical vk.Device, queueFamily common.QueueFamilyIndex) *Context {
	return &Context{logical: logical, queueFamily: queueFamily, pools: make(map[uint32]vk.CommandPool)}
}

// QueueFamilyIndex returns the queue family this context's command buffers
// are recorded for.
func (c *Context) QueueFamilyIndex() common.QueueFamilyIndex { return c.queueFamily }

func (c *Context) poolForSlot(slot uint32) (vk.CommandPool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pool, ok := c.pools[slot]; ok {
		return pool, nil
	}

	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: uint32(c.queueFamily),
	}
	var pool vk.CommandPool
	if ret := vk.CreateCommandPool(c.logical, &info, nil, &pool); ret != vk.Success {
		return nil, common.NewError("Context.poolForSlot", common.KindQueueUnavailable,
			fmt.Errorf("vkCreateCommandPool returned %d", ret))
	}
	c.pools[slot] = pool
	return pool, nil
}

// CreateCommandBuffer allocates one resettable primary command buffer from
// the pool belonging to slot.
func (c *Context) CreateCommandBuffer(slot uint32) (vk.CommandBuffer, error) {
	buffers, err := c.CreateCommandBuffers(1, slot)
	if err != nil {
		return nil, err
	}
	return buffers[0], nil
}

// CreateCommandBuffers allocates n resettable primary command buffers from
// the same pool (slot), so secondary packing of related work is possible.
func (c *Context) CreateCommandBuffers(n int, slot uint32) ([]vk.CommandBuffer, error) {
	pool, err := c.poolForSlot(slot)
	if err != nil {
		return nil, err
	}
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}
	buffers := make([]vk.CommandBuffer, n)
	if ret := vk.AllocateCommandBuffers(c.logical, &info, buffers); ret != vk.Success {
		return nil, common.NewError("Context.CreateCommandBuffers", common.KindQueueUnavailable,
			fmt.Errorf("vkAllocateCommandBuffers returned %d", ret))
	}
	return buffers, nil
}

// Destroy frees every pool owned by this context. The caller must have
// already waited for the owning device to go idle — pool destruction while
// a buffer from it is in flight is undefined behavior on the driver side.
func (c *Context) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for slot, pool := range c.pools {
		vk.DestroyCommandPool(c.logical, pool, nil)
		delete(c.pools, slot)
	}
}
