package resource

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
)

// Buffer is a GPU buffer with an attached, mutable resource State. Layout
// does not apply to buffers; only Stage, Access, Owner, and QueueFamily are
// meaningful on Buffer.State.
type Buffer struct {
	mu sync.Mutex

	name    string
	handle  vk.Buffer
	size    vk.DeviceSize
	current State
}

// NewBuffer wraps an already-allocated VkBuffer.
func NewBuffer(name string, handle vk.Buffer, size vk.DeviceSize, initial State) *Buffer {
	return &Buffer{name: name, handle: handle, size: size, current: initial}
}

// Name returns the buffer's debug name.
func (b *Buffer) Name() string { return b.name }

// Handle returns the underlying VkBuffer.
func (b *Buffer) Handle() vk.Buffer { return b.handle }

// Size returns the buffer's allocated size in bytes.
func (b *Buffer) Size() vk.DeviceSize { return b.size }

// ResourceState returns the buffer's current live state.
func (b *Buffer) ResourceState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// OverrideResourceState forcibly replaces the live state without going
// through the ResourceStateMachine.
func (b *Buffer) OverrideResourceState(next State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = next
}

func (b *Buffer) state() State       { return b.current }
func (b *Buffer) setState(s State)   { b.current = s }
func (b *Buffer) mutex() *sync.Mutex { return &b.mu }

var _ resettableState = (*Buffer)(nil)

// BufferBarrierInput bundles the information ResourceStateMachine needs to
// build one VkBufferMemoryBarrier2-equivalent description for a buffer.
type BufferBarrierInput struct {
	Buffer    vk.Buffer
	Offset    vk.DeviceSize
	Size      vk.DeviceSize
	SrcStage  common.StageMask
	SrcAccess common.AccessMask
	DstStage  common.StageMask
	DstAccess common.AccessMask
	SrcQueue  common.QueueFamilyIndex
	DstQueue  common.QueueFamilyIndex
}
