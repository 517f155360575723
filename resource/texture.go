package resource

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
)

// Texture is a GPU image with an attached, mutable resource State. The
// application owns the Texture's lifetime exclusively; the ResourceStateMachine
// only ever mutates its State field, and only inside a single command
// buffer's recording scope via CommitChanges.
type Texture struct {
	mu sync.Mutex

	name    string
	handle  vk.Image
	extent  vk.Extent3D
	format  vk.Format
	aspect  vk.ImageAspectFlags
	current State
}

// NewTexture wraps an already-allocated VkImage. initial should reflect
// the layout the image was created in (commonly ImageLayoutUndefined).
func NewTexture(name string, handle vk.Image, format vk.Format, extent vk.Extent3D, aspect vk.ImageAspectFlags, initial State) *Texture {
	return &Texture{name: name, handle: handle, format: format, extent: extent, aspect: aspect, current: initial}
}

// Name returns the texture's debug name.
func (t *Texture) Name() string { return t.name }

// Handle returns the underlying VkImage.
func (t *Texture) Handle() vk.Image { return t.handle }

// Format returns the image's pixel format.
func (t *Texture) Format() vk.Format { return t.format }

// Extent returns the image's dimensions.
func (t *Texture) Extent() vk.Extent3D { return t.extent }

// Aspect returns the image's aspect mask.
func (t *Texture) Aspect() vk.ImageAspectFlags { return t.aspect }

// SubresourceRange returns the full-resource barrier range for this
// texture (all mips, all layers), mirroring Texture::createSubresourceRange.
func (t *Texture) SubresourceRange() vk.ImageSubresourceRange {
	// ^uint32(0): VK_REMAINING_MIP_LEVELS / VK_REMAINING_ARRAY_LAYERS. Not
	// exposed as named constants by this binding's generated vk package.
	const remaining = ^uint32(0)
	return vk.ImageSubresourceRange{
		AspectMask:     t.aspect,
		BaseMipLevel:   0,
		LevelCount:     remaining,
		BaseArrayLayer: 0,
		LayerCount:     remaining,
	}
}

// ResourceState returns the texture's current live state.
func (t *Texture) ResourceState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// OverrideResourceState forcibly replaces the live state without going
// through the ResourceStateMachine. Used by the machine itself after
// emitting a barrier, and by the transfer scheduler when it claims an
// unowned resource.
func (t *Texture) OverrideResourceState(next State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = next
}

func (t *Texture) state() State       { return t.current }
func (t *Texture) setState(s State)   { t.current = s }
func (t *Texture) mutex() *sync.Mutex { return &t.mu }

var _ resettableState = (*Texture)(nil)

// ImageBarrierInput bundles the information ResourceStateMachine needs to
// build one VkImageMemoryBarrier2-equivalent description for a texture.
type ImageBarrierInput struct {
	Image       vk.Image
	Subresource vk.ImageSubresourceRange
	SrcStage    common.StageMask
	SrcAccess   common.AccessMask
	DstStage    common.StageMask
	DstAccess   common.AccessMask
	OldLayout   common.ImageLayout
	NewLayout   common.ImageLayout
	SrcQueue    common.QueueFamilyIndex
	DstQueue    common.QueueFamilyIndex
}
