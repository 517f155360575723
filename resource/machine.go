package resource

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/syncfab"
)

// BarrierRecorder is implemented by the device package: it translates the
// coalesced barrier descriptions Machine produces into the actual driver
// call. The Vulkan binding available to this module predates
// VK_KHR_synchronization2, so a BarrierRecorder is expected to fold these
// StageMask/AccessMask values down into a single legacy
// vkCmdPipelineBarrier call rather than vkCmdPipelineBarrier2 — the
// barrier *coalescing* behavior specified here (one call per commit) is
// unaffected by that translation.
type BarrierRecorder interface {
	RecordBarriers(cb vk.CommandBuffer, images []ImageBarrierInput, buffers []BufferBarrierInput)
}

// Machine tracks proposed next states for a set of textures/buffers within
// the scope of a single command buffer's recording, coalescing them into
// one barrier call on CommitChanges. Not safe for concurrent use by
// multiple goroutines recording into the same command buffer — one Machine
// belongs to one command buffer's recording scope, matching the original
// ResourceStateMachine's single-threaded-per-command-buffer contract.
type Machine struct {
	mu      sync.Mutex
	images  map[*Texture]*State
	buffers map[*Buffer]*State
}

// NewMachine creates an empty ResourceStateMachine.
func NewMachine() *Machine {
	return &Machine{
		images:  make(map[*Texture]*State),
		buffers: make(map[*Buffer]*State),
	}
}

// RecordStateChange stores a proposed next state for texture, overwriting
// any earlier proposal recorded in this scope for the same texture. If
// next.Layout is ImageLayoutUndefined, it is replaced with the texture's
// current live layout (a caller normally only cares about stage/access and
// shouldn't be forced to repeat the layout it isn't changing).
func (m *Machine) RecordStateChange(texture *Texture, next State) {
	if next.Layout == common.ImageLayoutUndefined {
		next.Layout = texture.ResourceState().Layout
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images[texture] = &next
}

// RecordBufferStateChange stores a proposed next state for buffer,
// overwriting any earlier proposal recorded in this scope for the same
// buffer.
func (m *Machine) RecordBufferStateChange(buffer *Buffer, next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffers[buffer] = &next
}

// CommitChanges builds the coalesced barrier lists for every recorded
// proposal, hands them to recorder in a single call, updates each
// resource's live state to match, and clears the scope. A Machine with no
// proposals recorded issues zero barriers (recorder is not called).
func (m *Machine) CommitChanges(cb vk.CommandBuffer, recorder BarrierRecorder) {
	m.mu.Lock()
	images, buffers := m.images, m.buffers
	m.images = make(map[*Texture]*State)
	m.buffers = make(map[*Buffer]*State)
	m.mu.Unlock()

	imageBarriers := m.buildImageBarriers(images)
	bufferBarriers := m.buildBufferBarriers(buffers)
	if len(imageBarriers) == 0 && len(bufferBarriers) == 0 {
		return
	}
	recorder.RecordBarriers(cb, imageBarriers, bufferBarriers)
}

func (m *Machine) buildImageBarriers(proposals map[*Texture]*State) []ImageBarrierInput {
	barriers := make([]ImageBarrierInput, 0, len(proposals))
	for texture, next := range proposals {
		live := texture.ResourceState()
		if next == nil || *next == live {
			continue
		}
		current := narrowSource(live)
		srcQueue, dstQueue := common.IgnoredFamily, common.IgnoredFamily
		if current.QueueFamily != common.IgnoredFamily || next.QueueFamily != common.IgnoredFamily {
			if current.QueueFamily != next.QueueFamily {
				srcQueue, dstQueue = current.QueueFamily, next.QueueFamily
			}
		}
		barriers = append(barriers, ImageBarrierInput{
			Image:       texture.Handle(),
			Subresource: texture.SubresourceRange(),
			SrcStage:    current.Stage,
			SrcAccess:   current.Access,
			DstStage:    next.Stage,
			DstAccess:   next.Access,
			OldLayout:   current.Layout,
			NewLayout:   next.Layout,
			SrcQueue:    srcQueue,
			DstQueue:    dstQueue,
		})
		texture.OverrideResourceState(*next)
	}
	return barriers
}

func (m *Machine) buildBufferBarriers(proposals map[*Buffer]*State) []BufferBarrierInput {
	barriers := make([]BufferBarrierInput, 0, len(proposals))
	for buffer, next := range proposals {
		live := buffer.ResourceState()
		if next == nil || *next == live {
			continue
		}
		current := narrowSource(live)
		srcQueue, dstQueue := common.IgnoredFamily, common.IgnoredFamily
		if current.QueueFamily != common.IgnoredFamily || next.QueueFamily != common.IgnoredFamily {
			if current.QueueFamily != next.QueueFamily {
				srcQueue, dstQueue = current.QueueFamily, next.QueueFamily
			}
		}
		barriers = append(barriers, BufferBarrierInput{
			Buffer:    buffer.Handle(),
			Offset:    0,
			Size:      buffer.Size(),
			SrcStage:  current.Stage,
			SrcAccess: current.Access,
			DstStage:  next.Stage,
			DstAccess: next.Access,
			SrcQueue:  srcQueue,
			DstQueue:  dstQueue,
		})
		buffer.OverrideResourceState(*next)
	}
	return barriers
}

// imageOwnershipBarriers builds the matched release/acquire barrier pair
// for moving texture from its current queue family to next.QueueFamily.
// The release barrier (recorded on the source queue's command buffer)
// flushes the source's writes and names both families; the acquire
// barrier (recorded on the destination queue's command buffer) repeats
// the same layout transition and family pair with the destination's
// stage/access as its target, per the Vulkan queue-family-ownership
// protocol.
func imageOwnershipBarriers(texture *Texture, next State) (release, acquire ImageBarrierInput) {
	current := narrowSource(texture.ResourceState())
	release = ImageBarrierInput{
		Image:       texture.Handle(),
		Subresource: texture.SubresourceRange(),
		SrcStage:    current.Stage,
		SrcAccess:   current.Access,
		DstStage:    common.StageNone,
		DstAccess:   common.AccessNone,
		OldLayout:   current.Layout,
		NewLayout:   next.Layout,
		SrcQueue:    current.QueueFamily,
		DstQueue:    next.QueueFamily,
	}
	acquire = ImageBarrierInput{
		Image:       texture.Handle(),
		Subresource: texture.SubresourceRange(),
		SrcStage:    common.StageNone,
		SrcAccess:   common.AccessNone,
		DstStage:    next.Stage,
		DstAccess:   next.Access,
		OldLayout:   current.Layout,
		NewLayout:   next.Layout,
		SrcQueue:    current.QueueFamily,
		DstQueue:    next.QueueFamily,
	}
	return release, acquire
}

// bufferOwnershipBarriers is the buffer analogue of
// imageOwnershipBarriers (no layout applies).
func bufferOwnershipBarriers(buffer *Buffer, next State) (release, acquire BufferBarrierInput) {
	current := narrowSource(buffer.ResourceState())
	release = BufferBarrierInput{
		Buffer:    buffer.Handle(),
		Offset:    0,
		Size:      buffer.Size(),
		SrcStage:  current.Stage,
		SrcAccess: current.Access,
		DstStage:  common.StageNone,
		DstAccess: common.AccessNone,
		SrcQueue:  current.QueueFamily,
		DstQueue:  next.QueueFamily,
	}
	acquire = BufferBarrierInput{
		Buffer:    buffer.Handle(),
		Offset:    0,
		Size:      buffer.Size(),
		SrcStage:  common.StageNone,
		SrcAccess: common.AccessNone,
		DstStage:  next.Stage,
		DstAccess: next.Access,
		SrcQueue:  current.QueueFamily,
		DstQueue:  next.QueueFamily,
	}
	return release, acquire
}

// OwnershipTransfer is the result of TransferOwnership: a release barrier
// description for the source queue's command buffer, an acquire barrier
// description for the destination queue's command buffer, and the
// dedicated SyncObject bridging the two via a timeline semaphore. The
// caller (the transfer package) records each barrier into its respective
// command buffer: the release submission signals Bridge's kInternal group
// and the acquire submission waits on its kExternal group.
type OwnershipTransfer struct {
	Release ImageBarrierInput
	Acquire ImageBarrierInput
	Bridge  *syncfab.SyncObject
}

// BufferOwnershipTransfer is the buffer analogue of OwnershipTransfer.
type BufferOwnershipTransfer struct {
	Release BufferBarrierInput
	Acquire BufferBarrierInput
	Bridge  *syncfab.SyncObject
}

// bridgeGroups builds the SyncObject linking one ownership hop: the
// release submission signals semaphore=value at the transfer stage, the
// acquire submission waits on the same value at the stage the resource is
// used next. extra is folded into the kExternal (acquire-side) group so a
// caller-supplied requirement travels with the transfer.
func bridgeGroups(primitives *syncfab.Primitives, semaphore string, value uint64, next State, extra syncfab.OperationGroup) *syncfab.SyncObject {
	waitStage := next.Stage
	if waitStage == common.StageNone {
		waitStage = common.StageTransfer
	}
	bridge := syncfab.NewSyncObject(primitives)
	bridge.AddSignal(syncfab.GroupInternal, semaphore, uint64(common.StageTransfer), value)
	bridge.AddWait(syncfab.GroupExternal, semaphore, uint64(waitStage), value)
	bridge.Merge(syncfab.GroupExternal, extra)
	return bridge
}

// TransferOwnership emits matched release (src queue) and acquire (dst
// queue) barrier descriptions for a texture moving to newState, bridged
// by the named, already-registered timeline semaphore at the given logical
// value: the release submission signals semaphore=value, the acquire
// submission waits on it. The texture's live state is committed to
// newState. extra is folded into the bridge's kExternal group so a
// caller-supplied wait/signal requirement travels with the ownership
// transfer.
//
// Parameters:
//   - primitives: the semaphore registry the bridge resolves names against
//   - semaphore: the bridging timeline semaphore (registered by the caller, e.g. a DataTransferFinished instance)
//   - value: the logical timeline value linking this hop's release and acquire
//   - texture: the resource being moved
//   - newState: the state the texture will have once the acquire barrier lands
//   - extra: additional wait/signal operations folded into the acquire side (e.g. the caller's own frame-sync requirements)
//
// Returns:
//   - *OwnershipTransfer: release/acquire barrier descriptions plus the bridging SyncObject
func TransferOwnership(primitives *syncfab.Primitives, semaphore string, value uint64, texture *Texture, newState State, extra syncfab.OperationGroup) *OwnershipTransfer {
	bridge := bridgeGroups(primitives, semaphore, value, newState, extra)
	release, acquire := imageOwnershipBarriers(texture, newState)
	texture.OverrideResourceState(newState)
	return &OwnershipTransfer{Release: release, Acquire: acquire, Bridge: bridge}
}

// TransferBufferOwnership is the buffer analogue of TransferOwnership.
func TransferBufferOwnership(primitives *syncfab.Primitives, semaphore string, value uint64, buffer *Buffer, newState State, extra syncfab.OperationGroup) *BufferOwnershipTransfer {
	bridge := bridgeGroups(primitives, semaphore, value, newState, extra)
	release, acquire := bufferOwnershipBarriers(buffer, newState)
	buffer.OverrideResourceState(newState)
	return &BufferOwnershipTransfer{Release: release, Acquire: acquire, Bridge: bridge}
}
