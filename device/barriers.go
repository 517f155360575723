package device

import (
	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/resource"
)

// legacyCoreMask covers the stage/access bits whose values are identical
// between this module's sync2-shaped masks and the legacy Vulkan 1.0
// flag enums (see common/vkflags.go — core bit positions match the spec).
const legacyCoreMask = 0x1FFFF

// legacySrcStage folds a StageMask down to a legacy source stage mask.
// NONE has no legacy equivalent on the source side; TOP_OF_PIPE waits on
// nothing, which is the same contract.
func legacySrcStage(m common.StageMask) vk.PipelineStageFlags {
	f := vk.PipelineStageFlags(m & legacyCoreMask)
	if f == 0 {
		return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	return f
}

// legacyDstStage folds a StageMask down to a legacy destination stage
// mask; NONE becomes BOTTOM_OF_PIPE (blocks nothing downstream).
func legacyDstStage(m common.StageMask) vk.PipelineStageFlags {
	f := vk.PipelineStageFlags(m & legacyCoreMask)
	if f == 0 {
		return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return f
}

// legacyAccess folds an AccessMask down to legacy access flags. The
// sync2-only write bits have no 1.0 equivalent: shader-storage writes are
// plain shader writes there, and the remaining extension writes are
// conservatively widened to MEMORY_WRITE.
func legacyAccess(m common.AccessMask) vk.AccessFlags {
	f := vk.AccessFlags(m & legacyCoreMask)
	if m&common.AccessShaderStorageWrite != 0 {
		f |= vk.AccessFlags(vk.AccessShaderWriteBit)
	}
	const extensionWrites = common.AccessTransformFeedbackWrite |
		common.AccessTransformFeedbackCounterWrite |
		common.AccessAccelerationStructureWrite |
		common.AccessMicromapWrite |
		common.AccessOpticalFlowWrite
	if m&extensionWrites != 0 {
		f |= vk.AccessFlags(vk.AccessMemoryWriteBit)
	}
	return f
}

func legacyQueueFamily(q common.QueueFamilyIndex) uint32 {
	if q == common.IgnoredFamily {
		return vk.QueueFamilyIgnored
	}
	return uint32(q)
}

// BarrierRecorder folds the resource package's coalesced, sync2-shaped
// barrier descriptions down into a single legacy vkCmdPipelineBarrier
// call per commit. The coalescing contract (one driver call per
// ResourceStateMachine commit) is preserved; only the per-barrier stage
// granularity of synchronization2 is lost in the translation, which is
// the usual cost of the 1.0 API.
type BarrierRecorder struct{}

var _ resource.BarrierRecorder = BarrierRecorder{}

// RecordBarriers records every image and buffer barrier into cb as one
// pipeline barrier command.
func (BarrierRecorder) RecordBarriers(cb vk.CommandBuffer, images []resource.ImageBarrierInput, buffers []resource.BufferBarrierInput) {
	if len(images) == 0 && len(buffers) == 0 {
		return
	}

	var srcStages, dstStages vk.PipelineStageFlags

	imageBarriers := make([]vk.ImageMemoryBarrier, 0, len(images))
	for _, in := range images {
		srcStages |= legacySrcStage(in.SrcStage)
		dstStages |= legacyDstStage(in.DstStage)
		imageBarriers = append(imageBarriers, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       legacyAccess(in.SrcAccess),
			DstAccessMask:       legacyAccess(in.DstAccess),
			OldLayout:           vk.ImageLayout(in.OldLayout),
			NewLayout:           vk.ImageLayout(in.NewLayout),
			SrcQueueFamilyIndex: legacyQueueFamily(in.SrcQueue),
			DstQueueFamilyIndex: legacyQueueFamily(in.DstQueue),
			Image:               in.Image,
			SubresourceRange:    in.Subresource,
		})
	}

	bufferBarriers := make([]vk.BufferMemoryBarrier, 0, len(buffers))
	for _, in := range buffers {
		srcStages |= legacySrcStage(in.SrcStage)
		dstStages |= legacyDstStage(in.DstStage)
		bufferBarriers = append(bufferBarriers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       legacyAccess(in.SrcAccess),
			DstAccessMask:       legacyAccess(in.DstAccess),
			SrcQueueFamilyIndex: legacyQueueFamily(in.SrcQueue),
			DstQueueFamilyIndex: legacyQueueFamily(in.DstQueue),
			Buffer:              in.Buffer,
			Offset:              in.Offset,
			Size:                in.Size,
		})
	}

	vk.CmdPipelineBarrier(cb, srcStages, dstStages, 0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
}
