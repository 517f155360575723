package common

// Pipeline-stage bit values, mirroring VkPipelineStageFlagBits2. Bit
// positions for the core (non-extension) stages match the Vulkan spec
// exactly; sync2-only stages not present in the binding's
// generated constant set are assigned the next free high bits here (the
// available binding predates KHR_synchronization2). Masks are compared for
// membership against StageNone/WriteAccessFlags, and the device package
// passes them to the driver through the legacy flag types: barriers.go
// keeps only the bits under legacyCoreMask for vkCmdPipelineBarrier, and
// queue.go casts wait stages to VkPipelineStageFlags for vkQueueSubmit.
const (
	StageNone                  StageMask = 0
	StageTopOfPipe             StageMask = 0x00000001
	StageDrawIndirect          StageMask = 0x00000002
	StageVertexInput           StageMask = 0x00000004
	StageVertexShader          StageMask = 0x00000008
	StageFragmentShader        StageMask = 0x00000080
	StageColorAttachmentOutput StageMask = 0x00000400
	StageComputeShader         StageMask = 0x00000800
	StageTransfer              StageMask = 0x00001000
	StageBottomOfPipe          StageMask = 0x00002000
	StageHost                  StageMask = 0x00004000
	StageAllGraphics           StageMask = 0x00008000
	StageAllCommands           StageMask = 0x00010000
)

// Memory-access bit values, mirroring VkAccessFlagBits2. See StageMask's
// doc comment for the note on sync2-only bit assignment.
const (
	AccessNone                          AccessMask = 0
	AccessIndirectCommandRead           AccessMask = 0x00000001
	AccessIndexRead                     AccessMask = 0x00000002
	AccessVertexAttributeRead           AccessMask = 0x00000004
	AccessUniformRead                   AccessMask = 0x00000008
	AccessInputAttachmentRead           AccessMask = 0x00000010
	AccessShaderRead                    AccessMask = 0x00000020
	AccessShaderWrite                   AccessMask = 0x00000040
	AccessColorAttachmentRead           AccessMask = 0x00000080
	AccessColorAttachmentWrite          AccessMask = 0x00000100
	AccessDepthStencilAttachmentRead    AccessMask = 0x00000200
	AccessDepthStencilAttachmentWrite   AccessMask = 0x00000400
	AccessTransferRead                  AccessMask = 0x00000800
	AccessTransferWrite                 AccessMask = 0x00001000
	AccessHostRead                      AccessMask = 0x00002000
	AccessHostWrite                     AccessMask = 0x00004000
	AccessMemoryRead                    AccessMask = 0x00008000
	AccessMemoryWrite                   AccessMask = 0x00010000
	AccessShaderStorageWrite            AccessMask = 0x00020000
	AccessTransformFeedbackWrite        AccessMask = 0x00040000
	AccessTransformFeedbackCounterWrite AccessMask = 0x00080000
	AccessAccelerationStructureWrite    AccessMask = 0x00100000
	AccessMicromapWrite                 AccessMask = 0x00200000
	AccessOpticalFlowWrite              AccessMask = 0x00400000
)

// WriteAccessFlags is the explicit set of access flags that "make changes
// on memory" per spec.md §4.3 item 3 / the GLOSSARY's write-mask list.
// Any AccessMask not in this set narrows srcStage/srcAccess to NONE during
// access-flag narrowing, since a read-only access never needs to flush
// caches for a subsequent reader.
var WriteAccessFlags = map[AccessMask]bool{
	AccessShaderWrite:                   true,
	AccessColorAttachmentWrite:          true,
	AccessDepthStencilAttachmentWrite:   true,
	AccessTransferWrite:                 true,
	AccessHostWrite:                     true,
	AccessMemoryWrite:                   true,
	AccessShaderStorageWrite:            true,
	AccessTransformFeedbackWrite:        true,
	AccessTransformFeedbackCounterWrite: true,
	AccessAccelerationStructureWrite:    true,
	AccessMicromapWrite:                 true,
	AccessOpticalFlowWrite:              true,
}

// Image layout values, mirroring VkImageLayout. Numeric values match the
// Vulkan spec's core enum (stable across versions); PresentSrcKHR uses the
// real KHR extension value.
const (
	ImageLayoutUndefined                     ImageLayout = 0
	ImageLayoutGeneral                       ImageLayout = 1
	ImageLayoutColorAttachmentOptimal        ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutDepthStencilReadOnlyOptimal   ImageLayout = 4
	ImageLayoutShaderReadOnlyOptimal         ImageLayout = 5
	ImageLayoutTransferSrcOptimal            ImageLayout = 6
	ImageLayoutTransferDstOptimal            ImageLayout = 7
	ImageLayoutPreinitialized                ImageLayout = 8
	ImageLayoutPresentSrcKHR                 ImageLayout = 1000001002
)
