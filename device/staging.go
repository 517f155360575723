package device

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/transfer"
)

// stagingAlloc is the backing memory and persistent mapping of one
// staging buffer.
type stagingAlloc struct {
	memory vk.DeviceMemory
	ptr    unsafe.Pointer
	size   vk.DeviceSize
}

// StagingAllocator implements the transfer scheduler's staging seam with
// host-visible, host-coherent buffers that stay mapped for their whole
// lifetime. Buffers live from Allocate* until Free, which the scheduler
// calls only after the transfer's fences have signaled.
type StagingAllocator struct {
	physical vk.PhysicalDevice
	logical  vk.Device
	memProps vk.PhysicalDeviceMemoryProperties

	mu     sync.Mutex
	allocs map[vk.Buffer]stagingAlloc
}

var _ transfer.StagingAllocator = (*StagingAllocator)(nil)

// NewStagingAllocator creates a staging allocator for the given device,
// caching the physical device's memory properties once.
func NewStagingAllocator(physical vk.PhysicalDevice, logical vk.Device) *StagingAllocator {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(physical, &props)
	props.Deref()
	return &StagingAllocator{
		physical: physical,
		logical:  logical,
		memProps: props,
		allocs:   make(map[vk.Buffer]stagingAlloc),
	}
}

// findMemoryType picks a memory type allowed by typeBits that carries
// every requested property flag.
func (s *StagingAllocator) findMemoryType(typeBits uint32, required vk.MemoryPropertyFlags) (uint32, bool) {
	for i := uint32(0); i < s.memProps.MemoryTypeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		s.memProps.MemoryTypes[i].Deref()
		if s.memProps.MemoryTypes[i].PropertyFlags&required == required {
			return i, true
		}
	}
	return 0, false
}

func (s *StagingAllocator) allocate(size vk.DeviceSize, usage vk.BufferUsageFlagBits) (vk.Buffer, *stagingAlloc, error) {
	var buffer vk.Buffer
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	if ret := vk.CreateBuffer(s.logical, &createInfo, nil, &buffer); ret != vk.Success {
		return vk.NullBuffer, nil, common.NewError("StagingAllocator.allocate", common.KindAllocationFailed,
			fmt.Errorf("vkCreateBuffer returned %d", ret))
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(s.logical, buffer, &memReqs)
	memReqs.Deref()

	memType, ok := s.findMemoryType(memReqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if !ok {
		vk.DestroyBuffer(s.logical, buffer, nil)
		return vk.NullBuffer, nil, common.NewError("StagingAllocator.allocate", common.KindAllocationFailed,
			fmt.Errorf("no host-visible coherent memory type for staging buffer"))
	}

	var memory vk.DeviceMemory
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memType,
	}
	if ret := vk.AllocateMemory(s.logical, &allocInfo, nil, &memory); ret != vk.Success {
		vk.DestroyBuffer(s.logical, buffer, nil)
		return vk.NullBuffer, nil, common.NewError("StagingAllocator.allocate", common.KindAllocationFailed,
			fmt.Errorf("vkAllocateMemory returned %d", ret))
	}
	vk.BindBufferMemory(s.logical, buffer, memory, 0)

	var ptr unsafe.Pointer
	if ret := vk.MapMemory(s.logical, memory, 0, size, 0, &ptr); ret != vk.Success {
		vk.FreeMemory(s.logical, memory, nil)
		vk.DestroyBuffer(s.logical, buffer, nil)
		return vk.NullBuffer, nil, common.NewError("StagingAllocator.allocate", common.KindMemoryMapFailed,
			fmt.Errorf("vkMapMemory returned %d", ret))
	}

	alloc := stagingAlloc{memory: memory, ptr: ptr, size: size}
	s.mu.Lock()
	s.allocs[buffer] = alloc
	s.mu.Unlock()
	return buffer, &alloc, nil
}

// AllocateUpload creates a TRANSFER_SRC staging buffer pre-filled with
// data.
func (s *StagingAllocator) AllocateUpload(data []byte) (vk.Buffer, error) {
	buffer, alloc, err := s.allocate(vk.DeviceSize(len(data)), vk.BufferUsageTransferSrcBit)
	if err != nil {
		return vk.NullBuffer, err
	}
	vk.Memcopy(alloc.ptr, data)
	return buffer, nil
}

// AllocateReadback creates an empty TRANSFER_DST staging buffer for a
// download.
func (s *StagingAllocator) AllocateReadback(size vk.DeviceSize) (vk.Buffer, error) {
	buffer, _, err := s.allocate(size, vk.BufferUsageTransferDstBit)
	return buffer, err
}

// Read copies a readback buffer's mapped contents out. Only valid after
// the download's fence has signaled (host-coherent memory needs no
// invalidate).
func (s *StagingAllocator) Read(staging vk.Buffer, size vk.DeviceSize) ([]byte, error) {
	s.mu.Lock()
	alloc, ok := s.allocs[staging]
	s.mu.Unlock()
	if !ok {
		return nil, common.NewError("StagingAllocator.Read", common.KindMemoryMapFailed,
			fmt.Errorf("unknown staging buffer"))
	}
	if size > alloc.size {
		size = alloc.size
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(alloc.ptr), int(size)))
	return out, nil
}

// Free unmaps and releases a staging buffer's memory. The caller
// guarantees the GPU is done with it.
func (s *StagingAllocator) Free(staging vk.Buffer) {
	s.mu.Lock()
	alloc, ok := s.allocs[staging]
	delete(s.allocs, staging)
	s.mu.Unlock()
	if !ok {
		return
	}
	vk.UnmapMemory(s.logical, alloc.memory)
	vk.FreeMemory(s.logical, alloc.memory, nil)
	vk.DestroyBuffer(s.logical, staging, nil)
}
