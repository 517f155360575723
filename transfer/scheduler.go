// Package transfer implements the upload/download staging scheduler:
// unified and split-queue transfer paths bridged by a single
// DataTransferFinished timeline semaphore. See SPEC_FULL.md §6 (§4.4
// realization notes) for the authoritative behavior.
package transfer

import (
	"fmt"
	"sync"
	"sync/atomic"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/command"
	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/resource"
	"github.com/oxy-vk/render-engine/syncfab"
)

// DataTransferFinishedSemaphoreName is the prefix of the names under which
// the scheduler registers its per-task bridging timeline semaphores
// ("DataTransferFinished.1", "DataTransferFinished.2", ...), matching
// DataTransferScheduler::kDataTransferFinishSemaphoreName in the original
// engine.
const DataTransferFinishedSemaphoreName = "DataTransferFinished"

// Path identifies which of the two transfer strategies a task will use.
type Path int

const (
	// PathUnified is used when source, transfer, and destination queues
	// share a family: one submission handles the whole transfer.
	PathUnified Path = iota
	// PathSplit is used when an ownership transfer across queue families
	// is required: three linked submissions (release, copy, acquire).
	PathSplit
)

func (p Path) String() string {
	if p == PathUnified {
		return "Unified"
	}
	return "Split"
}

// CopyRecorder is implemented by the device package: it records the actual
// buffer<->image copy command into cb. Kept as a seam (mirroring
// resource.BarrierRecorder) so this package never calls into the driver
// directly.
type CopyRecorder interface {
	RecordBufferToImage(cb vk.CommandBuffer, staging vk.Buffer, dst vk.Image, aspect vk.ImageAspectFlags, extent vk.Extent3D)
	RecordImageToBuffer(cb vk.CommandBuffer, src vk.Image, staging vk.Buffer, aspect vk.ImageAspectFlags, extent vk.Extent3D)
	RecordBufferToBuffer(cb vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize)
}

// Submitter is implemented by the device package: submits cb on the given
// queue family with the given operation group.
type Submitter interface {
	Submit(queueFamily common.QueueFamilyIndex, cb vk.CommandBuffer, ops syncfab.OperationGroup, fence vk.Fence) error
}

// CommandBufferSource allocates one-shot primary command buffers for a
// transfer submission. *command.SingleShotContext is the production
// implementation; the indirection keeps this package driver-free.
type CommandBufferSource interface {
	CreateCommandBuffer() (vk.CommandBuffer, error)
}

var _ CommandBufferSource = (*command.SingleShotContext)(nil)

// StagingAllocator is implemented by the device package: it owns the
// host-visible staging buffers transfers flow through. AllocateUpload
// creates a staging buffer filled with data; AllocateReadback creates an
// empty one sized for a download; Read maps a readback buffer and copies
// its contents out; Free releases a staging buffer once its fence has
// signaled.
type StagingAllocator interface {
	AllocateUpload(data []byte) (vk.Buffer, error)
	AllocateReadback(size vk.DeviceSize) (vk.Buffer, error)
	Read(staging vk.Buffer, size vk.DeviceSize) ([]byte, error)
	Free(staging vk.Buffer)
}

// UploadTask is a deferred CPU->GPU transfer: staging buffer data copied
// into a texture or buffer, ending in FinalState. SrcContext allocates
// the release command buffer on the resource's current owner family for
// split-queue transfers; DstContext allocates the acquire command buffer
// on the destination family.
type UploadTask struct {
	Texture    *resource.Texture
	Buffer     *resource.Buffer
	Data       []byte
	SrcContext CommandBufferSource
	DstContext CommandBufferSource
	DstQueue   common.QueueFamilyIndex
	FinalState resource.State
	staging    vk.Buffer
	started    bool
}

// DownloadTask is a deferred GPU->CPU transfer: a texture or buffer copied
// into a staging buffer, whose contents are handed to OnComplete once the
// transfer's fence has signaled and the scheduler reclaims staging memory.
type DownloadTask struct {
	Texture    *resource.Texture
	Buffer     *resource.Buffer
	SrcContext CommandBufferSource
	OnComplete func(data []byte)
	staging    vk.Buffer
	started    bool
}

// retiredStaging is one staging buffer awaiting reclamation after its
// transfer's fence signals; downloads carry the readback callback.
type retiredStaging struct {
	staging    vk.Buffer
	size       vk.DeviceSize
	onComplete func(data []byte)
}

// Scheduler keeps the upload/download staging maps and coordinates the
// per-task unified/split-queue transfer paths, all linked through the
// DataTransferFinished timeline semaphore.
type Scheduler struct {
	mu sync.Mutex

	primitives          *syncfab.Primitives
	factory             syncfab.Factory
	staging             StagingAllocator
	transferQueueFamily common.QueueFamilyIndex
	transferContext     CommandBufferSource
	owner               resource.OwnerToken
	counter             uint64

	uploadTextures   map[*resource.Texture]*UploadTask
	uploadBuffers    map[*resource.Buffer]*UploadTask
	downloadTextures map[*resource.Texture]*DownloadTask
	downloadBuffers  map[*resource.Buffer]*DownloadTask

	retired []retiredStaging
}

// NewScheduler creates an empty TransferScheduler bound to the transfer
// queue family and its SingleShotContext. owner is the token (minted from
// the engine's command-context arena) recorded on resources whose first
// transfer makes the transfer queue their initial owner; factory mints
// the per-task DataTransferFinished timeline semaphores; staging owns the
// host-visible staging buffers.
func NewScheduler(primitives *syncfab.Primitives, factory syncfab.Factory, staging StagingAllocator, owner resource.OwnerToken, transferQueueFamily common.QueueFamilyIndex, transferContext CommandBufferSource) *Scheduler {
	return &Scheduler{
		primitives:          primitives,
		factory:             factory,
		staging:             staging,
		owner:               owner,
		transferQueueFamily: transferQueueFamily,
		transferContext:     transferContext,
		uploadTextures:      make(map[*resource.Texture]*UploadTask),
		uploadBuffers:       make(map[*resource.Buffer]*UploadTask),
		downloadTextures:    make(map[*resource.Texture]*DownloadTask),
		downloadBuffers:     make(map[*resource.Buffer]*DownloadTask),
	}
}

// UploadTexture enqueues an UploadTask for texture, overwriting any
// previously enqueued (but not yet executed) task for the same texture.
// src allocates the release command buffer when the texture's current
// owner is a different queue family (nil is fine for a texture's first
// upload).
func (s *Scheduler) UploadTexture(texture *resource.Texture, data []byte, src, dst CommandBufferSource, dstQueue common.QueueFamilyIndex, final resource.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadTextures[texture] = &UploadTask{Texture: texture, Data: data, SrcContext: src, DstContext: dst, DstQueue: dstQueue, FinalState: final}
}

// UploadBuffer enqueues an UploadTask for buffer.
func (s *Scheduler) UploadBuffer(buffer *resource.Buffer, data []byte, src, dst CommandBufferSource, dstQueue common.QueueFamilyIndex, final resource.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadBuffers[buffer] = &UploadTask{Buffer: buffer, Data: data, SrcContext: src, DstContext: dst, DstQueue: dstQueue, FinalState: final}
}

// DownloadTexture enqueues a DownloadTask for texture.
func (s *Scheduler) DownloadTexture(texture *resource.Texture, src CommandBufferSource, onComplete func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadTextures[texture] = &DownloadTask{Texture: texture, SrcContext: src, OnComplete: onComplete}
}

// DownloadBuffer enqueues a DownloadTask for buffer.
func (s *Scheduler) DownloadBuffer(buffer *resource.Buffer, src CommandBufferSource, onComplete func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downloadBuffers[buffer] = &DownloadTask{Buffer: buffer, SrcContext: src, OnComplete: onComplete}
}

// HasPending reports whether any upload or download is waiting for
// ExecuteTasks; a TransferNode's IsActive delegates here.
func (s *Scheduler) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploadTextures)+len(s.uploadBuffers)+len(s.downloadTextures)+len(s.downloadBuffers) > 0
}

// PathFor reports which transfer path a task targeting dstQueue should
// take, given the resource's current queue family ownership.
func (s *Scheduler) PathFor(currentQueue, dstQueue common.QueueFamilyIndex) Path {
	if currentQueue == s.transferQueueFamily && dstQueue == s.transferQueueFamily {
		return PathUnified
	}
	return PathSplit
}

// nextSemaphoreName derives a unique bridging semaphore name for one
// task's execution, since every task gets its own DataTransferFinished
// instance (spec.md §4.4: "linked by a single timeline semaphore... with
// offset stepping" — offset stepping is what lets every task reuse the
// small logical values 1/2 while getting a distinct absolute position).
func (s *Scheduler) nextSemaphoreName() string {
	n := atomic.AddUint64(&s.counter, 1)
	return fmt.Sprintf("%s.%d", DataTransferFinishedSemaphoreName, n)
}

// ExecuteTasks takes every pending task out of the staging maps (leaving
// them empty for the next round of enqueues), then runs each one, merging
// sync into the first and last submission of each task's chain. Returns the
// first error encountered; tasks after a failing one are not started and
// are not re-queued.
//
// Parameters:
//   - sync: operation group merged into the wait side of each task's first submission and the signal side of its last
//   - recorder: barrier recorder the per-task ResourceStateMachine commits and ownership barriers go through
//   - copier: records the actual buffer<->image / buffer<->buffer copy commands
//   - submitter: submits each task's command buffers
//
// Returns:
//   - error: common.KindSizeMismatch / common.KindIncompatibleImage / common.KindAllocationFailed,
//     or a submission failure from submitter, returned as-is
func (s *Scheduler) ExecuteTasks(sync syncfab.OperationGroup, recorder resource.BarrierRecorder, copier CopyRecorder, submitter Submitter) error {
	s.mu.Lock()
	uploadTextures, uploadBuffers := s.uploadTextures, s.uploadBuffers
	downloadTextures, downloadBuffers := s.downloadTextures, s.downloadBuffers
	s.uploadTextures = make(map[*resource.Texture]*UploadTask)
	s.uploadBuffers = make(map[*resource.Buffer]*UploadTask)
	s.downloadTextures = make(map[*resource.Texture]*DownloadTask)
	s.downloadBuffers = make(map[*resource.Buffer]*DownloadTask)
	s.mu.Unlock()

	for _, task := range uploadTextures {
		if err := s.executeTextureUpload(task, sync, recorder, copier, submitter); err != nil {
			return err
		}
	}
	for _, task := range uploadBuffers {
		if err := s.executeBufferUpload(task, sync, recorder, copier, submitter); err != nil {
			return err
		}
	}
	for _, task := range downloadTextures {
		if err := s.executeTextureDownload(task, sync, recorder, copier, submitter); err != nil {
			return err
		}
	}
	for _, task := range downloadBuffers {
		if err := s.executeBufferDownload(task, sync, recorder, copier, submitter); err != nil {
			return err
		}
	}
	return nil
}

// retire parks a staging buffer (and, for downloads, its readback
// callback) until ReclaimStaging runs after the frame's fences signal.
func (s *Scheduler) retire(staging vk.Buffer, size vk.DeviceSize, onComplete func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retired = append(s.retired, retiredStaging{staging: staging, size: size, onComplete: onComplete})
}

// ReclaimStaging frees every staging buffer whose transfer has completed,
// delivering download contents to their OnComplete callbacks first. The
// engine calls this after waiting on the frame's submitted fences, which
// is what guarantees the GPU is done with the staging memory.
func (s *Scheduler) ReclaimStaging() {
	s.mu.Lock()
	retired := s.retired
	s.retired = nil
	s.mu.Unlock()

	for _, r := range retired {
		if r.onComplete != nil && s.staging != nil {
			if data, err := s.staging.Read(r.staging, r.size); err == nil {
				r.onComplete(data)
			}
		}
		if s.staging != nil {
			s.staging.Free(r.staging)
		}
	}
}

// bytesPerPixel returns the texel size for the formats the transfer
// scheduler can size-check, or 0 when the format's size is unknown (the
// check is skipped rather than guessed).
func bytesPerPixel(f vk.Format) vk.DeviceSize {
	switch f {
	case vk.FormatR8Unorm:
		return 1
	case vk.FormatR8g8Unorm:
		return 2
	case vk.FormatR8g8b8a8Unorm, vk.FormatR8g8b8a8Srgb, vk.FormatB8g8r8a8Unorm, vk.FormatB8g8r8a8Srgb:
		return 4
	case vk.FormatR16g16b16a16Sfloat:
		return 8
	case vk.FormatR32g32b32a32Sfloat:
		return 16
	default:
		return 0
	}
}

// validateTextureUpload checks task data against the texture's format and
// extent before any staging memory is allocated.
func validateTextureUpload(texture *resource.Texture, data []byte) error {
	if texture.Aspect()&vk.ImageAspectFlags(vk.ImageAspectColorBit) == 0 {
		return common.NewError("Scheduler.UploadTexture", common.KindIncompatibleImage,
			fmt.Errorf("texture %q has no color aspect", texture.Name()))
	}
	if bpp := bytesPerPixel(texture.Format()); bpp > 0 {
		ext := texture.Extent()
		expected := vk.DeviceSize(ext.Width) * vk.DeviceSize(ext.Height) * vk.DeviceSize(ext.Depth) * bpp
		if vk.DeviceSize(len(data)) != expected {
			return common.NewError("Scheduler.UploadTexture", common.KindSizeMismatch,
				fmt.Errorf("texture %q expects %d bytes, got %d", texture.Name(), expected, len(data)))
		}
	}
	return nil
}

// validateBufferUpload checks task data fits the destination buffer.
func validateBufferUpload(buffer *resource.Buffer, data []byte) error {
	if vk.DeviceSize(len(data)) > buffer.Size() {
		return common.NewError("Scheduler.UploadBuffer", common.KindSizeMismatch,
			fmt.Errorf("buffer %q holds %d bytes, got %d", buffer.Name(), buffer.Size(), len(data)))
	}
	return nil
}
