package transfer

import (
	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/resource"
	"github.com/oxy-vk/render-engine/syncfab"
)

// registerBridge mints one task's DataTransferFinished timeline semaphore:
// a fresh handle from the factory, registered with width 2 so a single
// StepTimeline covers both link values (1: release->copy, 2:
// copy->acquire).
func (s *Scheduler) registerBridge() (string, error) {
	name := s.nextSemaphoreName()
	handle, err := s.factory.CreateTimelineSemaphore(0)
	if err != nil {
		return "", err
	}
	if _, err := s.primitives.Register(name, syncfab.KindTimeline, handle, 2, "TransferScheduler"); err != nil {
		return "", err
	}
	return name, nil
}

// executeTextureUpload runs one UploadTask to completion. A texture with
// no prior owner is claimed by the transfer queue first (initial
// transfer); the path is then chosen by PathFor:
//
//   - unified: one submission transitions to TRANSFER_DST, copies, and
//     transitions to FinalState, carrying the caller's wait and signal ops.
//   - split: release on the owner queue (waits on the caller's ops,
//     signals DataTransferFinished=1), copy on the transfer queue (waits
//     1, signals 2), acquire on the destination queue (waits 2, signals
//     the caller's ops).
func (s *Scheduler) executeTextureUpload(task *UploadTask, sync syncfab.OperationGroup, recorder resource.BarrierRecorder, copier CopyRecorder, submitter Submitter) error {
	if err := validateTextureUpload(task.Texture, task.Data); err != nil {
		return err
	}

	staging, err := s.staging.AllocateUpload(task.Data)
	if err != nil {
		return err
	}
	task.staging = staging
	task.started = true

	current := task.Texture.ResourceState()
	if current.Owner.IsZero() {
		task.Texture.OverrideResourceState(current.WithOwner(s.owner, s.transferQueueFamily))
		current = task.Texture.ResourceState()
	}

	if s.PathFor(current.QueueFamily, task.DstQueue) == PathUnified {
		err = s.unifiedTextureUpload(task, current, sync, recorder, copier, submitter)
	} else {
		err = s.splitTextureUpload(task, current, sync, recorder, copier, submitter)
	}
	if err != nil {
		return err
	}
	s.retire(staging, vk.DeviceSize(len(task.Data)), nil)
	return nil
}

func (s *Scheduler) unifiedTextureUpload(task *UploadTask, current resource.State, sync syncfab.OperationGroup, recorder resource.BarrierRecorder, copier CopyRecorder, submitter Submitter) error {
	cb, err := s.transferContext.CreateCommandBuffer()
	if err != nil {
		return err
	}
	m := resource.NewMachine()
	m.RecordStateChange(task.Texture, current.
		WithStage(common.StageTransfer).WithAccess(common.AccessTransferWrite).WithLayout(common.ImageLayoutTransferDstOptimal))
	m.CommitChanges(cb, recorder)
	copier.RecordBufferToImage(cb, task.staging, task.Texture.Handle(), task.Texture.Aspect(), task.Texture.Extent())
	m.RecordStateChange(task.Texture, task.FinalState)
	m.CommitChanges(cb, recorder)
	return submitter.Submit(s.transferQueueFamily, cb, sync.Clone(), vk.NullFence)
}

func (s *Scheduler) splitTextureUpload(task *UploadTask, current resource.State, sync syncfab.OperationGroup, recorder resource.BarrierRecorder, copier CopyRecorder, submitter Submitter) error {
	semName, err := s.registerBridge()
	if err != nil {
		return err
	}

	transferState := resource.State{
		Stage:       common.StageTransfer,
		Access:      common.AccessTransferWrite,
		Layout:      common.ImageLayoutTransferDstOptimal,
		Owner:       current.Owner,
		QueueFamily: s.transferQueueFamily,
	}

	// (i) release from the owner queue to the transfer queue, waiting on
	// the caller's wait ops and signaling the bridge at 1
	srcCtx := task.SrcContext
	if srcCtx == nil {
		srcCtx = s.transferContext
	}
	releaseCb, err := srcCtx.CreateCommandBuffer()
	if err != nil {
		return err
	}
	toTransfer := resource.TransferOwnership(s.primitives, semName, 1, task.Texture, transferState, syncfab.OperationGroup{})
	recorder.RecordBarriers(releaseCb, []resource.ImageBarrierInput{toTransfer.Release}, nil)
	ops := mergeGroup(extractWait(sync), toTransfer.Bridge.MustGroup(syncfab.GroupInternal))
	if err := submitter.Submit(current.QueueFamily, releaseCb, ops, vk.NullFence); err != nil {
		return err
	}

	// (ii) acquire on the transfer queue at 1, copy, release to the
	// destination signaling 2
	copyCb, err := s.transferContext.CreateCommandBuffer()
	if err != nil {
		return err
	}
	recorder.RecordBarriers(copyCb, []resource.ImageBarrierInput{toTransfer.Acquire}, nil)
	copier.RecordBufferToImage(copyCb, task.staging, task.Texture.Handle(), task.Texture.Aspect(), task.Texture.Extent())
	toDst := resource.TransferOwnership(s.primitives, semName, 2, task.Texture, task.FinalState, extractSignal(sync))
	recorder.RecordBarriers(copyCb, []resource.ImageBarrierInput{toDst.Release}, nil)
	ops = mergeGroup(toTransfer.Bridge.MustGroup(syncfab.GroupExternal), toDst.Bridge.MustGroup(syncfab.GroupInternal))
	if err := submitter.Submit(s.transferQueueFamily, copyCb, ops, vk.NullFence); err != nil {
		return err
	}

	// (iii) acquire on the destination queue at 2, signaling the caller's
	// ops (already folded into the hop's external group)
	acquireCb, err := task.DstContext.CreateCommandBuffer()
	if err != nil {
		return err
	}
	recorder.RecordBarriers(acquireCb, []resource.ImageBarrierInput{toDst.Acquire}, nil)
	return submitter.Submit(task.DstQueue, acquireCb, toDst.Bridge.MustGroup(syncfab.GroupExternal), vk.NullFence)
}

// executeBufferUpload mirrors executeTextureUpload for buffers (no image
// layouts apply).
func (s *Scheduler) executeBufferUpload(task *UploadTask, sync syncfab.OperationGroup, recorder resource.BarrierRecorder, copier CopyRecorder, submitter Submitter) error {
	if err := validateBufferUpload(task.Buffer, task.Data); err != nil {
		return err
	}

	staging, err := s.staging.AllocateUpload(task.Data)
	if err != nil {
		return err
	}
	task.staging = staging
	task.started = true

	current := task.Buffer.ResourceState()
	if current.Owner.IsZero() {
		task.Buffer.OverrideResourceState(current.WithOwner(s.owner, s.transferQueueFamily))
		current = task.Buffer.ResourceState()
	}

	if s.PathFor(current.QueueFamily, task.DstQueue) == PathUnified {
		err = s.unifiedBufferUpload(task, current, sync, recorder, copier, submitter)
	} else {
		err = s.splitBufferUpload(task, current, sync, recorder, copier, submitter)
	}
	if err != nil {
		return err
	}
	s.retire(staging, vk.DeviceSize(len(task.Data)), nil)
	return nil
}

func (s *Scheduler) unifiedBufferUpload(task *UploadTask, current resource.State, sync syncfab.OperationGroup, recorder resource.BarrierRecorder, copier CopyRecorder, submitter Submitter) error {
	cb, err := s.transferContext.CreateCommandBuffer()
	if err != nil {
		return err
	}
	m := resource.NewMachine()
	m.RecordBufferStateChange(task.Buffer, current.
		WithStage(common.StageTransfer).WithAccess(common.AccessTransferWrite))
	m.CommitChanges(cb, recorder)
	copier.RecordBufferToBuffer(cb, task.staging, task.Buffer.Handle(), vk.DeviceSize(len(task.Data)))
	m.RecordBufferStateChange(task.Buffer, task.FinalState)
	m.CommitChanges(cb, recorder)
	return submitter.Submit(s.transferQueueFamily, cb, sync.Clone(), vk.NullFence)
}

func (s *Scheduler) splitBufferUpload(task *UploadTask, current resource.State, sync syncfab.OperationGroup, recorder resource.BarrierRecorder, copier CopyRecorder, submitter Submitter) error {
	semName, err := s.registerBridge()
	if err != nil {
		return err
	}

	transferState := resource.State{
		Stage:       common.StageTransfer,
		Access:      common.AccessTransferWrite,
		Owner:       current.Owner,
		QueueFamily: s.transferQueueFamily,
	}

	srcCtx := task.SrcContext
	if srcCtx == nil {
		srcCtx = s.transferContext
	}
	releaseCb, err := srcCtx.CreateCommandBuffer()
	if err != nil {
		return err
	}
	toTransfer := resource.TransferBufferOwnership(s.primitives, semName, 1, task.Buffer, transferState, syncfab.OperationGroup{})
	recorder.RecordBarriers(releaseCb, nil, []resource.BufferBarrierInput{toTransfer.Release})
	ops := mergeGroup(extractWait(sync), toTransfer.Bridge.MustGroup(syncfab.GroupInternal))
	if err := submitter.Submit(current.QueueFamily, releaseCb, ops, vk.NullFence); err != nil {
		return err
	}

	copyCb, err := s.transferContext.CreateCommandBuffer()
	if err != nil {
		return err
	}
	recorder.RecordBarriers(copyCb, nil, []resource.BufferBarrierInput{toTransfer.Acquire})
	copier.RecordBufferToBuffer(copyCb, task.staging, task.Buffer.Handle(), vk.DeviceSize(len(task.Data)))
	toDst := resource.TransferBufferOwnership(s.primitives, semName, 2, task.Buffer, task.FinalState, extractSignal(sync))
	recorder.RecordBarriers(copyCb, nil, []resource.BufferBarrierInput{toDst.Release})
	ops = mergeGroup(toTransfer.Bridge.MustGroup(syncfab.GroupExternal), toDst.Bridge.MustGroup(syncfab.GroupInternal))
	if err := submitter.Submit(s.transferQueueFamily, copyCb, ops, vk.NullFence); err != nil {
		return err
	}

	acquireCb, err := task.DstContext.CreateCommandBuffer()
	if err != nil {
		return err
	}
	recorder.RecordBarriers(acquireCb, nil, []resource.BufferBarrierInput{toDst.Acquire})
	return submitter.Submit(task.DstQueue, acquireCb, toDst.Bridge.MustGroup(syncfab.GroupExternal), vk.NullFence)
}

// executeTextureDownload copies a texture into a readback staging buffer
// on the source queue, appending a layout-restore barrier so the texture
// re-enters its pre-download state. The staging contents are delivered to
// OnComplete by ReclaimStaging after the frame's fences signal.
func (s *Scheduler) executeTextureDownload(task *DownloadTask, sync syncfab.OperationGroup, recorder resource.BarrierRecorder, copier CopyRecorder, submitter Submitter) error {
	current := task.Texture.ResourceState()
	ext := task.Texture.Extent()
	size := vk.DeviceSize(ext.Width) * vk.DeviceSize(ext.Height) * vk.DeviceSize(ext.Depth) * bytesPerPixel(task.Texture.Format())
	if size == 0 {
		return common.NewError("Scheduler.DownloadTexture", common.KindIncompatibleImage, nil)
	}
	staging, err := s.staging.AllocateReadback(size)
	if err != nil {
		return err
	}
	task.staging = staging
	task.started = true

	cb, err := task.SrcContext.CreateCommandBuffer()
	if err != nil {
		return err
	}
	m := resource.NewMachine()
	m.RecordStateChange(task.Texture, current.
		WithStage(common.StageTransfer).WithAccess(common.AccessTransferRead).WithLayout(common.ImageLayoutTransferSrcOptimal))
	m.CommitChanges(cb, recorder)
	copier.RecordImageToBuffer(cb, task.Texture.Handle(), staging, task.Texture.Aspect(), ext)
	// restore the original layout, per spec.md §4.4: "for textures a final
	// layout-restore barrier is appended"
	m.RecordStateChange(task.Texture, current)
	m.CommitChanges(cb, recorder)

	if err := submitter.Submit(s.transferQueueFamily, cb, sync.Clone(), vk.NullFence); err != nil {
		return err
	}
	s.retire(staging, size, task.OnComplete)
	return nil
}

// executeBufferDownload mirrors executeTextureDownload for buffers.
func (s *Scheduler) executeBufferDownload(task *DownloadTask, sync syncfab.OperationGroup, recorder resource.BarrierRecorder, copier CopyRecorder, submitter Submitter) error {
	current := task.Buffer.ResourceState()
	size := task.Buffer.Size()
	staging, err := s.staging.AllocateReadback(size)
	if err != nil {
		return err
	}
	task.staging = staging
	task.started = true

	cb, err := task.SrcContext.CreateCommandBuffer()
	if err != nil {
		return err
	}
	m := resource.NewMachine()
	m.RecordBufferStateChange(task.Buffer, current.
		WithStage(common.StageTransfer).WithAccess(common.AccessTransferRead))
	m.CommitChanges(cb, recorder)
	copier.RecordBufferToBuffer(cb, task.Buffer.Handle(), staging, size)
	m.RecordBufferStateChange(task.Buffer, current)
	m.CommitChanges(cb, recorder)

	if err := submitter.Submit(s.transferQueueFamily, cb, sync.Clone(), vk.NullFence); err != nil {
		return err
	}
	s.retire(staging, size, task.OnComplete)
	return nil
}

func extractWait(ops syncfab.OperationGroup) syncfab.OperationGroup {
	return syncfab.OperationGroup{Wait: append([]syncfab.Operation{}, ops.Wait...)}
}

func extractSignal(ops syncfab.OperationGroup) syncfab.OperationGroup {
	return syncfab.OperationGroup{Signal: append([]syncfab.Operation{}, ops.Signal...)}
}

func mergeGroup(a, b syncfab.OperationGroup) syncfab.OperationGroup {
	out := a.Clone()
	out.Wait = append(out.Wait, b.Wait...)
	out.Signal = append(out.Signal, b.Signal...)
	return out
}
