package transfer

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/resource"
	"github.com/oxy-vk/render-engine/syncfab"
)

// nullSemaphoreFactory hands out null handles; the scheduler only cares
// about name registration in these tests.
type nullSemaphoreFactory struct{}

func (nullSemaphoreFactory) CreateBinarySemaphore() (vk.Semaphore, error) {
	return vk.NullSemaphore, nil
}

func (nullSemaphoreFactory) CreateTimelineSemaphore(initial uint64) (vk.Semaphore, error) {
	return vk.NullSemaphore, nil
}

type fakeStaging struct {
	uploads   int
	readbacks int
	frees     int
	failAlloc bool
	readData  []byte
}

func (f *fakeStaging) AllocateUpload(data []byte) (vk.Buffer, error) {
	if f.failAlloc {
		return vk.NullBuffer, common.NewError("fakeStaging.AllocateUpload", common.KindAllocationFailed, nil)
	}
	f.uploads++
	return vk.NullBuffer, nil
}

func (f *fakeStaging) AllocateReadback(size vk.DeviceSize) (vk.Buffer, error) {
	f.readbacks++
	return vk.NullBuffer, nil
}

func (f *fakeStaging) Read(staging vk.Buffer, size vk.DeviceSize) ([]byte, error) {
	return f.readData, nil
}

func (f *fakeStaging) Free(staging vk.Buffer) { f.frees++ }

type fakeCommandSource struct{ created int }

func (f *fakeCommandSource) CreateCommandBuffer() (vk.CommandBuffer, error) {
	f.created++
	return vk.NullCommandBuffer, nil
}

type submission struct {
	family common.QueueFamilyIndex
	ops    syncfab.OperationGroup
}

type fakeSubmitter struct{ submissions []submission }

func (f *fakeSubmitter) Submit(queueFamily common.QueueFamilyIndex, cb vk.CommandBuffer, ops syncfab.OperationGroup, fence vk.Fence) error {
	f.submissions = append(f.submissions, submission{family: queueFamily, ops: ops})
	return nil
}

type fakeCopier struct {
	bufferToImage int
	imageToBuffer int
	bufferCopies  int
}

func (f *fakeCopier) RecordBufferToImage(cb vk.CommandBuffer, staging vk.Buffer, dst vk.Image, aspect vk.ImageAspectFlags, extent vk.Extent3D) {
	f.bufferToImage++
}

func (f *fakeCopier) RecordImageToBuffer(cb vk.CommandBuffer, src vk.Image, staging vk.Buffer, aspect vk.ImageAspectFlags, extent vk.Extent3D) {
	f.imageToBuffer++
}

func (f *fakeCopier) RecordBufferToBuffer(cb vk.CommandBuffer, src, dst vk.Buffer, size vk.DeviceSize) {
	f.bufferCopies++
}

type barrierLog struct {
	imageBatches  [][]resource.ImageBarrierInput
	bufferBatches [][]resource.BufferBarrierInput
}

func (b *barrierLog) RecordBarriers(cb vk.CommandBuffer, images []resource.ImageBarrierInput, buffers []resource.BufferBarrierInput) {
	if len(images) > 0 {
		b.imageBatches = append(b.imageBatches, images)
	}
	if len(buffers) > 0 {
		b.bufferBatches = append(b.bufferBatches, buffers)
	}
}

func newUploadTexture(w, h uint32) *resource.Texture {
	return resource.NewTexture("upload-texture", vk.NullImage, vk.FormatR8g8b8a8Unorm,
		vk.Extent3D{Width: w, Height: h, Depth: 1}, vk.ImageAspectFlags(vk.ImageAspectColorBit),
		resource.State{Layout: common.ImageLayoutUndefined, QueueFamily: common.IgnoredFamily})
}

func newTestScheduler(transferFamily common.QueueFamilyIndex) (*Scheduler, *fakeStaging) {
	staging := &fakeStaging{}
	s := NewScheduler(syncfab.NewPrimitives(), nullSemaphoreFactory{}, staging,
		resource.OwnerToken{Index: 0, Generation: 1}, transferFamily, &fakeCommandSource{})
	return s, staging
}

func TestUnifiedTextureUploadIsOneSubmission(t *testing.T) {
	// one queue family supports graphics+transfer: spec.md §8 scenario 2
	s, staging := newTestScheduler(0)
	tex := newUploadTexture(4, 4)
	final := resource.State{
		Stage:       common.StageFragmentShader,
		Access:      common.AccessShaderRead,
		Layout:      common.ImageLayoutShaderReadOnlyOptimal,
		QueueFamily: 0,
	}
	s.UploadTexture(tex, make([]byte, 64), nil, nil, 0, final)

	sub := &fakeSubmitter{}
	copier := &fakeCopier{}
	log := &barrierLog{}
	if err := s.ExecuteTasks(syncfab.OperationGroup{}, log, copier, sub); err != nil {
		t.Fatalf("ExecuteTasks: %v", err)
	}

	if len(sub.submissions) != 1 {
		t.Fatalf("expected exactly one submission on the unified path, got %d", len(sub.submissions))
	}
	if copier.bufferToImage != 1 {
		t.Fatalf("expected one copy, got %d", copier.bufferToImage)
	}
	// UNDEFINED->TRANSFER_DST then TRANSFER_DST->SHADER_READ_ONLY
	if len(log.imageBatches) != 2 {
		t.Fatalf("expected two coalesced barrier batches, got %d", len(log.imageBatches))
	}
	if log.imageBatches[0][0].NewLayout != common.ImageLayoutTransferDstOptimal {
		t.Fatalf("expected first barrier into TRANSFER_DST, got %v", log.imageBatches[0][0].NewLayout)
	}
	if log.imageBatches[1][0].NewLayout != common.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("expected final barrier into SHADER_READ_ONLY, got %v", log.imageBatches[1][0].NewLayout)
	}
	if got := tex.ResourceState().Layout; got != common.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("expected live layout SHADER_READ_ONLY after upload, got %v", got)
	}
	if staging.uploads != 1 {
		t.Fatalf("expected one staging allocation, got %d", staging.uploads)
	}

	// staging is held until the fences signal, then freed by reclaim
	if staging.frees != 0 {
		t.Fatalf("staging must not be freed before ReclaimStaging")
	}
	s.ReclaimStaging()
	if staging.frees != 1 {
		t.Fatalf("expected staging freed by ReclaimStaging, got %d", staging.frees)
	}
}

func TestSplitBufferUploadChainsThreeSubmissionsOnOneTimeline(t *testing.T) {
	// separate transfer queue family: spec.md §8 scenario 3
	s, _ := newTestScheduler(2)
	buf := resource.NewBuffer("vertices", vk.NullBuffer, 1024,
		resource.State{QueueFamily: 0, Owner: resource.OwnerToken{Index: 1, Generation: 1}})
	final := resource.State{
		Stage:       common.StageVertexInput,
		Access:      common.AccessVertexAttributeRead,
		QueueFamily: 1,
		Owner:       resource.OwnerToken{Index: 1, Generation: 1},
	}
	s.UploadBuffer(buf, make([]byte, 1024), &fakeCommandSource{}, &fakeCommandSource{}, 1, final)

	sub := &fakeSubmitter{}
	log := &barrierLog{}
	if err := s.ExecuteTasks(syncfab.OperationGroup{
		Wait:   []syncfab.Operation{{Semaphore: "caller.wait"}},
		Signal: []syncfab.Operation{{Semaphore: "caller.signal"}},
	}, log, &fakeCopier{}, sub); err != nil {
		t.Fatalf("ExecuteTasks: %v", err)
	}

	if len(sub.submissions) != 3 {
		t.Fatalf("expected three submissions on the split path, got %d", len(sub.submissions))
	}
	release, copySub, acquire := sub.submissions[0], sub.submissions[1], sub.submissions[2]

	if release.family != 0 || copySub.family != 2 || acquire.family != 1 {
		t.Fatalf("expected queue families 0->2->1, got %d->%d->%d", release.family, copySub.family, acquire.family)
	}

	// the caller's ops are merged only into the first wait and last signal
	if len(release.ops.Wait) != 1 || release.ops.Wait[0].Semaphore != "caller.wait" {
		t.Fatalf("expected caller wait on the release submission, got %+v", release.ops.Wait)
	}
	if len(acquire.ops.Signal) != 1 || acquire.ops.Signal[0].Semaphore != "caller.signal" {
		t.Fatalf("expected caller signal on the acquire submission, got %+v", acquire.ops.Signal)
	}

	// the three submissions are linked by one timeline at values 1 and 2
	bridge := release.ops.Signal[0].Semaphore
	if release.ops.Signal[0].Value != 1 {
		t.Fatalf("expected release to signal %s=1, got %d", bridge, release.ops.Signal[0].Value)
	}
	if copySub.ops.Wait[0].Semaphore != bridge || copySub.ops.Wait[0].Value != 1 {
		t.Fatalf("expected copy to wait %s=1, got %+v", bridge, copySub.ops.Wait)
	}
	if copySub.ops.Signal[0].Semaphore != bridge || copySub.ops.Signal[0].Value != 2 {
		t.Fatalf("expected copy to signal %s=2, got %+v", bridge, copySub.ops.Signal)
	}
	if acquire.ops.Wait[0].Semaphore != bridge || acquire.ops.Wait[0].Value != 2 {
		t.Fatalf("expected acquire to wait %s=2, got %+v", bridge, acquire.ops.Wait)
	}

	// ownership landed on the destination family
	if got := buf.ResourceState().QueueFamily; got != 1 {
		t.Fatalf("expected final queue family 1, got %d", got)
	}

	// matched release/acquire barrier pairs were recorded in every hop
	if len(log.bufferBatches) != 4 {
		t.Fatalf("expected 4 buffer barrier batches (release, acquire, release, acquire), got %d", len(log.bufferBatches))
	}
	if log.bufferBatches[0][0].SrcQueue != 0 || log.bufferBatches[0][0].DstQueue != 2 {
		t.Fatalf("expected first release 0->2, got %d->%d", log.bufferBatches[0][0].SrcQueue, log.bufferBatches[0][0].DstQueue)
	}
	if log.bufferBatches[3][0].SrcQueue != 2 || log.bufferBatches[3][0].DstQueue != 1 {
		t.Fatalf("expected final acquire 2->1, got %d->%d", log.bufferBatches[3][0].SrcQueue, log.bufferBatches[3][0].DstQueue)
	}
}

func TestUploadFailsWithAllocationFailed(t *testing.T) {
	staging := &fakeStaging{failAlloc: true}
	s := NewScheduler(syncfab.NewPrimitives(), nullSemaphoreFactory{}, staging,
		resource.ZeroOwner, 0, &fakeCommandSource{})
	s.UploadTexture(newUploadTexture(4, 4), make([]byte, 64), nil, nil, 0, resource.State{})

	err := s.ExecuteTasks(syncfab.OperationGroup{}, &barrierLog{}, &fakeCopier{}, &fakeSubmitter{})
	if !common.IsKind(err, common.KindAllocationFailed) {
		t.Fatalf("expected KindAllocationFailed, got %v", err)
	}
}

func TestTextureDownloadRestoresLayoutAndDeliversData(t *testing.T) {
	s, staging := newTestScheduler(0)
	staging.readData = []byte{9, 9, 9}
	initial := resource.State{
		Stage:  common.StageFragmentShader,
		Access: common.AccessShaderRead,
		Layout: common.ImageLayoutShaderReadOnlyOptimal,
		Owner:  resource.OwnerToken{Index: 3, Generation: 1},
	}
	tex := resource.NewTexture("readback", vk.NullImage, vk.FormatR8g8b8a8Unorm,
		vk.Extent3D{Width: 2, Height: 2, Depth: 1}, vk.ImageAspectFlags(vk.ImageAspectColorBit), initial)

	var delivered []byte
	s.DownloadTexture(tex, &fakeCommandSource{}, func(data []byte) { delivered = data })

	sub := &fakeSubmitter{}
	log := &barrierLog{}
	if err := s.ExecuteTasks(syncfab.OperationGroup{}, log, &fakeCopier{}, sub); err != nil {
		t.Fatalf("ExecuteTasks: %v", err)
	}

	if len(sub.submissions) != 1 {
		t.Fatalf("expected one download submission, got %d", len(sub.submissions))
	}
	if got := tex.ResourceState(); got != initial {
		t.Fatalf("expected texture restored to its pre-download state, got %+v", got)
	}
	if delivered != nil {
		t.Fatalf("download data must not be delivered before ReclaimStaging")
	}
	s.ReclaimStaging()
	if len(delivered) != 3 {
		t.Fatalf("expected readback data delivered on reclaim, got %v", delivered)
	}
	if staging.frees != 1 {
		t.Fatalf("expected readback staging freed, got %d", staging.frees)
	}
}
