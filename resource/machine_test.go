package resource

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/syncfab"
)

type fakeRecorder struct {
	images  []ImageBarrierInput
	buffers []BufferBarrierInput
	calls   int
}

func (f *fakeRecorder) RecordBarriers(cb vk.CommandBuffer, images []ImageBarrierInput, buffers []BufferBarrierInput) {
	f.calls++
	f.images = images
	f.buffers = buffers
}

func newTestTexture(initial State) *Texture {
	return NewTexture("test-texture", vk.NullImage, vk.FormatR8g8b8a8Unorm, vk.Extent3D{Width: 1, Height: 1, Depth: 1}, vk.ImageAspectFlags(vk.ImageAspectColorBit), initial)
}

func TestMachineNoProposalsEmitsNoBarrier(t *testing.T) {
	m := NewMachine()
	rec := &fakeRecorder{}
	m.CommitChanges(vk.NullCommandBuffer, rec)
	if rec.calls != 0 {
		t.Fatalf("expected zero RecordBarriers calls, got %d", rec.calls)
	}
}

func TestMachineCoalescesImageAndBufferBarriersIntoOneCall(t *testing.T) {
	m := NewMachine()

	tex := newTestTexture(State{Stage: common.StageNone, Access: common.AccessNone, Layout: common.ImageLayoutUndefined})
	buf := NewBuffer("test-buffer", vk.NullBuffer, 256, State{Stage: common.StageNone, Access: common.AccessNone})

	m.RecordStateChange(tex, State{Stage: common.StageTransfer, Access: common.AccessTransferWrite, Layout: common.ImageLayoutTransferDstOptimal})
	m.RecordBufferStateChange(buf, State{Stage: common.StageTransfer, Access: common.AccessTransferWrite})

	rec := &fakeRecorder{}
	m.CommitChanges(vk.NullCommandBuffer, rec)

	if rec.calls != 1 {
		t.Fatalf("expected exactly one RecordBarriers call, got %d", rec.calls)
	}
	if len(rec.images) != 1 || len(rec.buffers) != 1 {
		t.Fatalf("expected 1 image + 1 buffer barrier, got %d/%d", len(rec.images), len(rec.buffers))
	}
	if tex.ResourceState().Layout != common.ImageLayoutTransferDstOptimal {
		t.Fatalf("expected texture live state updated to new layout")
	}
	if buf.ResourceState().Access != common.AccessTransferWrite {
		t.Fatalf("expected buffer live state updated")
	}
}

func TestMachineSkipsBarrierWhenProposalMatchesCurrentState(t *testing.T) {
	m := NewMachine()
	state := State{Stage: common.StageFragmentShader, Access: common.AccessShaderRead, Layout: common.ImageLayoutShaderReadOnlyOptimal}
	tex := newTestTexture(state)

	m.RecordStateChange(tex, state)
	rec := &fakeRecorder{}
	m.CommitChanges(vk.NullCommandBuffer, rec)

	if rec.calls != 0 {
		t.Fatalf("expected no barrier when next state equals current, got %d calls", rec.calls)
	}
}

func TestMachineNarrowsReadOnlySourceToNone(t *testing.T) {
	m := NewMachine()
	tex := newTestTexture(State{Stage: common.StageFragmentShader, Access: common.AccessShaderRead, Layout: common.ImageLayoutShaderReadOnlyOptimal})

	m.RecordStateChange(tex, State{Stage: common.StageTransfer, Access: common.AccessTransferWrite, Layout: common.ImageLayoutTransferDstOptimal})
	rec := &fakeRecorder{}
	m.CommitChanges(vk.NullCommandBuffer, rec)

	if len(rec.images) != 1 {
		t.Fatalf("expected one image barrier")
	}
	if rec.images[0].SrcStage != common.StageNone || rec.images[0].SrcAccess != common.AccessNone {
		t.Fatalf("expected read-only source narrowed to NONE, got stage=%v access=%v", rec.images[0].SrcStage, rec.images[0].SrcAccess)
	}
}

func TestMachinePreservesWriteSourceDuringNarrowing(t *testing.T) {
	m := NewMachine()
	tex := newTestTexture(State{Stage: common.StageColorAttachmentOutput, Access: common.AccessColorAttachmentWrite, Layout: common.ImageLayoutColorAttachmentOptimal})

	m.RecordStateChange(tex, State{Stage: common.StageTransfer, Access: common.AccessTransferRead, Layout: common.ImageLayoutTransferSrcOptimal})
	rec := &fakeRecorder{}
	m.CommitChanges(vk.NullCommandBuffer, rec)

	if rec.images[0].SrcStage != common.StageColorAttachmentOutput || rec.images[0].SrcAccess != common.AccessColorAttachmentWrite {
		t.Fatalf("expected write source preserved, got stage=%v access=%v", rec.images[0].SrcStage, rec.images[0].SrcAccess)
	}
}

func TestMachineSetsQueueFamilyIndicesOnOwnershipChange(t *testing.T) {
	m := NewMachine()
	tex := newTestTexture(State{Layout: common.ImageLayoutUndefined, QueueFamily: 0})

	m.RecordStateChange(tex, State{Stage: common.StageTransfer, Access: common.AccessTransferWrite, Layout: common.ImageLayoutTransferDstOptimal, QueueFamily: 2})
	rec := &fakeRecorder{}
	m.CommitChanges(vk.NullCommandBuffer, rec)

	if rec.images[0].SrcQueue != 0 || rec.images[0].DstQueue != 2 {
		t.Fatalf("expected ownership transfer queue indices 0->2, got %v->%v", rec.images[0].SrcQueue, rec.images[0].DstQueue)
	}
}

func TestResetStagesZeroesStageAndAccessKeepsLayout(t *testing.T) {
	tex := newTestTexture(State{Stage: common.StageFragmentShader, Access: common.AccessShaderRead, Layout: common.ImageLayoutShaderReadOnlyOptimal})
	ResetStages(tex)

	got := tex.ResourceState()
	if got.Stage != common.StageNone || got.Access != common.AccessNone {
		t.Fatalf("expected stage/access zeroed, got %+v", got)
	}
	if got.Layout != common.ImageLayoutShaderReadOnlyOptimal {
		t.Fatalf("expected layout preserved, got %v", got.Layout)
	}
}

func TestTransferOwnershipProducesMatchedReleaseAcquireAndBridgesSemaphore(t *testing.T) {
	primitives := syncfab.NewPrimitives()
	if _, err := primitives.Register("DataTransferFinished.1", syncfab.KindTimeline, vk.NullSemaphore, 2, "test"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	tex := newTestTexture(State{Stage: common.StageNone, Access: common.AccessNone, Layout: common.ImageLayoutUndefined, QueueFamily: 0})

	newState := State{Stage: common.StageTransfer, Access: common.AccessTransferWrite, Layout: common.ImageLayoutTransferDstOptimal, QueueFamily: 1}
	xfer := TransferOwnership(primitives, "DataTransferFinished.1", 1, tex, newState, syncfab.OperationGroup{})

	if xfer.Release.DstQueue != 1 || xfer.Acquire.SrcQueue != 0 {
		t.Fatalf("expected release/acquire to carry matching queue family pair, got release=%+v acquire=%+v", xfer.Release, xfer.Acquire)
	}
	signalGroup, ok := xfer.Bridge.Group(syncfab.GroupInternal)
	if !ok || len(signalGroup.Signal) != 1 || signalGroup.Signal[0].Value != 1 {
		t.Fatalf("expected bridge to signal the linking value on its internal group, got %+v", signalGroup)
	}
	waitGroup, ok := xfer.Bridge.Group(syncfab.GroupExternal)
	if !ok || len(waitGroup.Wait) != 1 || waitGroup.Wait[0].Value != 1 {
		t.Fatalf("expected bridge to wait on the linking value on its external group, got %+v", waitGroup)
	}
	if tex.ResourceState() != newState {
		t.Fatalf("expected texture live state updated to newState after TransferOwnership")
	}
}

func TestTransferBufferOwnershipFoldsExtraIntoAcquireSide(t *testing.T) {
	primitives := syncfab.NewPrimitives()
	buf := NewBuffer("staged", vk.NullBuffer, 64, State{Stage: common.StageTransfer, Access: common.AccessTransferWrite, QueueFamily: 2})

	newState := State{Stage: common.StageVertexInput, Access: common.AccessVertexAttributeRead, QueueFamily: 1}
	extra := syncfab.OperationGroup{Signal: []syncfab.Operation{{Semaphore: "caller.signal"}}}
	xfer := TransferBufferOwnership(primitives, "DataTransferFinished.2", 2, buf, newState, extra)

	if xfer.Release.SrcQueue != 2 || xfer.Release.DstQueue != 1 {
		t.Fatalf("expected release to carry the 2->1 family pair, got %+v", xfer.Release)
	}
	external, _ := xfer.Bridge.Group(syncfab.GroupExternal)
	if len(external.Wait) != 1 || external.Wait[0].Value != 2 {
		t.Fatalf("expected acquire-side wait on value 2, got %+v", external.Wait)
	}
	if len(external.Signal) != 1 || external.Signal[0].Semaphore != "caller.signal" {
		t.Fatalf("expected caller's extra signal folded into the acquire side, got %+v", external.Signal)
	}
	if buf.ResourceState() != newState {
		t.Fatalf("expected buffer live state committed to newState")
	}
}
