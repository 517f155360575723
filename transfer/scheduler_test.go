package transfer

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/resource"
	"github.com/oxy-vk/render-engine/syncfab"
)

func TestPathForUnifiedWhenBothQueuesMatchTransferFamily(t *testing.T) {
	s := &Scheduler{transferQueueFamily: 2}
	if got := s.PathFor(2, 2); got != PathUnified {
		t.Fatalf("expected PathUnified, got %v", got)
	}
}

func TestPathForSplitWhenEitherQueueDiffersFromTransferFamily(t *testing.T) {
	s := &Scheduler{transferQueueFamily: 2}
	if got := s.PathFor(0, 2); got != PathSplit {
		t.Fatalf("expected PathSplit when source queue differs, got %v", got)
	}
	if got := s.PathFor(2, 1); got != PathSplit {
		t.Fatalf("expected PathSplit when destination queue differs, got %v", got)
	}
}

func TestNextSemaphoreNameIsUniquePerCall(t *testing.T) {
	s := &Scheduler{}
	a := s.nextSemaphoreName()
	b := s.nextSemaphoreName()
	if a == b {
		t.Fatalf("expected distinct bridging semaphore names, got %q twice", a)
	}
}

func TestUploadTextureEnqueuesOverwritingPriorPendingTask(t *testing.T) {
	s := NewScheduler(syncfab.NewPrimitives(), &nullSemaphoreFactory{}, &fakeStaging{}, resource.ZeroOwner, 0, &fakeCommandSource{})
	tex := newUploadTexture(2, 1)

	final := resource.State{Stage: common.StageFragmentShader, Access: common.AccessShaderRead, Layout: common.ImageLayoutShaderReadOnlyOptimal}
	s.UploadTexture(tex, make([]byte, 8), nil, nil, 0, final)
	s.UploadTexture(tex, make([]byte, 4), nil, nil, 1, final)

	if len(s.uploadTextures) != 1 {
		t.Fatalf("expected a single pending task per resource, got %d", len(s.uploadTextures))
	}
	if got := s.uploadTextures[tex].Data; len(got) != 4 {
		t.Fatalf("expected the later enqueue to win, got data len %d", len(got))
	}
}

func TestHasPendingReflectsStagedWork(t *testing.T) {
	s := NewScheduler(syncfab.NewPrimitives(), &nullSemaphoreFactory{}, &fakeStaging{}, resource.ZeroOwner, 0, &fakeCommandSource{})
	if s.HasPending() {
		t.Fatalf("fresh scheduler must have no pending work")
	}
	buf := resource.NewBuffer("vertices", vk.NullBuffer, 1024, resource.State{})
	s.UploadBuffer(buf, make([]byte, 16), nil, nil, 0, resource.State{})
	if !s.HasPending() {
		t.Fatalf("expected pending work after UploadBuffer")
	}
}

func TestValidateTextureUploadRejectsWrongSize(t *testing.T) {
	tex := newUploadTexture(4, 4) // RGBA8, expects 64 bytes
	err := validateTextureUpload(tex, make([]byte, 63))
	if !common.IsKind(err, common.KindSizeMismatch) {
		t.Fatalf("expected KindSizeMismatch, got %v", err)
	}
	if err := validateTextureUpload(tex, make([]byte, 64)); err != nil {
		t.Fatalf("expected exact-size upload accepted, got %v", err)
	}
}

func TestValidateTextureUploadRejectsNonColorAspect(t *testing.T) {
	tex := resource.NewTexture("depth", vk.NullImage, vk.FormatD32Sfloat,
		vk.Extent3D{Width: 4, Height: 4, Depth: 1}, vk.ImageAspectFlags(vk.ImageAspectDepthBit), resource.State{})
	err := validateTextureUpload(tex, make([]byte, 64))
	if !common.IsKind(err, common.KindIncompatibleImage) {
		t.Fatalf("expected KindIncompatibleImage, got %v", err)
	}
}

func TestValidateBufferUploadRejectsOversizedData(t *testing.T) {
	buf := resource.NewBuffer("small", vk.NullBuffer, 8, resource.State{})
	err := validateBufferUpload(buf, make([]byte, 9))
	if !common.IsKind(err, common.KindSizeMismatch) {
		t.Fatalf("expected KindSizeMismatch, got %v", err)
	}
	if err := validateBufferUpload(buf, make([]byte, 8)); err != nil {
		t.Fatalf("expected exact-fit upload accepted, got %v", err)
	}
}
