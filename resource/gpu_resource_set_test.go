package resource

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestGpuResourceSetBindingRoundTrip(t *testing.T) {
	set := NewGpuResourceSet("material.brick")

	if set.Label() != "material.brick" {
		t.Fatalf("unexpected label %q", set.Label())
	}

	set.SetBuffer(0, vk.NullBuffer)
	set.SetTextureView(1, vk.NullImageView)
	set.SetSampler(2, vk.NullSampler)

	if len(set.Buffers()) != 1 || len(set.TextureViews()) != 1 || len(set.Samplers()) != 1 {
		t.Fatalf("expected one binding per kind, got %d/%d/%d",
			len(set.Buffers()), len(set.TextureViews()), len(set.Samplers()))
	}

	set.SetIndexCount(36)
	if set.IndexCount() != 36 {
		t.Fatalf("expected index count 36, got %d", set.IndexCount())
	}
}

func TestGpuResourceSetSnapshotsDoNotAliasInternalMaps(t *testing.T) {
	set := NewGpuResourceSet("snapshot")
	set.SetBuffer(0, vk.NullBuffer)

	snapshot := set.Buffers()
	delete(snapshot, 0)

	if len(set.Buffers()) != 1 {
		t.Fatalf("mutating a snapshot must not change the set's bindings")
	}
}

func TestGpuResourceSetReplaceAllBindings(t *testing.T) {
	set := NewGpuResourceSet("bulk")
	set.SetBuffer(0, vk.NullBuffer)

	set.SetBuffers(map[int]vk.Buffer{3: vk.NullBuffer, 4: vk.NullBuffer})
	if len(set.Buffers()) != 2 {
		t.Fatalf("expected SetBuffers to replace the binding map, got %d entries", len(set.Buffers()))
	}
	if _, ok := set.Buffers()[0]; ok {
		t.Fatalf("expected the old binding dropped by wholesale replacement")
	}
}

func TestGpuResourceSetReleaseInvokesCallbackThenClears(t *testing.T) {
	var released *GpuResourceSet
	set := NewGpuResourceSet("transient", WithReleaseFunc(func(s *GpuResourceSet) {
		released = s
		// the callback must still see the bindings it has to free
		if len(s.Buffers()) != 1 {
			panic("release callback ran after the bindings were cleared")
		}
	}))
	set.SetBuffer(0, vk.NullBuffer)
	set.SetVertexBuffer(vk.NullBuffer)
	set.SetIndexBuffer(vk.NullBuffer)
	set.SetIndexCount(6)

	set.Release()

	if released != set {
		t.Fatalf("expected the release callback to receive the set being released")
	}
	if len(set.Buffers()) != 0 || len(set.TextureViews()) != 0 || len(set.Samplers()) != 0 {
		t.Fatalf("expected every binding map cleared after Release")
	}
	if set.IndexCount() != 0 {
		t.Fatalf("expected index count reset after Release")
	}
}

func TestGpuResourceSetReleaseWithoutCallbackStillClears(t *testing.T) {
	set := NewGpuResourceSet("plain")
	set.SetSampler(0, vk.NullSampler)

	set.Release()
	if len(set.Samplers()) != 0 {
		t.Fatalf("expected bindings cleared even without a release callback")
	}
}
