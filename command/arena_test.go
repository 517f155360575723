package command

import (
	"testing"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/resource"
)

func TestArenaInsertResolveRoundTrip(t *testing.T) {
	a := NewArena()
	ctx := NewContext(nil, 3)
	token := a.Insert(ctx)

	got, ok := a.Resolve(token)
	if !ok || got != ctx {
		t.Fatalf("expected Resolve to return the inserted context")
	}
}

func TestArenaRemoveInvalidatesToken(t *testing.T) {
	a := NewArena()
	ctx := NewContext(nil, 1)
	token := a.Insert(ctx)
	a.Remove(token)

	if _, ok := a.Resolve(token); ok {
		t.Fatalf("expected stale token to fail Resolve after Remove")
	}
}

func TestArenaReusesFreedSlotWithBumpedGeneration(t *testing.T) {
	a := NewArena()
	first := a.Insert(NewContext(nil, 0))
	a.Remove(first)

	second := a.Insert(NewContext(nil, 0))
	if second.Index != first.Index {
		t.Fatalf("expected freed slot reused, got new index %d vs freed %d", second.Index, first.Index)
	}
	if second.Generation == first.Generation {
		t.Fatalf("expected generation bumped on reuse")
	}

	if _, ok := a.Resolve(first); ok {
		t.Fatalf("old token must not resolve after its slot is reused by a new insert")
	}
	if _, ok := a.Resolve(second); !ok {
		t.Fatalf("new token must resolve")
	}
}

func TestArenaQueueFamilyOfResolvesOwnerQueueFamily(t *testing.T) {
	a := NewArena()
	ctx := NewContext(nil, common.QueueFamilyIndex(4))
	token := a.Insert(ctx)

	qf, ok := a.QueueFamilyOf(token)
	if !ok || qf != 4 {
		t.Fatalf("expected queue family 4, got %v ok=%v", qf, ok)
	}
}

func TestArenaResolveUnknownTokenFails(t *testing.T) {
	a := NewArena()
	if _, ok := a.Resolve(resource.OwnerToken{Index: 99, Generation: 1}); ok {
		t.Fatalf("expected unknown token to fail Resolve")
	}
}

func TestZeroOwnerTokenNeverResolves(t *testing.T) {
	a := NewArena()
	if _, ok := a.Resolve(resource.ZeroOwner); ok {
		t.Fatalf("zero owner token must never resolve to a live context")
	}
}
