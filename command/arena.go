// Package command implements the per-thread command-buffer pool pattern:
// SingleShotCommandContext for one-off transient command buffers, and
// CommandContext for per-back-buffer-slot resettable ones. See
// SPEC_FULL.md §6 (§4.2 realization notes) for the authoritative behavior.
package command

import (
	"sync"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/resource"
)

// Arena mints resource.OwnerToken values for live Context instances. It
// stands in for the original engine's std::weak_ptr<CommandContext>: Go
// has no weak pointers, so a resource's "owner" is recorded as a
// generational index into this arena rather than a pointer, per
// SPEC_FULL.md §9 design notes. A token whose Generation no longer
// matches the live slot at Index is stale — Resolve reports that as
// ok=false, exactly the behavior a C++ expired() weak_ptr would report.
type Arena struct {
	mu       sync.Mutex
	slots    []arenaSlot
	freeList []uint32
}

type arenaSlot struct {
	generation uint32
	context    *Context
	occupied   bool
}

// NewArena creates an empty owner-token arena.
func NewArena() *Arena {
	return &Arena{}
}

// Insert records ctx as a live owner and returns the token identifying it.
func (a *Arena) Insert(ctx *Context) resource.OwnerToken {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.freeList); n > 0 {
		idx := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		slot := &a.slots[idx]
		slot.context = ctx
		slot.occupied = true
		return resource.OwnerToken{Index: idx, Generation: slot.generation}
	}

	idx := uint32(len(a.slots))
	a.slots = append(a.slots, arenaSlot{generation: 1, context: ctx, occupied: true})
	return resource.OwnerToken{Index: idx, Generation: 1}
}

// Remove retires the owner at token's index, bumping its generation so any
// outstanding copies of token are detected as stale on the next Resolve.
func (a *Arena) Remove(token resource.OwnerToken) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(token.Index) >= len(a.slots) {
		return
	}
	slot := &a.slots[token.Index]
	if !slot.occupied || slot.generation != token.Generation {
		return
	}
	slot.occupied = false
	slot.context = nil
	slot.generation++
	a.freeList = append(a.freeList, token.Index)
}

// Resolve returns the live Context for token, or ok=false if token is
// stale or was never issued by this arena.
func (a *Arena) Resolve(token resource.OwnerToken) (*Context, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(token.Index) >= len(a.slots) {
		return nil, false
	}
	slot := &a.slots[token.Index]
	if !slot.occupied || slot.generation != token.Generation {
		return nil, false
	}
	return slot.context, true
}

// QueueFamilyOf is a convenience wrapper matching the original
// CommandContext::getQueueFamilyIndex() accessed through a weak pointer:
// resolves token and returns its owning context's queue family index.
func (a *Arena) QueueFamilyOf(token resource.OwnerToken) (common.QueueFamilyIndex, bool) {
	ctx, ok := a.Resolve(token)
	if !ok {
		return common.IgnoredFamily, false
	}
	return ctx.QueueFamilyIndex(), true
}
