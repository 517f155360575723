// Package resource tracks GPU-resource (texture/buffer) state and coalesces
// pending transitions into pipeline barriers. See SPEC_FULL.md §6 (§4.3
// realization notes) for the authoritative behavior.
package resource

import (
	"sync"

	"github.com/oxy-vk/render-engine/common"
)

// OwnerToken identifies the command context that currently owns a
// resource's pending work, standing in for the original C++
// std::weak_ptr<CommandContext>. Go has no weak pointers, so ownership is
// tracked as a generational-arena index (Index, Generation) minted by the
// command package's context pool: a stale token (one whose Generation no
// longer matches the live entry at Index) is detected by the owner,
// never dereferenced by resource itself. This package never resolves a
// token back to a live CommandContext — it only compares tokens for
// identity and carries the QueueFamilyIndex the caller already resolved
// at the time the state was recorded.
type OwnerToken struct {
	Index      uint32
	Generation uint32
}

// ZeroOwner is the token for "no owning command context recorded".
var ZeroOwner = OwnerToken{}

// IsZero reports whether the token is the zero value.
func (t OwnerToken) IsZero() bool { return t == ZeroOwner }

// State is the resource state attached to a Texture or Buffer: pipeline
// stage, access flags, layout (textures only — ignored for buffers), the
// owning context token, and queue family. It is a plain comparable value,
// mirroring the C++ TextureState/BufferState operator== — no custom Equals
// method is needed since every field is itself comparable.
type State struct {
	Stage       common.StageMask
	Access      common.AccessMask
	Layout      common.ImageLayout
	Owner       OwnerToken
	QueueFamily common.QueueFamilyIndex
}

// WithStage returns a copy of s with Stage replaced.
func (s State) WithStage(stage common.StageMask) State {
	s.Stage = stage
	return s
}

// WithAccess returns a copy of s with Access replaced.
func (s State) WithAccess(access common.AccessMask) State {
	s.Access = access
	return s
}

// WithLayout returns a copy of s with Layout replaced.
func (s State) WithLayout(layout common.ImageLayout) State {
	s.Layout = layout
	return s
}

// WithOwner returns a copy of s with Owner and QueueFamily replaced.
func (s State) WithOwner(owner OwnerToken, queueFamily common.QueueFamilyIndex) State {
	s.Owner = owner
	s.QueueFamily = queueFamily
	return s
}

// resettableState is implemented by Texture and Buffer so resetStages can
// operate on either without a type switch in the machine.
type resettableState interface {
	state() State
	setState(State)
	mutex() *sync.Mutex
}

// ResetStages zeroes a resource's stage and access flags while preserving
// layout and owner, matching ResourceStateMachine::resetStages in the
// original engine. Called at frame boundaries so a stale read mask from a
// previous frame's last access never survives into the new one.
func ResetStages(r resettableState) {
	m := r.mutex()
	m.Lock()
	defer m.Unlock()
	cur := r.state()
	r.setState(cur.WithStage(common.StageNone).WithAccess(common.AccessNone))
}
