package syncfab

import (
	"sync"
)

// Well-known operation group names used throughout the render graph.
const (
	// GroupInternal is used for connections wholly owned by the graph
	// (both wait and signal side inside the engine).
	GroupInternal = "kInternal"
	// GroupExternal is used for connections whose signal side is outside
	// the graph's control (e.g. a swapchain image-available semaphore).
	GroupExternal = "kExternal"
	// GroupPresent is used for the wait operations attached to a present
	// submission.
	GroupPresent = "kPresent"
)

// Operation is one entry in an OperationGroup's wait or signal list: a
// semaphore reference, the pipeline stage the operation applies at, and
// (for timeline semaphores) the logical value being waited on or signaled.
type Operation struct {
	Semaphore string
	Stage     uint64 // VkPipelineStageFlags2 bits
	Value     uint64 // logical (pre-offset) timeline value; ignored for binary semaphores
}

// OperationGroup is an ordered pair of wait/signal operation lists, the
// unit SyncObject hands to a Node's createJob.
type OperationGroup struct {
	Wait   []Operation
	Signal []Operation
}

// Clone returns a deep copy of the group so callers can accumulate into it
// without aliasing the original's backing slices.
func (g OperationGroup) Clone() OperationGroup {
	out := OperationGroup{
		Wait:   make([]Operation, len(g.Wait)),
		Signal: make([]Operation, len(g.Signal)),
	}
	copy(out.Wait, g.Wait)
	copy(out.Signal, g.Signal)
	return out
}

// SyncObject owns a Primitives registry reference plus a map of named
// operation groups. It is the value passed into Node.CreateJob; callers
// compose groups (kInternal, kExternal, kPresent, ...) and pick a group per
// submission.
type SyncObject struct {
	mu         sync.Mutex
	primitives *Primitives
	groups     map[string]*OperationGroup
}

// NewSyncObject creates an empty SyncObject bound to the given primitives
// registry. primitives must outlive the SyncObject.
func NewSyncObject(primitives *Primitives) *SyncObject {
	return &SyncObject{
		primitives: primitives,
		groups:     make(map[string]*OperationGroup),
	}
}

// Primitives returns the semaphore registry this SyncObject resolves names
// against.
func (o *SyncObject) Primitives() *Primitives {
	return o.primitives
}

// Group returns the named operation group, or (nil, false) if it has not
// been created yet.
func (o *SyncObject) Group(name string) (*OperationGroup, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	g, ok := o.groups[name]
	return g, ok
}

// MustGroup returns a copy of the named operation group, or the zero
// OperationGroup if it has not been created yet. Convenience for callers
// (e.g. the transfer scheduler) that pass a group straight into a
// Submitter and would rather get an empty group than branch on ok.
func (o *SyncObject) MustGroup(name string) OperationGroup {
	g, ok := o.Group(name)
	if !ok {
		return OperationGroup{}
	}
	return g.Clone()
}

// GroupNames returns a snapshot of all group names currently present.
func (o *SyncObject) GroupNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.groups))
	for n := range o.groups {
		names = append(names, n)
	}
	return names
}

// AddWait appends a wait operation to the named group, creating the group
// if it does not yet exist.
func (o *SyncObject) AddWait(group, semaphore string, stage uint64, value uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	g := o.groupLocked(group)
	g.Wait = append(g.Wait, Operation{Semaphore: semaphore, Stage: stage, Value: value})
}

// AddSignal appends a signal operation to the named group, creating the
// group if it does not yet exist.
func (o *SyncObject) AddSignal(group, semaphore string, stage uint64, value uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	g := o.groupLocked(group)
	g.Signal = append(g.Signal, Operation{Semaphore: semaphore, Stage: stage, Value: value})
}

// Merge folds other's wait and signal lists into the named group, creating
// the group if needed. Used by the scheduler to fold in pulled-through
// connections from inactive predecessors.
func (o *SyncObject) Merge(group string, other OperationGroup) {
	o.mu.Lock()
	defer o.mu.Unlock()
	g := o.groupLocked(group)
	g.Wait = append(g.Wait, other.Wait...)
	g.Signal = append(g.Signal, other.Signal...)
}

func (o *SyncObject) groupLocked(name string) *OperationGroup {
	g, ok := o.groups[name]
	if !ok {
		g = &OperationGroup{}
		o.groups[name] = g
	}
	return g
}

// StepTimeline advances the named timeline semaphore's offset by its width
// and atomically rewrites every stored operation value across every group
// on this SyncObject that references it, so a previously-recorded logical
// value keeps resolving to the same semaphore position relative to the new
// offset. Binary semaphores are unaffected (returns nil immediately).
//
// This satisfies the invariant in spec.md §8: "after stepTimeline(s), for
// every operation group g storing an operation on s, the stored value has
// been incremented by timeline_width(s)."
func (o *SyncObject) StepTimeline(name string) error {
	s, ok := o.primitives.Get(name)
	if !ok {
		return nil
	}
	if s.Kind() == KindBinary {
		return nil
	}

	width := s.step()

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, g := range o.groups {
		for i := range g.Wait {
			if g.Wait[i].Semaphore == name {
				g.Wait[i].Value += width
			}
		}
		for i := range g.Signal {
			if g.Signal[i].Semaphore == name {
				g.Signal[i].Value += width
			}
		}
	}
	return nil
}
