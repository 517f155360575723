// Package syncfab implements the engine's synchronization fabric: named
// semaphores (binary and timeline), fences, and the operation-group
// bookkeeping that flows from a graph Link into a Node's job. See
// SPEC_FULL.md §5/§6 for the authoritative behavior.
package syncfab

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
)

// Kind distinguishes binary from timeline semaphores.
type Kind int

const (
	// KindBinary is a standard binary semaphore; Width is always 1 and the
	// timeline offset never advances.
	KindBinary Kind = iota
	// KindTimeline is a timeline semaphore carrying a monotonic counter;
	// user-supplied values are translated by adding Offset, and Offset is
	// advanced by Width every StepTimeline call.
	KindTimeline
)

func (k Kind) String() string {
	if k == KindTimeline {
		return "Timeline"
	}
	return "Binary"
}

// Semaphore is a named semaphore with the bookkeeping needed to support
// timeline value wraparound via offset-stepping.
//
// For a binary semaphore, Offset is always 0 and Width is always 1.
// For a timeline semaphore, every value passed by a caller is logically
// base-value + Offset; StepTimeline advances Offset by Width so that the
// same small integer values (1, 2, 3, ...) can be reused by every frame
// without the caller tracking the absolute counter.
type Semaphore struct {
	mu sync.Mutex

	name   string
	kind   Kind
	handle vk.Semaphore
	offset uint64
	width  uint64
}

// Name returns the registered name of the semaphore.
func (s *Semaphore) Name() string { return s.name }

// Kind returns whether this is a binary or timeline semaphore.
func (s *Semaphore) Kind() Kind { return s.kind }

// Handle returns the underlying Vulkan semaphore handle.
func (s *Semaphore) Handle() vk.Semaphore { return s.handle }

// Width returns the timeline width (always 1 for binary semaphores).
func (s *Semaphore) Width() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width
}

// AbsoluteValue translates a caller-supplied logical timeline value into
// the absolute value to place in a submission's
// VkTimelineSemaphoreSubmitInfo, by adding the current offset. For binary semaphores this returns the input unchanged.
func (s *Semaphore) AbsoluteValue(logical uint64) uint64 {
	if s.kind == KindBinary {
		return logical
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset + logical
}

// step advances the timeline offset by Width and returns the width that
// was applied, so callers rewriting stored operation values know the exact
// delta. No-op (returns 0) for binary semaphores.
func (s *Semaphore) step() uint64 {
	if s.kind == KindBinary {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset += s.width
	return s.width
}

// Offset returns the current timeline offset (0 for binary semaphores).
func (s *Semaphore) Offset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Factory creates the underlying Vulkan semaphore handles Primitives
// registers. Implemented by the device package; kept as an interface so
// the graph builder and transfer scheduler can mint semaphores without
// importing device (and so tests can hand out null handles).
type Factory interface {
	// CreateBinarySemaphore creates a standard binary semaphore.
	CreateBinarySemaphore() (vk.Semaphore, error)
	// CreateTimelineSemaphore creates a timeline semaphore starting at
	// initial.
	CreateTimelineSemaphore(initial uint64) (vk.Semaphore, error)
}

// Primitives is a named registry of semaphores shared by every SyncObject
// built against the same device. Registration is append-only within a
// SyncObject's lifetime: re-registering an existing name fails with
// common.KindSemaphoreAlreadyRegistered.
type Primitives struct {
	mu         sync.RWMutex
	semaphores map[string]*Semaphore
}

// NewPrimitives creates an empty semaphore registry.
func NewPrimitives() *Primitives {
	return &Primitives{semaphores: make(map[string]*Semaphore)}
}

// Register creates and stores a new named semaphore. width must be 1 for
// KindBinary. The underlying Vulkan semaphore is expected to already be
// created by the caller (device creation is handled by the device package);
// Register is purely the synchronization-fabric bookkeeping step. The
// registration is recorded in the process logbook with the owning
// SyncObject's name for post-mortem diagnosis.
//
// Parameters:
//   - name: unique identifier used by operation groups to reference this semaphore
//   - kind: KindBinary or KindTimeline
//   - handle: the already-created VkSemaphore handle
//   - width: the timeline value window consumed per StepTimeline call (ignored, forced to 1, for binary)
//   - owner: the name of the SyncObject (or subsystem) that owns this semaphore
//
// Returns:
//   - *Semaphore: the registered semaphore
//   - error: common.KindSemaphoreAlreadyRegistered if name is taken
func (p *Primitives) Register(name string, kind Kind, handle vk.Semaphore, width uint64, owner string) (*Semaphore, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.semaphores[name]; exists {
		return nil, common.NewError("Primitives.Register", common.KindSemaphoreAlreadyRegistered,
			fmt.Errorf("semaphore %q already registered", name))
	}

	if kind == KindBinary {
		width = 1
	} else if width == 0 {
		width = 1
	}

	s := &Semaphore{name: name, kind: kind, handle: handle, width: width}
	p.semaphores[name] = s
	Logbook().RegisterSemaphore(name, kind.String(), owner)
	return s, nil
}

// Get returns the named semaphore, or nil and false if unregistered.
func (p *Primitives) Get(name string) (*Semaphore, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.semaphores[name]
	return s, ok
}

// Names returns a snapshot of all registered semaphore names.
func (p *Primitives) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.semaphores))
	for n := range p.semaphores {
		names = append(names, n)
	}
	return names
}
