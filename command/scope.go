package command

import (
	"sync"
	"sync/atomic"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
)

// Scope identifies one goroutine's exclusive claim on a Context/
// SingleShotContext pair. Go has no thread-local storage, so where the
// original engine keyed its pool maps by std::thread::id, this port keys
// them by an explicitly passed Scope handed out by NewScope. A Scope must
// not be shared across goroutines and must be used for the lifetime of one
// goroutine's frame work, per SPEC_FULL.md §6 design notes.
type Scope uint64

var scopeCounter uint64

// NewScope mints a fresh, never-repeating Scope.
func NewScope() Scope {
	return Scope(atomic.AddUint64(&scopeCounter, 1))
}

// Registry owns the per-Scope Context/SingleShotContext pools for one
// queue family, replacing the original engine's thread-local
// unordered_map<thread::id, Tray>.
type Registry struct {
	logical     vk.Device
	queueFamily common.QueueFamilyIndex

	mu          sync.RWMutex
	contexts    map[Scope]*Context
	singleShots map[Scope]*SingleShotContext
}

// NewRegistry creates an empty per-scope pool registry for one queue
// family.
func NewRegistry(logical vk.Device, queueFamily common.QueueFamilyIndex) *Registry {
	return &Registry{
		logical:     logical,
		queueFamily: queueFamily,
		contexts:    make(map[Scope]*Context),
		singleShots: make(map[Scope]*SingleShotContext),
	}
}

// Context returns (creating if necessary) the regular Context belonging to
// scope.
func (r *Registry) Context(scope Scope) *Context {
	r.mu.RLock()
	ctx, ok := r.contexts[scope]
	r.mu.RUnlock()
	if ok {
		return ctx
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx, ok := r.contexts[scope]; ok {
		return ctx
	}
	ctx = NewContext(r.logical, r.queueFamily)
	r.contexts[scope] = ctx
	return ctx
}

// SingleShot returns (creating if necessary) the SingleShotContext
// belonging to scope.
func (r *Registry) SingleShot(scope Scope) *SingleShotContext {
	r.mu.RLock()
	ctx, ok := r.singleShots[scope]
	r.mu.RUnlock()
	if ok {
		return ctx
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx, ok := r.singleShots[scope]; ok {
		return ctx
	}
	ctx = NewSingleShotContext(r.logical, r.queueFamily)
	r.singleShots[scope] = ctx
	return ctx
}

// DestroyAll destroys every pool this registry owns. The caller must have
// already waited for the owning device to go idle.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for scope, ctx := range r.contexts {
		ctx.Destroy()
		delete(r.contexts, scope)
	}
	for scope, ctx := range r.singleShots {
		ctx.Destroy()
		delete(r.singleShots, scope)
	}
}
