package resource

import (
	"sync"

	vk "github.com/goki/vulkan"
)

// GpuResourceSet is a Vulkan re-expression of the teacher's
// BindGroupProvider (engine/renderer/bind_group_provider/bind_group_provider.go):
// a label plus the GPU handle maps (keyed by binding index) a descriptor
// set is built from, generalized from wgpu's BindGroup/BindGroupLayout to
// VkDescriptorSet/VkDescriptorSetLayout. Components declare their binding
// requirements through a GpuResourceSet; the Renderer (an external
// collaborator, see engine/renderer/contract.go) allocates the backing
// descriptor set and writes it.
type GpuResourceSet struct {
	mu sync.Mutex

	label string

	set    vk.DescriptorSet
	layout vk.DescriptorSetLayout

	buffers      map[int]vk.Buffer
	textureViews map[int]vk.ImageView
	samplers     map[int]vk.Sampler

	vertexBuffer vk.Buffer
	indexBuffer  vk.Buffer
	indexCount   int

	releaseFn func(*GpuResourceSet)
}

// GpuResourceSetOption configures a GpuResourceSet at construction.
type GpuResourceSetOption func(*GpuResourceSet)

// WithReleaseFunc registers the callback Release invokes to free the
// descriptor set's driver-owned resources (its pool's free-descriptor-set
// call, typically owned by the device package).
func WithReleaseFunc(fn func(*GpuResourceSet)) GpuResourceSetOption {
	return func(s *GpuResourceSet) { s.releaseFn = fn }
}

// NewGpuResourceSet creates an empty GpuResourceSet labeled label.
func NewGpuResourceSet(label string, opts ...GpuResourceSetOption) *GpuResourceSet {
	s := &GpuResourceSet{
		label:        label,
		buffers:      make(map[int]vk.Buffer),
		textureViews: make(map[int]vk.ImageView),
		samplers:     make(map[int]vk.Sampler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Label returns this set's debug label.
func (s *GpuResourceSet) Label() string { return s.label }

// DescriptorSet returns the allocated descriptor set, or nil if not yet
// initialized by the renderer.
func (s *GpuResourceSet) DescriptorSet() vk.DescriptorSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// DescriptorSetLayout returns the set's layout, or nil if not yet
// initialized.
func (s *GpuResourceSet) DescriptorSetLayout() vk.DescriptorSetLayout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout
}

// SetDescriptorSet stores the descriptor set allocated for this resource
// set by the renderer.
func (s *GpuResourceSet) SetDescriptorSet(set vk.DescriptorSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = set
}

// SetDescriptorSetLayout stores the layout allocated for this resource
// set by the renderer.
func (s *GpuResourceSet) SetDescriptorSetLayout(layout vk.DescriptorSetLayout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layout = layout
}

// Buffer returns the buffer bound at binding, or nil if unset.
func (s *GpuResourceSet) Buffer(binding int) vk.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffers[binding]
}

// Buffers returns a snapshot of every buffer binding in this set.
func (s *GpuResourceSet) Buffers() map[int]vk.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]vk.Buffer, len(s.buffers))
	for k, v := range s.buffers {
		out[k] = v
	}
	return out
}

// SetBuffer binds buf at binding.
func (s *GpuResourceSet) SetBuffer(binding int, buf vk.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[binding] = buf
}

// SetBuffers replaces every buffer binding at once.
func (s *GpuResourceSet) SetBuffers(buffers map[int]vk.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = buffers
}

// TextureView returns the image view bound at binding, or nil if unset.
func (s *GpuResourceSet) TextureView(binding int) vk.ImageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textureViews[binding]
}

// TextureViews returns a snapshot of every image-view binding in this set.
func (s *GpuResourceSet) TextureViews() map[int]vk.ImageView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]vk.ImageView, len(s.textureViews))
	for k, v := range s.textureViews {
		out[k] = v
	}
	return out
}

// SetTextureView binds view at binding.
func (s *GpuResourceSet) SetTextureView(binding int, view vk.ImageView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textureViews[binding] = view
}

// SetTextureViews replaces every image-view binding at once.
func (s *GpuResourceSet) SetTextureViews(views map[int]vk.ImageView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textureViews = views
}

// Sampler returns the sampler bound at binding, or nil if unset.
func (s *GpuResourceSet) Sampler(binding int) vk.Sampler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samplers[binding]
}

// Samplers returns a snapshot of every sampler binding in this set.
func (s *GpuResourceSet) Samplers() map[int]vk.Sampler {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]vk.Sampler, len(s.samplers))
	for k, v := range s.samplers {
		out[k] = v
	}
	return out
}

// SetSampler binds sampler at binding.
func (s *GpuResourceSet) SetSampler(binding int, sampler vk.Sampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samplers[binding] = sampler
}

// SetSamplers replaces every sampler binding at once.
func (s *GpuResourceSet) SetSamplers(samplers map[int]vk.Sampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samplers = samplers
}

// VertexBuffer returns the vertex-pulling vertex buffer, or nil if unset.
func (s *GpuResourceSet) VertexBuffer() vk.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vertexBuffer
}

// SetVertexBuffer stores buf as the vertex-pulling vertex buffer.
func (s *GpuResourceSet) SetVertexBuffer(buf vk.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vertexBuffer = buf
}

// IndexBuffer returns the vertex-pulling index buffer, or nil if unset.
func (s *GpuResourceSet) IndexBuffer() vk.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexBuffer
}

// SetIndexBuffer stores buf as the vertex-pulling index buffer.
func (s *GpuResourceSet) SetIndexBuffer(buf vk.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexBuffer = buf
}

// IndexCount returns the number of indices to draw from IndexBuffer.
func (s *GpuResourceSet) IndexCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexCount
}

// SetIndexCount records the number of indices to draw from IndexBuffer.
func (s *GpuResourceSet) SetIndexCount(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexCount = count
}

// Release frees this set's driver-owned resources via its registered
// release function, if any, and clears every map so a reused
// GpuResourceSet does not retain stale handles.
func (s *GpuResourceSet) Release() {
	s.mu.Lock()
	fn := s.releaseFn
	s.mu.Unlock()
	if fn != nil {
		fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = nil
	s.layout = nil
	s.buffers = make(map[int]vk.Buffer)
	s.textureViews = make(map[int]vk.ImageView)
	s.samplers = make(map[int]vk.Sampler)
	s.vertexBuffer = nil
	s.indexBuffer = nil
	s.indexCount = 0
}
