package renderer

// UpdateFrequency classifies how often a shader binding's contents are
// expected to change, which decides which descriptor pool a binding's set
// is allocated from.
type UpdateFrequency int

const (
	// UpdateFrequencyUnknown is the zero value for bindings the loader
	// could not classify.
	UpdateFrequencyUnknown UpdateFrequency = iota
	// UpdateFrequencyPerFrame marks bindings rewritten once per frame
	// (camera matrices, global lighting).
	UpdateFrequencyPerFrame
	// UpdateFrequencyPerDrawCall marks bindings rewritten per draw
	// (per-object transforms, material parameters).
	UpdateFrequencyPerDrawCall
)

func (f UpdateFrequency) String() string {
	switch f {
	case UpdateFrequencyPerFrame:
		return "PerFrame"
	case UpdateFrequencyPerDrawCall:
		return "PerDrawCall"
	default:
		return "Unknown"
	}
}

// BindingKind identifies what a shader binding slot holds.
type BindingKind int

const (
	// BindingUniformBuffer is a uniform buffer binding.
	BindingUniformBuffer BindingKind = iota
	// BindingSampler is a combined image sampler binding.
	BindingSampler
	// BindingInputAttachment is a subpass input attachment binding.
	BindingInputAttachment
	// BindingStorageBuffer is a storage buffer binding.
	BindingStorageBuffer
)

// Binding describes one descriptor binding the shader declares.
type Binding struct {
	// Binding is the @binding index within the set.
	Binding int
	// Kind is what the slot holds.
	Kind BindingKind
	// Frequency is how often the binding's contents change.
	Frequency UpdateFrequency
	// Size is the byte size for buffer bindings (0 for samplers and
	// attachments).
	Size int
}

// PushConstantRange describes one push-constant block.
type PushConstantRange struct {
	Offset    int
	Size      int
	Frequency UpdateFrequency
}

// VertexAttribute describes one vertex input attribute.
type VertexAttribute struct {
	Location int
	Offset   int
	Format   int32
}

// ShaderMetadata is the contract an external shader loader fulfills
// alongside the SPIR-V bytes: everything the engine's descriptor and
// pipeline layers need without reflecting over the bytecode themselves.
type ShaderMetadata struct {
	Attributes    []VertexAttribute
	Bindings      []Binding
	PushConstants []PushConstantRange
}

// ShaderLoader is the external collaborator that produces compiled
// SPIR-V plus its metadata. The engine never parses shader source; a
// loader is handed in at renderer construction.
type ShaderLoader interface {
	// Load returns the SPIR-V words and metadata for the named shader.
	Load(name string) (spirv []byte, meta ShaderMetadata, err error)
}
