package rendergraph

// LinkType classifies how a link's upstream work relates to its
// downstream node in time, per spec.md §4.5.
type LinkType int

const (
	// LinkUnknown is the zero value; a link in this state has not been
	// finalized by the builder yet.
	LinkUnknown LinkType = iota
	// LinkCpuSync marks a link whose downstream node must not be
	// dispatched to the worker pool until the upstream node's job has
	// returned (a true CPU-side dependency edge in the task DAG).
	LinkCpuSync
	// LinkCpuAsync marks a link that only carries GPU-side
	// synchronization (semaphore wait/signal); the downstream node may be
	// dispatched concurrently with the upstream one.
	LinkCpuAsync
)

// Connection is one semaphore wait/signal pairing a Link carries.
// PipelineConnection and ExternalConnection are the two sealed variants.
type Connection interface {
	isConnection()
	// SemaphoreName is the name this connection resolves against a
	// syncfab.Primitives registry.
	SemaphoreName() string
	// ForImage returns the render-target image index this connection is
	// restricted to, or ok=false when it applies to every image. A
	// per-image connection is how a link expresses inter-frame ordering
	// that depends on which swapchain image the frame landed on.
	ForImage() (uint32, bool)
}

// PipelineConnection is a connection wholly owned by the graph: both its
// signal (upstream) and wait (downstream) sides are internal submissions.
// A nil Image applies the connection to every render-target index.
type PipelineConnection struct {
	Semaphore   string
	SignalStage uint64
	WaitStage   uint64
	Value       uint64
	Image       *uint32
}

func (PipelineConnection) isConnection()           {}
func (c PipelineConnection) SemaphoreName() string { return c.Semaphore }
func (c PipelineConnection) ForImage() (uint32, bool) {
	if c.Image == nil {
		return 0, false
	}
	return *c.Image, true
}

// ExternalConnection is a connection whose signal side is outside the
// graph's control (e.g. a swapchain image-available semaphore, or an
// interop semaphore signaled by an external API like CUDA).
type ExternalConnection struct {
	Semaphore string
	WaitStage uint64
	Value     uint64
	Image     *uint32
}

func (ExternalConnection) isConnection()           {}
func (c ExternalConnection) SemaphoreName() string { return c.Semaphore }
func (c ExternalConnection) ForImage() (uint32, bool) {
	if c.Image == nil {
		return 0, false
	}
	return *c.Image, true
}

// Link is one directed edge between two named nodes, carrying the
// semaphore connections the scheduler folds into each side's SyncObject.
type Link struct {
	From        string
	To          string
	Type        LinkType
	Connections []Connection
}

// connectionsFor returns the subset of l's connections that apply to the
// given render-target image index.
func (l *Link) connectionsFor(image uint32) []Connection {
	out := make([]Connection, 0, len(l.Connections))
	for _, c := range l.Connections {
		if img, scoped := c.ForImage(); scoped && img != image {
			continue
		}
		out = append(out, c)
	}
	return out
}

var (
	_ Connection = PipelineConnection{}
	_ Connection = ExternalConnection{}
)
