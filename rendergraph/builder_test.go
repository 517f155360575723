package rendergraph

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/oxy-vk/render-engine/common"
	"github.com/oxy-vk/render-engine/syncfab"
)

// nullFactory hands out null semaphore handles; the builder only cares
// about registration bookkeeping in these tests.
type nullFactory struct {
	binaries  int
	timelines int
}

func (f *nullFactory) CreateBinarySemaphore() (vk.Semaphore, error) {
	f.binaries++
	return vk.NullSemaphore, nil
}

func (f *nullFactory) CreateTimelineSemaphore(initial uint64) (vk.Semaphore, error) {
	f.timelines++
	return vk.NullSemaphore, nil
}

func TestBuilderBuildsNodesAndAutoSemaphoreLink(t *testing.T) {
	primitives := syncfab.NewPrimitives()
	factory := &nullFactory{}
	b := NewRenderGraphBuilder("frame", primitives, factory)

	b.AddEmptyNode("acquire").
		AddEmptyNode("forward").
		AddCpuAsyncLink("acquire", "forward").
		SignalOnGpuAtStage(uint64(common.StageColorAttachmentOutput)).
		WaitOnGpu(uint64(common.StageFragmentShader))

	g, err := b.Reset("next")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if factory.binaries != 1 {
		t.Fatalf("expected exactly one auto-generated binary semaphore, got %d", factory.binaries)
	}

	conns := g.InboundConnections("forward", 0)
	if len(conns) != 1 {
		t.Fatalf("expected one connection on acquire->forward, got %d", len(conns))
	}
	pc, ok := conns[0].(PipelineConnection)
	if !ok {
		t.Fatalf("expected a PipelineConnection, got %T", conns[0])
	}
	if _, registered := primitives.Get(pc.Semaphore); !registered {
		t.Fatalf("auto semaphore %q not registered with primitives", pc.Semaphore)
	}
	if pc.WaitStage != uint64(common.StageFragmentShader) || pc.SignalStage != uint64(common.StageColorAttachmentOutput) {
		t.Fatalf("unexpected stages on connection: %+v", pc)
	}
}

func TestBuilderExternalWaitProducesExternalConnection(t *testing.T) {
	primitives := syncfab.NewPrimitives()
	b := NewRenderGraphBuilder("frame", primitives, &nullFactory{})

	b.AddEmptyNode("acquire").
		AddEmptyNode("forward").
		RegisterBinarySemaphore("ImageAvailable.0").
		AddCpuSyncLink("acquire", "forward").
		SignalOnGpu().
		WaitOnGpu("ImageAvailable.0", uint64(common.StageColorAttachmentOutput), 0)

	g, err := b.Reset("next")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	conns := g.InboundConnections("forward", 0)
	if len(conns) != 1 {
		t.Fatalf("expected one connection, got %d", len(conns))
	}
	if _, ok := conns[0].(ExternalConnection); !ok {
		t.Fatalf("expected an ExternalConnection for the externally signaled semaphore, got %T", conns[0])
	}
}

func TestBuilderTimelineLinkCarriesValue(t *testing.T) {
	primitives := syncfab.NewPrimitives()
	b := NewRenderGraphBuilder("frame", primitives, &nullFactory{})

	b.AddEmptyNode("render").
		AddEmptyNode("present").
		RegisterTimelineSemaphore("RenderFinished", 0, 3).
		AddCpuAsyncLink("render", "present").
		SignalOnGpuTimeline("RenderFinished", 1, uint64(common.StageColorAttachmentOutput)).
		WaitOnGpu(uint64(common.StageBottomOfPipe))

	g, err := b.Reset("next")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	sem, ok := primitives.Get("RenderFinished")
	if !ok {
		t.Fatalf("expected RenderFinished registered")
	}
	if sem.Kind() != syncfab.KindTimeline || sem.Width() != 3 {
		t.Fatalf("expected timeline semaphore of width 3, got kind=%v width=%d", sem.Kind(), sem.Width())
	}

	conns := g.InboundConnections("present", 0)
	pc := conns[0].(PipelineConnection)
	if pc.Value != 1 {
		t.Fatalf("expected logical value 1 on the connection, got %d", pc.Value)
	}
}

func TestBuilderResetSurfacesValidationErrorAndStartsFresh(t *testing.T) {
	b := NewRenderGraphBuilder("frame", syncfab.NewPrimitives(), &nullFactory{})

	b.AddEmptyNode("a").AddEmptyNode("a")
	if _, err := b.Reset("next"); !common.IsKind(err, common.KindDuplicateNodeName) {
		t.Fatalf("expected KindDuplicateNodeName, got %v", err)
	}

	// the builder must have installed a fresh graph for further edits
	b.AddEmptyNode("a")
	g, err := b.Reset("again")
	if err != nil {
		t.Fatalf("expected a clean build after reset, got %v", err)
	}
	if _, ok := g.FindNode("a"); !ok {
		t.Fatalf("expected node a in the freshly built graph")
	}
}

func TestBuilderPerImageWaitScopesConnection(t *testing.T) {
	primitives := syncfab.NewPrimitives()
	b := NewRenderGraphBuilder("frame", primitives, &nullFactory{})

	b.AddEmptyNode("render").
		AddEmptyNode("present").
		AddCpuAsyncLink("render", "present").
		SignalOnGpuAtStage(uint64(common.StageColorAttachmentOutput)).
		WaitOnGpuForImage(uint64(common.StageBottomOfPipe), 2)

	g, err := b.Reset("next")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if got := g.InboundConnections("present", 0); len(got) != 0 {
		t.Fatalf("expected no connections for image 0, got %d", len(got))
	}
	if got := g.InboundConnections("present", 2); len(got) != 1 {
		t.Fatalf("expected the scoped connection for image 2, got %d", len(got))
	}
}
