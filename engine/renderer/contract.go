// Package renderer declares the Renderer and RenderTarget contracts the
// render graph's RenderNode draws through. Per SPEC_FULL.md §4.10 this
// package is interface-only: no backend implementation ships in this
// module, matching spec.md §1's explicit exclusion of renderer internals.
// A real backend (Vulkan pipelines, descriptor management, shader
// modules) is an external collaborator wired in by the engine's caller;
// no test file in this module implements these interfaces either.
package renderer

import (
	vk "github.com/goki/vulkan"
)

// Renderer is the external collaborator a RenderNode (and, for shadow
// work, a ComputeNode) draws through. It owns its own pipeline cache and
// descriptor state; the graph only ever hands it a command buffer and a
// render-target index.
type Renderer interface {
	// OnFrameBegin is called once per frame before any draw call is
	// recorded, given the render-target (swapchain image) index the
	// frame was scheduled against.
	OnFrameBegin(renderTargetIndex int)

	// Draw records this frame's draw calls into cb, targeting the
	// attachment set associated with renderTargetIndex. This is the entry
	// point the parallel engine uses: the command buffer comes from the
	// graph node's per-slot pool, not the renderer's own.
	Draw(cb vk.CommandBuffer, renderTargetIndex int) error

	// DrawOwn records this frame's draw calls into the renderer's
	// internally managed command buffer for renderTargetIndex, for
	// callers driving a renderer outside the graph.
	DrawOwn(renderTargetIndex int) error

	// CommandBuffers returns the command buffers the renderer has
	// recorded for renderTargetIndex (its own, plus any secondaries).
	CommandBuffers(renderTargetIndex int) []vk.CommandBuffer

	// Reinit begins surface-loss recovery: the renderer drops its
	// swapchain-dependent state (framebuffers, attachment views).
	Reinit() error

	// FinalizeReinit completes surface-loss recovery against the
	// recreated render target.
	FinalizeReinit(rt RenderTarget) error

	// BeginShadowFrame begins a shadow pass sequence for the frame,
	// matching the teacher's light_cull.go/shadow.go split between main
	// and shadow command recording (SPEC_FULL.md §8).
	BeginShadowFrame() error
	// BeginShadowPass begins recording one shadow map's render pass.
	BeginShadowPass(cb vk.CommandBuffer, lightIndex int) error
	// ShadowDrawCall records one shadow-casting draw call.
	ShadowDrawCall(cb vk.CommandBuffer, meshKey string) error
	// EndShadowPass ends the current shadow map's render pass.
	EndShadowPass(cb vk.CommandBuffer) error
	// EndShadowFrame ends the shadow pass sequence for the frame.
	EndShadowFrame() error
}

// RenderTargetOption mutates a RenderTarget being cloned. Matches the
// functional-option convention used throughout this codebase's builders.
type RenderTargetOption func(*RenderTarget)

// RenderTarget describes one attachment set a Renderer draws into: the
// color/depth image views, their format, and the extent they were created
// at. Ported from the teacher's render-pass description, generalized to
// Vulkan image views per SPEC_FULL.md §8.
type RenderTarget struct {
	Label       string
	ColorViews  []vk.ImageView
	DepthView   vk.ImageView
	ColorFormat vk.Format
	DepthFormat vk.Format
	Extent      vk.Extent2D
	SampleCount vk.SampleCountFlagBits
}

// WithLabel overrides the clone's label.
func WithLabel(label string) RenderTargetOption {
	return func(rt *RenderTarget) { rt.Label = label }
}

// WithColorViews overrides the clone's color attachment views.
func WithColorViews(views ...vk.ImageView) RenderTargetOption {
	return func(rt *RenderTarget) { rt.ColorViews = views }
}

// WithDepthView overrides the clone's depth attachment view.
func WithDepthView(view vk.ImageView) RenderTargetOption {
	return func(rt *RenderTarget) { rt.DepthView = view }
}

// WithExtent overrides the clone's extent.
func WithExtent(extent vk.Extent2D) RenderTargetOption {
	return func(rt *RenderTarget) { rt.Extent = extent }
}

// WithSampleCount overrides the clone's MSAA sample count.
func WithSampleCount(samples vk.SampleCountFlagBits) RenderTargetOption {
	return func(rt *RenderTarget) { rt.SampleCount = samples }
}

// Clone returns a copy of rt with opts applied, the Go re-expression of
// `original_source/render_engine/include/render_engine/RenderPass.h`'s
// clone-by-builder pattern: a new render target description for a
// differently-sized or differently-attached pass without rebuilding every
// field from scratch.
func (rt RenderTarget) Clone(opts ...RenderTargetOption) RenderTarget {
	out := rt
	out.ColorViews = append([]vk.ImageView{}, rt.ColorViews...)
	for _, opt := range opts {
		opt(&out)
	}
	return out
}
