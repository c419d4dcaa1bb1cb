// Package postfx orchestrates the post-denoise image chain: temporal
// anti-aliasing against its own history pair, tone mapping, and a
// contrast-adaptive sharpen. Each stage is optional; the chain output is
// the last enabled stage's target.
package postfx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/voxtrace/voxtrace/rt/core"
	"github.com/voxtrace/voxtrace/rt/gpu"
)

const workgroupSize = 8

// velocityFalloff is the motion magnitude, in pixels, at which TAA feedback
// bottoms out at FeedbackMin.
const velocityFalloff = 8.0

// FeedbackForVelocity modulates the TAA history weight by screen-space
// velocity: still pixels keep FeedbackMax history, fast ones fall toward
// FeedbackMin. velocityPixels is the motion magnitude in pixels.
func FeedbackForVelocity(s core.PostFxSettings, velocityPixels float32) float32 {
	t := velocityPixels / velocityFalloff
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return s.FeedbackMax + (s.FeedbackMin-s.FeedbackMax)*t
}

// Shaders carries the compiled compute binaries for the three passes.
type Shaders struct {
	Taa     []byte
	Tonemap []byte
	Sharpen []byte
}

// PostFx owns the chain's pipelines and its own render-resolution targets.
// The TAA history pair double-buffers like the denoiser's: the current slot
// is written this frame and sampled next frame.
type PostFx struct {
	dev     gpu.Device
	sampler gpu.Sampler

	width  uint32
	height uint32

	TaaHistory    [2]gpu.GBufferImage // rgba16f, current slot is also the TAA output
	TonemapOutput gpu.GBufferImage    // rgba8
	SharpenOutput gpu.GBufferImage    // rgba8
	History       int

	taaLayout   gpu.BindGroupLayout
	taaPipeline gpu.ComputePipeline
	taaSets     [gpu.MaxFramesInFlight]gpu.BindGroup

	tonemapLayout   gpu.BindGroupLayout
	tonemapPipeline gpu.ComputePipeline
	tonemapSets     [gpu.MaxFramesInFlight]gpu.BindGroup

	sharpenLayout   gpu.BindGroupLayout
	sharpenPipeline gpu.ComputePipeline
	sharpenSets     [gpu.MaxFramesInFlight]gpu.BindGroup
}

func NewPostFx(dev gpu.Device, shaders Shaders, width, height uint32) (*PostFx, error) {
	p := &PostFx{dev: dev}

	var err error
	p.sampler, err = dev.NewLinearSampler()
	if err != nil {
		return nil, fmt.Errorf("postfx sampler: %w", err)
	}

	if err := p.createImages(width, height); err != nil {
		return nil, err
	}

	ubo := gpu.Descriptor{Binding: 0, Type: gpu.DescriptorUniformBuffer, Stages: gpu.StageCompute, Count: 1}
	storage := func(b uint32) gpu.Descriptor {
		return gpu.Descriptor{Binding: b, Type: gpu.DescriptorStorageImage, Stages: gpu.StageCompute, Count: 1}
	}
	sampled := func(b uint32) gpu.Descriptor {
		return gpu.Descriptor{Binding: b, Type: gpu.DescriptorCombinedImageSampler, Stages: gpu.StageCompute, Count: 1}
	}

	// TAA: input color, motion, current/previous geometry for rejection,
	// bilinear previous history, output history slot.
	p.taaLayout, p.taaPipeline, err = p.makePipeline("postfx.taa", shaders.Taa, []gpu.Descriptor{
		ubo, storage(1), storage(2), storage(3), storage(4), storage(5), sampled(6), storage(7), storage(8),
	}, taaPushSize)
	if err != nil {
		return nil, err
	}
	p.tonemapLayout, p.tonemapPipeline, err = p.makePipeline("postfx.tonemap", shaders.Tonemap, []gpu.Descriptor{
		ubo, storage(1), storage(2),
	}, tonemapPushSize)
	if err != nil {
		return nil, err
	}
	p.sharpenLayout, p.sharpenPipeline, err = p.makePipeline("postfx.sharpen", shaders.Sharpen, []gpu.Descriptor{
		ubo, storage(1), storage(2),
	}, sharpenPushSize)
	if err != nil {
		return nil, err
	}

	for i := 0; i < gpu.MaxFramesInFlight; i++ {
		if p.taaSets[i], err = dev.NewBindGroup(p.taaLayout, nil); err != nil {
			return nil, fmt.Errorf("taa set: %w", err)
		}
		if p.tonemapSets[i], err = dev.NewBindGroup(p.tonemapLayout, nil); err != nil {
			return nil, fmt.Errorf("tonemap set: %w", err)
		}
		if p.sharpenSets[i], err = dev.NewBindGroup(p.sharpenLayout, nil); err != nil {
			return nil, fmt.Errorf("sharpen set: %w", err)
		}
	}
	return p, nil
}

func (p *PostFx) makePipeline(label string, binary []byte, descs []gpu.Descriptor, pushSize uint32) (gpu.BindGroupLayout, gpu.ComputePipeline, error) {
	layout, err := p.dev.NewBindGroupLayout(descs)
	if err != nil {
		return nil, nil, fmt.Errorf("%s layout: %w", label, err)
	}
	mod, err := p.dev.NewShaderModule(label, binary)
	if err != nil {
		return nil, nil, fmt.Errorf("%s shader: %w", label, err)
	}
	pipe, err := p.dev.NewComputePipeline(label, mod, []gpu.BindGroupLayout{layout}, pushSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%s pipeline: %w", label, err)
	}
	return layout, pipe, nil
}

func (p *PostFx) createImages(width, height uint32) error {
	p.width, p.height = width, height
	usage := gpu.ImageUsageStorage | gpu.ImageUsageSampled | gpu.ImageUsageTransferSrc

	mk := func(dst *gpu.GBufferImage, label string, format gpu.Format) error {
		img, err := p.dev.NewImage(label, width, height, format, usage)
		if err != nil {
			return fmt.Errorf("postfx %s: %w", label, err)
		}
		view, err := p.dev.NewImageView(img)
		if err != nil {
			img.Destroy()
			return fmt.Errorf("postfx %s view: %w", label, err)
		}
		*dst = gpu.GBufferImage{Image: img, View: view}
		return nil
	}

	for h := 0; h < 2; h++ {
		if err := mk(&p.TaaHistory[h], fmt.Sprintf("postfx.taa_history[%d]", h), gpu.FormatRGBA16Float); err != nil {
			return err
		}
	}
	if err := mk(&p.TonemapOutput, "postfx.tonemap", gpu.FormatRGBA8Unorm); err != nil {
		return err
	}
	return mk(&p.SharpenOutput, "postfx.sharpen", gpu.FormatRGBA8Unorm)
}

// Resize recreates the chain's targets at the new extent. History contents
// are lost; the orchestrator resets reprojection state alongside.
func (p *PostFx) Resize(width, height uint32, tracker *gpu.LayoutTracker) error {
	p.destroyImages(tracker)
	return p.createImages(width, height)
}

// Previous returns the TAA history slot holding last frame's output.
func (p *PostFx) Previous() int {
	return 1 - p.History
}

// SwapHistory flips the TAA history slot; called with the denoiser swap.
func (p *PostFx) SwapHistory() {
	p.History = 1 - p.History
}

// OutputImage resolves the chain's final target for the given settings:
// sharpen, else tonemap, else TAA, else the untouched input. Sharpen only
// runs downstream of tonemap, so alone it contributes nothing.
func (p *PostFx) OutputImage(input *gpu.GBufferImage, s core.PostFxSettings) *gpu.GBufferImage {
	if s.TonemapEnabled && s.SharpenEnabled {
		return &p.SharpenOutput
	}
	if s.TonemapEnabled {
		return &p.TonemapOutput
	}
	if s.TaaEnabled {
		return &p.TaaHistory[p.History]
	}
	return input
}

const taaPushSize = 12

func taaPush(s core.PostFxSettings) []byte {
	buf := make([]byte, taaPushSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(s.FeedbackMin))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(s.FeedbackMax))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(velocityFalloff))
	return buf
}

const tonemapPushSize = 12

func tonemapPush(s core.PostFxSettings) []byte {
	buf := make([]byte, tonemapPushSize)
	binary.LittleEndian.PutUint32(buf[0:], uint32(s.TonemapOp))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(s.Exposure))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(s.SaturationBoost))
	return buf
}

const sharpenPushSize = 4

func sharpenPush(s core.PostFxSettings) []byte {
	buf := make([]byte, sharpenPushSize)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(s.SharpenStrength))
	return buf
}

func (p *PostFx) groups() (uint32, uint32) {
	return (p.width + workgroupSize - 1) / workgroupSize,
		(p.height + workgroupSize - 1) / workgroupSize
}

func computeBarrier(cmd gpu.CommandList) {
	cmd.Barrier(gpu.StageComputeShader, gpu.AccessShaderWrite,
		gpu.StageComputeShader, gpu.AccessShaderRead|gpu.AccessShaderWrite)
}

// Record runs the enabled stages over the denoiser output and returns the
// chain's final image.
func (p *PostFx) Record(cmd gpu.CommandList, frame int, input *gpu.GBufferImage, gb *gpu.GBuffer,
	tracker *gpu.LayoutTracker, s core.PostFxSettings, ubo gpu.Buffer, uboOffset, uboSize uint64) *gpu.GBufferImage {

	cur := input
	gx, gy := p.groups()

	if s.TaaEnabled {
		prev := &p.TaaHistory[p.Previous()]
		out := &p.TaaHistory[p.History]
		tracker.Ensure(cmd, prev.Image, gpu.RoleShaderRead)
		tracker.Ensure(cmd, out.Image, gpu.RoleGeneral)

		p.taaSets[frame].Update([]gpu.BindEntry{
			{Binding: 0, Buffer: ubo, Offset: uboOffset, Size: uboSize},
			{Binding: 1, View: cur.View},
			{Binding: 2, View: gb.MotionVectors.View},
			{Binding: 3, View: gb.WorldPosition.View},
			{Binding: 4, View: gb.NormalRoughness.View},
			{Binding: 5, View: gb.WorldPositionHistory[gb.Previous()].View},
			{Binding: 6, View: prev.View, Sampler: p.sampler},
			{Binding: 7, View: out.View},
			{Binding: 8, View: gb.NormalRoughnessHistory[gb.Previous()].View},
		})
		cmd.BindComputePipeline(p.taaPipeline)
		cmd.BindGroups(p.taaSets[frame])
		cmd.PushConstants(gpu.StageCompute, 0, taaPush(s))
		cmd.Dispatch(gx, gy, 1)
		computeBarrier(cmd)
		cur = out
	}

	if s.TonemapEnabled {
		tracker.Ensure(cmd, p.TonemapOutput.Image, gpu.RoleGeneral)
		p.tonemapSets[frame].Update([]gpu.BindEntry{
			{Binding: 0, Buffer: ubo, Offset: uboOffset, Size: uboSize},
			{Binding: 1, View: cur.View},
			{Binding: 2, View: p.TonemapOutput.View},
		})
		cmd.BindComputePipeline(p.tonemapPipeline)
		cmd.BindGroups(p.tonemapSets[frame])
		cmd.PushConstants(gpu.StageCompute, 0, tonemapPush(s))
		cmd.Dispatch(gx, gy, 1)
		computeBarrier(cmd)
		cur = &p.TonemapOutput

		if s.SharpenEnabled {
			tracker.Ensure(cmd, p.SharpenOutput.Image, gpu.RoleGeneral)
			p.sharpenSets[frame].Update([]gpu.BindEntry{
				{Binding: 0, Buffer: ubo, Offset: uboOffset, Size: uboSize},
				{Binding: 1, View: cur.View},
				{Binding: 2, View: p.SharpenOutput.View},
			})
			cmd.BindComputePipeline(p.sharpenPipeline)
			cmd.BindGroups(p.sharpenSets[frame])
			cmd.PushConstants(gpu.StageCompute, 0, sharpenPush(s))
			cmd.Dispatch(gx, gy, 1)
			computeBarrier(cmd)
			cur = &p.SharpenOutput
		}
	}
	return cur
}

func (p *PostFx) destroyImages(tracker *gpu.LayoutTracker) {
	images := []*gpu.GBufferImage{&p.TaaHistory[0], &p.TaaHistory[1], &p.TonemapOutput, &p.SharpenOutput}
	for _, gi := range images {
		if gi.View != nil {
			gi.View.Destroy()
			gi.View = nil
		}
		if gi.Image != nil {
			if tracker != nil {
				tracker.Forget(gi.Image)
			}
			gi.Image.Destroy()
			gi.Image = nil
		}
	}
}

func (p *PostFx) Destroy(tracker *gpu.LayoutTracker) {
	for i := 0; i < gpu.MaxFramesInFlight; i++ {
		for _, g := range []gpu.BindGroup{p.taaSets[i], p.tonemapSets[i], p.sharpenSets[i]} {
			if g != nil {
				g.Destroy()
			}
		}
	}
	for _, pl := range []gpu.ComputePipeline{p.taaPipeline, p.tonemapPipeline, p.sharpenPipeline} {
		if pl != nil {
			pl.Destroy()
		}
	}
	for _, l := range []gpu.BindGroupLayout{p.taaLayout, p.tonemapLayout, p.sharpenLayout} {
		if l != nil {
			l.Destroy()
		}
	}
	p.destroyImages(tracker)
	if p.sampler != nil {
		p.sampler.Destroy()
		p.sampler = nil
	}
}
