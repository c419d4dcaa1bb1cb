// Package denoise orchestrates the SVGF-style denoising chain: temporal
// accumulation with geometry-validated history, variance estimation, and an
// edge-aware à-trous wavelet filter with ping-pong scratch targets.
package denoise

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/voxtrace/voxtrace/rt/core"
	"github.com/voxtrace/voxtrace/rt/gpu"
)

// MaxAtrousIterations bounds the wavelet filter depth.
const MaxAtrousIterations = 8

const workgroupSize = 8

// HistoryAlpha returns the temporal blend factor for a pixel. Rejected or
// missing history blends nothing in; otherwise the factor decays toward
// TemporalAlpha as the history grows, floored so a short history still
// converges.
func HistoryAlpha(s core.DenoiserSettings, historyLength float32, historyValid bool) float32 {
	if !historyValid {
		return 1
	}
	limit := float32(1)
	if s.MinHistoryLength > 0 {
		limit = 1 / s.MinHistoryLength
	}
	n := clamp32(historyLength+1, 1, limit)
	alpha := 1 / n
	if alpha < s.TemporalAlpha {
		return s.TemporalAlpha
	}
	return alpha
}

// EdgeWeight is the à-trous edge-stopping function for one neighbor tap,
// before the kernel coefficient. lumaDiff and depthDiff are absolute
// differences; depthGrad is the depth gradient magnitude along the tap;
// normalDot is the cosine between center and neighbor normals; variance is
// the center pixel's luminance variance, which widens the luma tolerance in
// noisy regions.
func EdgeWeight(s core.DenoiserSettings, lumaDiff, depthDiff, depthGrad, normalDot, variance float32) float32 {
	const eps = 1e-4
	phiC := s.PhiColor * float32(math.Sqrt(float64(max32(variance, 1e-8))))
	wc := lumaDiff / max32(phiC, eps)
	wz := depthDiff / (s.PhiDepth*depthGrad + eps)
	nd := max32(0, 1-normalDot)
	wn := nd * nd / max32(s.PhiNormal, eps)
	return float32(math.Exp(float64(-wc - wz - wn)))
}

// AtrousOutputIndex reports which scratch image holds the filter result:
// 0 for ping, 1 for pong. Iteration 0 reads the accumulated history and
// writes pong, later iterations alternate, so an even iteration count
// always lands in ping (zero iterations copies into ping).
func AtrousOutputIndex(iterations int) int {
	if iterations%2 == 0 {
		return 0
	}
	return 1
}

// AtrousStepSize is the dilation of iteration i.
func AtrousStepSize(iteration int) uint32 {
	return 1 << iteration
}

func clamp32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// Shaders carries the compiled compute binaries for the three passes.
type Shaders struct {
	Temporal []byte
	Variance []byte
	Atrous   []byte
}

// Denoiser owns the three compute pipelines and rewrites its descriptor
// sets every frame against the G-buffer's current history slot.
type Denoiser struct {
	dev     gpu.Device
	sampler gpu.Sampler

	width  uint32
	height uint32

	temporalLayout   gpu.BindGroupLayout
	temporalPipeline gpu.ComputePipeline
	temporalSets     [gpu.MaxFramesInFlight]gpu.BindGroup

	varianceLayout   gpu.BindGroupLayout
	variancePipeline gpu.ComputePipeline
	varianceSets     [gpu.MaxFramesInFlight]gpu.BindGroup

	atrousLayout   gpu.BindGroupLayout
	atrousPipeline gpu.ComputePipeline
	// Three input/output pairings cover any iteration count: history->ping,
	// ping->pong, pong->ping.
	atrousSets [gpu.MaxFramesInFlight][3]gpu.BindGroup
}

func NewDenoiser(dev gpu.Device, shaders Shaders, width, height uint32) (*Denoiser, error) {
	d := &Denoiser{dev: dev, width: width, height: height}

	var err error
	d.sampler, err = dev.NewLinearSampler()
	if err != nil {
		return nil, fmt.Errorf("denoise sampler: %w", err)
	}

	storageImages := func(first, count uint32) []gpu.Descriptor {
		out := make([]gpu.Descriptor, 0, count)
		for b := first; b < first+count; b++ {
			out = append(out, gpu.Descriptor{Binding: b, Type: gpu.DescriptorStorageImage, Stages: gpu.StageCompute, Count: 1})
		}
		return out
	}

	// Temporal accumulation: frame UBO, current G-buffer channels, previous
	// history (color sampled bilinearly, the rest as storage), outputs.
	temporalDescs := []gpu.Descriptor{
		{Binding: 0, Type: gpu.DescriptorUniformBuffer, Stages: gpu.StageCompute, Count: 1},
	}
	temporalDescs = append(temporalDescs, storageImages(1, 4)...) // color, worldPos, normalRough, motion
	temporalDescs = append(temporalDescs, gpu.Descriptor{
		Binding: 5, Type: gpu.DescriptorCombinedImageSampler, Stages: gpu.StageCompute, Count: 1,
	})
	temporalDescs = append(temporalDescs, storageImages(6, 7)...) // prev moments/length/geometry, current outputs

	d.temporalLayout, d.temporalPipeline, err = d.makePipeline("denoise.temporal", shaders.Temporal, temporalDescs, 0)
	if err != nil {
		return nil, err
	}

	varianceDescs := []gpu.Descriptor{
		{Binding: 0, Type: gpu.DescriptorUniformBuffer, Stages: gpu.StageCompute, Count: 1},
	}
	varianceDescs = append(varianceDescs, storageImages(1, 4)...) // color, moments, length, variance
	d.varianceLayout, d.variancePipeline, err = d.makePipeline("denoise.variance", shaders.Variance, varianceDescs, 0)
	if err != nil {
		return nil, err
	}

	atrousDescs := []gpu.Descriptor{
		{Binding: 0, Type: gpu.DescriptorUniformBuffer, Stages: gpu.StageCompute, Count: 1},
	}
	atrousDescs = append(atrousDescs, storageImages(1, 5)...) // in, out, normalRough, worldPos, variance
	d.atrousLayout, d.atrousPipeline, err = d.makePipeline("denoise.atrous", shaders.Atrous, atrousDescs, atrousPushSize)
	if err != nil {
		return nil, err
	}

	for i := 0; i < gpu.MaxFramesInFlight; i++ {
		if d.temporalSets[i], err = dev.NewBindGroup(d.temporalLayout, nil); err != nil {
			return nil, fmt.Errorf("denoise temporal set: %w", err)
		}
		if d.varianceSets[i], err = dev.NewBindGroup(d.varianceLayout, nil); err != nil {
			return nil, fmt.Errorf("denoise variance set: %w", err)
		}
		for p := 0; p < 3; p++ {
			if d.atrousSets[i][p], err = dev.NewBindGroup(d.atrousLayout, nil); err != nil {
				return nil, fmt.Errorf("denoise atrous set: %w", err)
			}
		}
	}
	return d, nil
}

func (d *Denoiser) makePipeline(label string, binary []byte, descs []gpu.Descriptor, pushSize uint32) (gpu.BindGroupLayout, gpu.ComputePipeline, error) {
	layout, err := d.dev.NewBindGroupLayout(descs)
	if err != nil {
		return nil, nil, fmt.Errorf("%s layout: %w", label, err)
	}
	mod, err := d.dev.NewShaderModule(label, binary)
	if err != nil {
		return nil, nil, fmt.Errorf("%s shader: %w", label, err)
	}
	pipe, err := d.dev.NewComputePipeline(label, mod, []gpu.BindGroupLayout{layout}, pushSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%s pipeline: %w", label, err)
	}
	return layout, pipe, nil
}

// Resize records the new dispatch extent. The images themselves belong to
// the G-buffer and are recreated by the orchestrator.
func (d *Denoiser) Resize(width, height uint32) {
	d.width = width
	d.height = height
}

// Output returns the image the filtered result lands in for the given
// iteration count. With the denoiser off the raw trace is passed through.
func (d *Denoiser) Output(gb *gpu.GBuffer, s core.DenoiserSettings) *gpu.GBufferImage {
	if !s.Enabled {
		return &gb.Color
	}
	if AtrousOutputIndex(s.AtrousIterations) == 0 {
		return &gb.FilterPing
	}
	return &gb.FilterPong
}

const atrousPushSize = 16

func atrousPush(step uint32, s core.DenoiserSettings) []byte {
	buf := make([]byte, atrousPushSize)
	binary.LittleEndian.PutUint32(buf[0:], step)
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(s.PhiColor))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(s.PhiNormal))
	binary.LittleEndian.PutUint32(buf[12:], math.Float32bits(s.PhiDepth))
	return buf
}

func (d *Denoiser) groups() (uint32, uint32) {
	return (d.width + workgroupSize - 1) / workgroupSize,
		(d.height + workgroupSize - 1) / workgroupSize
}

func computeBarrier(cmd gpu.CommandList) {
	cmd.Barrier(gpu.StageComputeShader, gpu.AccessShaderWrite,
		gpu.StageComputeShader, gpu.AccessShaderRead|gpu.AccessShaderWrite)
}

// Record runs the three passes for the given in-flight frame. The previous
// history color is sampled, so it transitions to shader-read; every other
// target runs as general storage.
func (d *Denoiser) Record(cmd gpu.CommandList, frame int, gb *gpu.GBuffer, tracker *gpu.LayoutTracker,
	s core.DenoiserSettings, ubo gpu.Buffer, uboOffset, uboSize uint64) {

	if !s.Enabled {
		return
	}

	cur, prev := gb.History, gb.Previous()

	for _, img := range gb.All() {
		tracker.Ensure(cmd, img.Image, gpu.RoleGeneral)
	}
	tracker.Ensure(cmd, gb.HistoryColor[prev].Image, gpu.RoleShaderRead)

	gx, gy := d.groups()

	// Pass A: temporal accumulation.
	d.temporalSets[frame].Update([]gpu.BindEntry{
		{Binding: 0, Buffer: ubo, Offset: uboOffset, Size: uboSize},
		{Binding: 1, View: gb.Color.View},
		{Binding: 2, View: gb.WorldPosition.View},
		{Binding: 3, View: gb.NormalRoughness.View},
		{Binding: 4, View: gb.MotionVectors.View},
		{Binding: 5, View: gb.HistoryColor[prev].View, Sampler: d.sampler},
		{Binding: 6, View: gb.HistoryMoments[prev].View},
		{Binding: 7, View: gb.HistoryLength[prev].View},
		{Binding: 8, View: gb.WorldPositionHistory[prev].View},
		{Binding: 9, View: gb.NormalRoughnessHistory[prev].View},
		{Binding: 10, View: gb.HistoryColor[cur].View},
		{Binding: 11, View: gb.HistoryMoments[cur].View},
		{Binding: 12, View: gb.HistoryLength[cur].View},
	})
	cmd.BindComputePipeline(d.temporalPipeline)
	cmd.BindGroups(d.temporalSets[frame])
	cmd.Dispatch(gx, gy, 1)
	computeBarrier(cmd)

	// Pass B: variance estimation.
	d.varianceSets[frame].Update([]gpu.BindEntry{
		{Binding: 0, Buffer: ubo, Offset: uboOffset, Size: uboSize},
		{Binding: 1, View: gb.HistoryColor[cur].View},
		{Binding: 2, View: gb.HistoryMoments[cur].View},
		{Binding: 3, View: gb.HistoryLength[cur].View},
		{Binding: 4, View: gb.Variance.View},
	})
	cmd.BindComputePipeline(d.variancePipeline)
	cmd.BindGroups(d.varianceSets[frame])
	cmd.Dispatch(gx, gy, 1)
	computeBarrier(cmd)

	// Pass C: à-trous. Zero iterations degenerates to a copy so the output
	// image is still valid for post-processing.
	iterations := s.AtrousIterations
	if iterations > MaxAtrousIterations {
		iterations = MaxAtrousIterations
	}
	if iterations <= 0 {
		tracker.Ensure(cmd, gb.HistoryColor[cur].Image, gpu.RoleTransferSrc)
		tracker.Ensure(cmd, gb.FilterPing.Image, gpu.RoleTransferDst)
		cmd.CopyImage(gb.HistoryColor[cur].Image, gb.FilterPing.Image)
		tracker.Ensure(cmd, gb.HistoryColor[cur].Image, gpu.RoleGeneral)
		tracker.Ensure(cmd, gb.FilterPing.Image, gpu.RoleGeneral)
		return
	}

	pairings := [3][2]*gpu.GBufferImage{
		{&gb.HistoryColor[cur], &gb.FilterPong},
		{&gb.FilterPong, &gb.FilterPing},
		{&gb.FilterPing, &gb.FilterPong},
	}
	for p, pair := range pairings {
		d.atrousSets[frame][p].Update([]gpu.BindEntry{
			{Binding: 0, Buffer: ubo, Offset: uboOffset, Size: uboSize},
			{Binding: 1, View: pair[0].View},
			{Binding: 2, View: pair[1].View},
			{Binding: 3, View: gb.NormalRoughness.View},
			{Binding: 4, View: gb.WorldPosition.View},
			{Binding: 5, View: gb.Variance.View},
		})
	}

	cmd.BindComputePipeline(d.atrousPipeline)
	for i := 0; i < iterations; i++ {
		pairing := 0
		if i > 0 {
			pairing = 1 + (i+1)%2 // odd iterations pong->ping, even ping->pong
		}
		cmd.BindGroups(d.atrousSets[frame][pairing])
		cmd.PushConstants(gpu.StageCompute, 0, atrousPush(AtrousStepSize(i), s))
		cmd.Dispatch(gx, gy, 1)
		if i != iterations-1 {
			computeBarrier(cmd)
		}
	}
}

// CopyGeometryHistory copies the frame's world positions and normals into
// the current history slot. Runs after all passes and before SwapHistory so
// next frame's validation compares against this frame's geometry.
func (d *Denoiser) CopyGeometryHistory(cmd gpu.CommandList, gb *gpu.GBuffer, tracker *gpu.LayoutTracker) {
	cur := gb.History
	cmd.Barrier(gpu.StageComputeShader, gpu.AccessShaderWrite,
		gpu.StageTransfer, gpu.AccessTransferRead|gpu.AccessTransferWrite)

	copies := [2][2]*gpu.GBufferImage{
		{&gb.WorldPosition, &gb.WorldPositionHistory[cur]},
		{&gb.NormalRoughness, &gb.NormalRoughnessHistory[cur]},
	}
	for _, c := range copies {
		tracker.Ensure(cmd, c[0].Image, gpu.RoleTransferSrc)
		tracker.Ensure(cmd, c[1].Image, gpu.RoleTransferDst)
		cmd.CopyImage(c[0].Image, c[1].Image)
	}
	for _, c := range copies {
		tracker.Ensure(cmd, c[0].Image, gpu.RoleGeneral)
		tracker.Ensure(cmd, c[1].Image, gpu.RoleGeneral)
	}
	cmd.Barrier(gpu.StageTransfer, gpu.AccessTransferWrite,
		gpu.StageComputeShader, gpu.AccessShaderRead)
}

func (d *Denoiser) Destroy() {
	for i := 0; i < gpu.MaxFramesInFlight; i++ {
		if d.temporalSets[i] != nil {
			d.temporalSets[i].Destroy()
		}
		if d.varianceSets[i] != nil {
			d.varianceSets[i].Destroy()
		}
		for p := 0; p < 3; p++ {
			if d.atrousSets[i][p] != nil {
				d.atrousSets[i][p].Destroy()
			}
		}
	}
	for _, p := range []gpu.ComputePipeline{d.temporalPipeline, d.variancePipeline, d.atrousPipeline} {
		if p != nil {
			p.Destroy()
		}
	}
	for _, l := range []gpu.BindGroupLayout{d.temporalLayout, d.varianceLayout, d.atrousLayout} {
		if l != nil {
			l.Destroy()
		}
	}
	if d.sampler != nil {
		d.sampler.Destroy()
		d.sampler = nil
	}
}
