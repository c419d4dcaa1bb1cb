package gpu

import (
	"fmt"

	"github.com/voxtrace/voxtrace/rt/volume"
)

// MaxFramesInFlight is the CPU/GPU overlap depth; every per-frame resource
// (descriptor sets, fences, uniform arenas) exists this many times.
const MaxFramesInFlight = 2

// Shader group indices in SBT order.
const (
	groupRaygen = iota
	groupMiss
	groupMissShadow
	groupHit       // intersection + closest hit
	groupHitShadow // intersection only
	groupCount
)

// AlignUp rounds v up to the next multiple of alignment (a power of two).
func AlignUp(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// RayTracingPass owns the RT pipeline, its descriptor layout, the world
// buffers, and the shader-binding table. Two descriptor sets rotate with
// the frames in flight and are rewritten each frame against the current
// world and G-buffer.
type RayTracingPass struct {
	dev Device

	layout   BindGroupLayout
	pipeline RayTracingPipeline
	sets     [MaxFramesInFlight]BindGroup

	nodesBuf     Buffer
	chunksBuf    Buffer
	materialsBuf Buffer

	sbtBuffer    Buffer
	sbtStride    uint64
	raygenRegion StridedRegion
	missRegion   StridedRegion
	hitRegion    StridedRegion
}

// RayTracingShaders carries the compiled shader binaries for the five
// groups, in the order the SBT expects.
type RayTracingShaders struct {
	Raygen       []byte
	Miss         []byte
	MissShadow   []byte
	Intersection []byte
	ClosestHit   []byte
}

// NewRayTracingPass builds the descriptor layout, pipeline and SBT.
func NewRayTracingPass(dev Device, shaders RayTracingShaders) (*RayTracingPass, error) {
	p := &RayTracingPass{dev: dev}

	traversalStages := StageRaygen | StageClosestHit | StageIntersection
	var err error
	p.layout, err = dev.NewBindGroupLayout([]Descriptor{
		{Binding: 0, Type: DescriptorAccelerationStructure, Stages: traversalStages, Count: 1},
		{Binding: 1, Type: DescriptorStorageBuffer, Stages: traversalStages, Count: 1}, // global nodes
		{Binding: 2, Type: DescriptorStorageBuffer, Stages: traversalStages, Count: 1}, // sub-chunk metadata
		{Binding: 3, Type: DescriptorUniformBuffer, Stages: StageRaygen, Count: 1},
		{Binding: 4, Type: DescriptorStorageImage, Stages: StageRaygen, Count: 1},      // color
		{Binding: 5, Type: DescriptorStorageImage, Stages: StageRaygen, Count: 1},      // world position
		{Binding: 6, Type: DescriptorStorageImage, Stages: StageRaygen, Count: 1},      // normal+roughness
		{Binding: 7, Type: DescriptorStorageImage, Stages: StageRaygen, Count: 1},      // albedo+metallic
		{Binding: 8, Type: DescriptorStorageImage, Stages: StageRaygen, Count: 1},      // motion vectors
		{Binding: 9, Type: DescriptorStorageBuffer, Stages: StageClosestHit, Count: 1}, // materials
	})
	if err != nil {
		return nil, fmt.Errorf("rt layout: %w", err)
	}

	mod := func(label string, binary []byte) (ShaderModule, error) {
		m, err := dev.NewShaderModule(label, binary)
		if err != nil {
			return nil, fmt.Errorf("shader %s: %w", label, err)
		}
		return m, nil
	}
	raygen, err := mod("raygen", shaders.Raygen)
	if err != nil {
		return nil, err
	}
	miss, err := mod("miss", shaders.Miss)
	if err != nil {
		return nil, err
	}
	missShadow, err := mod("miss_shadow", shaders.MissShadow)
	if err != nil {
		return nil, err
	}
	isect, err := mod("intersect", shaders.Intersection)
	if err != nil {
		return nil, err
	}
	chit, err := mod("closest_hit", shaders.ClosestHit)
	if err != nil {
		return nil, err
	}

	p.pipeline, err = dev.NewRayTracingPipeline("voxel_rt", RayTracingPipelineDesc{
		Raygen:       raygen,
		Miss:         miss,
		MissShadow:   missShadow,
		Intersection: isect,
		ClosestHit:   chit,
		Layouts:      []BindGroupLayout{p.layout},
		MaxRecursion: 2,
	})
	if err != nil {
		return nil, fmt.Errorf("rt pipeline: %w", err)
	}

	if err := p.buildShaderBindingTable(); err != nil {
		return nil, err
	}

	for i := range p.sets {
		p.sets[i], err = dev.NewBindGroup(p.layout, nil)
		if err != nil {
			return nil, fmt.Errorf("rt descriptor set %d: %w", i, err)
		}
	}
	return p, nil
}

// buildShaderBindingTable copies the five group handles into a buffer with
// stride alignUp(handleSize, groupBaseAlignment). Regions: raygen = group 0,
// miss = groups 1-2, hit = groups 3-4. Alignment violations are programmer
// errors and fail fast.
func (p *RayTracingPass) buildShaderBindingTable() error {
	props := p.dev.Properties()
	handleSize := uint64(props.ShaderGroupHandleSize)
	baseAlign := uint64(props.ShaderGroupBaseAlignment)
	if handleSize == 0 || baseAlign == 0 || baseAlign&(baseAlign-1) != 0 {
		panic(fmt.Sprintf("invalid SBT properties: handle=%d align=%d", handleSize, baseAlign))
	}
	p.sbtStride = AlignUp(handleSize, baseAlign)

	handles, err := p.pipeline.GroupHandles(0, groupCount)
	if err != nil {
		return fmt.Errorf("sbt group handles: %w", err)
	}
	if uint64(len(handles)) != handleSize*groupCount {
		return fmt.Errorf("sbt: got %d handle bytes, want %d", len(handles), handleSize*groupCount)
	}

	table := make([]byte, p.sbtStride*groupCount)
	for g := uint64(0); g < groupCount; g++ {
		copy(table[g*p.sbtStride:], handles[g*handleSize:(g+1)*handleSize])
	}

	p.sbtBuffer, err = p.dev.NewBuffer("sbt", uint64(len(table)),
		BufferUsageShaderBindingTable|BufferUsageDeviceAddress|BufferUsageTransferDst, MemoryDeviceLocal)
	if err != nil {
		return fmt.Errorf("sbt buffer: %w", err)
	}
	p.sbtBuffer.Write(0, table)

	base := p.sbtBuffer.DeviceAddress()
	if base%baseAlign != 0 {
		panic(fmt.Sprintf("sbt device address %#x not aligned to %d", base, baseAlign))
	}

	p.raygenRegion = StridedRegion{Address: base, Stride: p.sbtStride, Size: p.sbtStride}
	p.missRegion = StridedRegion{Address: base + p.sbtStride*groupMiss, Stride: p.sbtStride, Size: 2 * p.sbtStride}
	p.hitRegion = StridedRegion{Address: base + p.sbtStride*groupHit, Stride: p.sbtStride, Size: 2 * p.sbtStride}
	return nil
}

// SBTStride exposes the record stride, mostly for verification.
func (p *RayTracingPass) SBTStride() uint64 {
	return p.sbtStride
}

// UploadWorld writes the packed world and materials into the storage
// buffers, growing them as needed. Returns true when any buffer was
// recreated (descriptor sets are rewritten every frame anyway).
func (p *RayTracingPass) UploadWorld(pw *volume.PackedWorld, materials []byte) (bool, error) {
	const headroom = 64 * 1024
	recreated := false

	r, err := EnsureBuffer(p.dev, "world.nodes", &p.nodesBuf, pw.NodesBytes(), BufferUsageStorage, headroom)
	if err != nil {
		return false, err
	}
	recreated = recreated || r

	r, err = EnsureBuffer(p.dev, "world.chunks", &p.chunksBuf, pw.ChunksBytes(), BufferUsageStorage, headroom)
	if err != nil {
		return false, err
	}
	recreated = recreated || r

	r, err = EnsureBuffer(p.dev, "world.materials", &p.materialsBuf, materials, BufferUsageStorage, 4096)
	if err != nil {
		return false, err
	}
	return recreated || r, nil
}

// UpdateDescriptors rewrites the frame's descriptor set against the current
// TLAS, world buffers, uniform slice and G-buffer.
func (p *RayTracingPass) UpdateDescriptors(frame int, world *AccelWorld, ubo Buffer, uboOffset, uboSize uint64, gb *GBuffer) {
	if world.Empty() {
		return
	}
	p.sets[frame].Update([]BindEntry{
		{Binding: 0, Accel: world.Tlas},
		{Binding: 1, Buffer: p.nodesBuf, Size: p.nodesBuf.Size()},
		{Binding: 2, Buffer: p.chunksBuf, Size: p.chunksBuf.Size()},
		{Binding: 3, Buffer: ubo, Offset: uboOffset, Size: uboSize},
		{Binding: 4, View: gb.Color.View},
		{Binding: 5, View: gb.WorldPosition.View},
		{Binding: 6, View: gb.NormalRoughness.View},
		{Binding: 7, View: gb.AlbedoMetallic.View},
		{Binding: 8, View: gb.MotionVectors.View},
		{Binding: 9, Buffer: p.materialsBuf, Size: p.materialsBuf.Size()},
	})
}

// Record binds the pipeline and traces one ray per pixel. With an empty
// world the dispatch is skipped entirely.
func (p *RayTracingPass) Record(cmd CommandList, frame int, world *AccelWorld, width, height uint32) {
	if world.Empty() {
		return
	}
	cmd.BindRayTracingPipeline(p.pipeline)
	cmd.BindGroups(p.sets[frame])
	cmd.TraceRays(p.raygenRegion, p.missRegion, p.hitRegion, StridedRegion{}, width, height, 1)
}

func (p *RayTracingPass) Destroy() {
	for i := range p.sets {
		if p.sets[i] != nil {
			p.sets[i].Destroy()
		}
	}
	for _, b := range []*Buffer{&p.sbtBuffer, &p.materialsBuf, &p.chunksBuf, &p.nodesBuf} {
		if *b != nil {
			(*b).Destroy()
			*b = nil
		}
	}
	if p.pipeline != nil {
		p.pipeline.Destroy()
	}
	if p.layout != nil {
		p.layout.Destroy()
	}
}
