// Package gpu defines the device abstraction the renderer core is written
// against, plus the pieces of the render pipeline that own GPU resources:
// the acceleration-structure builder and the ray-tracing dispatcher.
//
// The concrete backend (Vulkan or equivalent) implements these interfaces;
// the core only requires the capabilities listed here. Handles are plain
// interfaces so tests can substitute recording fakes.
package gpu

import "errors"

// Transient presentation errors. The frame orchestrator abandons the frame
// and rebuilds the swapchain on the next one; everything else is fatal.
var (
	ErrSwapchainOutOfDate  = errors.New("gpu: swapchain out of date")
	ErrSwapchainSuboptimal = errors.New("gpu: swapchain suboptimal")
)

type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatRGBA16Float
	FormatRGBA32Float
	FormatRG16Float
	FormatRG32Float
	FormatR16Float
	FormatR32Float
	FormatD32Float
)

// ImageRole names what an image is about to be used as. The backend derives
// the layout transition and the stage/access masks implied by the old and
// new roles.
type ImageRole int

const (
	RoleUndefined ImageRole = iota
	RoleGeneral             // compute storage read/write
	RoleShaderRead
	RoleColorAttachment
	RoleDepthAttachment
	RoleTransferSrc
	RoleTransferDst
	RolePresent
)

// Pipeline stage and access flags, synchronization-2 granularity.
type StageFlags uint32

const (
	StageTopOfPipe StageFlags = 1 << iota
	StageRayTracingShader
	StageComputeShader
	StageTransfer
	StageColorOutput
	StageBottomOfPipe
	StageAccelBuild
)

type AccessFlags uint32

const (
	AccessShaderRead AccessFlags = 1 << iota
	AccessShaderWrite
	AccessTransferRead
	AccessTransferWrite
	AccessColorWrite
	AccessAccelRead
	AccessAccelWrite

	AccessNone AccessFlags = 0
)

type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << iota
	BufferUsageUniform
	BufferUsageTransferSrc
	BufferUsageTransferDst
	BufferUsageShaderBindingTable
	BufferUsageAccelStorage
	BufferUsageAccelBuildInput
	BufferUsageDeviceAddress
)

type ImageUsage uint32

const (
	ImageUsageStorage ImageUsage = 1 << iota
	ImageUsageSampled
	ImageUsageColorAttachment
	ImageUsageDepthAttachment
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

type MemoryKind int

const (
	MemoryDeviceLocal MemoryKind = iota
	MemoryHostVisible
)

type ShaderStages uint32

const (
	StageRaygen ShaderStages = 1 << iota
	StageMiss
	StageClosestHit
	StageIntersection
	StageCompute
)

// DescriptorType mirrors the binding types the pipeline layouts use.
type DescriptorType int

const (
	DescriptorAccelerationStructure DescriptorType = iota
	DescriptorStorageBuffer
	DescriptorUniformBuffer
	DescriptorStorageImage
	DescriptorCombinedImageSampler
)

// Descriptor declares one binding of a bind-group layout.
type Descriptor struct {
	Binding uint32
	Type    DescriptorType
	Stages  ShaderStages
	Count   uint32
}

// BindEntry supplies the resource for one binding when writing a bind group.
type BindEntry struct {
	Binding uint32
	Buffer  Buffer
	Offset  uint64
	Size    uint64
	View    ImageView
	Sampler Sampler
	Accel   AccelStructure
}

type Buffer interface {
	Size() uint64
	// Write copies host data into the buffer. Host-visible buffers write
	// through the persistent mapping; device-local buffers stage internally.
	Write(offset uint64, data []byte)
	DeviceAddress() uint64
	Destroy()
}

type Image interface {
	Width() uint32
	Height() uint32
	Format() Format
	Destroy()
}

type ImageView interface {
	Image() Image
	Destroy()
}

type Sampler interface {
	Destroy()
}

type AccelStructure interface {
	DeviceAddress() uint64
	Destroy()
}

type BindGroupLayout interface {
	Destroy()
}

type BindGroup interface {
	// Update rewrites the group's bindings in place; legal while no
	// submitted work references the group.
	Update(entries []BindEntry)
	Destroy()
}

type Semaphore interface {
	Destroy()
}

type Fence interface {
	// Wait blocks until signaled; fences wait forever by design.
	Wait()
	Reset()
	Destroy()
}

type ComputePipeline interface {
	Destroy()
}

// RayTracingPipeline also exposes the shader-group handles used to assemble
// the shader-binding table.
type RayTracingPipeline interface {
	// GroupHandles returns the opaque handle data for groups
	// [first, first+count), HandleSize() bytes each, tightly packed.
	GroupHandles(first, count uint32) ([]byte, error)
	Destroy()
}

// StridedRegion addresses one SBT region for TraceRays.
type StridedRegion struct {
	Address uint64
	Stride  uint64
	Size    uint64
}

// AccelGeometryAABBs describes procedural geometry for a BLAS build:
// Count AABBs of Stride bytes each, read from Buffer's device address.
type AccelGeometryAABBs struct {
	Buffer Buffer
	Count  uint32
	Stride uint64
	Opaque bool
}

// AccelInstance is one TLAS entry.
type AccelInstance struct {
	Transform            [12]float32 // row-major 3x4
	CustomIndex          uint32
	Mask                 uint8
	SBTRecordOffset      uint32
	FrontFaceCullDisable bool
	BlasAddress          uint64
}

// AccelBuildSizes is the result of a build-sizes query.
type AccelBuildSizes struct {
	AccelSize   uint64
	ScratchSize uint64
}

// CommandList records work for a single submission. Single-threaded use.
type CommandList interface {
	// Barrier issues a global memory barrier between the given scopes.
	Barrier(srcStage StageFlags, srcAccess AccessFlags, dstStage StageFlags, dstAccess AccessFlags)
	// ImageBarrier transitions an image between roles, with the
	// stage/access masks implied by both.
	ImageBarrier(img Image, oldRole, newRole ImageRole)

	CopyImage(src, dst Image)
	// BlitToImage scales with linear filtering.
	BlitToImage(src, dst Image)
	// ClearColorImage fills every texel with the given color. The image
	// must be in the transfer-destination role.
	ClearColorImage(img Image, r, g, b, a float32)

	BindComputePipeline(p ComputePipeline)
	BindRayTracingPipeline(p RayTracingPipeline)
	BindGroups(groups ...BindGroup)
	PushConstants(stages ShaderStages, offset uint32, data []byte)
	Dispatch(x, y, z uint32)
	TraceRays(raygen, miss, hit, callable StridedRegion, width, height, depth uint32)

	BuildAccelStructureAABBs(dst AccelStructure, geom AccelGeometryAABBs, scratch Buffer)
	BuildAccelStructureInstances(dst AccelStructure, instances Buffer, count uint32, scratch Buffer)

	// BeginRendering starts dynamic rendering into a color attachment with
	// load/store semantics chosen by the caller (used for the GUI overlay).
	BeginRendering(color ImageView, load bool)
	EndRendering()
}

// SubmitInfo carries the per-frame synchronization for a queue submission.
type SubmitInfo struct {
	Wait   Semaphore
	Signal Semaphore
	Fence  Fence
}

// Swapchain owns the presentable images. Acquire and Present surface
// staleness through ErrSwapchainOutOfDate / ErrSwapchainSuboptimal.
type Swapchain interface {
	Acquire(imageAvailable Semaphore) (uint32, error)
	Present(imageIndex uint32, wait Semaphore) error
	ImageCount() int
	ImageAt(i uint32) Image
	Width() uint32
	Height() uint32
	Destroy()
}

// DeviceProperties reports the limits the SBT layout depends on.
type DeviceProperties struct {
	ShaderGroupHandleSize           uint32
	ShaderGroupBaseAlignment        uint32
	MinUniformBufferOffsetAlignment uint64
}

// ShaderModule is a compiled shader binary wrapped by the backend.
type ShaderModule interface {
	Destroy()
}

// RayTracingPipelineDesc lists the five shader groups in SBT order.
type RayTracingPipelineDesc struct {
	Raygen       ShaderModule
	Miss         ShaderModule
	MissShadow   ShaderModule
	Intersection ShaderModule
	ClosestHit   ShaderModule
	Layouts      []BindGroupLayout
	MaxRecursion uint32
}

// Device is the root capability set required from the GPU collaborator.
type Device interface {
	Properties() DeviceProperties

	NewBuffer(label string, size uint64, usage BufferUsage, memory MemoryKind) (Buffer, error)
	NewImage(label string, width, height uint32, format Format, usage ImageUsage) (Image, error)
	NewImageView(img Image) (ImageView, error)
	NewLinearSampler() (Sampler, error)

	NewBindGroupLayout(descriptors []Descriptor) (BindGroupLayout, error)
	NewBindGroup(layout BindGroupLayout, entries []BindEntry) (BindGroup, error)

	// NewShaderModule wraps shader code, either SPIR-V or GLSL source the
	// backend compiles on load.
	NewShaderModule(label string, binary []byte) (ShaderModule, error)
	NewComputePipeline(label string, module ShaderModule, layouts []BindGroupLayout, pushConstantSize uint32) (ComputePipeline, error)
	NewRayTracingPipeline(label string, desc RayTracingPipelineDesc) (RayTracingPipeline, error)

	AccelBuildSizesAABBs(count uint32) (AccelBuildSizes, error)
	AccelBuildSizesInstances(count uint32) (AccelBuildSizes, error)
	NewAccelStructure(label string, backing Buffer, size uint64, topLevel bool) (AccelStructure, error)

	NewSemaphore() (Semaphore, error)
	NewFence(signaled bool) (Fence, error)

	NewCommandList() (CommandList, error)
	Submit(cmd CommandList, info SubmitInfo) error
	// SubmitAndWait records a one-shot submission and blocks until it
	// retires; used by uploads and acceleration-structure builds.
	SubmitAndWait(cmd CommandList) error
	WaitIdle()
}
