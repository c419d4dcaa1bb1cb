package gpu

import "fmt"

// fakeDevice records resource lifetimes and recorded commands so the tests
// can assert build and destruction order without a real GPU.
type fakeDevice struct {
	props    DeviceProperties
	log      []string
	nextAddr uint64
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		props: DeviceProperties{
			ShaderGroupHandleSize:           32,
			ShaderGroupBaseAlignment:        64,
			MinUniformBufferOffsetAlignment: 256,
		},
		nextAddr: 0x10000,
	}
}

func (d *fakeDevice) event(format string, args ...any) {
	d.log = append(d.log, fmt.Sprintf(format, args...))
}

func (d *fakeDevice) Properties() DeviceProperties { return d.props }

type fakeBuffer struct {
	dev       *fakeDevice
	label     string
	size      uint64
	addr      uint64
	data      []byte
	destroyed bool
}

func (b *fakeBuffer) Size() uint64 { return b.size }
func (b *fakeBuffer) Write(offset uint64, data []byte) {
	copy(b.data[offset:], data)
}
func (b *fakeBuffer) DeviceAddress() uint64 { return b.addr }
func (b *fakeBuffer) Destroy() {
	b.destroyed = true
	b.dev.event("destroy buffer %s", b.label)
}

func (d *fakeDevice) NewBuffer(label string, size uint64, usage BufferUsage, memory MemoryKind) (Buffer, error) {
	addr := d.nextAddr
	d.nextAddr += AlignUp(size, 256)
	d.event("create buffer %s size=%d", label, size)
	return &fakeBuffer{dev: d, label: label, size: size, addr: addr, data: make([]byte, size)}, nil
}

type fakeImage struct {
	dev           *fakeDevice
	label         string
	width, height uint32
	format        Format
	destroyed     bool
}

func (i *fakeImage) Width() uint32  { return i.width }
func (i *fakeImage) Height() uint32 { return i.height }
func (i *fakeImage) Format() Format { return i.format }
func (i *fakeImage) Destroy() {
	i.destroyed = true
	i.dev.event("destroy image %s", i.label)
}

func (d *fakeDevice) NewImage(label string, width, height uint32, format Format, usage ImageUsage) (Image, error) {
	return &fakeImage{dev: d, label: label, width: width, height: height, format: format}, nil
}

type fakeView struct{ img Image }

func (v *fakeView) Image() Image { return v.img }
func (v *fakeView) Destroy()     {}

func (d *fakeDevice) NewImageView(img Image) (ImageView, error) { return &fakeView{img: img}, nil }

type fakeSampler struct{}

func (fakeSampler) Destroy() {}

func (d *fakeDevice) NewLinearSampler() (Sampler, error) { return fakeSampler{}, nil }

type fakeLayout struct{ descriptors []Descriptor }

func (fakeLayout) Destroy() {}

func (d *fakeDevice) NewBindGroupLayout(descriptors []Descriptor) (BindGroupLayout, error) {
	return &fakeLayout{descriptors: descriptors}, nil
}

type fakeBindGroup struct{ entries []BindEntry }

func (g *fakeBindGroup) Update(entries []BindEntry) { g.entries = entries }
func (g *fakeBindGroup) Destroy()                   {}

func (d *fakeDevice) NewBindGroup(layout BindGroupLayout, entries []BindEntry) (BindGroup, error) {
	return &fakeBindGroup{entries: entries}, nil
}

type fakeShaderModule struct{ label string }

func (fakeShaderModule) Destroy() {}

func (d *fakeDevice) NewShaderModule(label string, binary []byte) (ShaderModule, error) {
	return fakeShaderModule{label: label}, nil
}

type fakeComputePipeline struct{}

func (fakeComputePipeline) Destroy() {}

func (d *fakeDevice) NewComputePipeline(label string, module ShaderModule, layouts []BindGroupLayout, pushConstantSize uint32) (ComputePipeline, error) {
	return fakeComputePipeline{}, nil
}

// fakeRTPipeline hands back deterministic handles: group g is 32 bytes of g.
type fakeRTPipeline struct{ dev *fakeDevice }

func (p fakeRTPipeline) GroupHandles(first, count uint32) ([]byte, error) {
	out := make([]byte, 0, count*p.dev.props.ShaderGroupHandleSize)
	for g := first; g < first+count; g++ {
		for i := uint32(0); i < p.dev.props.ShaderGroupHandleSize; i++ {
			out = append(out, byte(g))
		}
	}
	return out, nil
}
func (fakeRTPipeline) Destroy() {}

func (d *fakeDevice) NewRayTracingPipeline(label string, desc RayTracingPipelineDesc) (RayTracingPipeline, error) {
	return fakeRTPipeline{dev: d}, nil
}

func (d *fakeDevice) AccelBuildSizesAABBs(count uint32) (AccelBuildSizes, error) {
	return AccelBuildSizes{AccelSize: uint64(count)*64 + 256, ScratchSize: 512}, nil
}

func (d *fakeDevice) AccelBuildSizesInstances(count uint32) (AccelBuildSizes, error) {
	return AccelBuildSizes{AccelSize: uint64(count)*128 + 256, ScratchSize: 512}, nil
}

type fakeAccel struct {
	dev       *fakeDevice
	label     string
	addr      uint64
	destroyed bool
}

func (a *fakeAccel) DeviceAddress() uint64 { return a.addr }
func (a *fakeAccel) Destroy() {
	a.destroyed = true
	a.dev.event("destroy accel %s", a.label)
}

func (d *fakeDevice) NewAccelStructure(label string, backing Buffer, size uint64, topLevel bool) (AccelStructure, error) {
	addr := d.nextAddr
	d.nextAddr += AlignUp(size, 256)
	d.event("create accel %s", label)
	return &fakeAccel{dev: d, label: label, addr: addr}, nil
}

type fakeSemaphore struct{}

func (fakeSemaphore) Destroy() {}

func (d *fakeDevice) NewSemaphore() (Semaphore, error) { return fakeSemaphore{}, nil }

type fakeFence struct{}

func (fakeFence) Wait()    {}
func (fakeFence) Reset()   {}
func (fakeFence) Destroy() {}

func (d *fakeDevice) NewFence(signaled bool) (Fence, error) { return fakeFence{}, nil }

// fakeCommandList records command names in order.
type fakeCommandList struct {
	ops       []string
	traceDims [3]uint32
	regions   [4]StridedRegion
}

func (c *fakeCommandList) op(format string, args ...any) {
	c.ops = append(c.ops, fmt.Sprintf(format, args...))
}

func (c *fakeCommandList) Barrier(srcStage StageFlags, srcAccess AccessFlags, dstStage StageFlags, dstAccess AccessFlags) {
	c.op("barrier")
}
func (c *fakeCommandList) ImageBarrier(img Image, oldRole, newRole ImageRole) {
	c.op("imageBarrier %d->%d", oldRole, newRole)
}
func (c *fakeCommandList) CopyImage(src, dst Image)                      { c.op("copyImage") }
func (c *fakeCommandList) BlitToImage(src, dst Image)                    { c.op("blit") }
func (c *fakeCommandList) ClearColorImage(img Image, r, g, b, a float32) { c.op("clearColor") }
func (c *fakeCommandList) BindComputePipeline(p ComputePipeline)         { c.op("bindCompute") }
func (c *fakeCommandList) BindRayTracingPipeline(p RayTracingPipeline)   { c.op("bindRT") }
func (c *fakeCommandList) BindGroups(groups ...BindGroup)                { c.op("bindGroups %d", len(groups)) }
func (c *fakeCommandList) PushConstants(stages ShaderStages, offset uint32, data []byte) {
	c.op("push %d", len(data))
}
func (c *fakeCommandList) Dispatch(x, y, z uint32) { c.op("dispatch %dx%dx%d", x, y, z) }
func (c *fakeCommandList) TraceRays(raygen, miss, hit, callable StridedRegion, width, height, depth uint32) {
	c.traceDims = [3]uint32{width, height, depth}
	c.regions = [4]StridedRegion{raygen, miss, hit, callable}
	c.op("traceRays %dx%d", width, height)
}
func (c *fakeCommandList) BuildAccelStructureAABBs(dst AccelStructure, geom AccelGeometryAABBs, scratch Buffer) {
	c.op("buildBlas count=%d", geom.Count)
}
func (c *fakeCommandList) BuildAccelStructureInstances(dst AccelStructure, instances Buffer, count uint32, scratch Buffer) {
	c.op("buildTlas count=%d", count)
}
func (c *fakeCommandList) BeginRendering(color ImageView, load bool) { c.op("beginRendering") }
func (c *fakeCommandList) EndRendering()                             { c.op("endRendering") }

func (d *fakeDevice) NewCommandList() (CommandList, error) { return &fakeCommandList{}, nil }

func (d *fakeDevice) Submit(cmd CommandList, info SubmitInfo) error {
	d.event("submit")
	return nil
}

func (d *fakeDevice) SubmitAndWait(cmd CommandList) error {
	for _, op := range cmd.(*fakeCommandList).ops {
		d.event("cmd %s", op)
	}
	d.event("submitAndWait")
	return nil
}

func (d *fakeDevice) WaitIdle() { d.event("waitIdle") }
