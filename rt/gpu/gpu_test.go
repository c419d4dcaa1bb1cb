package gpu

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxtrace/voxtrace/rt/volume"
)

func testPackedWorld(subChunks int) *volume.PackedWorld {
	pw := &volume.PackedWorld{}
	for i := 0; i < subChunks; i++ {
		base := float32(i * 16)
		pw.SubChunks = append(pw.SubChunks, [2]mgl32.Vec3{
			{base, 0, 0},
			{base + 16, 16, 16},
		})
	}
	return pw
}

func TestPackAabbs(t *testing.T) {
	data := packAabbs([][2]mgl32.Vec3{
		{{1, 2, 3}, {4, 5, 6}},
		{{-16, 0, 0}, {0, 16, 16}},
	})
	require.Len(t, data, 2*AabbSize)

	want := []float32{1, 2, 3, 4, 5, 6, -16, 0, 0, 0, 16, 16}
	for i, v := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		assert.Equal(t, v, got, "float %d", i)
	}
}

func TestPackInstanceLayout(t *testing.T) {
	buf := packInstance(AccelInstance{
		Transform: [12]float32{
			1, 0, 0, 0,
			0, 1, 0, 0,
			0, 0, 1, 0,
		},
		CustomIndex:          7,
		Mask:                 0xFF,
		SBTRecordOffset:      3,
		FrontFaceCullDisable: true,
		BlasAddress:          0xDEADBEEF00,
	})
	require.Len(t, buf, InstanceSize)

	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(buf[0:])))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(buf[20:])))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(buf[40:])))

	word := binary.LittleEndian.Uint32(buf[48:])
	assert.Equal(t, uint32(7), word&0xFFFFFF)
	assert.Equal(t, uint32(0xFF), word>>24)

	word = binary.LittleEndian.Uint32(buf[52:])
	assert.Equal(t, uint32(3), word&0xFFFFFF)
	assert.Equal(t, uint32(instanceFlagFrontFaceCullDisable), word>>24)

	assert.Equal(t, uint64(0xDEADBEEF00), binary.LittleEndian.Uint64(buf[56:]))
}

func TestAccelWorldRebuild(t *testing.T) {
	dev := newFakeDevice()
	w := NewAccelWorld(dev)
	assert.True(t, w.Empty())

	require.NoError(t, w.Rebuild(testPackedWorld(3)))
	assert.False(t, w.Empty())
	assert.Equal(t, uint32(3), w.PrimitiveCount)
	require.NotNil(t, w.Blas)
	require.NotNil(t, w.Tlas)
	assert.Contains(t, dev.log, "cmd buildBlas count=3")
	assert.Contains(t, dev.log, "cmd buildTlas count=1")
}

func TestAccelWorldRebuildDestroysBeforeBuilding(t *testing.T) {
	dev := newFakeDevice()
	w := NewAccelWorld(dev)
	require.NoError(t, w.Rebuild(testPackedWorld(1)))

	dev.log = nil
	require.NoError(t, w.Rebuild(testPackedWorld(2)))

	indexOf := func(s string) int {
		for i, e := range dev.log {
			if e == s {
				return i
			}
		}
		t.Fatalf("log entry %q missing from %v", s, dev.log)
		return -1
	}

	// Structures go first, then their backing buffers, all before the new
	// builds start.
	assert.Less(t, indexOf("destroy accel tlas"), indexOf("destroy buffer tlas.storage"))
	assert.Less(t, indexOf("destroy accel blas"), indexOf("destroy buffer blas.storage"))
	assert.Less(t, indexOf("destroy buffer blas.aabbs"), indexOf("create buffer blas.aabbs size=48"))
}

func TestAccelWorldRebuildToEmpty(t *testing.T) {
	dev := newFakeDevice()
	w := NewAccelWorld(dev)
	require.NoError(t, w.Rebuild(testPackedWorld(2)))
	require.NoError(t, w.Rebuild(testPackedWorld(0)))

	assert.True(t, w.Empty())
	assert.Nil(t, w.Blas)
	assert.Nil(t, w.Tlas)
	assert.Equal(t, uint32(0), w.PrimitiveCount)

	// No new builds were recorded after the teardown.
	for _, e := range dev.log {
		assert.False(t, strings.HasPrefix(e, "cmd build") && strings.Contains(e, "count=0"), e)
	}
}

func testShaders() RayTracingShaders {
	blob := []byte{0x03, 0x02, 0x23, 0x07}
	return RayTracingShaders{
		Raygen:       blob,
		Miss:         blob,
		MissShadow:   blob,
		Intersection: blob,
		ClosestHit:   blob,
	}
}

func TestShaderBindingTableLayout(t *testing.T) {
	dev := newFakeDevice()
	p, err := NewRayTracingPass(dev, testShaders())
	require.NoError(t, err)

	// handleSize 32 rounded up to the 64-byte group base alignment.
	assert.Equal(t, uint64(64), p.SBTStride())

	sbt := p.sbtBuffer.(*fakeBuffer)
	require.Equal(t, uint64(groupCount*64), sbt.size)
	for g := 0; g < groupCount; g++ {
		assert.Equal(t, byte(g), sbt.data[g*64], "group %d handle", g)
		assert.Equal(t, byte(g), sbt.data[g*64+31], "group %d handle end", g)
		assert.Equal(t, byte(0), sbt.data[g*64+32], "group %d padding", g)
	}

	base := sbt.addr
	assert.Equal(t, StridedRegion{Address: base, Stride: 64, Size: 64}, p.raygenRegion)
	assert.Equal(t, StridedRegion{Address: base + 64, Stride: 64, Size: 128}, p.missRegion)
	assert.Equal(t, StridedRegion{Address: base + 192, Stride: 64, Size: 128}, p.hitRegion)
}

func TestRayTracingPassSkipsEmptyWorld(t *testing.T) {
	dev := newFakeDevice()
	p, err := NewRayTracingPass(dev, testShaders())
	require.NoError(t, err)

	world := NewAccelWorld(dev)
	cmd := &fakeCommandList{}
	p.Record(cmd, 0, world, 1920, 1080)
	assert.Empty(t, cmd.ops)
}

func TestRayTracingPassRecord(t *testing.T) {
	dev := newFakeDevice()
	p, err := NewRayTracingPass(dev, testShaders())
	require.NoError(t, err)

	world := NewAccelWorld(dev)
	require.NoError(t, world.Rebuild(testPackedWorld(1)))

	cmd := &fakeCommandList{}
	p.Record(cmd, 0, world, 1920, 1080)
	require.Equal(t, []string{"bindRT", "bindGroups 1", "traceRays 1920x1080"}, cmd.ops)
	assert.Equal(t, [3]uint32{1920, 1080, 1}, cmd.traceDims)
	assert.Equal(t, p.raygenRegion, cmd.regions[0])
	assert.Equal(t, p.hitRegion, cmd.regions[2])
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(0), AlignUp(0, 64))
	assert.Equal(t, uint64(64), AlignUp(1, 64))
	assert.Equal(t, uint64(64), AlignUp(64, 64))
	assert.Equal(t, uint64(128), AlignUp(65, 64))
}

func TestLayoutTrackerEmitsOnChangeOnly(t *testing.T) {
	dev := newFakeDevice()
	img, err := dev.NewImage("t", 4, 4, FormatRGBA32Float, ImageUsageStorage)
	require.NoError(t, err)

	tr := NewLayoutTracker()
	cmd := &fakeCommandList{}

	tr.Ensure(cmd, img, RoleGeneral)
	tr.Ensure(cmd, img, RoleGeneral)
	require.Len(t, cmd.ops, 1)

	tr.Ensure(cmd, img, RoleShaderRead)
	require.Len(t, cmd.ops, 2)
	assert.Equal(t, RoleShaderRead, tr.Role(img))

	tr.Forget(img)
	tr.Ensure(cmd, img, RoleShaderRead)
	assert.Len(t, cmd.ops, 3)
}

func TestUniformArenaAlignsOffsets(t *testing.T) {
	dev := newFakeDevice()
	a, err := NewUniformArena(dev, "frame", 1024)
	require.NoError(t, err)

	off0 := a.Alloc(make([]byte, 16))
	off1 := a.Alloc(make([]byte, 16))
	assert.Equal(t, uint64(0), off0)
	assert.Equal(t, uint64(256), off1)

	a.Reset()
	assert.Equal(t, uint64(0), a.Alloc(make([]byte, 16)))

	assert.Panics(t, func() {
		a.Alloc(make([]byte, 2048))
	})
}

func TestEnsureBufferGrowth(t *testing.T) {
	dev := newFakeDevice()
	var buf Buffer

	recreated, err := EnsureBuffer(dev, "world", &buf, make([]byte, 100), BufferUsageStorage, 28)
	require.NoError(t, err)
	assert.True(t, recreated)
	assert.Equal(t, uint64(128), buf.Size())
	first := buf.(*fakeBuffer)

	// Fits in place, no recreation.
	recreated, err = EnsureBuffer(dev, "world", &buf, make([]byte, 90), BufferUsageStorage, 28)
	require.NoError(t, err)
	assert.False(t, recreated)
	assert.Same(t, first, buf.(*fakeBuffer))

	recreated, err = EnsureBuffer(dev, "world", &buf, make([]byte, 200), BufferUsageStorage, 28)
	require.NoError(t, err)
	assert.True(t, recreated)
	assert.True(t, first.destroyed)
	assert.Equal(t, uint64(228), buf.Size())
}

func TestGBufferHistorySwap(t *testing.T) {
	dev := newFakeDevice()
	gb, err := NewGBuffer(dev, 640, 480)
	require.NoError(t, err)

	assert.Equal(t, 0, gb.History)
	assert.Equal(t, 1, gb.Previous())
	gb.SwapHistory()
	assert.Equal(t, 1, gb.History)
	assert.Equal(t, 0, gb.Previous())
}
