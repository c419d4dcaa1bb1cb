package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/voxtrace/voxtrace/rt/volume"
)

// AabbSize is the packed size of one procedural AABB, {min,max} as 6 floats.
const AabbSize = 24

// InstanceSize is the packed size of one TLAS instance record.
const InstanceSize = 64

const instanceFlagFrontFaceCullDisable = 0x2

// AccelWorld owns the acceleration structures and every buffer backing
// them. The backing buffers must outlive the AS handles that reference
// their device addresses, so destruction runs strictly in reverse order of
// creation.
type AccelWorld struct {
	dev Device

	Blas        AccelStructure
	blasBuffer  Buffer
	aabbBuffer  Buffer
	Tlas        AccelStructure
	tlasBuffer  Buffer
	instanceBuf Buffer

	PrimitiveCount uint32
}

func NewAccelWorld(dev Device) *AccelWorld {
	return &AccelWorld{dev: dev}
}

// Empty reports whether no acceleration structures exist; ray dispatch is a
// no-op then.
func (w *AccelWorld) Empty() bool {
	return w.Tlas == nil
}

func packAabbs(subChunks [][2]mgl32.Vec3) []byte {
	out := make([]byte, 0, len(subChunks)*AabbSize)
	var buf [AabbSize]byte
	for _, sc := range subChunks {
		for i := 0; i < 3; i++ {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(sc[0][i]))
			binary.LittleEndian.PutUint32(buf[12+i*4:], math.Float32bits(sc[1][i]))
		}
		out = append(out, buf[:]...)
	}
	return out
}

func packInstance(inst AccelInstance) []byte {
	buf := make([]byte, InstanceSize)
	for i, v := range inst.Transform {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[48:], inst.CustomIndex&0xFFFFFF|uint32(inst.Mask)<<24)
	flags := uint32(0)
	if inst.FrontFaceCullDisable {
		flags = instanceFlagFrontFaceCullDisable
	}
	binary.LittleEndian.PutUint32(buf[52:], inst.SBTRecordOffset&0xFFFFFF|flags<<24)
	binary.LittleEndian.PutUint64(buf[56:], inst.BlasAddress)
	return buf
}

// Rebuild replaces both acceleration structures from the packed world's
// sub-chunk AABBs. Prior structures are destroyed first; with zero
// primitives the handles stay nil. Any allocation or build failure is fatal
// for the frame; there is no partial-build recovery.
func (w *AccelWorld) Rebuild(pw *volume.PackedWorld) error {
	w.destroyStructures()

	w.PrimitiveCount = uint32(len(pw.SubChunks))
	if w.PrimitiveCount == 0 {
		return nil
	}

	if err := w.buildBlas(pw); err != nil {
		return fmt.Errorf("blas: %w", err)
	}
	if err := w.buildTlas(); err != nil {
		return fmt.Errorf("tlas: %w", err)
	}
	return nil
}

func (w *AccelWorld) buildBlas(pw *volume.PackedWorld) error {
	aabbData := packAabbs(pw.SubChunks)
	buf, err := w.dev.NewBuffer("blas.aabbs", uint64(len(aabbData)),
		BufferUsageAccelBuildInput|BufferUsageDeviceAddress|BufferUsageTransferDst, MemoryDeviceLocal)
	if err != nil {
		return err
	}
	buf.Write(0, aabbData)
	w.aabbBuffer = buf

	sizes, err := w.dev.AccelBuildSizesAABBs(w.PrimitiveCount)
	if err != nil {
		return err
	}
	w.blasBuffer, err = w.dev.NewBuffer("blas.storage", sizes.AccelSize,
		BufferUsageAccelStorage|BufferUsageDeviceAddress, MemoryDeviceLocal)
	if err != nil {
		return err
	}
	w.Blas, err = w.dev.NewAccelStructure("blas", w.blasBuffer, sizes.AccelSize, false)
	if err != nil {
		return err
	}

	return w.buildOneShot(sizes.ScratchSize, func(cmd CommandList, scratch Buffer) {
		cmd.BuildAccelStructureAABBs(w.Blas, AccelGeometryAABBs{
			Buffer: w.aabbBuffer,
			Count:  w.PrimitiveCount,
			Stride: AabbSize,
			Opaque: true,
		}, scratch)
	})
}

func (w *AccelWorld) buildTlas() error {
	inst := packInstance(AccelInstance{
		Transform: [12]float32{
			1, 0, 0, 0,
			0, 1, 0, 0,
			0, 0, 1, 0,
		},
		Mask:                 0xFF,
		SBTRecordOffset:      0,
		FrontFaceCullDisable: true,
		BlasAddress:          w.Blas.DeviceAddress(),
	})
	buf, err := w.dev.NewBuffer("tlas.instances", InstanceSize,
		BufferUsageAccelBuildInput|BufferUsageDeviceAddress|BufferUsageTransferDst, MemoryDeviceLocal)
	if err != nil {
		return err
	}
	buf.Write(0, inst)
	w.instanceBuf = buf

	sizes, err := w.dev.AccelBuildSizesInstances(1)
	if err != nil {
		return err
	}
	w.tlasBuffer, err = w.dev.NewBuffer("tlas.storage", sizes.AccelSize,
		BufferUsageAccelStorage|BufferUsageDeviceAddress, MemoryDeviceLocal)
	if err != nil {
		return err
	}
	w.Tlas, err = w.dev.NewAccelStructure("tlas", w.tlasBuffer, sizes.AccelSize, true)
	if err != nil {
		return err
	}

	return w.buildOneShot(sizes.ScratchSize, func(cmd CommandList, scratch Buffer) {
		cmd.BuildAccelStructureInstances(w.Tlas, w.instanceBuf, 1, scratch)
	})
}

// buildOneShot records a single-use command list that builds with a
// transient scratch buffer, submits, waits, and frees the scratch.
func (w *AccelWorld) buildOneShot(scratchSize uint64, record func(CommandList, Buffer)) error {
	scratch, err := w.dev.NewBuffer("accel.scratch", scratchSize,
		BufferUsageStorage|BufferUsageDeviceAddress, MemoryDeviceLocal)
	if err != nil {
		return err
	}
	defer scratch.Destroy()

	cmd, err := w.dev.NewCommandList()
	if err != nil {
		return err
	}
	record(cmd, scratch)
	return w.dev.SubmitAndWait(cmd)
}

// destroyStructures tears down AS handles before the buffers whose device
// addresses they reference.
func (w *AccelWorld) destroyStructures() {
	if w.Tlas != nil {
		w.Tlas.Destroy()
		w.Tlas = nil
	}
	if w.Blas != nil {
		w.Blas.Destroy()
		w.Blas = nil
	}
	for _, b := range []*Buffer{&w.tlasBuffer, &w.instanceBuf, &w.blasBuffer, &w.aabbBuffer} {
		if *b != nil {
			(*b).Destroy()
			*b = nil
		}
	}
	w.PrimitiveCount = 0
}

// Destroy releases everything. Callers wait for device idle first.
func (w *AccelWorld) Destroy() {
	w.destroyStructures()
}
