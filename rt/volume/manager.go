package volume

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// ChunkGpuSize is the packed size of one chunk record, 16-byte aligned.
const ChunkGpuSize = 48

// ChunkGpu matches the GLSL chunk metadata layout:
//
//	struct ChunkGpu {
//	    uint node_offset;
//	    uint node_count;
//	    vec3 world_min;   // offset 16
//	    vec3 world_max;   // offset 32
//	}; // 48 bytes
type ChunkGpu struct {
	NodeOffset uint32
	NodeCount  uint32
	WorldMin   mgl32.Vec3
	WorldMax   mgl32.Vec3
}

func (c *ChunkGpu) AppendBytes(out []byte) []byte {
	var buf [ChunkGpuSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], c.NodeOffset)
	binary.LittleEndian.PutUint32(buf[4:8], c.NodeCount)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(c.WorldMin[i]))
		binary.LittleEndian.PutUint32(buf[32+i*4:], math.Float32bits(c.WorldMax[i]))
	}
	return append(out, buf[:]...)
}

// PackedWorld is the GPU-consumable flattening of all nonempty chunks.
// Node indices stored inside GlobalNodes stay chunk-local; shaders add the
// owning chunk's NodeOffset before indexing.
type PackedWorld struct {
	GlobalNodes  []SvoNode
	GlobalChunks []ChunkGpu

	// SubChunks is the BLAS input: one world-space AABB per renderable
	// primitive. Sub-chunks are equated with chunks here; finer granularity
	// would change only this packer.
	SubChunks [][2]mgl32.Vec3
}

func (p *PackedWorld) Clear() {
	p.GlobalNodes = p.GlobalNodes[:0]
	p.GlobalChunks = p.GlobalChunks[:0]
	p.SubChunks = p.SubChunks[:0]
}

func (p *PackedWorld) NodesBytes() []byte {
	out := make([]byte, 0, len(p.GlobalNodes)*SvoNodeSize)
	for i := range p.GlobalNodes {
		out = p.GlobalNodes[i].AppendBytes(out)
	}
	return out
}

func (p *PackedWorld) ChunksBytes() []byte {
	out := make([]byte, 0, len(p.GlobalChunks)*ChunkGpuSize)
	for i := range p.GlobalChunks {
		out = p.GlobalChunks[i].AppendBytes(out)
	}
	return out
}

// MaterialSource resolves a brush color to a material id. Implemented by
// core.MaterialLibrary; kept as an interface so the volume package stays
// free of renderer dependencies.
type MaterialSource interface {
	GetOrCreateFromColor(r, g, b uint8) uint32
}

// ChunkManager owns the mutable voxel world as a sparse set of chunks.
type ChunkManager struct {
	Chunks    map[[3]int32]*Chunk
	ChunkSize uint32
	VoxelSize float32

	Materials  MaterialSource
	BrushColor [3]uint8
}

// NewChunkManager creates a manager with cubic chunks of the given
// power-of-two size. materials may be nil; SetVoxelColor then packs the RGB
// into the material id directly.
func NewChunkManager(chunkSize uint32, voxelSize float32, materials MaterialSource) *ChunkManager {
	return &ChunkManager{
		Chunks:     make(map[[3]int32]*Chunk),
		ChunkSize:  chunkSize,
		VoxelSize:  voxelSize,
		Materials:  materials,
		BrushColor: [3]uint8{200, 200, 200},
	}
}

// WorldToGlobalVoxel maps a world position to integer voxel coordinates.
// Voxel size affects visual scale only, not indexing.
func (m *ChunkManager) WorldToGlobalVoxel(p mgl32.Vec3) [3]int32 {
	return [3]int32{
		int32(math.Floor(float64(p.X()))),
		int32(math.Floor(float64(p.Y()))),
		int32(math.Floor(float64(p.Z()))),
	}
}

func floorDiv(v, size int32) int32 {
	if v >= 0 {
		return v / size
	}
	return (v - size + 1) / size
}

// GlobalVoxelToChunk floor-divides toward negative infinity.
func (m *ChunkManager) GlobalVoxelToChunk(gv [3]int32) [3]int32 {
	c := int32(m.ChunkSize)
	return [3]int32{floorDiv(gv[0], c), floorDiv(gv[1], c), floorDiv(gv[2], c)}
}

// GlobalVoxelToLocal maps a global voxel to coordinates within its chunk.
func (m *ChunkManager) GlobalVoxelToLocal(gv [3]int32) [3]uint32 {
	c := int32(m.ChunkSize)
	var out [3]uint32
	for i := 0; i < 3; i++ {
		l := gv[i] % c
		if l < 0 {
			l += c
		}
		out[i] = uint32(l)
	}
	return out
}

// GetOrCreateChunk returns the chunk at the given chunk coordinate, creating
// it if absent.
func (m *ChunkManager) GetOrCreateChunk(cc [3]int32) *Chunk {
	if ch, ok := m.Chunks[cc]; ok {
		return ch
	}
	ch := NewChunk(cc, m.ChunkSize, m.VoxelSize)
	m.Chunks[cc] = ch
	return ch
}

// SetVoxel writes a voxel at a world position with an explicit material id.
func (m *ChunkManager) SetVoxel(worldPos mgl32.Vec3, materialId uint32, density float32) {
	gv := m.WorldToGlobalVoxel(worldPos)
	ch := m.GetOrCreateChunk(m.GlobalVoxelToChunk(gv))
	l := m.GlobalVoxelToLocal(gv)
	ch.SetVoxel(l[0], l[1], l[2], materialId, density)
}

// SetVoxelColor writes a voxel resolving the material from an RGB color.
// Without a material library the color is packed into the id directly.
func (m *ChunkManager) SetVoxelColor(worldPos mgl32.Vec3, r, g, b uint8, density float32) {
	var materialId uint32
	if m.Materials != nil {
		materialId = m.Materials.GetOrCreateFromColor(r, g, b)
	} else {
		materialId = uint32(r)<<16 | uint32(g)<<8 | uint32(b)
	}
	m.SetVoxel(worldPos, materialId, density)
}

// RebuildDirty rebuilds the SVO of up to maxPerFrame dirty chunks and clears
// their dirty flags. Returns the number of chunks rebuilt.
func (m *ChunkManager) RebuildDirty(maxPerFrame int) int {
	rebuilt := 0
	for _, key := range m.sortedKeys() {
		if rebuilt >= maxPerFrame {
			break
		}
		ch := m.Chunks[key]
		if !ch.Dirty {
			continue
		}
		ch.Rebuild()
		rebuilt++
	}
	return rebuilt
}

// HasDirty reports whether any chunk still needs a rebuild.
func (m *ChunkManager) HasDirty() bool {
	for _, ch := range m.Chunks {
		if ch.Dirty {
			return true
		}
	}
	return false
}

func (m *ChunkManager) sortedKeys() [][3]int32 {
	keys := make([][3]int32, 0, len(m.Chunks))
	for k := range m.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a[2] != b[2] {
			return a[2] < b[2]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[0] < b[0]
	})
	return keys
}

// PackWorld flattens all nonempty chunks into out. Chunk iteration order is
// deterministic so repacking an unchanged world is byte-stable.
func (m *ChunkManager) PackWorld(out *PackedWorld) {
	out.Clear()
	for _, key := range m.sortedKeys() {
		ch := m.Chunks[key]
		if ch.IsEmpty() {
			continue
		}
		worldMin := ch.Svo.Origin.Mul(m.VoxelSize)
		worldMax := ch.Svo.Origin.Add(mgl32.Vec3{
			float32(m.ChunkSize), float32(m.ChunkSize), float32(m.ChunkSize),
		}).Mul(m.VoxelSize)

		out.GlobalChunks = append(out.GlobalChunks, ChunkGpu{
			NodeOffset: uint32(len(out.GlobalNodes)),
			NodeCount:  uint32(len(ch.Svo.Nodes)),
			WorldMin:   worldMin,
			WorldMax:   worldMax,
		})
		out.GlobalNodes = append(out.GlobalNodes, ch.Svo.Nodes...)
		out.SubChunks = append(out.SubChunks, [2]mgl32.Vec3{worldMin, worldMax})
	}
}
