package volume

import (
	"math/bits"

	"github.com/go-gl/mathgl/mgl32"
)

// Chunk is an axis-aligned cube of size^3 voxels at integer chunk coordinate
// Coords. Dense arrays are the authoritative state; the SVO is derived from
// them by Rebuild and only valid while Dirty is false.
type Chunk struct {
	Coords      [3]int32
	Size        uint32
	Density     []float32
	MaterialIds []uint32
	Svo         *SvoTree
	Dirty       bool
}

func NewChunk(coords [3]int32, size uint32, voxelSize float32) *Chunk {
	maxDepth := bits.TrailingZeros32(size)
	origin := mgl32.Vec3{
		float32(coords[0]) * float32(size),
		float32(coords[1]) * float32(size),
		float32(coords[2]) * float32(size),
	}
	n := int(size) * int(size) * int(size)
	return &Chunk{
		Coords:      coords,
		Size:        size,
		Density:     make([]float32, n),
		MaterialIds: make([]uint32, n),
		Svo:         NewSvoTree(maxDepth, origin, voxelSize),
		Dirty:       true,
	}
}

func (c *Chunk) index(x, y, z uint32) int {
	return int(x) + int(y)*int(c.Size) + int(z)*int(c.Size)*int(c.Size)
}

// SetVoxel updates the dense arrays and marks the chunk dirty. Zero or
// negative density clears the cell.
func (c *Chunk) SetVoxel(x, y, z uint32, materialId uint32, density float32) {
	if x >= c.Size || y >= c.Size || z >= c.Size {
		return
	}
	idx := c.index(x, y, z)
	c.Density[idx] = density
	c.MaterialIds[idx] = materialId
	c.Dirty = true
}

func (c *Chunk) GetVoxel(x, y, z uint32) (float32, uint32) {
	if x >= c.Size || y >= c.Size || z >= c.Size {
		return 0, 0
	}
	idx := c.index(x, y, z)
	return c.Density[idx], c.MaterialIds[idx]
}

// Rebuild clears the SVO and reinserts every cell with positive density.
// Naive full rebuild; incremental updates are a possible optimization.
func (c *Chunk) Rebuild() {
	c.Svo.Clear()
	for z := uint32(0); z < c.Size; z++ {
		for y := uint32(0); y < c.Size; y++ {
			for x := uint32(0); x < c.Size; x++ {
				idx := c.index(x, y, z)
				if c.Density[idx] > 0 {
					c.Svo.InsertVoxel(x, y, z, c.MaterialIds[idx], c.Density[idx])
				}
			}
		}
	}
	c.Dirty = false
}

// IsEmpty reports whether the SVO holds no filled leaf. An untouched tree has
// exactly the root node.
func (c *Chunk) IsEmpty() bool {
	return len(c.Svo.Nodes) <= 1 || c.Svo.Nodes[0].ChildMask == 0
}
