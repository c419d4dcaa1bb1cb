package volume

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// InvalidChild marks a node without allocated children.
const InvalidChild = uint32(0xFFFFFFFF)

// SvoNodeSize is the packed size of one node, 16-byte aligned for GPU use.
const SvoNodeSize = 16

// SvoNode matches the GLSL node layout:
//
//	struct SvoNode {
//	    uint child_mask;   // low 8 bits used, bit i set => octant i nonempty
//	    uint first_child;  // index of child block, or 0xFFFFFFFF
//	    uint material_id;
//	    float occupancy;
//	}; // 16 bytes
type SvoNode struct {
	ChildMask  uint32
	FirstChild uint32
	MaterialId uint32
	Occupancy  float32
}

func (n *SvoNode) AppendBytes(out []byte) []byte {
	var buf [SvoNodeSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], n.ChildMask)
	binary.LittleEndian.PutUint32(buf[4:8], n.FirstChild)
	binary.LittleEndian.PutUint32(buf[8:12], n.MaterialId)
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(n.Occupancy))
	return append(out, buf[:]...)
}

// SvoTree is a per-chunk sparse voxel octree. Node 0 is the root; leaves live
// at depth MaxDepth, so the tree spans a cube of side 1<<MaxDepth voxels.
type SvoTree struct {
	Nodes     []SvoNode
	MaxDepth  int
	Origin    mgl32.Vec3
	VoxelSize float32
}

// NewSvoTree creates an empty tree with a single empty root.
// MaxDepth must be <= 32; the descent path is stack-allocated against it.
func NewSvoTree(maxDepth int, origin mgl32.Vec3, voxelSize float32) *SvoTree {
	t := &SvoTree{
		MaxDepth:  maxDepth,
		Origin:    origin,
		VoxelSize: voxelSize,
	}
	t.Clear()
	return t
}

// Clear truncates the tree back to one empty root.
func (t *SvoTree) Clear() {
	t.Nodes = t.Nodes[:0]
	t.Nodes = append(t.Nodes, SvoNode{FirstChild: InvalidChild})
}

// ensureChildren allocates a contiguous block of 8 empty children for the node
// at nodeIdx if it has none, returning the first-child index. The node is
// re-indexed after growth; holding a pointer across the append would go stale
// when the backing array moves.
func (t *SvoTree) ensureChildren(nodeIdx uint32) uint32 {
	if t.Nodes[nodeIdx].FirstChild != InvalidChild {
		return t.Nodes[nodeIdx].FirstChild
	}
	first := uint32(len(t.Nodes))
	if cap(t.Nodes) < len(t.Nodes)+8 {
		grown := make([]SvoNode, len(t.Nodes), (len(t.Nodes)+8)*2)
		copy(grown, t.Nodes)
		t.Nodes = grown
	}
	for i := 0; i < 8; i++ {
		t.Nodes = append(t.Nodes, SvoNode{FirstChild: InvalidChild})
	}
	t.Nodes[nodeIdx].FirstChild = first
	return first
}

// InsertVoxel writes a leaf at local coordinates (x,y,z). Coordinates outside
// [0, 1<<MaxDepth) and densities <= 0 are silently ignored; callers clip
// against the chunk size.
func (t *SvoTree) InsertVoxel(x, y, z uint32, materialId uint32, density float32) {
	if density <= 0 {
		return
	}
	side := uint32(1) << t.MaxDepth
	if x >= side || y >= side || z >= side {
		return
	}

	code := EncodeMorton(int32(x), int32(y), int32(z))

	var path [32]uint32
	nodeIdx := uint32(0)
	for level := 0; level < t.MaxDepth; level++ {
		path[level] = nodeIdx
		first := t.ensureChildren(nodeIdx)
		nodeIdx = first + Octant(code, t.MaxDepth, level)
	}

	t.Nodes[nodeIdx].MaterialId = materialId
	t.Nodes[nodeIdx].Occupancy = density

	for level := t.MaxDepth - 1; level >= 0; level-- {
		oct := Octant(code, t.MaxDepth, level)
		t.Nodes[path[level]].ChildMask |= 1 << oct
	}
}

// FindLeaf descends to the leaf at (x,y,z). Returns nil if the path is not
// allocated or the leaf is empty.
func (t *SvoTree) FindLeaf(x, y, z uint32) *SvoNode {
	side := uint32(1) << t.MaxDepth
	if x >= side || y >= side || z >= side {
		return nil
	}

	code := EncodeMorton(int32(x), int32(y), int32(z))

	nodeIdx := uint32(0)
	for level := 0; level < t.MaxDepth; level++ {
		oct := Octant(code, t.MaxDepth, level)
		node := &t.Nodes[nodeIdx]
		if node.ChildMask&(1<<oct) == 0 || node.FirstChild == InvalidChild {
			return nil
		}
		nodeIdx = node.FirstChild + oct
	}

	leaf := &t.Nodes[nodeIdx]
	if leaf.Occupancy <= 0 {
		return nil
	}
	return leaf
}

// PackBytes serializes all nodes in index order, 16 bytes each.
func (t *SvoTree) PackBytes(out []byte) []byte {
	for i := range t.Nodes {
		out = t.Nodes[i].AppendBytes(out)
	}
	return out
}
