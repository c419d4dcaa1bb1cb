package volume

import (
	"bytes"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestSvoClearFindsNothing(t *testing.T) {
	tree := NewSvoTree(4, mgl32.Vec3{}, 1.0)
	tree.InsertVoxel(1, 2, 3, 7, 1.0)
	tree.Clear()

	if len(tree.Nodes) != 1 {
		t.Fatalf("cleared tree should hold one root, has %d nodes", len(tree.Nodes))
	}
	for x := uint32(0); x < 16; x++ {
		for y := uint32(0); y < 16; y++ {
			for z := uint32(0); z < 16; z++ {
				if tree.FindLeaf(x, y, z) != nil {
					t.Fatalf("leaf at (%d,%d,%d) after clear", x, y, z)
				}
			}
		}
	}
}

func TestSvoInsertFind(t *testing.T) {
	tree := NewSvoTree(4, mgl32.Vec3{}, 1.0)

	cases := []struct {
		x, y, z uint32
		mat     uint32
		density float32
	}{
		{0, 0, 0, 1, 1.0},
		{15, 15, 15, 2, 0.5},
		{7, 8, 9, 3, 0.25},
		{1, 0, 15, 4, 2.0},
	}
	for _, c := range cases {
		tree.InsertVoxel(c.x, c.y, c.z, c.mat, c.density)
	}
	for _, c := range cases {
		leaf := tree.FindLeaf(c.x, c.y, c.z)
		if leaf == nil {
			t.Fatalf("leaf (%d,%d,%d) not found", c.x, c.y, c.z)
		}
		if leaf.MaterialId != c.mat || leaf.Occupancy != c.density {
			t.Errorf("leaf (%d,%d,%d): got mat=%d occ=%f want mat=%d occ=%f",
				c.x, c.y, c.z, leaf.MaterialId, leaf.Occupancy, c.mat, c.density)
		}
	}

	if tree.FindLeaf(5, 5, 5) != nil {
		t.Error("unexpected leaf at (5,5,5)")
	}
}

func TestSvoRejectsNonPositiveDensity(t *testing.T) {
	tree := NewSvoTree(4, mgl32.Vec3{}, 1.0)
	tree.InsertVoxel(3, 3, 3, 1, 1.0)

	before := tree.PackBytes(nil)
	tree.InsertVoxel(4, 4, 4, 2, 0)
	tree.InsertVoxel(5, 5, 5, 2, -1.0)
	after := tree.PackBytes(nil)

	if !bytes.Equal(before, after) {
		t.Error("insert with density <= 0 must not change the tree")
	}
}

func TestSvoRejectsOutOfRange(t *testing.T) {
	tree := NewSvoTree(3, mgl32.Vec3{}, 1.0)
	before := tree.PackBytes(nil)
	tree.InsertVoxel(8, 0, 0, 1, 1.0)
	tree.InsertVoxel(0, 100, 0, 1, 1.0)
	after := tree.PackBytes(nil)
	if !bytes.Equal(before, after) {
		t.Error("out-of-range insert must be a no-op")
	}
}

// subtreeHasLeaf walks down and reports whether any reachable leaf at the
// bottom level has positive occupancy.
func subtreeHasLeaf(tree *SvoTree, nodeIdx uint32, level int) bool {
	node := &tree.Nodes[nodeIdx]
	if level == tree.MaxDepth {
		return node.Occupancy > 0
	}
	if node.FirstChild == InvalidChild {
		return false
	}
	for i := uint32(0); i < 8; i++ {
		if subtreeHasLeaf(tree, node.FirstChild+i, level+1) {
			return true
		}
	}
	return false
}

func TestSvoChildMaskInvariant(t *testing.T) {
	tree := NewSvoTree(4, mgl32.Vec3{}, 1.0)
	tree.InsertVoxel(0, 0, 0, 1, 1.0)
	tree.InsertVoxel(9, 3, 14, 2, 0.7)
	tree.InsertVoxel(15, 15, 0, 3, 0.1)

	var walk func(nodeIdx uint32, level int)
	walk = func(nodeIdx uint32, level int) {
		if level >= tree.MaxDepth {
			return
		}
		node := tree.Nodes[nodeIdx]
		for i := uint32(0); i < 8; i++ {
			maskSet := node.ChildMask&(1<<i) != 0
			hasLeaf := node.FirstChild != InvalidChild &&
				subtreeHasLeaf(tree, node.FirstChild+i, level+1)
			if maskSet != hasLeaf {
				t.Fatalf("node %d octant %d: mask=%v subtree=%v", nodeIdx, i, maskSet, hasLeaf)
			}
			if node.FirstChild != InvalidChild {
				walk(node.FirstChild+i, level+1)
			}
		}
	}
	walk(0, 0)
}

func TestSvoNodePackedSize(t *testing.T) {
	n := SvoNode{ChildMask: 0xFF, FirstChild: 1, MaterialId: 2, Occupancy: 0.5}
	if got := len(n.AppendBytes(nil)); got != 16 {
		t.Errorf("SvoNode packs to %d bytes, want 16", got)
	}
}
