package volume

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type BrushMode int

const (
	BrushAdd BrushMode = iota
	BrushSub
)

// Brush is a spherical density edit applied through the chunk manager.
type Brush struct {
	Center mgl32.Vec3
	Radius float32
	Value  float32
	Mode   BrushMode
}

// Apply updates every voxel whose center lies within the brush sphere.
// Add raises density via max, Sub lowers it via min. Affected chunks are
// marked dirty through the regular SetVoxel path.
func (b *Brush) Apply(m *ChunkManager) {
	minGv := m.WorldToGlobalVoxel(b.Center.Sub(mgl32.Vec3{b.Radius, b.Radius, b.Radius}))
	maxGv := m.WorldToGlobalVoxel(b.Center.Add(mgl32.Vec3{b.Radius, b.Radius, b.Radius}))

	r2 := float64(b.Radius) * float64(b.Radius)
	for z := minGv[2]; z <= maxGv[2]; z++ {
		for y := minGv[1]; y <= maxGv[1]; y++ {
			for x := minGv[0]; x <= maxGv[0]; x++ {
				cx := float64(x) + 0.5 - float64(b.Center.X())
				cy := float64(y) + 0.5 - float64(b.Center.Y())
				cz := float64(z) + 0.5 - float64(b.Center.Z())
				if cx*cx+cy*cy+cz*cz > r2 {
					continue
				}

				gv := [3]int32{x, y, z}
				ch := m.GetOrCreateChunk(m.GlobalVoxelToChunk(gv))
				l := m.GlobalVoxelToLocal(gv)
				d, mat := ch.GetVoxel(l[0], l[1], l[2])

				var nd float32
				if b.Mode == BrushAdd {
					nd = float32(math.Max(float64(d), float64(b.Value)))
					if m.Materials != nil && d <= 0 && nd > 0 {
						mat = m.Materials.GetOrCreateFromColor(
							m.BrushColor[0], m.BrushColor[1], m.BrushColor[2])
					}
				} else {
					nd = float32(math.Min(float64(d), float64(b.Value)))
				}
				if nd != d {
					ch.SetVoxel(l[0], l[1], l[2], mat, nd)
				}
			}
		}
	}
}
