package volume

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// RayHit describes a CPU-side voxel hit, used for brush picking.
type RayHit struct {
	T          float32
	Voxel      [3]int32
	Normal     mgl32.Vec3
	MaterialId uint32
}

// RayMarch walks a ray through the chunk grid in world space, testing dense
// voxel data directly. Empty chunks are skipped with a whole-chunk step.
// Returns nil when nothing is hit before tMax.
func (m *ChunkManager) RayMarch(origin, dir mgl32.Vec3, tMin, tMax float32) *RayHit {
	safe := func(v float32) float32 {
		if math.Abs(float64(v)) < 1e-7 {
			if v >= 0 {
				return 1e-7
			}
			return -1e-7
		}
		return v
	}
	d := mgl32.Vec3{safe(dir.X()), safe(dir.Y()), safe(dir.Z())}
	invDir := mgl32.Vec3{1 / d.X(), 1 / d.Y(), 1 / d.Z()}

	// March in voxel units; world scale is uniform.
	vOrigin := origin.Mul(1 / m.VoxelSize)

	t := tMin
	const maxIterations = 8192
	for iter := 0; t < tMax && iter < maxIterations; iter++ {
		p := vOrigin.Add(d.Mul(t + 1e-3))
		gv := [3]int32{
			int32(math.Floor(float64(p.X()))),
			int32(math.Floor(float64(p.Y()))),
			int32(math.Floor(float64(p.Z()))),
		}

		ch, ok := m.Chunks[m.GlobalVoxelToChunk(gv)]
		if !ok || (!ch.Dirty && ch.IsEmpty()) {
			t += maxStep(stepToBoundary(p, d, invDir, float32(m.ChunkSize)), 1e-3)
			continue
		}

		l := m.GlobalVoxelToLocal(gv)
		density, mat := ch.GetVoxel(l[0], l[1], l[2])
		if density > 0 {
			center := mgl32.Vec3{
				float32(gv[0]) + 0.5, float32(gv[1]) + 0.5, float32(gv[2]) + 0.5,
			}
			local := p.Sub(center)
			return &RayHit{
				T:          t * m.VoxelSize,
				Voxel:      gv,
				Normal:     faceNormal(local),
				MaterialId: mat,
			}
		}

		t += maxStep(stepToBoundary(p, d, invDir, 1), 1e-3)
	}
	return nil
}

func maxStep(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// stepToBoundary returns the ray distance to the next grid boundary of the
// given cell size, padded slightly so the next sample lands across it.
func stepToBoundary(p, dir, invDir mgl32.Vec3, size float32) float32 {
	res := float32(1e10)
	for i := 0; i < 3; i++ {
		var dist float32
		if dir[i] > 0 {
			dist = (float32(math.Floor(float64(p[i]/size+1e-6)))+1)*size - p[i]
		} else {
			dist = float32(math.Floor(float64(p[i]/size-1e-6)))*size - p[i]
		}
		tv := dist * invDir[i]
		if tv > 1e-6 && tv < res {
			res = tv
		}
	}
	if res < 1e10 {
		return res + 1e-4
	}
	return res
}

func faceNormal(local mgl32.Vec3) mgl32.Vec3 {
	ax := float32(math.Abs(float64(local.X())))
	ay := float32(math.Abs(float64(local.Y())))
	az := float32(math.Abs(float64(local.Z())))

	n := mgl32.Vec3{}
	switch {
	case ax >= ay && ax >= az:
		if local.X() > 0 {
			n[0] = 1
		} else {
			n[0] = -1
		}
	case ay >= az:
		if local.Y() > 0 {
			n[1] = 1
		} else {
			n[1] = -1
		}
	default:
		if local.Z() > 0 {
			n[2] = 1
		} else {
			n[2] = -1
		}
	}
	return n
}
