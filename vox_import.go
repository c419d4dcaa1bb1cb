package voxtrace

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/voxtrace/voxtrace/rt/core"
	"github.com/voxtrace/voxtrace/rt/volume"
)

// ImportVoxFile loads a .vox file and writes its voxels into the world.
// Returns the number of voxels imported.
func ImportVoxFile(filename string, world *volume.ChunkManager, materials *core.MaterialLibrary, offset mgl32.Vec3, log Logger) (int, error) {
	vf, err := LoadVoxFile(filename)
	if err != nil {
		return 0, err
	}
	n := ImportVox(vf, world, materials, offset, log)
	if n == 0 && log != nil {
		log.Warnf("vox import: %s contains no voxels", filename)
	}
	return n, nil
}

// ImportVox places every voxel of every model into the chunk manager.
// Vox files are Z-up; world space is Y-up, so a model cell (x,y,z) lands at
// offset + (x, z, y). Palette entries become diffuse materials on first use
// and the palette index to material id mapping is recorded in the library.
func ImportVox(vf *VoxFile, world *volume.ChunkManager, materials *core.MaterialLibrary, offset mgl32.Vec3, log Logger) int {
	var assigned [256]bool
	total := 0
	for mi := range vf.Models {
		model := &vf.Models[mi]
		for _, v := range model.Voxels {
			idx := int(v.ColorIndex)
			if materials != nil && !assigned[idx] {
				c := vf.Palette[idx]
				id := materials.GetOrCreateFromColor(c.R, c.G, c.B)
				materials.SetVoxPaletteMaterial(idx, id)
				assigned[idx] = true
			}
			pos := mgl32.Vec3{
				offset.X() + float32(v.X),
				offset.Y() + float32(v.Z),
				offset.Z() + float32(v.Y),
			}
			if materials != nil {
				world.SetVoxel(pos, materials.GetMaterialFromVoxPalette(idx), 1)
			} else {
				c := vf.Palette[idx]
				world.SetVoxelColor(pos, c.R, c.G, c.B, 1)
			}
			total++
		}
		if log != nil {
			log.Debugf("vox import: model %d size %dx%dx%d voxels %d",
				mi, model.SizeX, model.SizeY, model.SizeZ, len(model.Voxels))
		}
	}
	return total
}
