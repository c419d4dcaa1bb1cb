package core

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type MaterialKind uint32

const (
	MaterialDiffuse MaterialKind = iota
	MaterialMetallic
	MaterialGlass
	MaterialEmissive
)

// Material is the CPU-side authoring record.
type Material struct {
	Name            string
	Albedo          mgl32.Vec3
	Alpha           float32
	Metallic        float32
	Roughness       float32
	Ior             float32
	Specular        float32
	Emission        mgl32.Vec3
	EmissionPower   float32
	Kind            MaterialKind
	VoxPaletteIndex int
}

// MaterialGpuSize is the packed size of one material record.
const MaterialGpuSize = 32

// MaterialGpu matches the GLSL material layout:
//
//	struct MaterialGpu {
//	    vec3 albedo;
//	    uint flags;     // metallic(8) | roughness(8) | kind(4) | alpha(4) | specular(8)
//	    vec3 emission;
//	    float ior;      // index of refraction for Glass, emission power otherwise
//	}; // 32 bytes
type MaterialGpu struct {
	Albedo   mgl32.Vec3
	Flags    uint32
	Emission mgl32.Vec3
	Ior      float32
}

func quantize8(v float32) uint32 {
	return uint32(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}

func quantize4(v float32) uint32 {
	return uint32(mgl32.Clamp(v, 0, 1)*15 + 0.5)
}

// PackMaterial converts a CPU material to its GPU record. The ior slot is
// shared with emission power to keep the record at 32 bytes; shaders branch
// on the kind bits to interpret it.
func PackMaterial(m *Material) MaterialGpu {
	flags := quantize8(m.Metallic) |
		quantize8(m.Roughness)<<8 |
		(uint32(m.Kind)&0xF)<<16 |
		quantize4(m.Alpha)<<20 |
		quantize8(m.Specular)<<24

	ior := m.EmissionPower
	if m.Kind == MaterialGlass {
		ior = m.Ior
	}
	return MaterialGpu{
		Albedo:   m.Albedo,
		Flags:    flags,
		Emission: m.Emission,
		Ior:      ior,
	}
}

func (g *MaterialGpu) AppendBytes(out []byte) []byte {
	var buf [MaterialGpuSize]byte
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.Albedo[i]))
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(g.Emission[i]))
	}
	binary.LittleEndian.PutUint32(buf[12:16], g.Flags)
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Ior))
	return append(out, buf[:]...)
}

// MaterialLibrary owns all authored materials. Id 0 is always the default
// white diffuse, so a missing material id still shades sanely.
type MaterialLibrary struct {
	Materials []Material

	colorCache map[uint32]uint32
	voxPalette [256]uint32
}

func NewMaterialLibrary() *MaterialLibrary {
	lib := &MaterialLibrary{
		colorCache: make(map[uint32]uint32),
	}
	lib.Materials = append(lib.Materials, Material{
		Name:      "default",
		Albedo:    mgl32.Vec3{1, 1, 1},
		Alpha:     1,
		Roughness: 1,
		Kind:      MaterialDiffuse,
	})
	return lib
}

// AddMaterial appends a material and returns its id.
func (lib *MaterialLibrary) AddMaterial(m Material) uint32 {
	lib.Materials = append(lib.Materials, m)
	return uint32(len(lib.Materials) - 1)
}

// AddOrFindMaterial deduplicates by non-empty name.
func (lib *MaterialLibrary) AddOrFindMaterial(m Material) uint32 {
	if m.Name != "" {
		for i := range lib.Materials {
			if lib.Materials[i].Name == m.Name {
				return uint32(i)
			}
		}
	}
	return lib.AddMaterial(m)
}

func (lib *MaterialLibrary) Get(id uint32) *Material {
	if int(id) >= len(lib.Materials) {
		return &lib.Materials[0]
	}
	return &lib.Materials[id]
}

// GetOrCreateFromColor returns a diffuse material for the given RGB color,
// creating it on first use. Repeated calls with the same color return the
// same id.
func (lib *MaterialLibrary) GetOrCreateFromColor(r, g, b uint8) uint32 {
	key := uint32(r)<<16 | uint32(g)<<8 | uint32(b)
	if id, ok := lib.colorCache[key]; ok {
		return id
	}
	id := lib.AddMaterial(Material{
		Name:      fmt.Sprintf("color_%02X%02X%02X", r, g, b),
		Albedo:    mgl32.Vec3{float32(r) / 255, float32(g) / 255, float32(b) / 255},
		Alpha:     1,
		Roughness: 0.5,
		Kind:      MaterialDiffuse,
	})
	lib.colorCache[key] = id
	return id
}

// SetVoxPaletteMaterial records the material id the importer assigned to a
// vox palette entry.
func (lib *MaterialLibrary) SetVoxPaletteMaterial(paletteIndex int, id uint32) {
	if paletteIndex >= 0 && paletteIndex < 256 {
		lib.voxPalette[paletteIndex] = id
	}
}

// GetMaterialFromVoxPalette returns the id mapped to a palette entry, or the
// default material when the entry was never imported.
func (lib *MaterialLibrary) GetMaterialFromVoxPalette(paletteIndex int) uint32 {
	if paletteIndex < 0 || paletteIndex >= 256 {
		return 0
	}
	return lib.voxPalette[paletteIndex]
}

// PackForGpu serializes every material in id order.
func (lib *MaterialLibrary) PackForGpu() []byte {
	out := make([]byte, 0, len(lib.Materials)*MaterialGpuSize)
	for i := range lib.Materials {
		g := PackMaterial(&lib.Materials[i])
		out = g.AppendBytes(out)
	}
	return out
}

func (lib *MaterialLibrary) Count() int {
	return len(lib.Materials)
}
