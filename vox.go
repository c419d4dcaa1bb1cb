package voxtrace

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	voxMagic      = "VOX "
	voxMinVersion = 150
)

// VoxVoxel is a single filled cell in model space. ColorIndex refers to the
// 1-based palette entry.
type VoxVoxel struct {
	X, Y, Z, ColorIndex byte
}

// VoxModel is one SIZE+XYZI pair from the file.
type VoxModel struct {
	SizeX, SizeY, SizeZ uint32
	Voxels              []VoxVoxel
}

// VoxColor is a decoded palette entry.
type VoxColor struct {
	R, G, B, A uint8
}

type VoxPalette [256]VoxColor

// VoxMaterial carries the raw key/value properties of a MATL chunk. Only the
// dict entries the renderer understands are lifted into typed fields.
type VoxMaterial struct {
	ID       int
	Type     int
	Weight   float32
	Property map[string]string
}

type VoxFile struct {
	Version   int
	Models    []VoxModel
	Palette   VoxPalette
	Materials []VoxMaterial
}

// LoadVoxFile reads and parses a MagicaVoxel .vox file.
func LoadVoxFile(filename string) (*VoxFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	vf, err := ParseVox(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return vf, nil
}

// ParseVox parses the vox container format: a magic/version header followed
// by a MAIN chunk wrapping SIZE, XYZI, RGBA, MATL and PACK children.
func ParseVox(r io.Reader) (*VoxFile, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if string(magic[:]) != voxMagic {
		return nil, errors.New("not a valid VOX file")
	}

	var version int32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version < voxMinVersion {
		return nil, fmt.Errorf("unsupported VOX version %d (need >= %d)", version, voxMinVersion)
	}

	vf := &VoxFile{
		Version: int(version),
		Palette: defaultVoxPalette(),
	}

	for {
		var chunkID [4]byte
		if _, err := io.ReadFull(r, chunkID[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		var contentSize, childrenSize int32
		if err := binary.Read(r, binary.LittleEndian, &contentSize); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &childrenSize); err != nil {
			return nil, err
		}
		if contentSize < 0 {
			return nil, fmt.Errorf("chunk %q: negative content size", chunkID[:])
		}

		data := make([]byte, contentSize)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("chunk %q: %w", chunkID[:], err)
		}

		switch string(chunkID[:]) {
		case "MAIN":
			// Children follow as top-level reads.
		case "PACK":
			if len(data) < 4 {
				return nil, errors.New("PACK chunk too small")
			}
			n := binary.LittleEndian.Uint32(data[:4])
			if n > 0 {
				vf.Models = make([]VoxModel, 0, n)
			}
		case "SIZE":
			if len(data) < 12 {
				return nil, errors.New("SIZE chunk too small")
			}
			vf.Models = append(vf.Models, VoxModel{
				SizeX: binary.LittleEndian.Uint32(data[0:4]),
				SizeY: binary.LittleEndian.Uint32(data[4:8]),
				SizeZ: binary.LittleEndian.Uint32(data[8:12]),
			})
		case "XYZI":
			if len(vf.Models) == 0 {
				return nil, errors.New("XYZI chunk before SIZE")
			}
			if len(data) < 4 {
				return nil, errors.New("XYZI chunk too small")
			}
			n := int(binary.LittleEndian.Uint32(data[:4]))
			if 4+n*4 > len(data) {
				return nil, errors.New("XYZI chunk data overflow")
			}
			model := &vf.Models[len(vf.Models)-1]
			model.Voxels = make([]VoxVoxel, n)
			for i := 0; i < n; i++ {
				off := 4 + i*4
				model.Voxels[i] = VoxVoxel{
					X:          data[off],
					Y:          data[off+1],
					Z:          data[off+2],
					ColorIndex: data[off+3],
				}
			}
		case "RGBA":
			// Entry i of the chunk colors palette index i+1. The final
			// dword colors nothing and is dropped.
			for i := 0; i < 255; i++ {
				off := i * 4
				if off+4 > len(data) {
					break
				}
				vf.Palette[i+1] = decodeVoxColor(binary.LittleEndian.Uint32(data[off : off+4]))
			}
		case "MATL":
			mat, err := parseVoxMaterial(data)
			if err != nil {
				return nil, err
			}
			vf.Materials = append(vf.Materials, mat)
		default:
			// nTRN, nGRP, rOBJ and friends are scene-graph metadata the
			// importer does not consume.
		}
	}

	return vf, nil
}

// decodeVoxColor splits a palette dword laid out as 0xAARRGGBB.
func decodeVoxColor(v uint32) VoxColor {
	return VoxColor{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: uint8(v >> 24),
	}
}

func parseVoxMaterial(data []byte) (VoxMaterial, error) {
	mat := VoxMaterial{
		Property: make(map[string]string),
	}
	if len(data) < 8 {
		return mat, errors.New("MATL chunk too small")
	}
	mat.ID = int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]

	// Property dict: count followed by length-prefixed key/value strings.
	count := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	for i := 0; i < count; i++ {
		key, rest, err := readVoxString(data)
		if err != nil {
			return mat, err
		}
		value, rest, err := readVoxString(rest)
		if err != nil {
			return mat, err
		}
		data = rest

		switch key {
		case "_weight":
			var weight float32
			if _, err := fmt.Sscanf(value, "%f", &weight); err != nil {
				return mat, err
			}
			mat.Weight = weight
		case "_type":
			mat.Type = voxMaterialType(value)
			mat.Property[key] = value
		default:
			mat.Property[key] = value
		}
	}
	return mat, nil
}

func readVoxString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, errors.New("MATL string header truncated")
	}
	n := int(binary.LittleEndian.Uint32(data[:4]))
	data = data[4:]
	if n < 0 || n > len(data) {
		return "", nil, errors.New("MATL string truncated")
	}
	return string(data[:n]), data[n:], nil
}

func voxMaterialType(s string) int {
	switch s {
	case "_diffuse":
		return 0
	case "_metal":
		return 1
	case "_glass":
		return 2
	case "_emit":
		return 3
	}
	return 0
}

func defaultVoxPalette() VoxPalette {
	var palette VoxPalette
	for i := range palette {
		palette[i] = VoxColor{255, 255, 255, 255}
	}
	return palette
}
