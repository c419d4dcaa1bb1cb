package voxtrace

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxtrace/voxtrace/rt/core"
	"github.com/voxtrace/voxtrace/rt/volume"
)

func writeChunk(buf *bytes.Buffer, id string, content []byte, childrenSize int) {
	buf.WriteString(id)
	binary.Write(buf, binary.LittleEndian, int32(len(content)))
	binary.Write(buf, binary.LittleEndian, int32(childrenSize))
	buf.Write(content)
}

// buildTestVox assembles a file with a 4x4x4 model holding a 2x2x2 cube of
// palette index 1 in the high corner, with palette entry 1 set to red.
func buildTestVox(t *testing.T) []byte {
	t.Helper()

	var size bytes.Buffer
	binary.Write(&size, binary.LittleEndian, [3]uint32{4, 4, 4})

	var xyzi bytes.Buffer
	binary.Write(&xyzi, binary.LittleEndian, uint32(8))
	for x := byte(2); x <= 3; x++ {
		for y := byte(2); y <= 3; y++ {
			for z := byte(2); z <= 3; z++ {
				xyzi.Write([]byte{x, y, z, 1})
			}
		}
	}

	var rgba bytes.Buffer
	binary.Write(&rgba, binary.LittleEndian, uint32(0xFFFF0000))
	for i := 1; i < 256; i++ {
		binary.Write(&rgba, binary.LittleEndian, uint32(0xFFFFFFFF))
	}

	var children bytes.Buffer
	writeChunk(&children, "SIZE", size.Bytes(), 0)
	writeChunk(&children, "XYZI", xyzi.Bytes(), 0)
	writeChunk(&children, "RGBA", rgba.Bytes(), 0)

	var file bytes.Buffer
	file.WriteString("VOX ")
	binary.Write(&file, binary.LittleEndian, int32(150))
	writeChunk(&file, "MAIN", nil, children.Len())
	file.Write(children.Bytes())
	return file.Bytes()
}

func TestParseVoxModel(t *testing.T) {
	vf, err := ParseVox(bytes.NewReader(buildTestVox(t)))
	require.NoError(t, err)

	require.Len(t, vf.Models, 1)
	model := vf.Models[0]
	assert.Equal(t, uint32(4), model.SizeX)
	assert.Equal(t, uint32(4), model.SizeY)
	assert.Equal(t, uint32(4), model.SizeZ)
	require.Len(t, model.Voxels, 8)
	for _, v := range model.Voxels {
		assert.Equal(t, byte(1), v.ColorIndex)
	}

	assert.Equal(t, VoxColor{R: 255, G: 0, B: 0, A: 255}, vf.Palette[1])
	assert.Equal(t, VoxColor{R: 255, G: 255, B: 255, A: 255}, vf.Palette[2])
}

func TestParseVoxRejectsBadMagic(t *testing.T) {
	data := buildTestVox(t)
	copy(data, "BAD ")
	_, err := ParseVox(bytes.NewReader(data))
	require.Error(t, err)
}

func TestParseVoxRejectsOldVersion(t *testing.T) {
	data := buildTestVox(t)
	binary.LittleEndian.PutUint32(data[4:8], 100)
	_, err := ParseVox(bytes.NewReader(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestParseVoxTruncatedXYZI(t *testing.T) {
	var xyzi bytes.Buffer
	binary.Write(&xyzi, binary.LittleEndian, uint32(100))
	xyzi.Write([]byte{0, 0, 0, 1})

	var file bytes.Buffer
	file.WriteString("VOX ")
	binary.Write(&file, binary.LittleEndian, int32(150))
	var children bytes.Buffer
	writeChunk(&children, "SIZE", make([]byte, 12), 0)
	writeChunk(&children, "XYZI", xyzi.Bytes(), 0)
	writeChunk(&file, "MAIN", nil, children.Len())
	file.Write(children.Bytes())

	_, err := ParseVox(bytes.NewReader(file.Bytes()))
	require.Error(t, err)
}

func TestDecodeVoxColor(t *testing.T) {
	assert.Equal(t, VoxColor{R: 255, G: 0, B: 0, A: 255}, decodeVoxColor(0xFFFF0000))
	assert.Equal(t, VoxColor{R: 0, G: 255, B: 0, A: 255}, decodeVoxColor(0xFF00FF00))
	assert.Equal(t, VoxColor{R: 16, G: 32, B: 48, A: 64}, decodeVoxColor(0x40102030))
}

func TestImportVoxFillsWorld(t *testing.T) {
	vf, err := ParseVox(bytes.NewReader(buildTestVox(t)))
	require.NoError(t, err)

	lib := core.NewMaterialLibrary()
	world := volume.NewChunkManager(16, 1.0, lib)

	n := ImportVox(vf, world, lib, mgl32.Vec3{}, nil)
	assert.Equal(t, 8, n)

	require.Len(t, world.Chunks, 1)
	ch, ok := world.Chunks[[3]int32{0, 0, 0}]
	require.True(t, ok)

	filled := 0
	for _, d := range ch.Density {
		if d > 0 {
			filled++
		}
	}
	assert.Equal(t, 8, filled)

	// Z-up model coordinates land in Y-up world space unchanged here since
	// the cube is symmetric, but each cell must carry the red material.
	id := lib.GetMaterialFromVoxPalette(1)
	require.NotZero(t, id)
	mat := lib.Get(id)
	assert.Equal(t, core.MaterialDiffuse, mat.Kind)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, mat.Albedo)

	density, cellMat := ch.GetVoxel(2, 2, 2)
	assert.Equal(t, float32(1), density)
	assert.Equal(t, id, cellMat)
}

func TestImportVoxRemapsZUp(t *testing.T) {
	vf := &VoxFile{
		Palette: defaultVoxPalette(),
		Models: []VoxModel{{
			SizeX: 8, SizeY: 8, SizeZ: 8,
			Voxels: []VoxVoxel{{X: 1, Y: 2, Z: 3, ColorIndex: 1}},
		}},
	}
	world := volume.NewChunkManager(16, 1.0, nil)
	n := ImportVox(vf, world, nil, mgl32.Vec3{}, nil)
	require.Equal(t, 1, n)

	ch, ok := world.Chunks[[3]int32{0, 0, 0}]
	require.True(t, ok)
	density, _ := ch.GetVoxel(1, 3, 2)
	assert.Equal(t, float32(1), density)
}

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) DebugEnabled() bool    { return false }
func (l *recordingLogger) SetDebug(bool)         {}
func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Infof(string, ...any)  {}
func (l *recordingLogger) Errorf(string, ...any) {}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func TestImportVoxEmptyModelCounts(t *testing.T) {
	vf := &VoxFile{
		Palette: defaultVoxPalette(),
		Models:  []VoxModel{{SizeX: 4, SizeY: 4, SizeZ: 4}},
	}
	world := volume.NewChunkManager(16, 1.0, nil)
	log := &recordingLogger{}
	n := ImportVox(vf, world, nil, mgl32.Vec3{}, log)
	assert.Zero(t, n)
	assert.Empty(t, world.Chunks)
}
