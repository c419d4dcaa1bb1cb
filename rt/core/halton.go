package core

import "github.com/go-gl/mathgl/mgl32"

// JitterSequenceLength is the period of the TAA sub-pixel jitter.
const JitterSequenceLength = 16

func haltonValue(index, base int) float32 {
	f := float32(1)
	r := float32(0)
	for index > 0 {
		f /= float32(base)
		r += f * float32(index%base)
		index /= base
	}
	return r
}

// HaltonJitter returns the sub-pixel offset for a frame index, in pixels,
// each component in [-0.5, 0.5). Bases 2 and 3 give a low-discrepancy
// distribution over the pixel footprint.
func HaltonJitter(frame int) mgl32.Vec2 {
	i := frame%JitterSequenceLength + 1
	return mgl32.Vec2{
		haltonValue(i, 2) - 0.5,
		haltonValue(i, 3) - 0.5,
	}
}
