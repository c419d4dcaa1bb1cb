package volume

// MortonCode is a 63-bit interleave of three 21-bit axes. Signed coordinates
// are biased by 2^20 before spreading so the full signed range packs into
// nonnegative bits.
type MortonCode uint64

const mortonBias = 1 << 20

// spread21 expands the low 21 bits of v, inserting two zero bits after each bit.
func spread21(v uint64) uint64 {
	x := v & 0x1fffff
	x = (x | x<<32) & 0x1f00000000ffff
	x = (x | x<<16) & 0x1f0000ff0000ff
	x = (x | x<<8) & 0x100f00f00f00f00f
	x = (x | x<<4) & 0x10c30c30c30c30c3
	x = (x | x<<2) & 0x1249249249249249
	return x
}

// compact21 is the inverse of spread21, extracting one bit out of every three.
func compact21(x uint64) uint64 {
	x &= 0x1249249249249249
	x = (x ^ (x >> 2)) & 0x10c30c30c30c30c3
	x = (x ^ (x >> 4)) & 0x100f00f00f00f00f
	x = (x ^ (x >> 8)) & 0x1f0000ff0000ff
	x = (x ^ (x >> 16)) & 0x1f00000000ffff
	x = (x ^ (x >> 32)) & 0x1fffff
	return x
}

// EncodeMorton interleaves three signed coordinates in [-2^20, 2^20).
func EncodeMorton(x, y, z int32) MortonCode {
	bx := uint64(int64(x) + mortonBias)
	by := uint64(int64(y) + mortonBias)
	bz := uint64(int64(z) + mortonBias)
	return MortonCode(spread21(bx) | spread21(by)<<1 | spread21(bz)<<2)
}

// DecodeMorton recovers the signed coordinates from a Morton code.
func DecodeMorton(code MortonCode) (int32, int32, int32) {
	x := int64(compact21(uint64(code))) - mortonBias
	y := int64(compact21(uint64(code)>>1)) - mortonBias
	z := int64(compact21(uint64(code)>>2)) - mortonBias
	return int32(x), int32(y), int32(z)
}

// Octant extracts the 3-bit octant index (bit layout zyx) used to descend an
// octree of depth maxDepth at the given level. Level 0 is the root split.
func Octant(code MortonCode, maxDepth, level int) uint32 {
	shift := uint(3 * (maxDepth - 1 - level))
	return uint32(code>>shift) & 7
}
