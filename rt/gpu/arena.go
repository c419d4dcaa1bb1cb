package gpu

import "fmt"

// UniformArena is a host-visible per-frame uniform buffer with bump
// allocation. The head is reset at the start of every frame; allocations are
// offset-assigned upward and never freed individually. Single writer.
type UniformArena struct {
	buffer    Buffer
	head      uint64
	alignment uint64
}

// NewUniformArena allocates a host-visible arena of the given size, honoring
// the device's minimum uniform-offset alignment.
func NewUniformArena(dev Device, label string, size uint64) (*UniformArena, error) {
	align := dev.Properties().MinUniformBufferOffsetAlignment
	if align == 0 {
		align = 256
	}
	buf, err := dev.NewBuffer(label, size, BufferUsageUniform|BufferUsageDeviceAddress, MemoryHostVisible)
	if err != nil {
		return nil, fmt.Errorf("uniform arena %q: %w", label, err)
	}
	return &UniformArena{buffer: buf, alignment: align}, nil
}

// Reset rewinds the head. Call once per frame before any Alloc.
func (a *UniformArena) Reset() {
	a.head = 0
}

// Alloc writes data at the current head and returns its offset. Panics when
// the frame's uniform demand exceeds the arena; that is a sizing bug, not a
// runtime condition.
func (a *UniformArena) Alloc(data []byte) uint64 {
	offset := a.head
	n := uint64(len(data))
	if offset+n > a.buffer.Size() {
		panic(fmt.Sprintf("uniform arena overflow: head %d + %d > %d", offset, n, a.buffer.Size()))
	}
	a.buffer.Write(offset, data)

	a.head += n
	if rem := a.head % a.alignment; rem != 0 {
		a.head += a.alignment - rem
	}
	return offset
}

func (a *UniformArena) Buffer() Buffer {
	return a.buffer
}

func (a *UniformArena) Destroy() {
	if a.buffer != nil {
		a.buffer.Destroy()
		a.buffer = nil
	}
}
