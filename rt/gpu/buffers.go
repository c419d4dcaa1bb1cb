package gpu

import "fmt"

// EnsureBuffer writes data into *buf, growing it (destroy + recreate with
// headroom) when the current buffer is nil or too small. Returns true when
// the buffer was recreated, which invalidates bind groups referencing it.
func EnsureBuffer(dev Device, label string, buf *Buffer, data []byte, usage BufferUsage, headroom int) (bool, error) {
	needed := uint64(len(data) + headroom)
	if rem := needed % 4; rem != 0 {
		needed += 4 - rem
	}
	if needed == 0 {
		needed = 4
	}

	current := *buf
	if current != nil && current.Size() >= needed {
		if len(data) > 0 {
			current.Write(0, data)
		}
		return false, nil
	}

	if current != nil {
		current.Destroy()
		*buf = nil
	}
	newBuf, err := dev.NewBuffer(label, needed, usage|BufferUsageTransferDst, MemoryDeviceLocal)
	if err != nil {
		return false, fmt.Errorf("buffer %q (%d bytes): %w", label, needed, err)
	}
	if len(data) > 0 {
		newBuf.Write(0, data)
	}
	*buf = newBuf
	return true, nil
}
