package gpu

import (
	"fmt"
	"sort"
	"sync"
)

// Backend creates devices and swapchains for one concrete GPU API. Backend
// packages register themselves from an init function, usually behind a build
// tag, so the renderer core stays free of API-specific imports.
type Backend interface {
	Name() string
	// CreateDevice opens a device with ray-tracing, acceleration-structure
	// and buffer-device-address support, or fails if none exists.
	CreateDevice() (Device, error)
	// CreateSwapchain binds a surface to the given window handle. The handle
	// type is backend-specific.
	CreateSwapchain(dev Device, window any, width, height uint32) (Swapchain, error)
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Backend)
)

// RegisterBackend makes a backend available by name. Panics on duplicates.
func RegisterBackend(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if b == nil {
		panic("gpu: RegisterBackend called with nil backend")
	}
	if _, dup := backends[b.Name()]; dup {
		panic("gpu: RegisterBackend called twice for " + b.Name())
	}
	backends[b.Name()] = b
}

// OpenBackend returns the named backend, or the sole registered one when
// name is empty.
func OpenBackend(name string) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	if name == "" {
		if len(backends) == 1 {
			for _, b := range backends {
				return b, nil
			}
		}
		return nil, fmt.Errorf("gpu: %d backends registered, name required (have %v)", len(backends), backendNamesLocked())
	}
	b, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("gpu: unknown backend %q (have %v)", name, backendNamesLocked())
	}
	return b, nil
}

// BackendNames lists registered backends in sorted order.
func BackendNames() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	return backendNamesLocked()
}

func backendNamesLocked() []string {
	var names []string
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
