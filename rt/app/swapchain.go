package app

import (
	"fmt"

	"github.com/voxtrace/voxtrace/rt/gpu"
)

// SwapchainFactory creates a swapchain at the given framebuffer extent.
// The backend binds it to the window surface.
type SwapchainFactory func(width, height uint32) (gpu.Swapchain, error)

// presentRing owns the swapchain plus its per-image synchronization: one
// present-wait semaphore per image and the borrowed in-flight fence of the
// last submission that rendered to it.
type presentRing struct {
	dev       gpu.Device
	swapchain gpu.Swapchain

	presentSemaphores []gpu.Semaphore
	imageFences       []gpu.Fence // borrowed, not owned
}

func newPresentRing(dev gpu.Device, sc gpu.Swapchain) (*presentRing, error) {
	r := &presentRing{
		dev:         dev,
		swapchain:   sc,
		imageFences: make([]gpu.Fence, sc.ImageCount()),
	}
	for i := 0; i < sc.ImageCount(); i++ {
		sem, err := dev.NewSemaphore()
		if err != nil {
			r.destroy()
			return nil, fmt.Errorf("present semaphore %d: %w", i, err)
		}
		r.presentSemaphores = append(r.presentSemaphores, sem)
	}
	return r, nil
}

// acquire returns the next image index, first serializing against whatever
// submission last rendered to it.
func (r *presentRing) acquire(imageAvailable gpu.Semaphore) (uint32, error) {
	idx, err := r.swapchain.Acquire(imageAvailable)
	if err != nil {
		return 0, err
	}
	if f := r.imageFences[idx]; f != nil {
		f.Wait()
	}
	return idx, nil
}

func (r *presentRing) markSubmitted(imageIndex uint32, fence gpu.Fence) {
	r.imageFences[imageIndex] = fence
}

func (r *presentRing) present(imageIndex uint32) error {
	return r.swapchain.Present(imageIndex, r.presentSemaphores[imageIndex])
}

func (r *presentRing) image(imageIndex uint32) gpu.Image {
	return r.swapchain.ImageAt(imageIndex)
}

func (r *presentRing) extent() (uint32, uint32) {
	return r.swapchain.Width(), r.swapchain.Height()
}

// destroy tears down per-image sync and the swapchain. The caller waits for
// device idle first.
func (r *presentRing) destroy() {
	for _, s := range r.presentSemaphores {
		s.Destroy()
	}
	r.presentSemaphores = nil
	r.imageFences = nil
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
}
