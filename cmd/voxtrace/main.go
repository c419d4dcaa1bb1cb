package main

import (
	"flag"
	"os"
	"runtime"

	"github.com/go-gl/mathgl/mgl32"

	voxtrace "github.com/voxtrace/voxtrace"
	"github.com/voxtrace/voxtrace/rt/app"
	"github.com/voxtrace/voxtrace/rt/core"
	"github.com/voxtrace/voxtrace/rt/gpu"
	"github.com/voxtrace/voxtrace/rt/volume"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	backendName := flag.String("backend", "", "GPU backend (default: the only one compiled in)")
	voxPath := flag.String("vox", "", "Path to a .vox model to load at startup")
	width := flag.Int("width", 1280, "Initial window width")
	height := flag.Int("height", 720, "Initial window height")
	flag.Parse()

	log := voxtrace.NewDefaultLogger("voxtrace", *debug)

	backend, err := gpu.OpenBackend(*backendName)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}

	window, err := app.NewGlfwWindow(*width, *height, "voxtrace")
	if err != nil {
		log.Errorf("window: %v", err)
		os.Exit(1)
	}
	defer window.Destroy()

	dev, err := backend.CreateDevice()
	if err != nil {
		log.Errorf("device: %v", err)
		os.Exit(1)
	}

	materials := core.NewMaterialLibrary()
	world := volume.NewChunkManager(16, 1.0, materials)

	if *voxPath != "" {
		n, err := voxtrace.ImportVoxFile(*voxPath, world, materials, mgl32.Vec3{}, log)
		if err != nil {
			log.Errorf("vox import: %v", err)
			os.Exit(1)
		}
		log.Infof("loaded %s (%d voxels)", *voxPath, n)
	} else {
		seedGround(world)
	}

	newSwap := func(w, h uint32) (gpu.Swapchain, error) {
		return backend.CreateSwapchain(dev, window.Handle(), w, h)
	}

	application, err := app.NewApp(log, dev, window, newSwap, world, materials)
	if err != nil {
		log.Errorf("init: %v", err)
		os.Exit(1)
	}
	defer application.Destroy()

	application.Camera.Position = mgl32.Vec3{8, 12, 30}

	for !window.ShouldClose() {
		window.Poll()
		dt := application.Update()
		if err := application.RenderFrame(dt); err != nil {
			log.Errorf("frame: %v", err)
			os.Exit(1)
		}
	}
}

// seedGround fills a flat slab so an empty start still shows something to
// paint on.
func seedGround(world *volume.ChunkManager) {
	for x := -16; x < 16; x++ {
		for z := -16; z < 16; z++ {
			world.SetVoxelColor(mgl32.Vec3{float32(x), 0, float32(z)}, 90, 140, 80, 1)
		}
	}
}
