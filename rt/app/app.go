// Package app owns the frame orchestrator: per-frame uniforms, world sync,
// acquire/record/submit/present, and the swapchain lifecycle.
package app

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"

	voxtrace "github.com/voxtrace/voxtrace"
	"github.com/voxtrace/voxtrace/rt/core"
	"github.com/voxtrace/voxtrace/rt/denoise"
	"github.com/voxtrace/voxtrace/rt/gpu"
	"github.com/voxtrace/voxtrace/rt/postfx"
	"github.com/voxtrace/voxtrace/rt/shaders"
	"github.com/voxtrace/voxtrace/rt/volume"
)

// Overlay renders on top of the presented image (debug text, editor UI).
// Record runs inside an already-begun dynamic rendering pass that loads the
// blitted frame.
type Overlay interface {
	Begin()
	Record(cmd gpu.CommandList, target gpu.Image)
	End()
}

const (
	rebuildBudgetPerFrame = 16
	uniformArenaSize      = 64 * 1024
)

// App drives the renderer: it owns the world, every GPU pass, and the
// two-frames-in-flight submission loop.
type App struct {
	Log    voxtrace.Logger
	Window Window

	Camera   *core.CameraState
	World    *volume.ChunkManager
	Material *core.MaterialLibrary

	Denoiser core.DenoiserSettings
	PostFx   core.PostFxSettings
	Overlay  Overlay

	Profiler *Profiler

	dev        gpu.Device
	newSwap    SwapchainFactory
	ring       *presentRing
	tracker    *gpu.LayoutTracker
	gbuffer    *gpu.GBuffer
	accel      *gpu.AccelWorld
	rtPass     *gpu.RayTracingPass
	denoiser   *denoise.Denoiser
	postfx     *postfx.PostFx
	packed     *volume.PackedWorld
	worldReady bool

	arenas         [gpu.MaxFramesInFlight]*gpu.UniformArena
	inFlight       [gpu.MaxFramesInFlight]gpu.Fence
	imageAvailable [gpu.MaxFramesInFlight]gpu.Semaphore

	frameIndex     int
	frameCount     uint32
	jitterIndex    uint32
	rng            *rand.Rand
	lastTime       float64
	swapchainDirty bool

	hasPreviousFrame bool
	prevView         mgl32.Mat4
	prevProj         mgl32.Mat4
	prevViewProj     mgl32.Mat4
	prevCamPos       mgl32.Vec3
}

// NewApp builds every pass against the device and an initial swapchain from
// the factory.
func NewApp(log voxtrace.Logger, dev gpu.Device, window Window, newSwap SwapchainFactory, world *volume.ChunkManager, materials *core.MaterialLibrary) (*App, error) {
	a := &App{
		Log:      log,
		Window:   window,
		Camera:   core.NewCameraState(),
		World:    world,
		Material: materials,
		Denoiser: core.DefaultDenoiserSettings(),
		PostFx:   core.DefaultPostFxSettings(),
		Profiler: NewProfiler(),

		dev:     dev,
		newSwap: newSwap,
		tracker: gpu.NewLayoutTracker(),
		packed:  &volume.PackedWorld{},
		rng:     rand.New(rand.NewSource(1)),
	}

	width, height := window.FramebufferSize()
	sc, err := newSwap(width, height)
	if err != nil {
		return nil, fmt.Errorf("swapchain: %w", err)
	}
	a.ring, err = newPresentRing(dev, sc)
	if err != nil {
		return nil, err
	}

	a.accel = gpu.NewAccelWorld(dev)

	a.gbuffer, err = gpu.NewGBuffer(dev, width, height)
	if err != nil {
		return nil, err
	}

	a.rtPass, err = gpu.NewRayTracingPass(dev, gpu.RayTracingShaders{
		Raygen:       shaders.RaygenGLSL,
		Miss:         shaders.MissGLSL,
		MissShadow:   shaders.ShadowMissGLSL,
		Intersection: shaders.IntersectGLSL,
		ClosestHit:   shaders.ClosestHitGLSL,
	})
	if err != nil {
		return nil, err
	}

	a.denoiser, err = denoise.NewDenoiser(dev, denoise.Shaders{
		Temporal: shaders.TemporalReprojectGLSL,
		Variance: shaders.VarianceGLSL,
		Atrous:   shaders.AtrousGLSL,
	}, width, height)
	if err != nil {
		return nil, err
	}

	a.postfx, err = postfx.NewPostFx(dev, postfx.Shaders{
		Taa:     shaders.TaaGLSL,
		Tonemap: shaders.TonemapGLSL,
		Sharpen: shaders.SharpenGLSL,
	}, width, height)
	if err != nil {
		return nil, err
	}

	for i := 0; i < gpu.MaxFramesInFlight; i++ {
		if a.arenas[i], err = gpu.NewUniformArena(dev, fmt.Sprintf("frame_ubo[%d]", i), uniformArenaSize); err != nil {
			return nil, err
		}
		if a.inFlight[i], err = dev.NewFence(true); err != nil {
			return nil, fmt.Errorf("in-flight fence: %w", err)
		}
		if a.imageAvailable[i], err = dev.NewSemaphore(); err != nil {
			return nil, fmt.Errorf("image-available semaphore: %w", err)
		}
	}

	a.lastTime = window.Time()
	log.Infof("renderer ready: %dx%d, %d swapchain images", width, height, sc.ImageCount())
	return a, nil
}

// Update advances the camera from input and synchronizes dirty chunks to
// the GPU. Returns the frame delta time.
func (a *App) Update() float32 {
	now := a.Window.Time()
	dt := float32(now - a.lastTime)
	a.lastTime = now

	in := a.Window.Input()
	dx, dy := in.ConsumeMouseDelta()
	if in.MouseCaptured {
		a.Camera.Rotate(dx, dy)
	}

	var fwd, right, vert float32
	if in.Forward {
		fwd += 1
	}
	if in.Back {
		fwd -= 1
	}
	if in.Right {
		right += 1
	}
	if in.Left {
		right -= 1
	}
	if in.Up {
		vert += 1
	}
	if in.Down {
		vert -= 1
	}
	a.Camera.Move(fwd, right, vert, dt)

	if in.MouseCaptured && (in.BrushPlace || in.BrushErase) {
		a.paint(in.BrushPlace)
	}

	a.Profiler.Scope("world sync", a.syncWorld)
	return dt
}

// paint ray-marches from the camera and applies the brush at the hit,
// offset to the near side for placing and into the surface for erasing.
func (a *App) paint(place bool) {
	hit := a.World.RayMarch(a.Camera.Position, a.Camera.Forward(), 0, 256)
	if hit == nil {
		return
	}
	center := mgl32.Vec3{
		float32(hit.Voxel[0]) + 0.5,
		float32(hit.Voxel[1]) + 0.5,
		float32(hit.Voxel[2]) + 0.5,
	}.Mul(a.World.VoxelSize)

	brush := volume.Brush{Center: center, Radius: 2, Value: 1, Mode: volume.BrushAdd}
	if place {
		brush.Center = center.Add(hit.Normal.Mul(a.World.VoxelSize))
	} else {
		brush.Value = 0
		brush.Mode = volume.BrushSub
	}
	brush.Apply(a.World)
}

// syncWorld rebuilds a bounded number of dirty chunks, repacks, and pushes
// the result to the GPU buffers and acceleration structures.
func (a *App) syncWorld() {
	rebuilt := a.World.RebuildDirty(rebuildBudgetPerFrame)
	if rebuilt == 0 && a.worldReady {
		return
	}

	a.World.PackWorld(a.packed)
	a.Profiler.SetCount("packed nodes", len(a.packed.GlobalNodes))
	a.Profiler.SetCount("packed chunks", len(a.packed.GlobalChunks))

	if _, err := a.rtPass.UploadWorld(a.packed, a.Material.PackForGpu()); err != nil {
		a.Log.Errorf("world upload: %v", err)
		return
	}
	if err := a.accel.Rebuild(a.packed); err != nil {
		a.Log.Errorf("acceleration rebuild: %v", err)
		return
	}
	a.worldReady = true
	if rebuilt > 0 {
		a.Log.Debugf("world sync: %d chunks rebuilt, %d packed", rebuilt, len(a.packed.GlobalChunks))
	}
}

func (a *App) frameUniforms(dt float32) *core.FrameUniforms {
	width, height := a.ring.extent()
	jitter := core.HaltonJitter(int(a.jitterIndex))

	view := a.Camera.ViewMatrix()
	proj := a.Camera.ProjMatrix(width, height)
	jproj := a.Camera.JitteredProjMatrix(width, height, jitter)

	u := &core.FrameUniforms{
		View:    view,
		Proj:    jproj,
		InvView: view.Inv(),
		InvProj: jproj.Inv(),

		CamPos: a.Camera.Position,
		Dt:     dt,

		ScreenWidth:  width,
		ScreenHeight: height,
		FrameCount:   a.frameCount,
		SampleCount:  uint32(1 + a.rng.Intn(4)),

		TemporalAlpha:     a.Denoiser.TemporalAlpha,
		MomentAlpha:       a.Denoiser.MomentAlpha,
		VarianceClipGamma: a.Denoiser.VarianceClipGamma,
		DepthThreshold:    a.Denoiser.DepthThreshold,
		NormalThreshold:   a.Denoiser.NormalThreshold,
		PhiColor:          a.Denoiser.PhiColor,
		PhiNormal:         a.Denoiser.PhiNormal,
		PhiDepth:          a.Denoiser.PhiDepth,
		VarianceBoost:     a.Denoiser.VarianceBoost,
		MinHistoryLength:  a.Denoiser.MinHistoryLength,
		MaxHistoryLength:  a.Denoiser.MaxHistoryLength,

		JitterOffset: jitter,
	}

	if a.hasPreviousFrame {
		u.PrevView = a.prevView
		u.PrevProj = a.prevProj
		u.PrevViewProj = a.prevViewProj
		u.PrevCamPos = a.prevCamPos
	} else {
		// First frame after reset: reproject onto the current matrices so
		// motion vectors come out zero and all history is rejected anyway.
		u.PrevView = view
		u.PrevProj = proj
		u.PrevViewProj = proj.Mul4(view)
		u.PrevCamPos = a.Camera.Position
	}
	return u
}

// RenderFrame runs one iteration of the frame sequence. A frame can be
// abandoned without presenting when the swapchain is stale; the next call
// recreates it.
func (a *App) RenderFrame(dt float32) error {
	i := a.frameIndex
	arena := a.arenas[i]
	arena.Reset()

	if a.Overlay != nil {
		a.Overlay.Begin()
	}
	endOverlay := func() {
		if a.Overlay != nil {
			a.Overlay.End()
		}
	}

	if a.Window.ConsumeResize() {
		a.swapchainDirty = true
		endOverlay()
		return a.recreateSwapchain()
	}

	ubytes := a.frameUniforms(dt).Bytes()
	uboOffset := arena.Alloc(ubytes)

	a.inFlight[i].Wait()

	imageIndex, err := a.ring.acquire(a.imageAvailable[i])
	if err != nil {
		endOverlay()
		if errors.Is(err, gpu.ErrSwapchainOutOfDate) || errors.Is(err, gpu.ErrSwapchainSuboptimal) {
			a.swapchainDirty = true
			return a.recreateSwapchain()
		}
		return fmt.Errorf("acquire: %w", err)
	}
	a.inFlight[i].Reset()

	cmd, err := a.dev.NewCommandList()
	if err != nil {
		endOverlay()
		return err
	}

	a.Profiler.Begin("record")
	a.record(cmd, i, imageIndex, arena.Buffer(), uboOffset)
	a.Profiler.End("record")

	if err := a.dev.Submit(cmd, gpu.SubmitInfo{
		Wait:   a.imageAvailable[i],
		Signal: a.ring.presentSemaphores[imageIndex],
		Fence:  a.inFlight[i],
	}); err != nil {
		endOverlay()
		return fmt.Errorf("submit: %w", err)
	}
	a.ring.markSubmitted(imageIndex, a.inFlight[i])

	if err := a.ring.present(imageIndex); err != nil {
		if errors.Is(err, gpu.ErrSwapchainOutOfDate) || errors.Is(err, gpu.ErrSwapchainSuboptimal) {
			a.swapchainDirty = true
		} else {
			endOverlay()
			return fmt.Errorf("present: %w", err)
		}
	}
	endOverlay()

	a.finishFrame()

	if a.swapchainDirty {
		return a.recreateSwapchain()
	}
	return nil
}

// record encodes the full frame: trace, denoise, geometry-history copy,
// post-process, blit, overlay.
func (a *App) record(cmd gpu.CommandList, frame int, imageIndex uint32, ubo gpu.Buffer, uboOffset uint64) {
	gb := a.gbuffer
	for _, img := range gb.All() {
		a.tracker.Ensure(cmd, img.Image, gpu.RoleGeneral)
	}

	a.rtPass.UpdateDescriptors(frame, a.accel, ubo, uboOffset, core.FrameUniformsSize, gb)
	a.rtPass.Record(cmd, frame, a.accel, gb.Width, gb.Height)

	if a.accel.Empty() {
		// Nothing traced, so the trace target holds stale data. Present
		// black instead.
		a.tracker.Ensure(cmd, gb.Color.Image, gpu.RoleTransferDst)
		cmd.ClearColorImage(gb.Color.Image, 0, 0, 0, 1)
		a.tracker.Ensure(cmd, gb.Color.Image, gpu.RoleGeneral)
		cmd.Barrier(gpu.StageTransfer, gpu.AccessTransferWrite,
			gpu.StageComputeShader, gpu.AccessShaderRead)
	}

	cmd.Barrier(gpu.StageRayTracingShader, gpu.AccessShaderWrite,
		gpu.StageComputeShader, gpu.AccessShaderRead)

	a.denoiser.Record(cmd, frame, gb, a.tracker, a.Denoiser, ubo, uboOffset, core.FrameUniformsSize)
	a.denoiser.CopyGeometryHistory(cmd, gb, a.tracker)

	denoised := a.denoiser.Output(gb, a.Denoiser)
	final := a.postfx.Record(cmd, frame, denoised, gb, a.tracker, a.PostFx, ubo, uboOffset, core.FrameUniformsSize)

	cmd.Barrier(gpu.StageComputeShader, gpu.AccessShaderWrite,
		gpu.StageTransfer, gpu.AccessTransferRead)

	swapImage := a.ring.image(imageIndex)
	a.tracker.Ensure(cmd, final.Image, gpu.RoleTransferSrc)
	a.tracker.Ensure(cmd, swapImage, gpu.RoleTransferDst)
	cmd.BlitToImage(final.Image, swapImage)
	a.tracker.Ensure(cmd, final.Image, gpu.RoleGeneral)

	if a.Overlay != nil {
		a.tracker.Ensure(cmd, swapImage, gpu.RoleColorAttachment)
		a.Overlay.Record(cmd, swapImage)
	}
	a.tracker.Ensure(cmd, swapImage, gpu.RolePresent)
	a.tracker.Forget(swapImage) // layout restarts from acquire next time
}

// finishFrame records this frame's matrices for reprojection (with the
// clean projection, not the jittered one) and rotates the history slots.
func (a *App) finishFrame() {
	width, height := a.ring.extent()
	view := a.Camera.ViewMatrix()
	proj := a.Camera.ProjMatrix(width, height)

	a.prevView = view
	a.prevProj = proj
	a.prevViewProj = proj.Mul4(view)
	a.prevCamPos = a.Camera.Position
	a.hasPreviousFrame = true

	a.gbuffer.SwapHistory()
	a.postfx.SwapHistory()

	a.jitterIndex = (a.jitterIndex + 1) % core.JitterSequenceLength
	a.frameCount++
	a.frameIndex = (a.frameIndex + 1) % gpu.MaxFramesInFlight
}

// recreateSwapchain tears the presentation stack down at device idle and
// rebuilds it at the current framebuffer extent, resetting temporal state.
func (a *App) recreateSwapchain() error {
	width, height := a.Window.FramebufferSize()
	if width == 0 || height == 0 {
		// Minimized; stay dirty until a real extent shows up.
		return nil
	}

	a.dev.WaitIdle()
	a.ring.destroy()

	sc, err := a.newSwap(width, height)
	if err != nil {
		return fmt.Errorf("swapchain recreate: %w", err)
	}
	a.ring, err = newPresentRing(a.dev, sc)
	if err != nil {
		return err
	}

	a.gbuffer.Destroy(a.tracker)
	if a.gbuffer, err = gpu.NewGBuffer(a.dev, width, height); err != nil {
		return err
	}
	a.denoiser.Resize(width, height)
	if err := a.postfx.Resize(width, height, a.tracker); err != nil {
		return err
	}

	a.hasPreviousFrame = false
	a.jitterIndex = 0
	a.swapchainDirty = false
	a.Log.Infof("swapchain recreated: %dx%d", width, height)
	return nil
}

// Destroy releases everything after draining the GPU.
func (a *App) Destroy() {
	a.dev.WaitIdle()
	for i := 0; i < gpu.MaxFramesInFlight; i++ {
		if a.arenas[i] != nil {
			a.arenas[i].Destroy()
		}
		if a.inFlight[i] != nil {
			a.inFlight[i].Destroy()
		}
		if a.imageAvailable[i] != nil {
			a.imageAvailable[i].Destroy()
		}
	}
	if a.postfx != nil {
		a.postfx.Destroy(a.tracker)
	}
	if a.denoiser != nil {
		a.denoiser.Destroy()
	}
	if a.rtPass != nil {
		a.rtPass.Destroy()
	}
	if a.gbuffer != nil {
		a.gbuffer.Destroy(a.tracker)
	}
	if a.accel != nil {
		a.accel.Destroy()
	}
	if a.ring != nil {
		a.ring.destroy()
	}
}
