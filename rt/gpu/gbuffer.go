package gpu

import "fmt"

// GBufferImage pairs an image with its view; the pattern every pass binds.
type GBufferImage struct {
	Image Image
	View  ImageView
}

func (g *GBufferImage) destroy(tracker *LayoutTracker) {
	if g.View != nil {
		g.View.Destroy()
		g.View = nil
	}
	if g.Image != nil {
		if tracker != nil {
			tracker.Forget(g.Image)
		}
		g.Image.Destroy()
		g.Image = nil
	}
}

// GBuffer holds every render-resolution target: the per-frame channels the
// ray dispatch writes, the double-buffered history set, and the denoiser
// scratch images. History index h flips only after denoise and post-process
// have both finished, so GPU writes of one frame never alias the next
// frame's reads.
type GBuffer struct {
	Width  uint32
	Height uint32

	Color           GBufferImage // HDR radiance, rgba32f
	WorldPosition   GBufferImage // xyz + view depth, rgba32f
	NormalRoughness GBufferImage // rgba16f
	AlbedoMetallic  GBufferImage // rgba8
	MotionVectors   GBufferImage // rg16f

	HistoryColor           [2]GBufferImage // rgba32f
	HistoryMoments         [2]GBufferImage // rg32f, luma moments
	HistoryLength          [2]GBufferImage // r16f
	WorldPositionHistory   [2]GBufferImage
	NormalRoughnessHistory [2]GBufferImage

	Variance   GBufferImage // r32f
	FilterPing GBufferImage // rgba32f
	FilterPong GBufferImage // rgba32f

	// History is the "current" index h; Previous() is the other slot.
	History int
}

func NewGBuffer(dev Device, width, height uint32) (*GBuffer, error) {
	gb := &GBuffer{Width: width, Height: height}

	storage := ImageUsageStorage | ImageUsageSampled | ImageUsageTransferSrc | ImageUsageTransferDst

	mk := func(dst *GBufferImage, label string, format Format) error {
		img, err := dev.NewImage(label, width, height, format, storage)
		if err != nil {
			return fmt.Errorf("gbuffer %s: %w", label, err)
		}
		view, err := dev.NewImageView(img)
		if err != nil {
			img.Destroy()
			return fmt.Errorf("gbuffer %s view: %w", label, err)
		}
		*dst = GBufferImage{Image: img, View: view}
		return nil
	}

	type spec struct {
		dst    *GBufferImage
		label  string
		format Format
	}
	specs := []spec{
		{&gb.Color, "gbuffer.color", FormatRGBA32Float},
		{&gb.WorldPosition, "gbuffer.world_position", FormatRGBA32Float},
		{&gb.NormalRoughness, "gbuffer.normal_roughness", FormatRGBA16Float},
		{&gb.AlbedoMetallic, "gbuffer.albedo_metallic", FormatRGBA8Unorm},
		{&gb.MotionVectors, "gbuffer.motion_vectors", FormatRG16Float},
		{&gb.Variance, "gbuffer.variance", FormatR32Float},
		{&gb.FilterPing, "gbuffer.filter_ping", FormatRGBA32Float},
		{&gb.FilterPong, "gbuffer.filter_pong", FormatRGBA32Float},
	}
	for h := 0; h < 2; h++ {
		specs = append(specs,
			spec{&gb.HistoryColor[h], fmt.Sprintf("gbuffer.history_color[%d]", h), FormatRGBA32Float},
			spec{&gb.HistoryMoments[h], fmt.Sprintf("gbuffer.history_moments[%d]", h), FormatRG32Float},
			spec{&gb.HistoryLength[h], fmt.Sprintf("gbuffer.history_length[%d]", h), FormatR16Float},
			spec{&gb.WorldPositionHistory[h], fmt.Sprintf("gbuffer.world_position_history[%d]", h), FormatRGBA32Float},
			spec{&gb.NormalRoughnessHistory[h], fmt.Sprintf("gbuffer.normal_roughness_history[%d]", h), FormatRGBA16Float},
		)
	}

	for _, s := range specs {
		if err := mk(s.dst, s.label, s.format); err != nil {
			gb.Destroy(nil)
			return nil, err
		}
	}
	return gb, nil
}

// Previous returns the history index holding last frame's data.
func (gb *GBuffer) Previous() int {
	return 1 - gb.History
}

// SwapHistory flips the current history slot. Called by the orchestrator
// after submit, never mid-frame.
func (gb *GBuffer) SwapHistory() {
	gb.History = 1 - gb.History
}

// All lists every target, for bulk layout transitions.
func (gb *GBuffer) All() []*GBufferImage {
	out := []*GBufferImage{
		&gb.Color, &gb.WorldPosition, &gb.NormalRoughness,
		&gb.AlbedoMetallic, &gb.MotionVectors,
		&gb.Variance, &gb.FilterPing, &gb.FilterPong,
	}
	for h := 0; h < 2; h++ {
		out = append(out,
			&gb.HistoryColor[h], &gb.HistoryMoments[h], &gb.HistoryLength[h],
			&gb.WorldPositionHistory[h], &gb.NormalRoughnessHistory[h],
		)
	}
	return out
}

func (gb *GBuffer) Destroy(tracker *LayoutTracker) {
	for _, img := range gb.All() {
		img.destroy(tracker)
	}
}
