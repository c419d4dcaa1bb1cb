package core

// DenoiserSettings drives the temporal accumulation and wavelet passes.
type DenoiserSettings struct {
	Enabled bool

	TemporalAlpha     float32 // baseline history blend, [0,1]
	MomentAlpha       float32
	VarianceClipGamma float32
	DepthThreshold    float32
	NormalThreshold   float32 // [-1,1], cosine of max normal divergence
	PhiColor          float32
	PhiNormal         float32
	PhiDepth          float32
	AtrousIterations  int // [0,8]
	VarianceBoost     float32
	MinHistoryLength  float32
	MaxHistoryLength  float32
}

func DefaultDenoiserSettings() DenoiserSettings {
	return DenoiserSettings{
		Enabled:           true,
		TemporalAlpha:     0.1,
		MomentAlpha:       0.2,
		VarianceClipGamma: 1.0,
		DepthThreshold:    0.1,
		NormalThreshold:   0.9,
		PhiColor:          10.0,
		PhiNormal:         128.0,
		PhiDepth:          1.0,
		AtrousIterations:  4,
		VarianceBoost:     4.0,
		MinHistoryLength:  0.25,
		MaxHistoryLength:  64.0,
	}
}

type TonemapOperator uint32

const (
	TonemapNeutral TonemapOperator = iota
	TonemapKhronosPBRNeutral
)

// PostFxSettings drives TAA, tone mapping and sharpening.
type PostFxSettings struct {
	TaaEnabled  bool
	FeedbackMin float32
	FeedbackMax float32

	TonemapEnabled  bool
	TonemapOp       TonemapOperator
	Exposure        float32
	SaturationBoost float32

	SharpenEnabled  bool
	SharpenStrength float32 // [0,1]
}

func DefaultPostFxSettings() PostFxSettings {
	return PostFxSettings{
		TaaEnabled:      true,
		FeedbackMin:     0.85,
		FeedbackMax:     0.97,
		TonemapEnabled:  true,
		TonemapOp:       TonemapKhronosPBRNeutral,
		Exposure:        1.0,
		SaturationBoost: 1.1,
		SharpenEnabled:  true,
		SharpenStrength: 0.4,
	}
}
