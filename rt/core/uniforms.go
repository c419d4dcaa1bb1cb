package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// FrameUniformsSize is the packed UBO size, a multiple of 16.
const FrameUniformsSize = 560

// FrameUniforms is the per-frame uniform block shared by every shader stage.
//
//	layout(binding = 3) uniform FrameUbo {
//	    mat4 view;            //   0
//	    mat4 proj;            //  64  jittered
//	    mat4 inv_view;        // 128
//	    mat4 inv_proj;        // 192
//	    mat4 prev_view;       // 256
//	    mat4 prev_proj;       // 320
//	    mat4 prev_view_proj;  // 384
//	    vec3 cam_pos;         // 448
//	    float dt;             // 460
//	    vec3 prev_cam_pos;    // 464
//	    vec2 screen_size;     // 480
//	    uint frame_count;     // 488
//	    uint sample_count;    // 492
//	    float temporal_alpha; // 496
//	    float moment_alpha;
//	    float variance_clip_gamma;
//	    float depth_threshold;
//	    float normal_threshold; // 512
//	    float phi_color;
//	    float phi_normal;
//	    float phi_depth;
//	    uint atrous_iteration;  // 528
//	    uint step_size;
//	    float variance_boost;
//	    float min_history_length;
//	    vec2 jitter_offset;     // 544
//	    float max_history_length; // 552
//	};
type FrameUniforms struct {
	View         mgl32.Mat4
	Proj         mgl32.Mat4
	InvView      mgl32.Mat4
	InvProj      mgl32.Mat4
	PrevView     mgl32.Mat4
	PrevProj     mgl32.Mat4
	PrevViewProj mgl32.Mat4

	CamPos     mgl32.Vec3
	Dt         float32
	PrevCamPos mgl32.Vec3

	ScreenWidth  uint32
	ScreenHeight uint32
	FrameCount   uint32
	SampleCount  uint32

	TemporalAlpha     float32
	MomentAlpha       float32
	VarianceClipGamma float32
	DepthThreshold    float32
	NormalThreshold   float32
	PhiColor          float32
	PhiNormal         float32
	PhiDepth          float32

	AtrousIteration  uint32
	StepSize         uint32
	VarianceBoost    float32
	MinHistoryLength float32

	JitterOffset     mgl32.Vec2
	MaxHistoryLength float32
}

func putMat4(buf []byte, offset int, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[offset+i*4:], math.Float32bits(v))
	}
}

func putF32(buf []byte, offset int, v float32) {
	binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(v))
}

// Bytes serializes the block to its GPU layout.
func (u *FrameUniforms) Bytes() []byte {
	buf := make([]byte, FrameUniformsSize)
	putMat4(buf, 0, u.View)
	putMat4(buf, 64, u.Proj)
	putMat4(buf, 128, u.InvView)
	putMat4(buf, 192, u.InvProj)
	putMat4(buf, 256, u.PrevView)
	putMat4(buf, 320, u.PrevProj)
	putMat4(buf, 384, u.PrevViewProj)

	for i := 0; i < 3; i++ {
		putF32(buf, 448+i*4, u.CamPos[i])
		putF32(buf, 464+i*4, u.PrevCamPos[i])
	}
	putF32(buf, 460, u.Dt)

	putF32(buf, 480, float32(u.ScreenWidth))
	putF32(buf, 484, float32(u.ScreenHeight))
	binary.LittleEndian.PutUint32(buf[488:], u.FrameCount)
	binary.LittleEndian.PutUint32(buf[492:], u.SampleCount)

	putF32(buf, 496, u.TemporalAlpha)
	putF32(buf, 500, u.MomentAlpha)
	putF32(buf, 504, u.VarianceClipGamma)
	putF32(buf, 508, u.DepthThreshold)
	putF32(buf, 512, u.NormalThreshold)
	putF32(buf, 516, u.PhiColor)
	putF32(buf, 520, u.PhiNormal)
	putF32(buf, 524, u.PhiDepth)

	binary.LittleEndian.PutUint32(buf[528:], u.AtrousIteration)
	binary.LittleEndian.PutUint32(buf[532:], u.StepSize)
	putF32(buf, 536, u.VarianceBoost)
	putF32(buf, 540, u.MinHistoryLength)

	putF32(buf, 544, u.JitterOffset.X())
	putF32(buf, 548, u.JitterOffset.Y())
	putF32(buf, 552, u.MaxHistoryLength)
	return buf
}
