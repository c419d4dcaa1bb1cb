package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const maxPitch = 89.0 * math.Pi / 180.0

// CameraState is a free-fly camera, Y-up.
type CameraState struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	Speed       float32
	Sensitivity float32

	Fov  float32
	Near float32
	Far  float32
}

func NewCameraState() *CameraState {
	return &CameraState{
		Position:    mgl32.Vec3{0, 2, 20},
		Speed:       10.0,
		Sensitivity: 0.003,
		Fov:         60,
		Near:        0.1,
		Far:         1000.0,
	}
}

func (c *CameraState) Forward() mgl32.Vec3 {
	cp := float32(math.Cos(float64(c.Pitch)))
	return mgl32.Vec3{
		cp * float32(math.Sin(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
		-cp * float32(math.Cos(float64(c.Yaw))),
	}
}

func (c *CameraState) Right() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Yaw))),
		0,
		float32(math.Sin(float64(c.Yaw))),
	}
}

// Rotate applies a mouse delta, clamping pitch to +-89 degrees.
func (c *CameraState) Rotate(dx, dy float32) {
	c.Yaw += dx * c.Sensitivity
	c.Pitch -= dy * c.Sensitivity
	if c.Pitch > maxPitch {
		c.Pitch = maxPitch
	}
	if c.Pitch < -maxPitch {
		c.Pitch = -maxPitch
	}
}

// Move advances the camera: planar contributes forward/right in the XZ
// plane, vertical moves straight up or down.
func (c *CameraState) Move(planarForward, planarRight, vertical, dt float32) {
	fwd := c.Forward()
	fwd[1] = 0
	if fwd.Len() > 1e-5 {
		fwd = fwd.Normalize()
	}
	delta := fwd.Mul(planarForward).Add(c.Right().Mul(planarRight))
	delta[1] += vertical
	c.Position = c.Position.Add(delta.Mul(c.Speed * dt))
}

func (c *CameraState) ViewMatrix() mgl32.Mat4 {
	eye := c.Position
	target := eye.Add(c.Forward())
	return mgl32.LookAtV(eye, target, mgl32.Vec3{0, 1, 0})
}

// ProjMatrix builds the non-jittered perspective projection.
func (c *CameraState) ProjMatrix(width, height uint32) mgl32.Mat4 {
	aspect := float32(width) / float32(height)
	if height == 0 || aspect == 0 {
		aspect = 1
	}
	return mgl32.Perspective(mgl32.DegToRad(c.Fov), aspect, c.Near, c.Far)
}

// JitteredProjMatrix offsets the projection by a sub-pixel jitter given in
// pixels; used for ray generation while reprojection keeps the clean matrix.
func (c *CameraState) JitteredProjMatrix(width, height uint32, jitter mgl32.Vec2) mgl32.Mat4 {
	proj := c.ProjMatrix(width, height)
	if width == 0 || height == 0 {
		return proj
	}
	proj[8] += 2 * jitter.X() / float32(width)
	proj[9] += 2 * jitter.Y() / float32(height)
	return proj
}
