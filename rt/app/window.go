package app

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// InputState is the per-frame snapshot of movement keys and accumulated
// mouse motion. Mouse deltas are consumed by the reader.
type InputState struct {
	Forward bool
	Back    bool
	Left    bool
	Right   bool
	Up      bool
	Down    bool

	MouseDX       float32
	MouseDY       float32
	MouseCaptured bool

	BrushPlace bool
	BrushErase bool
}

// ConsumeMouseDelta returns and clears the accumulated look delta.
func (s *InputState) ConsumeMouseDelta() (float32, float32) {
	dx, dy := s.MouseDX, s.MouseDY
	s.MouseDX, s.MouseDY = 0, 0
	return dx, dy
}

// Window is what the orchestrator needs from the platform layer; the glfw
// adapter below is the only production implementation.
type Window interface {
	FramebufferSize() (uint32, uint32)
	ShouldClose() bool
	Poll()
	Input() *InputState
	// ConsumeResize reports and clears the pending-resize flag.
	ConsumeResize() bool
	Time() float64
}

// GlfwWindow adapts a glfw window: WASD moves, X/Z is vertical, captured
// mouse looks, left/right click drive the brush.
type GlfwWindow struct {
	win   *glfw.Window
	input InputState

	resized    bool
	lastCursor [2]float64
	haveCursor bool
}

func NewGlfwWindow(width, height int, title string) (*GlfwWindow, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("glfw window: %w", err)
	}

	w := &GlfwWindow{win: win}

	win.SetFramebufferSizeCallback(func(_ *glfw.Window, _, _ int) {
		w.resized = true
	})

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		pressed := action != glfw.Release
		switch key {
		case glfw.KeyW:
			w.input.Forward = pressed
		case glfw.KeyS:
			w.input.Back = pressed
		case glfw.KeyA:
			w.input.Left = pressed
		case glfw.KeyD:
			w.input.Right = pressed
		case glfw.KeyX:
			w.input.Up = pressed
		case glfw.KeyZ:
			w.input.Down = pressed
		case glfw.KeyEscape:
			if action == glfw.Press {
				w.setMouseCaptured(false)
			}
		}
	})

	win.SetMouseButtonCallback(func(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		if !w.input.MouseCaptured {
			if action == glfw.Press {
				w.setMouseCaptured(true)
			}
			return
		}
		pressed := action == glfw.Press
		switch button {
		case glfw.MouseButtonLeft:
			w.input.BrushPlace = pressed
		case glfw.MouseButtonRight:
			w.input.BrushErase = pressed
		}
	})

	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		if !w.input.MouseCaptured {
			w.haveCursor = false
			return
		}
		if w.haveCursor {
			w.input.MouseDX += float32(x - w.lastCursor[0])
			w.input.MouseDY += float32(y - w.lastCursor[1])
		}
		w.lastCursor = [2]float64{x, y}
		w.haveCursor = true
	})

	return w, nil
}

func (w *GlfwWindow) setMouseCaptured(captured bool) {
	w.input.MouseCaptured = captured
	w.haveCursor = false
	if captured {
		w.win.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
	} else {
		w.win.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	}
}

func (w *GlfwWindow) FramebufferSize() (uint32, uint32) {
	fw, fh := w.win.GetFramebufferSize()
	return uint32(fw), uint32(fh)
}

func (w *GlfwWindow) ShouldClose() bool {
	return w.win.ShouldClose()
}

func (w *GlfwWindow) Poll() {
	glfw.PollEvents()
}

func (w *GlfwWindow) Input() *InputState {
	return &w.input
}

func (w *GlfwWindow) ConsumeResize() bool {
	r := w.resized
	w.resized = false
	return r
}

func (w *GlfwWindow) Time() float64 {
	return glfw.GetTime()
}

// Handle exposes the underlying window for backend surface creation.
func (w *GlfwWindow) Handle() *glfw.Window {
	return w.win
}

func (w *GlfwWindow) Destroy() {
	w.win.Destroy()
	glfw.Terminate()
}
