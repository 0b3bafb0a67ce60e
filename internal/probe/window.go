package probe

import (
	"fmt"
	"runtime"

	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"
)

func init() {
	// OpenGL calls must be made from the main thread
	runtime.LockOSThread()
}

// hiddenWindow is a hidden SDL2 window holding an OpenGL context.
type hiddenWindow struct {
	sdlWindow *sdl.Window
	glContext sdl.GLContext
}

// newHiddenWindow creates a 1x1 hidden window with an OpenGL 4.1 core context.
func newHiddenWindow(log *zap.Logger) (*hiddenWindow, error) {
	c := &hiddenWindow{}

	log.Debug("initializing SDL2")
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("SDL_Init failed: %w", err)
	}

	// Set OpenGL attributes BEFORE creating window
	// We want OpenGL 4.1 Core Profile (max supported on macOS)
	sdl.GLSetAttribute(sdl.GL_CONTEXT_MAJOR_VERSION, 4)
	sdl.GLSetAttribute(sdl.GL_CONTEXT_MINOR_VERSION, 1)
	sdl.GLSetAttribute(sdl.GL_CONTEXT_PROFILE_MASK, sdl.GL_CONTEXT_PROFILE_CORE)

	var err error
	c.sdlWindow, err = sdl.CreateWindow(
		"scenepack probe",
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		1, 1,
		sdl.WINDOW_OPENGL|sdl.WINDOW_HIDDEN,
	)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("SDL_CreateWindow failed: %w", err)
	}

	c.glContext, err = c.sdlWindow.GLCreateContext()
	if err != nil {
		c.sdlWindow.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("SDL_GL_CreateContext failed: %w", err)
	}
	return c, nil
}

// Close destroys the window and cleans up SDL2.
func (c *hiddenWindow) Close() {
	if c.glContext != nil {
		sdl.GLDeleteContext(c.glContext)
	}
	if c.sdlWindow != nil {
		c.sdlWindow.Destroy()
	}
	sdl.Quit()
}
