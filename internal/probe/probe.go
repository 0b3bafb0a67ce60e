// Package probe reports the compressed texture support of the local GPU
// under WebGL extension names.
package probe

import (
	"fmt"
	"slices"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/scenepack/internal/logger"
)

// webglToGL maps WebGL extension names to the native extensions that
// provide the same formats.
var webglToGL = map[string][]string{
	"WEBGL_compressed_texture_astc":  {"GL_KHR_texture_compression_astc_ldr", "GL_OES_texture_compression_astc"},
	"WEBGL_compressed_texture_pvrtc": {"GL_IMG_texture_compression_pvrtc"},
	"WEBGL_compressed_texture_etc":   {"GL_ARB_ES3_compatibility", "GL_OES_compressed_ETC2_RGB8_texture"},
	"WEBGL_compressed_texture_etc1":  {"GL_OES_compressed_ETC1_RGB8_texture", "GL_ARB_ES3_compatibility"},
	"WEBGL_compressed_texture_s3tc":  {"GL_EXT_texture_compression_s3tc"},
}

// WebGLExtensions translates native extension names to the WebGL names
// they imply, sorted.
func WebGLExtensions(native []string) []string {
	have := make(map[string]bool, len(native))
	for _, n := range native {
		have[n] = true
	}
	var out []string
	for webgl, candidates := range webglToGL {
		for _, c := range candidates {
			if have[c] {
				out = append(out, webgl)
				break
			}
		}
	}
	slices.Sort(out)
	return out
}

// GL probes the GPU through a hidden OpenGL context. Extensions must be
// called from the main goroutine.
type GL struct {
	// Renderer and Version are filled by the last successful probe.
	Renderer string
	Version  string
	// Native holds the raw GL extension list of the last probe.
	Native []string

	log *zap.Logger
}

// NewGL creates a GL prober.
func NewGL() *GL {
	return &GL{log: logger.Named("probe")}
}

// Extensions implements selector.Prober.
func (p *GL) Extensions() ([]string, error) {
	win, err := newHiddenWindow(p.log)
	if err != nil {
		return nil, err
	}
	defer win.Close()

	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	p.Version = gl.GoStr(gl.GetString(gl.VERSION))
	p.Renderer = gl.GoStr(gl.GetString(gl.RENDERER))

	var n int32
	gl.GetIntegerv(gl.NUM_EXTENSIONS, &n)
	p.Native = make([]string, 0, n)
	for i := range uint32(n) {
		p.Native = append(p.Native, gl.GoStr(gl.GetStringi(gl.EXTENSIONS, i)))
	}

	exts := WebGLExtensions(p.Native)
	p.log.Info("probed GPU",
		zap.String("renderer", p.Renderer),
		zap.String("version", p.Version),
		zap.Int("native", len(p.Native)),
		zap.Strings("webgl", exts))
	return exts, nil
}
