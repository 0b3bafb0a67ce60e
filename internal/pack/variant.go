// Package pack assembles the deployable variants of a scene, one per
// texture compression target.
package pack

import (
	"fmt"

	"github.com/Faultbox/scenepack/internal/config"
	"github.com/Faultbox/scenepack/internal/texture"
	"github.com/Faultbox/scenepack/pkg/selector"
)

// Output container types.
const (
	TypeGLTF = "gltf"
	TypeGLB  = "glb"
)

// Target is one compression target and the WebGL extensions a device
// needs to use its output.
type Target struct {
	Name     string
	Required []string
}

// Targets lists the targets to build in selection order. The requirement
// free target always comes last.
func Targets(cfg config.CompressTexturesConfig) []Target {
	if !cfg.Enabled {
		return []Target{{Name: texture.TargetNormal}}
	}
	var targets []Target
	for _, name := range []string{texture.TargetASTC, texture.TargetPVRTC, texture.TargetETC, texture.TargetS3TC} {
		if t, _ := cfg.Target(name); t.IsEnabled() {
			targets = append(targets, Target{
				Name:     name,
				Required: []string{"WEBGL_compressed_texture_" + name},
			})
		}
	}
	return append(targets, Target{Name: texture.TargetFallback})
}

// Variant is the packed output of one target.
type Variant struct {
	Name     string
	Required []string
	Type     string
	// FileName is the content addressed dist path of the scene document.
	FileName string
	Content  []byte
	// URL references the emitted document, or inlines it as a data URI.
	URL string
	// Assets lists the URLs of every separate file the variant references.
	Assets   []string
	Warnings []string
	// Err is set when the pass failed; the variant is then not usable.
	Err error
}

// Entry returns the selector entry of the variant.
func (v *Variant) Entry() selector.Entry {
	return selector.Entry{Name: v.Name, Required: v.Required, URL: v.URL, Type: v.Type}
}

// TargetPassError reports a failed pass. Other targets are unaffected.
type TargetPassError struct {
	Target string
	Err    error
}

func (e *TargetPassError) Error() string {
	return fmt.Sprintf("packing target %s: %v", e.Target, e.Err)
}

func (e *TargetPassError) Unwrap() error { return e.Err }
