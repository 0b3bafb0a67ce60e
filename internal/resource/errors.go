// Package resource materializes and places the byte resources of a scene
// graph: buffers, images, technique shaders and audio clips.
package resource

import (
	"errors"
	"fmt"

	"github.com/Faultbox/scenepack/pkg/scene"
)

// ErrNoSource is returned for a resource that has neither a URI nor a
// buffer view.
var ErrNoSource = errors.New("resource has no uri or bufferView")

// DanglingReferenceError reports a buffer view read before its buffer was
// materialized, or a view/buffer index out of range.
type DanglingReferenceError struct {
	Ref        scene.Ref
	BufferView int
	Buffer     int
}

func (e *DanglingReferenceError) Error() string {
	if e.Buffer < 0 {
		return fmt.Sprintf("%s references missing bufferView %d", e.Ref, e.BufferView)
	}
	return fmt.Sprintf("%s references bufferView %d of unread buffer %d", e.Ref, e.BufferView, e.Buffer)
}

// MissingResourceDirectoryError reports a relative URI with no resource
// directory to resolve it against.
type MissingResourceDirectoryError struct {
	URI string
}

func (e *MissingResourceDirectoryError) Error() string {
	return fmt.Sprintf("scene references separate file %q but no resource directory is supplied", e.URI)
}

// IOError wraps a failed file read with the path that was requested.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
