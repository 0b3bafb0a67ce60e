// Package texture produces per-target texture variants of a scene.
package texture

import (
	"errors"
	"fmt"
)

// ErrNoEncoder is returned when an encoder target runs without an encoder.
var ErrNoEncoder = errors.New("no texture encoder configured")

// UnsupportedTargetError reports a compression target with no decision table.
type UnsupportedTargetError struct {
	Target string
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("unsupported compression target %q", e.Target)
}

// EncoderError reports a failed encoding of one image. The image keeps its
// original reference.
type EncoderError struct {
	Image  string
	Target string
	Err    error
}

func (e *EncoderError) Error() string {
	return fmt.Sprintf("compressing %s to %s: %v", e.Image, e.Target, e.Err)
}

func (e *EncoderError) Unwrap() error { return e.Err }
