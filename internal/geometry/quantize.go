// Package geometry runs vertex attribute quantization over a scene.
package geometry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/Faultbox/scenepack/internal/command"
	"github.com/Faultbox/scenepack/internal/logger"
	"github.com/Faultbox/scenepack/pkg/glb"
	"github.com/Faultbox/scenepack/pkg/scene"
)

// ErrRemoteBuffers is returned for scenes whose geometry is not all local.
var ErrRemoteBuffers = errors.New("scene references remote buffers")

// DefaultBits is the number of quantization bits per vertex attribute.
var DefaultBits = map[string]int{
	"POSITION":   13,
	"NORMAL":     8,
	"TEXCOORD":   10,
	"TEXCOORD_1": 10,
	"JOINT":      6,
	"WEIGHT":     6,
	"TANGENT":    10,
}

// Bits returns DefaultBits with overrides applied.
func Bits(overrides map[string]int) map[string]int {
	bits := make(map[string]int, len(DefaultBits)+len(overrides))
	for k, v := range DefaultBits {
		bits[k] = v
	}
	for k, v := range overrides {
		bits[k] = v
	}
	return bits
}

// Quantizer rewrites the geometry of a scene. It returns a new graph; the
// caller reads its resources again before continuing.
type Quantizer interface {
	Quantize(ctx context.Context, g *scene.Graph, bits map[string]int) (*scene.Graph, error)
}

// CommandQuantizer pipes the scene through an external tool as a GLB file.
// The command may reference {input} and {output} plus one placeholder per
// attribute, e.g. {POSITION}.
type CommandQuantizer struct {
	tmpl *command.Template
	log  *zap.Logger
}

// NewCommandQuantizer parses the quantizer command line.
func NewCommandQuantizer(cmdline string) (*CommandQuantizer, error) {
	tmpl, err := command.Parse(cmdline)
	if err != nil {
		return nil, fmt.Errorf("quantizer: %w", err)
	}
	return &CommandQuantizer{tmpl: tmpl, log: logger.Named("geometry")}, nil
}

// Quantize runs the tool once.
func (q *CommandQuantizer) Quantize(ctx context.Context, g *scene.Graph, bits map[string]int) (*scene.Graph, error) {
	in, err := Pack(g)
	if err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "scenepack-quantize-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	input := filepath.Join(tmp, "in.glb")
	output := filepath.Join(tmp, "out.glb")
	if err := os.WriteFile(input, in, 0644); err != nil {
		return nil, err
	}

	vars := map[string]string{"input": input, "output": output}
	for attr, n := range bits {
		vars[attr] = strconv.Itoa(n)
	}
	if _, err := q.tmpl.Run(ctx, vars, nil); err != nil {
		return nil, err
	}

	out, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("reading quantizer output: %w", err)
	}
	q.log.Debug("quantized", zap.Int("in", len(in)), zap.Int("out", len(out)))
	return scene.Parse(out)
}

// Pack serializes a read graph as a self-contained GLB with every buffer
// merged into the BIN chunk. g itself is not modified.
func Pack(g *scene.Graph) ([]byte, error) {
	snap, err := g.Clone()
	if err != nil {
		return nil, err
	}
	if err := snap.MergeBuffers(""); err != nil {
		return nil, err
	}
	if len(snap.Doc.Buffers) > 1 {
		return nil, ErrRemoteBuffers
	}

	var bin []byte
	if len(snap.Doc.Buffers) == 1 {
		rec := snap.Record(scene.Ref{Kind: scene.KindBuffer})
		if rec == nil || rec.Source == nil {
			return nil, ErrRemoteBuffers
		}
		bin = rec.Source
		b := snap.Doc.Buffers[0]
		b.URI = ""
		b.Data = nil
		b.ByteLength = len(bin)
	}

	data, err := snap.Marshal()
	if err != nil {
		return nil, err
	}
	return glb.Encode(data, bin), nil
}
