package texture

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Faultbox/scenepack/internal/command"
)

// Request is one encoder invocation.
type Request struct {
	Target  string
	Input   string
	Output  string
	Format  string
	Quality string
	Mipmap  bool
	// Square pads the image to a square power of two.
	Square bool
}

// Encoder turns an image file into a GPU texture container file.
type Encoder interface {
	Encode(ctx context.Context, req Request) error
}

// EncoderFunc adapts a function to an Encoder.
type EncoderFunc func(ctx context.Context, req Request) error

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, req Request) error { return f(ctx, req) }

// CommandEncoder runs an external encoder. The command may reference
// {input}, {output}, {target}, {format}, {quality}, {mipmap} (true/false)
// and {square} ("+" or "no").
type CommandEncoder struct {
	tmpl *command.Template
}

// NewCommandEncoder parses the encoder command line.
func NewCommandEncoder(cmdline string) (*CommandEncoder, error) {
	tmpl, err := command.Parse(cmdline)
	if err != nil {
		return nil, fmt.Errorf("texture encoder: %w", err)
	}
	return &CommandEncoder{tmpl: tmpl}, nil
}

// Encode runs the command once.
func (e *CommandEncoder) Encode(ctx context.Context, req Request) error {
	square := "no"
	if req.Square {
		square = "+"
	}
	_, err := e.tmpl.Run(ctx, map[string]string{
		"input":   req.Input,
		"output":  req.Output,
		"target":  req.Target,
		"format":  req.Format,
		"quality": req.Quality,
		"mipmap":  strconv.FormatBool(req.Mipmap),
		"square":  square,
	}, nil)
	return err
}
