package emit

import (
	"context"
	"fmt"

	"github.com/Faultbox/scenepack/internal/command"
	"github.com/Faultbox/scenepack/internal/config"
	"github.com/Faultbox/scenepack/internal/rules"
)

// Processor rewrites the bytes of resources whose path matches Test.
type Processor struct {
	Test    rules.Rule
	Process func(ctx context.Context, path string, data []byte) ([]byte, error)
}

// Chain applies processors in order.
type Chain []Processor

// NewChain builds command processors from configuration. Each command
// receives the resource on stdin, {path} expands to its path and stdout
// replaces the bytes.
func NewChain(cfgs []config.ProcessorConfig) (Chain, error) {
	chain := make(Chain, 0, len(cfgs))
	for _, c := range cfgs {
		test, err := rules.Compile(c.Test)
		if err != nil {
			return nil, err
		}
		tmpl, err := command.Parse(c.Command)
		if err != nil {
			return nil, fmt.Errorf("processor %q: %w", c.Test, err)
		}
		chain = append(chain, Processor{
			Test: test,
			Process: func(ctx context.Context, path string, data []byte) ([]byte, error) {
				return tmpl.Run(ctx, map[string]string{"path": path}, data)
			},
		})
	}
	return chain, nil
}

// Apply runs every matching processor over data.
func (c Chain) Apply(ctx context.Context, path string, data []byte) ([]byte, error) {
	norm := rules.Normalize(path)
	for _, p := range c {
		if !p.Test.Match(norm) {
			continue
		}
		out, err := p.Process(ctx, path, data)
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", path, err)
		}
		data = out
	}
	return data, nil
}
