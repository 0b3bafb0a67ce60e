// Package command runs external tools configured as shell-style command
// templates, e.g. "texcomp -i {input} -o {output} -f {format}".
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Template is a parsed command line whose arguments may contain {name}
// placeholders.
type Template struct {
	raw  string
	args []string
}

// Parse splits s into arguments the way a shell would.
func Parse(s string) (*Template, error) {
	args, err := shellwords.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", s, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("command %q was not parsed correctly into content", s)
	}
	return &Template{raw: s, args: args}, nil
}

// String returns the command as configured.
func (t *Template) String() string { return t.raw }

// Expand substitutes vars into every argument. Placeholders are expanded
// per argument, so values containing spaces stay a single argument.
func (t *Template) Expand(vars map[string]string) []string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(t.args))
	for i, a := range t.args {
		out[i] = r.Replace(a)
	}
	return out
}

// Run executes the expanded command with stdin and returns its stdout.
func (t *Template) Run(ctx context.Context, vars map[string]string, stdin []byte) ([]byte, error) {
	args := t.Expand(vars)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &ExitError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.Bytes(), nil
}

// ExitError reports a failed command with its captured stderr.
type ExitError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Args[0], e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Args[0], e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }
