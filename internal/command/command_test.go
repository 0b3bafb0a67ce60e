package command

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	tmpl, err := Parse(`enc -i {input} -o '{output}' --fmt={format}`)
	require.NoError(t, err)

	args := tmpl.Expand(map[string]string{
		"input":  "my textures/a.png",
		"output": "out dir/a.ktx",
		"format": "ASTC_4x4",
	})
	assert.Equal(t, []string{"enc", "-i", "my textures/a.png", "-o", "out dir/a.ktx", "--fmt=ASTC_4x4"}, args)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)

	_, err = Parse(`enc "unterminated`)
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tmpl, err := Parse(`sh -c 'tr a-z A-Z; echo {suffix}'`)
	require.NoError(t, err)

	out, err := tmpl.Run(context.Background(), map[string]string{"suffix": "!"}, []byte("scene"))
	require.NoError(t, err)
	assert.Equal(t, "SCENE!\n", string(out))
}

func TestRunFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tmpl, err := Parse(`sh -c 'echo broken >&2; exit 3'`)
	require.NoError(t, err)

	_, err = tmpl.Run(context.Background(), nil, nil)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "broken", exitErr.Stderr)
}

func TestRunTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	tmpl, err := Parse("sleep 5")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tmpl.Run(ctx, nil, nil)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
