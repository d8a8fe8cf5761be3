package textsurface

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopAlwaysSucceeds(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Noop().Insert("hello world"))
}

func TestLoggingSurfaceSucceeds(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Logging(nil).Insert("hello world"))
}

func TestStdoutSurfaceWritesText(t *testing.T) {
	t.Parallel()
	var sb strings.Builder
	s := Stdout(func(text string) (int, error) { return sb.WriteString(text) })

	require.NoError(t, s.Insert("hello world"))
	assert.Equal(t, "hello world\n", sb.String())
}

func TestStdoutSurfacePropagatesWriteError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	s := Stdout(func(string) (int, error) { return 0, boom })

	err := s.Insert("hello world")
	assert.ErrorIs(t, err, boom)
}
