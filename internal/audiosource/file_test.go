package audiosource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePCMFile(t *testing.T, samples int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.pcm")
	require.NoError(t, os.WriteFile(path, make([]byte, samples*2), 0o644))
	return path
}

func TestFileSourceEmitsBlocksOfRequestedDuration(t *testing.T) {
	t.Parallel()
	path := writePCMFile(t, 16000) // 1 second of silence

	src := NewFileSource(path, 0.5, false)
	blocks, errs := src.Start(context.Background())

	var got []Block
	for b := range blocks {
		got = append(got, b)
	}
	select {
	case err := <-errs:
		require.NoError(t, err)
	default:
	}

	require.Len(t, got, 2)
	assert.Equal(t, BytesForDuration(0.5), len(got[0].PCM))
	assert.InDelta(t, 0.5, got[0].Duration, 0.001)
}

func TestFileSourceStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	path := writePCMFile(t, 16000*5)

	ctx, cancel := context.WithCancel(context.Background())
	src := NewFileSource(path, 0.1, true)
	blocks, _ := src.Start(ctx)

	<-blocks
	cancel()

	for range blocks {
		// drain until closed; test passes if this loop terminates
	}
}

func TestSamplesAndBytesForDuration(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 8000, SamplesForDuration(0.5))
	assert.Equal(t, 16000, BytesForDuration(0.5))
}
