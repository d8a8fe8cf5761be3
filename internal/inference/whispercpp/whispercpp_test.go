package whispercpp

import (
	"runtime"
	"testing"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/stretchr/testify/assert"
)

func TestDetermineThreadCountFallsBackToNumCPU(t *testing.T) {
	t.Parallel()
	// Falls back to the host's detected performance-core count when
	// recognized, else runtime.NumCPU(); either way it never exceeds
	// the available CPU count and is always positive.
	for _, configured := range []int{0, -1, runtime.NumCPU() + 100} {
		got := determineThreadCount(configured)
		assert.GreaterOrEqual(t, got, 1)
		assert.LessOrEqual(t, got, runtime.NumCPU())
	}
}

func TestDetermineThreadCountHonorsValidConfiguredValue(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 1, determineThreadCount(1))
}

func TestToSegmentFallsBackToWholeSegmentAsOneToken(t *testing.T) {
	t.Parallel()
	seg := toSegment(whisperlib.Segment{Text: "hello world"})
	assert.Equal(t, "hello world", seg.text)
	assert.Equal(t, []string{"hello world"}, seg.tokens)
}
