package inference

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFloat32PCM16(t *testing.T) {
	t.Parallel()
	pcm := make([]byte, 4)
	binary.LittleEndian.PutUint16(pcm[0:2], uint16(int16(16384)))
	binary.LittleEndian.PutUint16(pcm[2:4], uint16(int16(-16384)))

	samples := ToFloat32(pcm, protocol.FormatPCM16)
	require.Len(t, samples, 2)
	assert.InDelta(t, 0.5, samples[0], 0.001)
	assert.InDelta(t, -0.5, samples[1], 0.001)
}

func TestToFloat32Float32PassThrough(t *testing.T) {
	t.Parallel()
	pcm := make([]byte, 8)
	binary.LittleEndian.PutUint32(pcm[0:4], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(pcm[4:8], math.Float32bits(-0.75))

	samples := ToFloat32(pcm, protocol.FormatFloat32)
	require.Len(t, samples, 2)
	assert.InDelta(t, 0.25, samples[0], 0.001)
	assert.InDelta(t, -0.75, samples[1], 0.001)
}
