package inference

import (
	"encoding/binary"
	"math"

	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
)

// ToFloat32 converts a chunk's raw PCM bytes to mono float32 samples in
// [-1, 1], dispatching on the chunk's declared format.
func ToFloat32(pcm []byte, format protocol.SampleFormat) []float32 {
	switch format {
	case protocol.FormatFloat32:
		return pcm32LEToFloat32(pcm)
	default:
		return pcm16ToFloat32(pcm)
	}
}

func pcm16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

func pcm32LEToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(pcm[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}
