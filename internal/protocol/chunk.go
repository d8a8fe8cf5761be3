package protocol

import (
	"math"
	"time"
)

// ChunkMetadata describes one audio chunk published alongside its sibling
// PCM file. The pair is named chunk_<sid>_<cid>.json / chunk_<sid>_<cid>.pcm.
type ChunkMetadata struct {
	SessionID    string       `json:"session_id"`
	ChunkID      int64        `json:"chunk_id"`
	SampleRate   int          `json:"sample_rate"`
	Channels     int          `json:"channels"`
	Format       SampleFormat `json:"format"`
	DurationSec  float64      `json:"duration_sec"`
	Timestamp    time.Time    `json:"timestamp"`
	IsLastChunk  bool         `json:"is_last_chunk"`
	PCMFilename  string       `json:"pcm_filename"`
}

// ExpectedByteLength is duration · sample_rate · bytes_per_sample · channels,
// the size a compliant PCM sibling must match within SizeTolerance.
func (c ChunkMetadata) ExpectedByteLength() int64 {
	bps := c.Format.BytesPerSample()
	return int64(c.DurationSec * float64(c.SampleRate) * float64(bps) * float64(c.Channels))
}

// Validate applies the chunk invariants against the current wall clock.
// It satisfies protocol.Validatable for use with Decode.
func (c ChunkMetadata) Validate() error {
	return c.ValidateAt(time.Now())
}

// ValidateAt applies the audio chunk invariants against an explicit
// reference time, independent of the sibling PCM file's actual size (see
// ValidatePCMSize for that check).
func (c ChunkMetadata) ValidateAt(now time.Time) error {
	if err := ValidateSessionID(c.SessionID); err != nil {
		return err
	}
	if c.ChunkID < 0 {
		return invalid("chunk", "chunk_id must be non-negative")
	}
	if c.SampleRate != RequiredSampleRate {
		return invalid("chunk", "sample_rate must be 16000")
	}
	if c.Channels != RequiredChannels {
		return invalid("chunk", "channels must be 1")
	}
	switch c.Format {
	case FormatPCM16, FormatFloat32:
	default:
		return invalid("chunk", "unknown format "+string(c.Format))
	}
	if c.DurationSec <= MinChunkDuration || c.DurationSec > MaxChunkDuration {
		return invalid("chunk", "duration_sec must satisfy 0 < d <= 10")
	}
	drift := c.Timestamp.Sub(now)
	if drift < 0 {
		drift = -drift
	}
	if drift > MaxTimestampDrift {
		return invalid("chunk", "timestamp drift exceeds 300s")
	}
	return nil
}

// ValidatePCMSize checks an observed PCM byte length against the metadata's
// declared duration within SizeTolerance.
func (c ChunkMetadata) ValidatePCMSize(actualLen int64) error {
	expected := c.ExpectedByteLength()
	if expected <= 0 {
		return invalid("chunk", "cannot derive expected pcm size")
	}
	tolerance := math.Abs(float64(expected)) * SizeTolerance
	diff := math.Abs(float64(actualLen - expected))
	if diff > tolerance {
		return invalid("chunk", "pcm size off by more than 10% from declared duration")
	}
	return nil
}
