// Package protocol defines the wire records exchanged through the
// rendezvous directory and the validation contracts every reader must run
// before acting on them.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Signal enumerates the control records a Producer may publish.
type Signal string

const (
	SignalStart Signal = "start"
	SignalStop  Signal = "stop"
	SignalCancel Signal = "cancel"
	SignalPing  Signal = "ping"
	SignalReset Signal = "reset"
)

// SampleFormat tags the PCM encoding of an audio chunk.
type SampleFormat string

const (
	FormatPCM16   SampleFormat = "pcm16"
	FormatFloat32 SampleFormat = "float32"
)

// BytesPerSample returns the per-channel sample width for the format, or 0
// for an unrecognized tag.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatPCM16:
		return 2
	case FormatFloat32:
		return 4
	default:
		return 0
	}
}

// PunctuationMode controls the Inference Orchestrator's post-processing of
// transcript text.
type PunctuationMode string

const (
	PunctuationAuto     PunctuationMode = "auto"
	PunctuationNone     PunctuationMode = "none"
	PunctuationSentence PunctuationMode = "sentence"
)

// ErrorKind is the wire-level taxonomy for Error Records. It mirrors the
// errors package's Category values that can surface to the other process.
type ErrorKind string

const (
	ErrorModelLoadFailed       ErrorKind = "model-load-failed"
	ErrorAudioProcessingFailed ErrorKind = "audio-processing-failed"
	ErrorInferenceFailed       ErrorKind = "inference-failed"
	ErrorMemoryPressure        ErrorKind = "memory-pressure"
	ErrorInvalidAudioFormat    ErrorKind = "invalid-audio-format"
	ErrorTimeout               ErrorKind = "timeout"
	ErrorUnknown               ErrorKind = "unknown"
)

const (
	// MinSessionIDLen and MaxSessionIDLen bound a valid session id.
	MinSessionIDLen = 1
	MaxSessionIDLen = 100

	// RequiredSampleRate and RequiredChannels are the only audio geometry
	// the Consumer accepts.
	RequiredSampleRate = 16000
	RequiredChannels   = 1

	// MinChunkDuration and MaxChunkDuration bound a chunk's declared
	// duration in seconds, exclusive/inclusive respectively.
	MinChunkDuration = 0.0
	MaxChunkDuration = 10.0

	// SizeTolerance is the allowed fractional deviation between a chunk's
	// declared duration-derived size and its actual byte length.
	SizeTolerance = 0.10

	// MaxTimestampDrift bounds how far a producer timestamp may diverge
	// from consumer wall clock before it is rejected.
	MaxTimestampDrift = 300 * time.Second
)

// NewSessionID mints an opaque session identifier.
func NewSessionID() string {
	return uuid.NewString()
}
