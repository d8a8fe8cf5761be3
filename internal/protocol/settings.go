package protocol

// Settings is the producer-writable, consumer-readable runtime record
// exchanged through settings/settings.json. It is distinct from
// conf.Settings, which is each process's own local startup configuration.
type Settings struct {
	PunctuationMode  PunctuationMode `json:"punctuation_mode"`
	Language         string          `json:"language,omitempty"` // 2-char code, absent = auto
	VADEnabled       bool            `json:"vad_enabled"`
	VADThreshold     float64         `json:"vad_threshold"`
	StreamingEnabled bool            `json:"streaming_enabled"`
	ChunkSizeMS      int             `json:"chunk_size_ms"`
	MaxSessionSec    int             `json:"max_session_duration_sec"`
}

// DefaultSettings mirrors the source's out-of-the-box behavior: automatic
// punctuation and language detection, VAD off, streaming partials on.
func DefaultSettings() Settings {
	return Settings{
		PunctuationMode:  PunctuationAuto,
		VADEnabled:       false,
		VADThreshold:     0.5,
		StreamingEnabled: true,
		ChunkSizeMS:      200,
		MaxSessionSec:    60,
	}
}

func (s Settings) Validate() error {
	switch s.PunctuationMode {
	case PunctuationAuto, PunctuationNone, PunctuationSentence:
	default:
		return invalid("settings", "unknown punctuation_mode "+string(s.PunctuationMode))
	}
	if s.Language != "" && len(s.Language) != 2 {
		return invalid("settings", "language must be a 2-character code or absent")
	}
	if s.VADThreshold < 0 || s.VADThreshold > 1 {
		return invalid("settings", "vad_threshold must be in [0,1]")
	}
	if s.ChunkSizeMS < 50 || s.ChunkSizeMS > 1000 {
		return invalid("settings", "chunk_size_ms must be in [50,1000]")
	}
	if s.MaxSessionSec < 1 || s.MaxSessionSec > 300 {
		return invalid("settings", "max_session_duration_sec must be in [1,300]")
	}
	return nil
}
