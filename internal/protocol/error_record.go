package protocol

import "time"

// ErrorRecord is written to control/error.json and owned by the reader
// (delete-on-consume).
type ErrorRecord struct {
	ErrorKind         ErrorKind `json:"error_kind"`
	HumanDescription  string    `json:"human_description"`
	SessionID         string    `json:"session_id,omitempty"`
	IsRecoverable     bool      `json:"is_recoverable"`
	Timestamp         time.Time `json:"timestamp"`
}

func (e ErrorRecord) Validate() error {
	switch e.ErrorKind {
	case ErrorModelLoadFailed, ErrorAudioProcessingFailed, ErrorInferenceFailed,
		ErrorMemoryPressure, ErrorInvalidAudioFormat, ErrorTimeout, ErrorUnknown:
	default:
		return invalid("error_record", "unknown error_kind "+string(e.ErrorKind))
	}
	if e.SessionID != "" {
		if err := ValidateSessionID(e.SessionID); err != nil {
			return err
		}
	}
	return nil
}

// NonRecoverable reports whether kind ends the session outright rather
// than allowing the producer to retry.
func NonRecoverable(kind ErrorKind) bool {
	return kind == ErrorMemoryPressure || kind == ErrorModelLoadFailed
}
