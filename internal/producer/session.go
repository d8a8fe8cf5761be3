// Package producer implements the Producer Session: the capture-side
// per-utterance state machine that mints session ids, numbers and
// publishes audio chunks and control signals, and surfaces partial/final
// transcripts and errors back to the embedding application.
package producer

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
	"github.com/Resonant-Jones/WhisperBoard/internal/rendezvous"
	"github.com/Resonant-Jones/WhisperBoard/internal/textsurface"
)

// State is one of the Producer Session's lifecycle states.
type State int

const (
	Idle State = iota
	Recording
	AwaitingFinal
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case AwaitingFinal:
		return "awaiting_final"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session drives one capture-to-insertion lifecycle against a shared
// rendezvous root. Exactly one session is active per Session instance;
// callers serialize begin/submit_chunk/end/abort externally (the UI lane
// is always single-threaded).
type Session struct {
	store   *rendezvous.Store
	surface textsurface.Surface
	log     *slog.Logger
	timeout time.Duration

	mu             sync.Mutex
	state          State
	sessionID      string
	nextChunkID    int64
	lastFinalMTime time.Time
	failReason     string

	lastChunkMeta     protocol.ChunkMetadata
	lastChunkMetaName string
	lastChunkPCMName  string
	lastChunkSent     bool

	wg   sync.WaitGroup
	quit chan struct{}
}

// New constructs a Session. timeout bounds how long AwaitingFinal waits
// for a final transcript before surfacing a timeout error (default 10s
// if zero).
func New(store *rendezvous.Store, surface textsurface.Surface, timeout time.Duration, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if surface == nil {
		surface = textsurface.Noop()
	}
	return &Session{store: store, surface: surface, timeout: timeout, log: log, state: Idle}
}

// CurrentState reports the session's state and, if applicable, the active
// session id.
func (s *Session) CurrentState() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.sessionID
}

// Begin mints a new session id, resets the chunk counter, publishes a
// start control signal, and transitions to Recording.
func (s *Session) Begin() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := protocol.NewSessionID()
	s.sessionID = id
	s.nextChunkID = 0
	s.state = Recording
	s.failReason = ""
	s.lastChunkSent = false

	return id, s.publishControlLocked(protocol.SignalStart, id)
}

// SubmitChunk builds and publishes the next chunk's PCM and metadata
// files. The PCM file is written before the metadata file so any consumer
// that observes the metadata is guaranteed to find its sibling.
func (s *Session) SubmitChunk(pcm []byte, format protocol.SampleFormat, durationSec float64, isLast bool) error {
	s.mu.Lock()
	sessionID := s.sessionID
	chunkID := s.nextChunkID
	s.nextChunkID++
	s.mu.Unlock()

	meta := protocol.ChunkMetadata{
		SessionID:   sessionID,
		ChunkID:     chunkID,
		SampleRate:  protocol.RequiredSampleRate,
		Channels:    protocol.RequiredChannels,
		Format:      format,
		DurationSec: durationSec,
		Timestamp:   time.Now(),
		IsLastChunk: isLast,
	}
	if err := meta.Validate(); err != nil {
		return err
	}

	pcmName := protocol.ChunkPCMFilename(sessionID, chunkID)
	metaName := protocol.ChunkMetadataFilename(sessionID, chunkID)

	if err := s.store.WriteAtomic(rendezvous.Audio, pcmName, pcm); err != nil {
		return err
	}
	envelope := protocol.ChunkFileEnvelope{Metadata: meta, PCMFilename: pcmName}
	b, err := protocol.Encode(envelope)
	if err != nil {
		return err
	}
	if err := s.store.WriteAtomic(rendezvous.Audio, metaName, b); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastChunkMeta = meta
	s.lastChunkMetaName = metaName
	s.lastChunkPCMName = pcmName
	s.lastChunkSent = true
	s.mu.Unlock()
	return nil
}

// End marks the most recently submitted chunk as the last one (if no
// chunk has yet been sent with is_last=true), sends a stop control
// signal, and transitions to AwaitingFinal, arming the session timeout.
// Final emission is driven entirely by the chunk carrying is_last=true,
// so a session whose last SubmitChunk call didn't set it would otherwise
// never produce a final transcript and would always time out.
func (s *Session) End() error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.state = AwaitingFinal
	needsFinalMark := s.lastChunkSent && !s.lastChunkMeta.IsLastChunk
	meta := s.lastChunkMeta
	metaName := s.lastChunkMetaName
	pcmName := s.lastChunkPCMName
	s.mu.Unlock()

	if needsFinalMark {
		meta.IsLastChunk = true
		envelope := protocol.ChunkFileEnvelope{Metadata: meta, PCMFilename: pcmName}
		b, err := protocol.Encode(envelope)
		if err != nil {
			return err
		}
		if err := s.store.WriteAtomic(rendezvous.Audio, metaName, b); err != nil {
			return err
		}
		s.mu.Lock()
		if s.lastChunkMetaName == metaName {
			s.lastChunkMeta = meta
		}
		s.mu.Unlock()
	}

	if err := s.publishControl(protocol.SignalStop, sessionID); err != nil {
		return err
	}
	s.armTimeout(sessionID)
	return nil
}

// Abort sends a cancel control signal and transitions directly to Idle.
// Any partials later observed for the aborted id are discarded by Poll.
func (s *Session) Abort() error {
	s.mu.Lock()
	sessionID := s.sessionID
	s.state = Idle
	s.sessionID = ""
	s.mu.Unlock()
	return s.publishControl(protocol.SignalCancel, sessionID)
}

func (s *Session) armTimeout(sessionID string) {
	s.wg.Add(1)
	timer := time.NewTimer(s.timeout)
	go func() {
		defer s.wg.Done()
		defer timer.Stop()
		<-timer.C

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.sessionID != sessionID || s.state != AwaitingFinal {
			return // final/abort already resolved this session
		}
		s.state = Failed
		s.failReason = "timeout"
		s.log.Warn("producer session timed out waiting for final transcript", "session_id", sessionID)
	}()
}

// Poll performs one inbound-monitoring pass: partials (delete-on-consume),
// the latest final (suppressed by modification time), and the error file
// (delete-on-consume). Call this on a ≈100ms cadence.
func (s *Session) Poll() {
	s.pollPartials()
	s.pollFinal()
	s.pollError()
}

func (s *Session) pollPartials() {
	entries, err := s.store.List(rendezvous.Transcripts)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name, "token_update_") {
			continue
		}
		b, err := s.store.Read(rendezvous.Transcripts, e.Name)
		s.store.Delete(rendezvous.Transcripts, e.Name)
		if err != nil {
			continue
		}
		partial, err := protocol.Decode[protocol.PartialTranscript](b)
		if err != nil {
			s.log.Warn("invalid partial transcript, discarding", "error", err)
			continue
		}

		s.mu.Lock()
		current := s.sessionID
		s.mu.Unlock()
		if partial.SessionID != current {
			continue // belongs to an already-cancelled/superseded session
		}
		s.log.Debug("partial transcript", "text", partial.CumulativeText)
	}
}

func (s *Session) pollFinal() {
	mtime, err := s.store.MTime(rendezvous.Transcripts, protocol.FinalTranscriptFile)
	if err != nil {
		return
	}

	s.mu.Lock()
	seen := !mtime.After(s.lastFinalMTime) && !s.lastFinalMTime.IsZero()
	s.mu.Unlock()
	if seen {
		return
	}

	b, err := s.store.Read(rendezvous.Transcripts, protocol.FinalTranscriptFile)
	if err != nil {
		return
	}
	final, err := protocol.Decode[protocol.FinalTranscript](b)
	if err != nil {
		s.log.Warn("invalid final transcript, discarding", "error", err)
		return
	}

	s.mu.Lock()
	current := s.sessionID
	s.lastFinalMTime = mtime
	if final.SessionID != current {
		s.mu.Unlock()
		return
	}
	s.state = Idle
	s.mu.Unlock()

	if err := s.surface.Insert(final.Text); err != nil {
		s.log.Warn("text surface insert failed", "error", err)
	}
}

func (s *Session) pollError() {
	exists := s.store.Exists(rendezvous.Control, protocol.ErrorFile)
	if !exists {
		return
	}
	b, err := s.store.Read(rendezvous.Control, protocol.ErrorFile)
	s.store.Delete(rendezvous.Control, protocol.ErrorFile)
	if err != nil {
		return
	}
	record, err := protocol.Decode[protocol.ErrorRecord](b)
	if err != nil {
		s.log.Warn("invalid error record, discarding", "error", err)
		return
	}

	s.mu.Lock()
	current := s.sessionID
	if record.SessionID != "" && record.SessionID != current {
		s.mu.Unlock()
		return
	}
	s.state = Failed
	s.failReason = record.HumanDescription
	s.mu.Unlock()
}

// FailureReason reports the last Failed-state reason, if any.
func (s *Session) FailureReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failReason
}

// Acknowledge transitions a Failed session back to Idle once the
// embedding application has surfaced the failure to the user.
func (s *Session) Acknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Failed {
		s.state = Idle
		s.failReason = ""
	}
}

func (s *Session) publishControl(signal protocol.Signal, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishControlLocked(signal, sessionID)
}

func (s *Session) publishControlLocked(signal protocol.Signal, sessionID string) error {
	sig := protocol.ControlSignal{Signal: signal, SessionID: sessionID, Timestamp: time.Now()}
	b, err := protocol.Encode(sig)
	if err != nil {
		return err
	}
	return s.store.WriteAtomic(rendezvous.Control, protocol.ControlSignalFile, b)
}

// Close waits for any in-flight timeout goroutine to finish. Safe to call
// even if no timeout was ever armed.
func (s *Session) Close() {
	s.wg.Wait()
}
