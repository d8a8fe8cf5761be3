package inference

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/Resonant-Jones/WhisperBoard/internal/errors"
	"github.com/Resonant-Jones/WhisperBoard/internal/metrics"
	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
)

// Publisher is the sink the Orchestrator hands finished records to. It is
// implemented by a rendezvous writer adapter; the Orchestrator has no
// filesystem dependency of its own.
type Publisher interface {
	PublishPartial(protocol.PartialTranscript)
	PublishFinal(protocol.FinalTranscript)
	PublishError(protocol.ErrorRecord)
}

// SettingsSource supplies the current runtime Settings record. Reading
// through an interface lets the Orchestrator observe live settings updates
// without owning the settings file itself.
type SettingsSource interface {
	Current() protocol.Settings
}

// job is one chunk handed to the worker goroutine.
type job struct {
	sessionID string
	pcm       []byte
	meta      protocol.ChunkMetadata
	startedAt time.Time
}

// Orchestrator owns the single loaded model context and the one dedicated
// worker goroutine that serializes every call into it.
type Orchestrator struct {
	ctx      Context
	pub      Publisher
	settings SettingsSource
	log      *slog.Logger
	metrics  *metrics.Consumer

	mu           sync.Mutex
	current      string
	processing   bool
	sessionStart time.Time

	jobs chan job
	wg   sync.WaitGroup
	quit chan struct{}
}

// New wraps an already-loaded Context. The caller is responsible for
// calling Load once at startup and warming the context before traffic
// arrives.
func New(ctx Context, pub Publisher, settings SettingsSource, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	o := &Orchestrator{
		ctx:      ctx,
		pub:      pub,
		settings: settings,
		log:      log,
		jobs:     make(chan job, 16),
		quit:     make(chan struct{}),
	}
	o.wg.Add(1)
	go o.worker()
	return o
}

// SetMetrics attaches the Prometheus instrumentation this Orchestrator
// reports per-call inference latency through. A nil Consumer (or never
// calling SetMetrics) is safe; Consumer's methods no-op on a nil receiver.
func (o *Orchestrator) SetMetrics(c *metrics.Consumer) {
	o.metrics = c
}

// Warm runs one inference pass over silence to eliminate first-call
// allocation latency.
func (o *Orchestrator) Warm(sampleRate int) {
	silence := make([]float32, sampleRate) // 1 second of silence
	if err := o.ctx.Infer(silence, Params{}); err != nil {
		o.log.Warn("inference warmup failed", "error", err)
	}
}

// StartSession begins processing for id, implicitly cancelling any prior
// in-flight session.
func (o *Orchestrator) StartSession(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.processing && o.current != "" && o.current != id {
		o.log.Info("implicitly cancelling prior session", "prior_session_id", o.current, "new_session_id", id)
	}
	o.current = id
	o.processing = true
	o.sessionStart = time.Now()
}

// CancelSession clears the active session without freeing the model
//. Chunks for the cancelled id arriving afterward are ignored by
// OnChunk's session guard.
func (o *Orchestrator) CancelSession() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current = ""
	o.processing = false
}

// CurrentSession reports the active session id, or "" if idle.
func (o *Orchestrator) CurrentSession() (id string, processing bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current, o.processing
}

// OnChunk enqueues a validated, in-order chunk for the worker goroutine.
// Out-of-session chunks are dropped immediately.
func (o *Orchestrator) OnChunk(pcm []byte, meta protocol.ChunkMetadata) {
	o.mu.Lock()
	processing, current := o.processing, o.current
	o.mu.Unlock()

	if !processing || meta.SessionID != current {
		return
	}

	select {
	case o.jobs <- job{sessionID: meta.SessionID, pcm: pcm, meta: meta, startedAt: time.Now()}:
	case <-o.quit:
	}
}

// Close stops the worker goroutine and frees the model context once it has
// drained.
func (o *Orchestrator) Close() {
	close(o.quit)
	o.wg.Wait()
	o.ctx.Free()
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case j := <-o.jobs:
			o.process(j)
		case <-o.quit:
			o.drainRemaining()
			return
		}
	}
}

func (o *Orchestrator) drainRemaining() {
	for {
		select {
		case j := <-o.jobs:
			o.process(j)
		default:
			return
		}
	}
}

func (o *Orchestrator) process(j job) {
	o.mu.Lock()
	stillCurrent := o.processing && o.current == j.sessionID
	o.mu.Unlock()
	if !stillCurrent {
		return
	}

	settings := o.settings.Current()
	samples := ToFloat32(j.pcm, j.meta.Format)

	inferStart := time.Now()
	err := o.ctx.Infer(samples, Params{Language: settings.Language})
	o.metrics.ObserveInferenceLatency(time.Since(inferStart).Seconds())
	if err != nil {
		ee := apperrors.New(fmt.Errorf("inference: %w", err)).
			Component("inference").
			Category(apperrors.CategoryInference).
			SessionContext(j.sessionID).
			Build()
		o.pub.PublishError(protocol.ErrorRecord{
			ErrorKind:        protocol.ErrorKind(ee.Kind()),
			HumanDescription: ee.Error(),
			SessionID:        j.sessionID,
			IsRecoverable:    true,
			Timestamp:        time.Now(),
		})
		return
	}

	if settings.StreamingEnabled {
		o.publishPartial(j.sessionID, settings)
	}

	if j.meta.IsLastChunk {
		o.publishFinal(j, settings)
		o.mu.Lock()
		o.processing = false
		o.mu.Unlock()
	}
}

func (o *Orchestrator) publishPartial(sessionID string, settings protocol.Settings) {
	text := o.collectText()
	text = ApplyPunctuation(text, settings.PunctuationMode)

	var tokens []string
	for i := 0; i < o.ctx.NSegments(); i++ {
		for t := 0; t < o.ctx.NTokens(i); t++ {
			tokens = append(tokens, o.ctx.TokenText(i, t))
		}
	}

	o.pub.PublishPartial(protocol.PartialTranscript{
		SessionID:      sessionID,
		CumulativeText: text,
		Tokens:         tokens,
		Timestamp:      time.Now(),
	})
}

func (o *Orchestrator) publishFinal(j job, settings protocol.Settings) {
	text := o.collectText()
	text = ApplyPunctuation(text, settings.PunctuationMode)

	o.mu.Lock()
	elapsed := time.Since(o.sessionStart)
	o.mu.Unlock()

	o.pub.PublishFinal(protocol.FinalTranscript{
		SessionID:        j.sessionID,
		Text:             text,
		IsFinal:          true,
		ProcessingTimeMS: elapsed.Milliseconds(),
		Timestamp:        time.Now(),
	})
}

func (o *Orchestrator) collectText() string {
	var parts []string
	for i := 0; i < o.ctx.NSegments(); i++ {
		parts = append(parts, o.ctx.SegmentText(i))
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
