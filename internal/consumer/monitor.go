// Package consumer implements the Consumer Monitor: the polling loop that
// demultiplexes control signals from audio chunks, enforces session
// identity, and feeds chunks in order to the Inference Orchestrator.
package consumer

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Resonant-Jones/WhisperBoard/internal/metrics"
	"github.com/Resonant-Jones/WhisperBoard/internal/rendezvous"
	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
	"github.com/Resonant-Jones/WhisperBoard/internal/sequencer"
)

// Orchestrator is the subset of inference.Orchestrator the Monitor drives.
type Orchestrator interface {
	StartSession(id string)
	CancelSession()
	OnChunk(pcm []byte, meta protocol.ChunkMetadata)
}

// StatusPinger is notified to publish an out-of-band status update when a
// ping control signal arrives.
type StatusPinger interface {
	PublishNow()
}

// Monitor polls the rendezvous audio/ and control/ subdirectories on a
// fixed interval and drives session lifecycle + chunk delivery.
type Monitor struct {
	store   *rendezvous.Store
	seq     *sequencer.Sequencer
	orch    Orchestrator
	pinger  StatusPinger
	metrics *metrics.Consumer
	log     *slog.Logger
	pollInt time.Duration

	mu            sync.Mutex
	currentSession string
	lastProcessed  int64

	wg   sync.WaitGroup
	quit chan struct{}
}

// New constructs a Monitor. seq must have been built with a Deleter bound
// to the same store.
func New(store *rendezvous.Store, seq *sequencer.Sequencer, orch Orchestrator, pinger StatusPinger, pollInterval time.Duration, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		store:         store,
		seq:           seq,
		orch:          orch,
		pinger:        pinger,
		log:           log,
		pollInt:       pollInterval,
		lastProcessed: -1,
		quit:          make(chan struct{}),
	}
}

// SetSequencer attaches the Sequencer this Monitor feeds. Construction is
// two-phase because the Sequencer's Deleter is usually the Monitor itself.
func (m *Monitor) SetSequencer(seq *sequencer.Sequencer) {
	m.seq = seq
}

// SetPinger attaches the Status Publisher notified on receipt of a ping
// control signal. Construction is two-phase for the same reason as
// SetSequencer: the Publisher's DropCounter is usually this Monitor's own
// Sequencer, built after the Monitor itself.
func (m *Monitor) SetPinger(pinger StatusPinger) {
	m.pinger = pinger
}

// SetMetrics attaches the Prometheus instrumentation this Monitor reports
// chunk throughput and session activity through. A nil Consumer (or never
// calling SetMetrics) is safe; Consumer's methods no-op on a nil receiver.
func (m *Monitor) SetMetrics(c *metrics.Consumer) {
	m.metrics = c
}

// Start begins the polling loop in its own goroutine.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.loop()
}

// Stop terminates the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.quit)
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInt)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-m.quit:
			return
		}
	}
}

func (m *Monitor) tick() {
	m.pollControl()
	m.pollAudio()
}

func (m *Monitor) pollControl() {
	exists := m.store.Exists(rendezvous.Control, protocol.ControlSignalFile)
	if !exists {
		return
	}
	b, err := m.store.Read(rendezvous.Control, protocol.ControlSignalFile)
	if err != nil {
		m.log.Warn("failed to read control signal", "error", err)
		return
	}
	defer m.store.Delete(rendezvous.Control, protocol.ControlSignalFile)

	sig, err := protocol.Decode[protocol.ControlSignal](b)
	if err != nil {
		m.log.Warn("invalid control signal", "error", err)
		return
	}

	m.handleSignal(sig)
}

func (m *Monitor) handleSignal(sig protocol.ControlSignal) {
	switch sig.Signal {
	case protocol.SignalStart:
		m.mu.Lock()
		m.currentSession = sig.SessionID
		m.lastProcessed = -1
		m.mu.Unlock()
		m.seq.Reset()
		m.orch.StartSession(sig.SessionID)
		m.metrics.SetActiveSessions(true)

	case protocol.SignalStop:
		// no-op on ingest path; final emission is driven by is_last_chunk.

	case protocol.SignalCancel, protocol.SignalReset:
		m.orch.CancelSession()
		m.seq.Reset()
		m.purgeSession(sig.SessionID)
		m.mu.Lock()
		m.currentSession = ""
		m.mu.Unlock()
		m.metrics.SetActiveSessions(false)

	case protocol.SignalPing:
		if m.pinger != nil {
			m.pinger.PublishNow()
		}
	}
}

// purgeSession deletes every audio/ and transcripts/ file whose name
// contains the session id.
func (m *Monitor) purgeSession(sessionID string) {
	for _, sd := range []rendezvous.Subdir{rendezvous.Audio, rendezvous.Transcripts} {
		entries, err := m.store.List(sd)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if strings.Contains(e.Name, sessionID) {
				if err := m.store.Delete(sd, e.Name); err != nil {
					m.log.Warn("failed to delete session debris", "subdir", sd, "name", e.Name, "error", err)
				}
			}
		}
	}
}

func (m *Monitor) pollAudio() {
	entries, err := m.store.List(rendezvous.Audio)
	if err != nil {
		m.log.Warn("failed to list audio directory", "error", err)
		return
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name, ".json") {
			continue
		}
		m.processMetadataFile(e.Name)
	}
}

func (m *Monitor) processMetadataFile(name string) {
	b, err := m.store.Read(rendezvous.Audio, name)
	if err != nil {
		return
	}
	envelope, err := protocol.Decode[protocol.ChunkFileEnvelope](b)
	if err != nil {
		m.log.Warn("invalid chunk metadata, discarding", "name", name, "error", err)
		m.store.Delete(rendezvous.Audio, name)
		return
	}
	meta := envelope.Metadata
	pcmName := envelope.PCMFilename
	if pcmName == "" {
		pcmName = protocol.ChunkPCMFilename(meta.SessionID, meta.ChunkID)
	}

	m.mu.Lock()
	current := m.currentSession
	lastProcessed := m.lastProcessed
	m.mu.Unlock()

	if meta.SessionID != current {
		m.deleteChunkFiles(name, pcmName)
		m.metrics.ChunkProcessed("stale_session")
		return
	}
	if meta.ChunkID <= lastProcessed {
		m.deleteChunkFiles(name, pcmName)
		m.metrics.ChunkProcessed("duplicate")
		return
	}
	if !m.store.Exists(rendezvous.Audio, pcmName) {
		// metadata arrived before PCM finished writing; try again next tick.
		return
	}

	pcm, err := m.store.Read(rendezvous.Audio, pcmName)
	if err != nil {
		m.log.Warn("failed to read pcm sibling", "name", pcmName, "error", err)
		return
	}
	if err := meta.ValidatePCMSize(int64(len(pcm))); err != nil {
		m.log.Warn("chunk failed size validation, discarding", "name", name, "error", err)
		m.deleteChunkFiles(name, pcmName)
		m.metrics.ChunkProcessed("invalid")
		return
	}

	dropsBefore := m.seq.Drops()
	delivered := m.seq.Submit(sequencer.Chunk{Meta: meta, PCM: pcm, MetaName: name, PCMName: pcmName})
	if m.seq.Drops() > dropsBefore {
		m.metrics.SequencerDrop()
	}
	for _, c := range delivered {
		m.mu.Lock()
		m.lastProcessed = c.Meta.ChunkID
		m.mu.Unlock()
		m.orch.OnChunk(c.PCM, c.Meta)
		m.deleteChunkFiles(c.MetaName, c.PCMName)
		m.metrics.ChunkProcessed("ok")
	}
}

func (m *Monitor) deleteChunkFiles(metaName, pcmName string) {
	m.store.Delete(rendezvous.Audio, metaName)
	m.store.Delete(rendezvous.Audio, pcmName)
}

// DeleteChunkFiles satisfies sequencer.Deleter so a Monitor's own store can
// back the Sequencer it owns.
func (m *Monitor) DeleteChunkFiles(metaName, pcmName string) {
	m.deleteChunkFiles(metaName, pcmName)
}
