// Package status implements the Status Publisher: a periodic (and
// on-demand) health record written for the Producer to observe consumer
// liveness and backpressure.
package status

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Resonant-Jones/WhisperBoard/internal/rendezvous"
	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
	"github.com/shirou/gopsutil/v3/process"
)

// SessionSource reports the Inference Orchestrator's live state.
type SessionSource interface {
	CurrentSession() (id string, processing bool)
}

// DropCounter reports the Chunk Sequencer's cumulative overflow count.
type DropCounter interface {
	Drops() int64
}

// Publisher writes a StatusRecord to control/status.json on a fixed
// interval and whenever PublishNow is called (e.g. on receipt of a ping
// control signal).
type Publisher struct {
	store        *rendezvous.Store
	sessions     SessionSource
	drops        DropCounter
	modelLoaded  func() bool
	modelVariant string
	interval     time.Duration
	log          *slog.Logger

	pid int32

	mu   sync.Mutex
	quit chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Publisher. modelLoaded reports whether the Inference
// Orchestrator's model context is currently loaded.
func New(store *rendezvous.Store, sessions SessionSource, drops DropCounter, modelLoaded func() bool, modelVariant string, interval time.Duration, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		store:        store,
		sessions:     sessions,
		drops:        drops,
		modelLoaded:  modelLoaded,
		modelVariant: modelVariant,
		interval:     interval,
		log:          log,
		pid:          int32(os.Getpid()),
		quit:         make(chan struct{}),
	}
}

// Start begins the periodic publish loop.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.loop()
}

// Stop terminates the publish loop.
func (p *Publisher) Stop() {
	close(p.quit)
	p.wg.Wait()
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.PublishNow()
		case <-p.quit:
			return
		}
	}
}

// PublishNow writes a fresh status record immediately.
func (p *Publisher) PublishNow() {
	id, processing := p.sessions.CurrentSession()

	record := protocol.StatusRecord{
		ModelLoaded:    p.modelLoaded(),
		Processing:     processing,
		CurrentSession: id,
		ModelVariant:   p.modelVariant,
		MemoryMB:       p.residentMemoryMB(),
		SequencerDrops: p.drops.Drops(),
		LastUpdate:     time.Now(),
	}

	b, err := protocol.Encode(record)
	if err != nil {
		p.log.Warn("failed to encode status record", "error", err)
		return
	}
	if err := p.store.WriteAtomic(rendezvous.Control, protocol.StatusFile, b); err != nil {
		p.log.Warn("failed to publish status record", "error", err)
	}
}

func (p *Publisher) residentMemoryMB() float64 {
	proc, err := process.NewProcess(p.pid)
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / (1024 * 1024)
}
