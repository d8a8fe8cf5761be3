// Package sequencer implements the bounded reorder buffer that sits
// between the Consumer Monitor and the Inference Orchestrator, guaranteeing
// strictly ascending contiguous chunk delivery for the session in flight.
package sequencer

import (
	"log/slog"
	"sync"

	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
)

// Chunk bundles a validated chunk's PCM bytes, metadata, and the rendezvous
// file names that back it so the Sequencer can delete debris on eviction
// or duplicate without involving its caller.
type Chunk struct {
	Meta        protocol.ChunkMetadata
	PCM         []byte
	MetaName    string
	PCMName     string
}

// Deleter removes a chunk's backing files. Implemented by a rendezvous
// Store adapter; kept as an interface so the Sequencer has no filesystem
// dependency of its own.
type Deleter interface {
	DeleteChunkFiles(metaName, pcmName string)
}

// Sequencer holds out-of-order chunks for a single in-flight session until
// the contiguous prefix advances. Capacity bounds the buffer; on
// overflow the oldest buffered chunk is evicted, never a chunk already
// delivered.
type Sequencer struct {
	mu            sync.Mutex
	capacity      int
	buffer        map[int64]Chunk
	lastProcessed int64
	deleter       Deleter
	log           *slog.Logger

	drops int64
}

// New creates a Sequencer with the given capacity (default 10).
func New(capacity int, deleter Deleter, log *slog.Logger) *Sequencer {
	if capacity <= 0 {
		capacity = 10
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sequencer{
		capacity:      capacity,
		buffer:        make(map[int64]Chunk, capacity),
		lastProcessed: -1,
		deleter:       deleter,
		log:           log,
	}
}

// Reset clears the buffer and last-processed marker, used when a `start`
// or `reset` control signal begins a new session.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictAllLocked()
	s.lastProcessed = -1
}

func (s *Sequencer) evictAllLocked() {
	for id, c := range s.buffer {
		s.deleter.DeleteChunkFiles(c.MetaName, c.PCMName)
		delete(s.buffer, id)
	}
}

// Drops returns the cumulative number of chunks dropped on overflow,
// surfaced via the Status Publisher.
func (s *Sequencer) Drops() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

// Size returns the number of chunks currently buffered.
func (s *Sequencer) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// Submit admits one chunk, returning the run of now-deliverable chunks in
// strictly ascending order. An empty (nil) result means the chunk was
// buffered (or was a duplicate and discarded).
func (s *Sequencer) Submit(c Chunk) []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.Meta.ChunkID

	switch {
	case id == s.lastProcessed+1:
		deliverable := []Chunk{c}
		s.lastProcessed = id
		deliverable = append(deliverable, s.drainContiguousLocked()...)
		return deliverable

	case id > s.lastProcessed+1:
		s.buffer[id] = c
		if len(s.buffer) > s.capacity {
			s.evictOldestLocked()
		}
		return nil

	default:
		// id <= lastProcessed: duplicate, already delivered or superseded.
		s.deleter.DeleteChunkFiles(c.MetaName, c.PCMName)
		return nil
	}
}

func (s *Sequencer) drainContiguousLocked() []Chunk {
	var drained []Chunk
	for {
		next, ok := s.buffer[s.lastProcessed+1]
		if !ok {
			return drained
		}
		delete(s.buffer, s.lastProcessed+1)
		s.lastProcessed++
		drained = append(drained, next)
	}
}

func (s *Sequencer) evictOldestLocked() {
	var oldestID int64
	first := true
	for id := range s.buffer {
		if first || id < oldestID {
			oldestID = id
			first = false
		}
	}
	victim := s.buffer[oldestID]
	delete(s.buffer, oldestID)
	s.drops++
	s.log.Warn("sequencer buffer overflow, evicting oldest chunk",
		"chunk_id", oldestID, "session_id", victim.Meta.SessionID, "capacity", s.capacity)
	s.deleter.DeleteChunkFiles(victim.MetaName, victim.PCMName)
}

// LastProcessed returns the highest contiguous chunk id delivered so far,
// or -1 if none has been delivered for the current session.
func (s *Sequencer) LastProcessed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProcessed
}
