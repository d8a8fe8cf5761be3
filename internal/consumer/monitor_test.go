package consumer

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
	"github.com/Resonant-Jones/WhisperBoard/internal/rendezvous"
	"github.com/Resonant-Jones/WhisperBoard/internal/sequencer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrchestrator struct {
	started []string
	cancels int
	chunks  []protocol.ChunkMetadata
}

func (f *fakeOrchestrator) StartSession(id string)                             { f.started = append(f.started, id) }
func (f *fakeOrchestrator) CancelSession()                                     { f.cancels++ }
func (f *fakeOrchestrator) OnChunk(pcm []byte, meta protocol.ChunkMetadata)     { f.chunks = append(f.chunks, meta) }

func pcm16Bytes(n int) []byte {
	b := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(b[i*2:i*2+2], 0)
	}
	return b
}

func publishChunk(t *testing.T, store *rendezvous.Store, sid string, cid int64, isLast bool) {
	t.Helper()
	samples := 8000 // 0.5s @ 16kHz
	pcm := pcm16Bytes(samples)
	meta := protocol.ChunkMetadata{
		SessionID:   sid,
		ChunkID:     cid,
		SampleRate:  protocol.RequiredSampleRate,
		Channels:    protocol.RequiredChannels,
		Format:      protocol.FormatPCM16,
		DurationSec: 0.5,
		Timestamp:   time.Now(),
		IsLastChunk: isLast,
	}
	pcmName := protocol.ChunkPCMFilename(sid, cid)
	metaName := protocol.ChunkMetadataFilename(sid, cid)

	require.NoError(t, store.WriteAtomic(rendezvous.Audio, pcmName, pcm))
	env := protocol.ChunkFileEnvelope{Metadata: meta, PCMFilename: pcmName}
	b, err := protocol.Encode(env)
	require.NoError(t, err)
	require.NoError(t, store.WriteAtomic(rendezvous.Audio, metaName, b))
}

func publishControl(t *testing.T, store *rendezvous.Store, signal protocol.Signal, sid string) {
	t.Helper()
	sig := protocol.ControlSignal{Signal: signal, SessionID: sid, Timestamp: time.Now()}
	b, err := protocol.Encode(sig)
	require.NoError(t, err)
	require.NoError(t, store.WriteAtomic(rendezvous.Control, protocol.ControlSignalFile, b))
}

func TestMonitorFeedsInOrderChunksToOrchestrator(t *testing.T) {
	t.Parallel()
	store, err := rendezvous.Open(t.TempDir())
	require.NoError(t, err)

	orch := &fakeOrchestrator{}
	mon := New(store, nil, orch, nil, 10*time.Millisecond, nil)
	seq := sequencer.New(10, mon, nil)
	mon.seq = seq

	publishControl(t, store, protocol.SignalStart, "S1")
	mon.tick()

	publishChunk(t, store, "S1", 0, false)
	publishChunk(t, store, "S1", 1, true)
	mon.tick()
	mon.tick()

	assert.Equal(t, []string{"S1"}, orch.started)
	require.Len(t, orch.chunks, 2)
	assert.Equal(t, int64(0), orch.chunks[0].ChunkID)
	assert.Equal(t, int64(1), orch.chunks[1].ChunkID)

	entries, err := store.List(rendezvous.Audio)
	require.NoError(t, err)
	assert.Empty(t, entries, "consumed chunk files should be deleted")
}

func TestMonitorDiscardsStaleSessionChunks(t *testing.T) {
	t.Parallel()
	store, err := rendezvous.Open(t.TempDir())
	require.NoError(t, err)

	orch := &fakeOrchestrator{}
	mon := New(store, nil, orch, nil, 10*time.Millisecond, nil)
	seq := sequencer.New(10, mon, nil)
	mon.seq = seq

	publishControl(t, store, protocol.SignalStart, "S6")
	mon.tick()

	// Debris left over from a prior, already-aborted session S5.
	publishChunk(t, store, "S5", 0, false)
	mon.tick()

	assert.Empty(t, orch.chunks)
	entries, err := store.List(rendezvous.Audio)
	require.NoError(t, err)
	assert.Empty(t, entries, "stale session debris should be deleted without reaching the orchestrator")
}

func TestMonitorCancelPurgesSessionFiles(t *testing.T) {
	t.Parallel()
	store, err := rendezvous.Open(t.TempDir())
	require.NoError(t, err)

	orch := &fakeOrchestrator{}
	mon := New(store, nil, orch, nil, 10*time.Millisecond, nil)
	seq := sequencer.New(10, mon, nil)
	mon.seq = seq

	publishControl(t, store, protocol.SignalStart, "S4")
	mon.tick()
	publishChunk(t, store, "S4", 0, false)
	mon.tick()

	publishControl(t, store, protocol.SignalCancel, "S4")
	mon.tick()

	assert.Equal(t, 1, orch.cancels)
	entries, err := store.List(rendezvous.Audio)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
