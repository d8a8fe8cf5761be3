package producer

import (
	"testing"
	"time"

	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
	"github.com/Resonant-Jones/WhisperBoard/internal/rendezvous"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, timeout time.Duration) (*Session, *rendezvous.Store, *capturingSurface) {
	t.Helper()
	store, err := rendezvous.Open(t.TempDir())
	require.NoError(t, err)
	surface := &capturingSurface{}
	return New(store, surface, timeout, nil), store, surface
}

type capturingSurface struct {
	inserted []string
}

func (c *capturingSurface) Insert(text string) error {
	c.inserted = append(c.inserted, text)
	return nil
}

func TestBeginPublishesStartSignalAndEntersRecording(t *testing.T) {
	t.Parallel()
	sess, store, _ := newTestSession(t, time.Second)

	id, err := sess.Begin()
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	state, sid := sess.CurrentState()
	assert.Equal(t, Recording, state)
	assert.Equal(t, id, sid)

	b, err := store.Read(rendezvous.Control, protocol.ControlSignalFile)
	require.NoError(t, err)
	sig, err := protocol.Decode[protocol.ControlSignal](b)
	require.NoError(t, err)
	assert.Equal(t, protocol.SignalStart, sig.Signal)
	assert.Equal(t, id, sig.SessionID)
}

func TestSubmitChunkWritesPCMAndMetadataFiles(t *testing.T) {
	t.Parallel()
	sess, store, _ := newTestSession(t, time.Second)
	_, err := sess.Begin()
	require.NoError(t, err)

	pcm := make([]byte, 8000*2) // 0.5s @ 16kHz PCM16
	require.NoError(t, sess.SubmitChunk(pcm, protocol.FormatPCM16, 0.5, true))

	entries, err := store.List(rendezvous.Audio)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestEndRetroactivelyMarksLastChunkAsFinalWhenNotAlreadySent(t *testing.T) {
	t.Parallel()
	sess, store, _ := newTestSession(t, time.Second)
	id, err := sess.Begin()
	require.NoError(t, err)

	pcm := make([]byte, 8000*2)
	require.NoError(t, sess.SubmitChunk(pcm, protocol.FormatPCM16, 0.5, false))
	require.NoError(t, sess.End())

	metaName := protocol.ChunkMetadataFilename(id, 0)
	b, err := store.Read(rendezvous.Audio, metaName)
	require.NoError(t, err)
	envelope, err := protocol.Decode[protocol.ChunkFileEnvelope](b)
	require.NoError(t, err)
	assert.True(t, envelope.Metadata.IsLastChunk, "End must retroactively mark the last submitted chunk as final")
}

func TestEndDoesNotRewriteChunkAlreadyMarkedFinal(t *testing.T) {
	t.Parallel()
	sess, store, _ := newTestSession(t, time.Second)
	id, err := sess.Begin()
	require.NoError(t, err)

	pcm := make([]byte, 8000*2)
	require.NoError(t, sess.SubmitChunk(pcm, protocol.FormatPCM16, 0.5, true))

	metaName := protocol.ChunkMetadataFilename(id, 0)
	before, err := store.MTime(rendezvous.Audio, metaName)
	require.NoError(t, err)

	require.NoError(t, sess.End())

	after, err := store.MTime(rendezvous.Audio, metaName)
	require.NoError(t, err)
	assert.Equal(t, before, after, "a chunk already sent with is_last=true must not be rewritten")
}

func TestPollFinalInsertsTextAndReturnsToIdle(t *testing.T) {
	t.Parallel()
	sess, store, surface := newTestSession(t, time.Second)
	id, err := sess.Begin()
	require.NoError(t, err)
	require.NoError(t, sess.End())

	final := protocol.FinalTranscript{SessionID: id, Text: "hello world", IsFinal: true, Timestamp: time.Now()}
	b, err := protocol.Encode(final)
	require.NoError(t, err)
	require.NoError(t, store.WriteAtomic(rendezvous.Transcripts, protocol.FinalTranscriptFile, b))

	sess.Poll()

	state, _ := sess.CurrentState()
	assert.Equal(t, Idle, state)
	assert.Equal(t, []string{"hello world"}, surface.inserted)
}

func TestPollFinalSuppressesDuplicateByModTime(t *testing.T) {
	t.Parallel()
	sess, store, surface := newTestSession(t, time.Second)
	id, err := sess.Begin()
	require.NoError(t, err)
	require.NoError(t, sess.End())

	final := protocol.FinalTranscript{SessionID: id, Text: "hello world", IsFinal: true, Timestamp: time.Now()}
	b, err := protocol.Encode(final)
	require.NoError(t, err)
	require.NoError(t, store.WriteAtomic(rendezvous.Transcripts, protocol.FinalTranscriptFile, b))

	sess.Poll()
	sess.Poll()
	sess.Poll()

	assert.Len(t, surface.inserted, 1, "a final with an unchanged modification time must not be re-delivered")
}

func TestAbortSuppressesLaterFinal(t *testing.T) {
	t.Parallel()
	sess, store, surface := newTestSession(t, time.Second)
	id, err := sess.Begin()
	require.NoError(t, err)
	require.NoError(t, sess.Abort())

	// A final for the aborted session id still arrives (race), but must be
	// discarded since it no longer matches the current session.
	final := protocol.FinalTranscript{SessionID: id, Text: "late text", IsFinal: true, Timestamp: time.Now()}
	b, err := protocol.Encode(final)
	require.NoError(t, err)
	require.NoError(t, store.WriteAtomic(rendezvous.Transcripts, protocol.FinalTranscriptFile, b))

	sess.Poll()

	assert.Empty(t, surface.inserted)
}

func TestEndArmsTimeoutAndTransitionsToFailed(t *testing.T) {
	t.Parallel()
	sess, _, _ := newTestSession(t, 10*time.Millisecond)
	_, err := sess.Begin()
	require.NoError(t, err)
	require.NoError(t, sess.End())

	sess.Close()

	state, _ := sess.CurrentState()
	assert.Equal(t, Failed, state)
	assert.Equal(t, "timeout", sess.FailureReason())
}

func TestPollErrorTransitionsToFailed(t *testing.T) {
	t.Parallel()
	sess, store, _ := newTestSession(t, time.Second)
	id, err := sess.Begin()
	require.NoError(t, err)

	errRec := protocol.ErrorRecord{ErrorKind: protocol.ErrorInferenceFailed, HumanDescription: "boom", SessionID: id, IsRecoverable: true, Timestamp: time.Now()}
	b, err := protocol.Encode(errRec)
	require.NoError(t, err)
	require.NoError(t, store.WriteAtomic(rendezvous.Control, protocol.ErrorFile, b))

	sess.Poll()

	state, _ := sess.CurrentState()
	assert.Equal(t, Failed, state)
	assert.Equal(t, "boom", sess.FailureReason())
	assert.False(t, store.Exists(rendezvous.Control, protocol.ErrorFile), "error file is owned by the reader and deleted on consume")
}
