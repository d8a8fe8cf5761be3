package inference

import (
	"sync"
	"testing"
	"time"

	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContext struct {
	mu       sync.Mutex
	segments []string
	freed    bool
}

func (f *fakeContext) Infer(samples []float32, params Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = append(f.segments, "hello world")
	return nil
}

func (f *fakeContext) NSegments() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.segments)
}

func (f *fakeContext) SegmentText(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.segments[i]
}

func (f *fakeContext) NTokens(i int) int { return 2 }

func (f *fakeContext) TokenText(i, j int) string { return "tok" }

func (f *fakeContext) Free() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freed = true
}

type fakePublisher struct {
	mu       sync.Mutex
	partials []protocol.PartialTranscript
	finals   []protocol.FinalTranscript
	errors   []protocol.ErrorRecord
}

func (p *fakePublisher) PublishPartial(pt protocol.PartialTranscript) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.partials = append(p.partials, pt)
}

func (p *fakePublisher) PublishFinal(ft protocol.FinalTranscript) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finals = append(p.finals, ft)
}

func (p *fakePublisher) PublishError(er protocol.ErrorRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, er)
}

func (p *fakePublisher) countFinals() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.finals)
}

type fixedSettings struct{ s protocol.Settings }

func (f fixedSettings) Current() protocol.Settings { return f.s }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestOrchestratorPublishesFinalOnLastChunk(t *testing.T) {
	t.Parallel()

	ctx := &fakeContext{}
	pub := &fakePublisher{}
	settings := fixedSettings{s: protocol.DefaultSettings()}
	orch := New(ctx, pub, settings, nil)
	defer orch.Close()

	orch.StartSession("S1")
	orch.OnChunk([]byte{0, 0}, protocol.ChunkMetadata{SessionID: "S1", ChunkID: 0, IsLastChunk: true, Format: protocol.FormatPCM16})

	waitFor(t, func() bool { return pub.countFinals() == 1 })

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.finals, 1)
	assert.Equal(t, "S1", pub.finals[0].SessionID)
	assert.True(t, pub.finals[0].IsFinal)

	_, processing := orch.CurrentSession()
	assert.False(t, processing)
}

func TestOrchestratorDropsChunkForStaleSession(t *testing.T) {
	t.Parallel()

	ctx := &fakeContext{}
	pub := &fakePublisher{}
	settings := fixedSettings{s: protocol.DefaultSettings()}
	orch := New(ctx, pub, settings, nil)
	defer orch.Close()

	orch.StartSession("S1")
	orch.CancelSession()
	orch.OnChunk([]byte{0, 0}, protocol.ChunkMetadata{SessionID: "S1", ChunkID: 0, IsLastChunk: true, Format: protocol.FormatPCM16})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, pub.countFinals())
}

func TestOrchestratorCloseFreesContext(t *testing.T) {
	t.Parallel()

	ctx := &fakeContext{}
	pub := &fakePublisher{}
	settings := fixedSettings{s: protocol.DefaultSettings()}
	orch := New(ctx, pub, settings, nil)

	orch.Close()

	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	assert.True(t, ctx.freed)
}
