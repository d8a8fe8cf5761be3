// Package whispercpp adapts github.com/ggerganov/whisper.cpp/bindings/go
// to the inference.Primitive/inference.Context contract.
package whispercpp

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/Resonant-Jones/WhisperBoard/internal/cpuspec"
	"github.com/Resonant-Jones/WhisperBoard/internal/inference"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Provider loads a whisper.cpp model file and produces Context handles
// backed by it. Load is intended to be called exactly once, at Consumer
// startup.
type Provider struct{}

var _ inference.Primitive = Provider{}

// Load loads the model at path and wraps it in a single reusable Context.
// useGPU and threads are passed through to whisper.cpp where its bindings
// expose the corresponding controls; unsupported combinations degrade to
// CPU execution rather than failing.
func (Provider) Load(path string, useGPU bool, threads int) (inference.Context, error) {
	if path == "" {
		return nil, errors.New("whispercpp: model path must not be empty")
	}
	model, err := whisperlib.New(path)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: load model %q: %w", path, err)
	}

	wctx, err := model.NewContext()
	if err != nil {
		model.Close()
		return nil, fmt.Errorf("whispercpp: create context: %w", err)
	}
	wctx.SetThreads(determineThreadCount(threads))

	return &context{model: model, wctx: wctx}, nil
}

// determineThreadCount picks a thread count bounded by the host's CPU
// count. 0 or over-budget configured values fall back to the host's
// performance-core count where detectable (hybrid Intel/Apple Silicon
// parts benefit from pinning inference to P-cores), or runtime.NumCPU()
// otherwise.
func determineThreadCount(configured int) int {
	available := runtime.NumCPU()
	if configured > 0 && configured <= available {
		return configured
	}
	if optimal := cpuspec.GetCPUSpec().GetOptimalThreadCount(); optimal > 0 && optimal <= available {
		return optimal
	}
	return available
}

// context wraps one whisper.cpp model + context pair. Infer is not
// reentrant; the Orchestrator's single worker goroutine is the only
// caller.
type context struct {
	mu       sync.Mutex
	model    whisperlib.Model
	wctx     whisperlib.Context
	segments []segment
}

type segment struct {
	text   string
	tokens []string
}

func (c *context) Infer(samples []float32, params inference.Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if params.Language != "" {
		if err := c.wctx.SetLanguage(params.Language); err != nil {
			return fmt.Errorf("whispercpp: set language %q: %w", params.Language, err)
		}
	}

	if err := c.wctx.Process(samples, nil, nil, nil); err != nil {
		return fmt.Errorf("whispercpp: process: %w", err)
	}

	c.segments = c.segments[:0]
	for {
		seg, err := c.wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("whispercpp: read segment: %w", err)
		}
		c.segments = append(c.segments, toSegment(seg))
	}
	return nil
}

// toSegment extracts text and per-token strings from a whisper.cpp
// segment, falling back to a single whole-segment token if the binding
// reports no token detail.
func toSegment(seg whisperlib.Segment) segment {
	text := strings.TrimSpace(seg.Text)
	tokens := make([]string, 0, len(seg.Tokens))
	for _, tok := range seg.Tokens {
		t := strings.TrimSpace(tok.Text)
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 && text != "" {
		tokens = []string{text}
	}
	return segment{text: text, tokens: tokens}
}

func (c *context) NSegments() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.segments)
}

func (c *context) SegmentText(i int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.segments) {
		return ""
	}
	return c.segments[i].text
}

func (c *context) NTokens(i int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.segments) {
		return 0
	}
	return len(c.segments[i].tokens)
}

func (c *context) TokenText(i, j int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.segments) {
		return ""
	}
	toks := c.segments[i].tokens
	if j < 0 || j >= len(toks) {
		return ""
	}
	return toks[j]
}

func (c *context) Free() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.model != nil {
		c.model.Close()
		c.model = nil
	}
}
