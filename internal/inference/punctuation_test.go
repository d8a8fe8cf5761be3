package inference

import (
	"testing"

	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func TestApplyPunctuationAuto(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hello, world.", ApplyPunctuation("hello, world.", protocol.PunctuationAuto))
}

func TestApplyPunctuationNone(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hello world", ApplyPunctuation("hello, world.", protocol.PunctuationNone))
}

func TestApplyPunctuationSentence(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Hello world", ApplyPunctuation("hello, world.", protocol.PunctuationSentence))
}

func TestApplyPunctuationEmptyString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", ApplyPunctuation("", protocol.PunctuationSentence))
}
