package inference

import (
	"strings"
	"unicode"

	"github.com/Resonant-Jones/WhisperBoard/internal/protocol"
)

// ApplyPunctuation post-processes inference output text according to the
// active punctuation mode: auto passes the model's own punctuation
// through unchanged, none strips punctuation characters entirely, and
// sentence strips then re-applies sentence-initial capitalization.
func ApplyPunctuation(text string, mode protocol.PunctuationMode) string {
	switch mode {
	case protocol.PunctuationNone:
		return stripPunctuation(text)
	case protocol.PunctuationSentence:
		return capitalizeSentenceInitial(stripPunctuation(text))
	case protocol.PunctuationAuto:
		fallthrough
	default:
		return text
	}
}

func stripPunctuation(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	return collapseSpaces(b.String())
}

func collapseSpaces(text string) string {
	fields := strings.Fields(text)
	return strings.Join(fields, " ")
}

func capitalizeSentenceInitial(text string) string {
	if text == "" {
		return text
	}
	runes := []rune(text)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
