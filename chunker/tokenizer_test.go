package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	text := "alpha beta gamma delta epsilon"

	assert.Equal(t, text, Truncate(wordTokenizer, text, 10))
	assert.Equal(t, "alpha beta gamma", trimmed(Truncate(wordTokenizer, text, 3)))
	assert.Equal(t, "", Truncate(wordTokenizer, text, 0))
	assert.LessOrEqual(t, wordTokenizer.Count(Truncate(wordTokenizer, text, 2)), 2)

	raw := "alpha \xff gamma delta"
	assert.Equal(t, "alpha \xff", trimmed(Truncate(wordTokenizer, raw, 2)))
}

func trimmed(s string) string {
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

func TestTiktokenTokenizer(t *testing.T) {
	tok, err := NewTiktokenTokenizer(DefaultEncoding)
	if err != nil {
		t.Skipf("tiktoken encoding unavailable: %v", err)
	}
	assert.Equal(t, 0, tok.Count(""))
	assert.Positive(t, tok.Count("hello world"))
	assert.Equal(t, tok.Count("the same text"), tok.Count("the same text"))
}
