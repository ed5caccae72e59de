package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tiktoken encoding used when no tokenizer is supplied.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens. Implementations must be deterministic and safe for
// concurrent use.
type Tokenizer interface {
	Count(text string) int
}

// TiktokenTokenizer counts BPE tokens with a fixed tiktoken encoding.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named encoding, e.g. "cl100k_base".
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// TokenizerFunc adapts a function to the Tokenizer interface.
type TokenizerFunc func(text string) int

func (f TokenizerFunc) Count(text string) int { return f(text) }

// Truncate returns the longest prefix of text, cut on a rune boundary, that
// tokenizer counts as at most limit tokens.
func Truncate(tokenizer Tokenizer, text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if tokenizer.Count(text) <= limit {
		return text
	}
	// Byte offsets of every rune boundary, so the prefix keeps the original bytes.
	cuts := make([]int, 0, len(text)+1)
	for i := range text {
		cuts = append(cuts, i)
	}
	cuts = append(cuts, len(text))
	lo, hi := 0, len(cuts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if tokenizer.Count(text[:cuts[mid]]) <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return text[:cuts[lo]]
}
