package chunker

import (
	"unicode"
	"unicode/utf8"
)

// SplitSentences splits text after every '.', '!' or '?' that is followed by
// whitespace. The whitespace stays with the preceding sentence so the pieces
// concatenate back to text byte for byte, invalid UTF-8 included.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isTerminator(r) {
			continue
		}
		end := i
		for end < len(text) {
			next, n := utf8.DecodeRuneInString(text[end:])
			if !unicode.IsSpace(next) {
				break
			}
			end += n
		}
		if end == i {
			continue
		}
		sentences = append(sentences, text[start:end])
		start, i = end, end
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
