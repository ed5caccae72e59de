package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/recall/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wordTokenizer = TokenizerFunc(func(text string) int {
	return len(strings.Fields(text))
})

func newTestChunker(t *testing.T, opts ...Option) *Chunker {
	t.Helper()
	c, err := New(append([]Option{WithTokenizer(wordTokenizer)}, opts...)...)
	require.NoError(t, err)
	return c
}

func words(prefix string, n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(w, " ")
}

func pagedDocument(pages, wordsPerPage int) Document {
	doc := Document{Source: "report.pdf"}
	for i := 0; i < pages; i++ {
		doc.Pages = append(doc.Pages, Page{Number: i + 1, Text: words(fmt.Sprintf("p%d_", i+1), wordsPerPage)})
	}
	return doc
}

func joinBases(refs []*core.IngestionReference) string {
	var b strings.Builder
	for _, r := range refs {
		b.WriteString(r.Base())
	}
	return b.String()
}

func TestChunkPagesTwelvePageScenario(t *testing.T) {
	c := newTestChunker(t)
	doc := pagedDocument(12, 300)

	refs, err := c.ChunkPages(doc, 900, 2100, 150)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(refs), 2)

	for _, r := range refs {
		assert.NotZero(t, r.StartPage)
		assert.NotZero(t, r.EndPage)
		assert.LessOrEqual(t, r.StartPage, r.EndPage)
		assert.Equal(t, "report.pdf", r.Source)
		assert.NotZero(t, r.Id)
	}
	assert.Equal(t, 12, refs[len(refs)-1].EndPage)
	assert.Equal(t, doc.Body(), joinBases(refs))
}

func TestChunkPagesTokenBounds(t *testing.T) {
	c := newTestChunker(t)
	doc := pagedDocument(20, 130)
	minTokens, maxTokens := 400, 700

	refs, err := c.ChunkPages(doc, minTokens, maxTokens, 100)
	require.NoError(t, err)
	require.Greater(t, len(refs), 2)

	for _, r := range refs[:len(refs)-1] {
		n := wordTokenizer.Count(r.Base())
		assert.GreaterOrEqual(t, n, minTokens)
		assert.LessOrEqual(t, n, maxTokens)
	}
	assert.Equal(t, doc.Body(), joinBases(refs))
}

func TestChunkPagesOverlap(t *testing.T) {
	c := newTestChunker(t)
	doc := pagedDocument(6, 100)

	// Cuts fall after every second page; 150 tokens of overlap needs two whole pages.
	refs, err := c.ChunkPages(doc, 200, 250, 150)
	require.NoError(t, err)
	require.Len(t, refs, 3)

	first, middle, last := refs[0], refs[1], refs[2]
	assert.Equal(t, 0, first.BaseOffset)
	assert.Equal(t, 1, first.StartPage)
	assert.Equal(t, 4, first.EndPage)

	assert.Equal(t, 1, middle.StartPage)
	assert.Equal(t, 6, middle.EndPage)
	assert.True(t, strings.HasPrefix(middle.Base(), "p3_0 "))
	assert.True(t, strings.HasPrefix(middle.Content, "p1_0 "))

	assert.Equal(t, 3, last.StartPage)
	assert.Equal(t, 6, last.EndPage)
	assert.Equal(t, len(last.Content), last.BaseOffset+last.BaseLength)
}

func TestChunkPagesNoOverlap(t *testing.T) {
	c := newTestChunker(t)
	refs, err := c.ChunkPages(pagedDocument(4, 50), 100, 100, 0)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	for _, r := range refs {
		assert.Equal(t, 0, r.BaseOffset)
		assert.Equal(t, len(r.Content), r.BaseLength)
	}
}

func TestChunkPagesSingleChunkFallback(t *testing.T) {
	c := newTestChunker(t)
	doc := pagedDocument(3, 10)

	refs, err := c.ChunkPages(doc, 900, 2100, 150)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, doc.Body(), refs[0].Content)
	assert.Equal(t, 1, refs[0].StartPage)
	assert.Equal(t, 3, refs[0].EndPage)
}

func TestChunkPagesImagePenalty(t *testing.T) {
	c := newTestChunker(t, WithImageTokens(100))
	doc := Document{Source: "slides", Pages: []Page{
		{Text: "title slide"},
		{Text: "", Images: 2},
		{Text: "closing words here"},
	}}

	refs, err := c.ChunkPages(doc, 150, 200, 0)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, 1, refs[0].StartPage)
	assert.Equal(t, 2, refs[0].EndPage)
	assert.Equal(t, 3, refs[1].StartPage)
	assert.Equal(t, doc.Body(), joinBases(refs))
}

func TestChunkTextSentences(t *testing.T) {
	c := newTestChunker(t)
	text := "One two three four. Five six seven eight! Nine ten eleven twelve? " +
		"Thirteen fourteen fifteen sixteen. Seventeen eighteen nineteen twenty."

	refs, err := c.ChunkText("notes", text, 8, 8, 4)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, text, joinBases(refs))

	assert.Equal(t, "One two three four. Five six seven eight! ", refs[0].Base())
	assert.Equal(t, "Nine ten eleven twelve? Thirteen fourteen fifteen sixteen. ", refs[1].Base())
	assert.True(t, strings.HasPrefix(refs[1].Content, "Five six seven eight! "))
	assert.True(t, strings.HasSuffix(refs[1].Content, "twenty."))
	for _, r := range refs {
		assert.Zero(t, r.StartPage)
		assert.Zero(t, r.EndPage)
	}
}

func TestChunkTextKeepsInvalidUTF8(t *testing.T) {
	c := newTestChunker(t)
	text := "Alpha beta gamma. Delta \xff epsilon zeta. Eta theta iota."

	refs, err := c.ChunkText("doc", text, 2, 4, 0)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, text, joinBases(refs))
	assert.Equal(t, "Delta \xff epsilon zeta. ", refs[1].Base())
}

func TestChunkValidation(t *testing.T) {
	c := newTestChunker(t)
	tests := []struct {
		name                 string
		minT, maxT, overlapT int
	}{
		{"zero min", 0, 10, 0},
		{"max below min", 10, 5, 0},
		{"negative overlap", 1, 5, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ChunkText("s", "some text.", tt.minT, tt.maxT, tt.overlapT)
			assert.ErrorIs(t, err, ErrInvalidBounds)
			_, err = c.ChunkPages(pagedDocument(1, 5), tt.minT, tt.maxT, tt.overlapT)
			assert.ErrorIs(t, err, ErrInvalidBounds)
		})
	}

	_, err := c.ChunkText("s", "   ", 1, 5, 0)
	assert.ErrorIs(t, err, ErrEmptyDocument)
	_, err = c.ChunkPages(Document{Pages: []Page{{Text: ""}}}, 1, 5, 0)
	assert.ErrorIs(t, err, ErrEmptyDocument)
	_, err = c.ChunkPages(Document{}, 1, 5, 0)
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestChunkIDsAreDistinct(t *testing.T) {
	c := newTestChunker(t)
	// Identical pages still produce distinct references.
	doc := Document{Source: "dup", Pages: []Page{{Text: "same words"}, {Text: "same words"}, {Text: "same words"}}}
	refs, err := c.ChunkPages(doc, 2, 2, 0)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	ids := map[core.ID]bool{}
	for _, r := range refs {
		ids[r.Id] = true
	}
	assert.Len(t, ids, 3)
}
