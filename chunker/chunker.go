// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chunker

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/recall/core"
)

const (
	// DefaultImageTokens is the token penalty charged for each image on a page.
	DefaultImageTokens = 512

	pageSeparator = "\n\n"
)

// Page is one page of a paginated document.
type Page struct {
	Number int // 1-based; zero means "position in the document"
	Text   string
	Images int
}

// Document is a page-ordered source document.
type Document struct {
	Source string
	Pages  []Page
}

// Body returns the document text: pages joined by a blank line.
func (d Document) Body() string {
	texts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, pageSeparator)
}

// unit is the smallest indivisible piece of a document: a page or a sentence.
// text carries its own trailing separator so units concatenate to the body.
type unit struct {
	text   string
	page   int
	tokens int
}

// Chunker splits documents into token-bounded, overlapping references.
// A Chunker is stateless after construction and safe for concurrent use.
type Chunker struct {
	tokenizer   Tokenizer
	imageTokens int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithTokenizer replaces the default tiktoken tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Chunker) error {
		if t == nil {
			return fmt.Errorf("tokenizer cannot be nil")
		}
		c.tokenizer = t
		return nil
	}
}

// WithImageTokens sets the per-image token penalty.
func WithImageTokens(n int) Option {
	return func(c *Chunker) error {
		if n < 0 {
			return fmt.Errorf("%w: image tokens must not be negative", ErrInvalidBounds)
		}
		c.imageTokens = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// New creates a Chunker. Without WithTokenizer it loads the cl100k_base encoding.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		imageTokens: DefaultImageTokens,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.tokenizer == nil {
		t, err := NewTiktokenTokenizer(DefaultEncoding)
		if err != nil {
			return nil, err
		}
		c.tokenizer = t
	}
	c.logger = c.logger.With("component", "chunker")
	return c, nil
}

// Tokenizer returns the tokenizer used for all counts.
func (c *Chunker) Tokenizer() Tokenizer {
	return c.tokenizer
}

func validateBounds(minTokens, maxTokens, overlapTokens int) error {
	switch {
	case minTokens <= 0:
		return fmt.Errorf("%w: minTokens must be positive, got %d", ErrInvalidBounds, minTokens)
	case maxTokens < minTokens:
		return fmt.Errorf("%w: maxTokens %d is below minTokens %d", ErrInvalidBounds, maxTokens, minTokens)
	case overlapTokens < 0:
		return fmt.Errorf("%w: overlapTokens must not be negative, got %d", ErrInvalidBounds, overlapTokens)
	}
	return nil
}

// ChunkPages splits a paginated document on page boundaries. Each page costs its
// text tokens plus the image penalty for every image on it.
func (c *Chunker) ChunkPages(doc Document, minTokens, maxTokens, overlapTokens int) ([]*core.IngestionReference, error) {
	if err := validateBounds(minTokens, maxTokens, overlapTokens); err != nil {
		return nil, err
	}

	units := make([]unit, 0, len(doc.Pages))
	empty := true
	for i, p := range doc.Pages {
		number := p.Number
		if number == 0 {
			number = i + 1
		}
		text := p.Text
		if i < len(doc.Pages)-1 {
			text += pageSeparator
		}
		if p.Text != "" || p.Images > 0 {
			empty = false
		}
		units = append(units, unit{
			text:   text,
			page:   number,
			tokens: c.tokenizer.Count(p.Text) + p.Images*c.imageTokens,
		})
	}
	if empty {
		return nil, ErrEmptyDocument
	}
	return c.chunk(doc.Source, units, minTokens, maxTokens, overlapTokens), nil
}

// ChunkText splits flat text on sentence boundaries. References from flat text
// carry no page range.
func (c *Chunker) ChunkText(source, text string, minTokens, maxTokens, overlapTokens int) ([]*core.IngestionReference, error) {
	if err := validateBounds(minTokens, maxTokens, overlapTokens); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyDocument
	}

	sentences := SplitSentences(text)
	units := make([]unit, len(sentences))
	for i, s := range sentences {
		units[i] = unit{text: s, tokens: c.tokenizer.Count(s)}
	}
	return c.chunk(source, units, minTokens, maxTokens, overlapTokens), nil
}

// chunk walks units accumulating tokens and cuts once the running count has
// reached minTokens and the next unit would push it past maxTokens. Whatever is
// left after the last cut is always emitted.
func (c *Chunker) chunk(source string, units []unit, minTokens, maxTokens, overlapTokens int) []*core.IngestionReference {
	var refs []*core.IngestionReference
	start, acc, offset := 0, 0, 0
	for i, u := range units {
		if i > start && acc >= minTokens && acc+u.tokens > maxTokens {
			ref := c.build(source, units, start, i, offset, overlapTokens)
			refs = append(refs, ref)
			offset += ref.BaseLength
			start, acc = i, 0
		}
		acc += u.tokens
	}
	refs = append(refs, c.build(source, units, start, len(units), offset, overlapTokens))

	c.logger.Debug("chunked document",
		"source", source,
		"units", len(units),
		"chunks", len(refs),
		"min_tokens", minTokens,
		"max_tokens", maxTokens,
		"overlap_tokens", overlapTokens)
	return refs
}

// build assembles the reference for units[start:end]. Overlap is taken in whole
// units: backwards from start and forwards from end until overlapTokens is met or
// the document edge is reached. offset is the byte position of units[start] in
// the document body.
func (c *Chunker) build(source string, units []unit, start, end, offset, overlapTokens int) *core.IngestionReference {
	before := start
	for got := 0; before > 0 && got < overlapTokens; {
		before--
		got += units[before].tokens
	}
	after := end
	for got := 0; after < len(units) && got < overlapTokens; after++ {
		got += units[after].tokens
	}

	var b strings.Builder
	for _, u := range units[before:start] {
		b.WriteString(u.text)
	}
	baseOffset := b.Len()
	for _, u := range units[start:end] {
		b.WriteString(u.text)
	}
	baseLength := b.Len() - baseOffset
	for _, u := range units[end:after] {
		b.WriteString(u.text)
	}
	content := b.String()

	return &core.IngestionReference{
		Id:         core.IDFromContent(fmt.Sprintf("%s\x00%d\x00%s", source, offset, content)),
		Source:     source,
		Content:    content,
		StartPage:  units[before].page,
		EndPage:    units[after-1].page,
		BaseOffset: baseOffset,
		BaseLength: baseLength,
		CreatedAt:  c.now().UTC(),
	}
}
