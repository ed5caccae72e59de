package memory

import (
	"fmt"
	"strings"

	"github.com/poiesic/recall/core"
)

const describeMemoryPrompt = `You write one-sentence descriptions of notes for a search index.

Given a note's title and content, reply with a single plain sentence describing what
the note is about. Do not use quotes or markdown.`

const nameStorePrompt = `You name a new collection of notes that will start with the note below.

Return a JSON object with:
- "title": a short title for the collection (at most eight words)
- "description": one sentence describing what the collection will hold
Return only the JSON.`

const relevancePrompt = `You judge how relevant notes are to a search request.

You will receive a request and a list of notes, one per line, formatted as:
id | title | description

Give every note a relevance weight from 0 (unrelated) to 100 (answers the request).
Reply with nothing but the weights in this format:
id__weight%id__weight%id__weight`

const rerankPrompt = `You reorder search results by how well they answer a request.

You will receive a request and a list of results, one per line, formatted as:
id | title | description

Give every result a relevance weight from 0 to 100.
Reply with nothing but the weights in this format:
id__weight%id__weight%id__weight`

type storeName struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func describeMemoryUserPrompt(m *core.Memory) string {
	var b strings.Builder
	if m.Title != "" {
		b.WriteString("Title: ")
		b.WriteString(m.Title)
		b.WriteString("\n\n")
	}
	b.WriteString("Content:\n")
	b.WriteString(m.Content)
	return b.String()
}

func nameStoreUserPrompt(m *core.Memory) string {
	return fmt.Sprintf("Title: %s\nDescription: %s\n\nContent:\n%s", m.Title, m.Description, m.Content)
}

// listMemories renders memories for relevance and rerank prompts.
func listMemories(query string, memories []*core.Memory) string {
	var b strings.Builder
	b.WriteString("Request:\n")
	b.WriteString(query)
	b.WriteString("\n\nNotes:\n")
	for _, m := range memories {
		b.WriteString(memoryLine(m))
	}
	return b.String()
}

func memoryLine(m *core.Memory) string {
	return fmt.Sprintf("%d | %s | %s\n", m.Id, oneLine(m.Title), oneLine(m.Description))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
