package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/recall/core"
)

const summarizeSystemPrompt = `You extract the distinct facts and topics from an excerpt of a document.

Return a JSON array. Each element is an object with two string fields:
- "identifier": a short, specific name for the topic (at most eight words)
- "summary": a self-contained summary of what the excerpt says about it

Return an empty array if the excerpt contains nothing worth remembering.
Return only the JSON.`

const describeSystemPrompt = `You write one-sentence descriptions of notes for a search index.

Given a note's identifier and summary, reply with a single plain sentence describing
what the note is about. Do not use quotes or markdown.`

const storeSystemPrompt = `You name collections of notes.

Given descriptions of every note in a collection, return a JSON object with:
- "title": a short title for the collection (at most eight words)
- "description": one or two sentences describing what the collection covers
Return only the JSON.`

type summaryItem struct {
	Identifier string `json:"identifier"`
	Summary    string `json:"summary"`
}

type storeSummary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func summarizeUserPrompt(source string, ref *core.IngestionReference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s\n", source)
	if ref.StartPage > 0 {
		fmt.Fprintf(&b, "Pages: %d-%d\n", ref.StartPage, ref.EndPage)
	}
	b.WriteString("\nExcerpt:\n")
	b.WriteString(ref.Content)
	return b.String()
}

func describeUserPrompt(identifier, summary string) string {
	return "Identifier: " + identifier + "\n\nSummary:\n" + summary
}

// parseSummaries accepts either a bare array or an object wrapping one,
// which JSON-mode models sometimes produce. Elements that don't decode are
// skipped and reported in dropped; the rest are still returned.
func parseSummaries(raw json.RawMessage) (items []summaryItem, dropped []error, err error) {
	elements, ok := summaryElements(raw)
	if !ok {
		var single summaryItem
		if err := json.Unmarshal(raw, &single); err == nil && single.Identifier != "" {
			return []summaryItem{single}, nil, nil
		}
		return nil, nil, fmt.Errorf("no summary array in reply")
	}
	items = make([]summaryItem, 0, len(elements))
	for i, e := range elements {
		var item summaryItem
		if err := json.Unmarshal(e, &item); err != nil {
			dropped = append(dropped, fmt.Errorf("summary %d: %w", i, err))
			continue
		}
		items = append(items, item)
	}
	return items, dropped, nil
}

func summaryElements(raw json.RawMessage) ([]json.RawMessage, bool) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err == nil {
		return elements, true
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, false
	}
	for _, v := range wrapped {
		if err := json.Unmarshal(v, &elements); err == nil {
			return elements, true
		}
	}
	return nil, false
}
