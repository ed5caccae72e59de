package routing

import (
	"fmt"
	"strings"

	"github.com/poiesic/recall/core"
)

const rankSystemPrompt = `You decide which memory stores are relevant to a request.

You will receive a request and a list of stores, one per line, formatted as:
id | title | description | tags

Give every store a relevance weight from 0 (unrelated) to 100 (exactly on topic).
Reply with nothing but the weights in this format, highest first:
id__weight%id__weight%id__weight

Example reply: 12__85%7__40%3__0`

// StoreListing is a candidate store as shown to the model.
type StoreListing struct {
	Store *core.MemoryStore
	Tags  []string
}

func (l *StoreListing) render() string {
	return fmt.Sprintf("%d | %s | %s | %s",
		l.Store.Id,
		oneLine(l.Store.Title),
		oneLine(l.Store.Description),
		strings.Join(l.Tags, ", "))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func rankUserPrompt(query string, batch []*StoreListing) string {
	var b strings.Builder
	b.WriteString("Request:\n")
	b.WriteString(query)
	b.WriteString("\n\nStores:\n")
	for _, l := range batch {
		b.WriteString(l.render())
		b.WriteByte('\n')
	}
	return b.String()
}

func memoryQuery(m *core.Memory) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{m.Title, m.Description, m.Content} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return core.Truncate(strings.Join(parts, "\n"), core.MaxContentLength)
}
