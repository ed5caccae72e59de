package routing

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/poiesic/recall/core"
)

// Weight is one parsed id__weight entry.
type Weight struct {
	ID     core.ID
	Weight float64
}

var weightPattern = regexp.MustCompile(`(\d+)__(\d+(?:\.\d+)?)`)

// ParseWeights reads a reply in the id__weight%id__weight... format. Entries may
// be separated by '%', '|' or line breaks and may be surrounded by other text.
// Entries that look like weights but don't parse are returned as malformed.
func ParseWeights(reply string) (weights []Weight, malformed []string) {
	entries := strings.FieldsFunc(reply, func(r rune) bool {
		return r == '%' || r == '|' || r == '\n' || r == ','
	})
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		matches := weightPattern.FindAllStringSubmatch(entry, -1)
		if len(matches) == 0 {
			if strings.Contains(entry, "__") {
				malformed = append(malformed, entry)
			}
			continue
		}
		for _, m := range matches {
			id, err := strconv.ParseUint(m[1], 10, 64)
			if err != nil || id == 0 {
				malformed = append(malformed, m[0])
				continue
			}
			w, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				malformed = append(malformed, m[0])
				continue
			}
			weights = append(weights, Weight{ID: core.ID(id), Weight: w})
		}
	}
	return weights, malformed
}

// FormatWeights renders weights in the reply format, mostly useful for fakes.
func FormatWeights(weights ...Weight) string {
	parts := make([]string, len(weights))
	for i, w := range weights {
		parts[i] = strconv.FormatUint(uint64(w.ID), 10) + "__" + strconv.FormatFloat(w.Weight, 'f', -1, 64)
	}
	return strings.Join(parts, "%")
}
