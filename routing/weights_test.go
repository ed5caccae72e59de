package routing

import (
	"testing"

	"github.com/poiesic/recall/core"
	"github.com/stretchr/testify/assert"
)

func TestParseWeights(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		want      []Weight
		malformed int
	}{
		{
			name:  "canonical",
			reply: "12__85%7__40%3__0",
			want:  []Weight{{12, 85}, {7, 40}, {3, 0}},
		},
		{
			name:  "trailing percent and pipes",
			reply: "12__85% | 7__40%",
			want:  []Weight{{12, 85}, {7, 40}},
		},
		{
			name:  "surrounding noise",
			reply: "Sure! Here are the 2 weights:\n12__85.5%7__40\nHope that helps.",
			want:  []Weight{{12, 85.5}, {7, 40}},
		},
		{
			name:      "malformed entries dropped",
			reply:     "12__85%seven__40%9__%4__12",
			want:      []Weight{{12, 85}, {4, 12}},
			malformed: 2,
		},
		{
			name:      "zero id rejected",
			reply:     "0__50%5__10",
			want:      []Weight{{5, 10}},
			malformed: 1,
		},
		{
			name:  "empty",
			reply: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, malformed := ParseWeights(tt.reply)
			assert.Equal(t, tt.want, got)
			assert.Len(t, malformed, tt.malformed)
		})
	}
}

func TestFormatWeights(t *testing.T) {
	s := FormatWeights(Weight{ID: 4, Weight: 90}, Weight{ID: core.ID(11), Weight: 12.5})
	assert.Equal(t, "4__90%11__12.5", s)

	parsed, malformed := ParseWeights(s)
	assert.Empty(t, malformed)
	assert.Equal(t, []Weight{{4, 90}, {11, 12.5}}, parsed)
}
