package chromem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalizeVector(t *testing.T) {
	cases := map[string][]float32{
		"already unit": {0, 1, 0},
		"pythagorean":  {3, 4},
		"mixed signs":  {-2, 5, 0.5},
		"tiny":         {1e-4, 2e-4, 3e-4},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			out := NormalizeVector(in)
			assert.Len(t, out, len(in))
			assert.InDelta(t, 1.0, magnitude(out), 1e-5)
			scale := magnitude(in)
			for i := range in {
				assert.InDelta(t, float64(in[i])/scale, float64(out[i]), 1e-5)
			}
		})
	}

	assert.Equal(t, []float32{0.6, 0.8}, roundAll(NormalizeVector([]float32{3, 4})))
}

func roundAll(v []float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(math.Round(float64(x)*1000) / 1000)
	}
	return out
}

func TestNormalizeVectorDegenerate(t *testing.T) {
	assert.Empty(t, NormalizeVector(nil))
	assert.Equal(t, []float32{0, 0, 0}, NormalizeVector([]float32{0, 0, 0}))
	assert.True(t, isZero([]float32{0, 0}))
	assert.False(t, isZero([]float32{0, 1e-9}))
}
