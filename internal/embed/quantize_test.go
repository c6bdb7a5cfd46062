package embed

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxSimQuantizedParity(t *testing.T) {
	query := [][]float32{{1, 0}, {0, 1}}
	doc := [][]float32{{0.9, 0.1}, {0.1, 0.9}}

	want := MaxSimFloat(query, doc)
	require.InDelta(t, 1.8, want, 1e-6)

	bytes, scale := QuantizeColbert(doc)
	require.InDelta(t, 0.9/127, scale, 1e-9)

	got := MaxSim(query, bytes, scale, 2)
	assert.InDelta(t, want, got, 1e-2)
}

func TestQuantizeColbertZeroMatrix(t *testing.T) {
	bytes, scale := QuantizeColbert([][]float32{{0, 0}, {0, 0}})
	assert.Equal(t, 1.0, scale)
	for _, b := range bytes {
		assert.Equal(t, byte(0), b)
	}
}

func TestMaxSimExcludesPaddingRows(t *testing.T) {
	query := [][]float32{{1, 0}}
	doc := [][]float32{{1, 0}, {0, 0}} // second row is padding once quantized

	bytes, scale := QuantizeColbert(doc)
	got := MaxSim(query, bytes, scale, 2)
	assert.Greater(t, got, float32(0))
}

func TestMaxSimAllPaddingYieldsZero(t *testing.T) {
	dim := 2
	bytes := make([]byte, dim*2)
	got := MaxSim([][]float32{{1, 0}}, bytes, 1.0, dim)
	assert.Equal(t, float32(0), got)
}

func TestNormalizeVector(t *testing.T) {
	v := normalizeVector([]float32{3, 4})
	mag := math.Sqrt(float64(v[0]*v[0] + v[1]*v[1]))
	assert.InDelta(t, 1.0, mag, 1e-6)
}
