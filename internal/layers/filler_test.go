package layers

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dnnconv/internal/tensor"
)

func filled(t *testing.T, p FillerParameter, shape ...int) []float32 {
	t.Helper()
	b, err := tensor.NewBlob(shape...)
	require.NoError(t, err)
	require.NoError(t, Fill(b, p, rand.New(rand.NewSource(42))))
	v, err := b.CPUData()
	require.NoError(t, err)
	return v
}

func meanStd(v []float32) (float64, float64) {
	var sum, sq float64
	for _, x := range v {
		sum += float64(x)
	}
	mean := sum / float64(len(v))
	for _, x := range v {
		d := float64(x) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(v)))
}

func TestFill_Constant(t *testing.T) {
	v := filled(t, FillerParameter{Type: "constant", Value: 0.25}, 2, 3)
	for _, x := range v {
		assert.Equal(t, float32(0.25), x)
	}
	assert.Equal(t, make([]float32, 4), filled(t, DefaultFiller(), 4))
}

func TestFill_Uniform(t *testing.T) {
	v := filled(t, FillerParameter{Type: "uniform", Min: -2, Max: 3}, 1000)
	for _, x := range v {
		assert.GreaterOrEqual(t, x, float32(-2))
		assert.LessOrEqual(t, x, float32(3))
	}
	mean, _ := meanStd(v)
	assert.InDelta(t, 0.5, mean, 0.2)
}

func TestFill_Gaussian(t *testing.T) {
	mean, std := meanStd(filled(t, FillerParameter{Type: "gaussian", Mean: 1, Std: 0.5}, 4000))
	assert.InDelta(t, 1, mean, 0.05)
	assert.InDelta(t, 0.5, std, 0.05)
}

func TestFill_Xavier(t *testing.T) {
	// fan_in = 8*3*3 = 72, fan_out = 16*3*3 = 144.
	for norm, n := range map[VarianceNorm]float64{FanIn: 72, FanOut: 144, Average: 108} {
		scale := float32(math.Sqrt(3 / n))
		for _, x := range filled(t, FillerParameter{Type: "xavier", VarianceNorm: norm}, 16, 8, 3, 3) {
			assert.LessOrEqual(t, x, scale)
			assert.GreaterOrEqual(t, x, -scale)
		}
	}
}

func TestFill_MSRA(t *testing.T) {
	// fan_in = 16*5*5 = 400.
	mean, std := meanStd(filled(t, FillerParameter{Type: "msra"}, 32, 16, 5, 5))
	assert.InDelta(t, 0, mean, 0.01)
	assert.InDelta(t, math.Sqrt(2.0/400), std, 0.01)
}

func TestFill_Invalid(t *testing.T) {
	b, err := tensor.NewBlob(4)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(1))

	for _, p := range []FillerParameter{
		{Type: "bilinear"},
		{Type: "uniform", Min: 1, Max: 0},
		{Type: "gaussian"},
		{Type: "xavier", VarianceNorm: 7},
	} {
		assert.ErrorIs(t, Fill(b, p, rng), ErrInvalidParam, p.Type)
	}
}
