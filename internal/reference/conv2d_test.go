package reference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

func fill(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// TestConv2D_BasicForward tests a diagonal 2x2 kernel over a 3x3 image.
func TestConv2D_BasicForward(t *testing.T) {
	p := Params{N: 1, C: 1, H: 3, W: 3, OC: 1, KH: 2, KW: 2, StrideH: 1, StrideW: 1}

	// 1 2 3
	// 4 5 6
	// 7 8 9
	input := seq(9)
	kernel := []float32{1, 0, 0, 1}

	out := Conv2D(p, input, kernel, nil)

	// Diagonal sums of each 2x2 patch.
	assert.Equal(t, []float32{6, 8, 12, 14}, out)
}

// TestConv2D_WithPadding tests a 3x3 sum kernel with zero padding.
func TestConv2D_WithPadding(t *testing.T) {
	p := Params{N: 1, C: 1, H: 3, W: 3, OC: 1, KH: 3, KW: 3, StrideH: 1, StrideW: 1, PadH: 1, PadW: 1}

	out := Conv2D(p, fill(9, 1), fill(9, 1), nil)

	// Corners see 4 ones, edges 6, the center 9.
	assert.Equal(t, []float32{4, 6, 4, 6, 9, 6, 4, 6, 4}, out)
}

func TestConv2D_StrideAndBias(t *testing.T) {
	p := Params{N: 1, C: 1, H: 4, W: 4, OC: 2, KH: 2, KW: 2, StrideH: 2, StrideW: 2}

	oh, ow := p.OutputSize()
	require.Equal(t, 2, oh)
	require.Equal(t, 2, ow)

	kernel := append(fill(4, 1), fill(4, 0)...)
	out := Conv2D(p, seq(16), kernel, []float32{0.5, -1})

	// Channel 0: sums of 2x2 blocks plus 0.5; channel 1: bias only.
	assert.Equal(t, []float32{14.5, 22.5, 46.5, 54.5, -1, -1, -1, -1}, out)
}

// TestConv2D_GroupsMatchSeparateConvolutions checks that two groups behave as
// two independent single-group convolutions.
func TestConv2D_GroupsMatchSeparateConvolutions(t *testing.T) {
	p := Params{N: 2, C: 4, H: 5, W: 5, OC: 6, KH: 3, KW: 3, StrideH: 1, StrideW: 1, PadH: 1, PadW: 1, Groups: 2}
	input := seq(p.InputLen())
	weight := make([]float32, p.WeightLen())
	for i := range weight {
		weight[i] = float32(i%7) - 3
	}

	out := Conv2D(p, input, weight, nil)

	half := Params{N: 1, C: 2, H: 5, W: 5, OC: 3, KH: 3, KW: 3, StrideH: 1, StrideW: 1, PadH: 1, PadW: 1}
	plane := p.H * p.W
	for n := 0; n < p.N; n++ {
		for grp := 0; grp < 2; grp++ {
			in := input[(n*p.C+grp*2)*plane : (n*p.C+grp*2+2)*plane]
			w := weight[grp*half.WeightLen() : (grp+1)*half.WeightLen()]
			want := Conv2D(half, in, w, nil)
			got := out[(n*p.OC+grp*3)*plane : (n*p.OC+grp*3+3)*plane]
			assert.Equal(t, want, got, "image %d group %d", n, grp)
		}
	}
}

func TestConv2DInputBackward(t *testing.T) {
	p := Params{N: 1, C: 1, H: 3, W: 3, OC: 1, KH: 2, KW: 2, StrideH: 1, StrideW: 1}

	grad := Conv2DInputBackward(p, []float32{1, 0, 0, 1}, fill(4, 1))

	assert.Equal(t, []float32{1, 1, 0, 1, 2, 1, 0, 1, 1}, grad)
}

func TestConv2DKernelBackward(t *testing.T) {
	p := Params{N: 1, C: 1, H: 3, W: 3, OC: 1, KH: 2, KW: 2, StrideH: 1, StrideW: 1}

	grad := Conv2DKernelBackward(p, seq(9), fill(4, 1))

	assert.Equal(t, []float32{12, 16, 24, 28}, grad)
}

func TestBiasBackward(t *testing.T) {
	p := Params{N: 2, C: 1, H: 2, W: 2, OC: 2, KH: 1, KW: 1, StrideH: 1, StrideW: 1}

	grad := BiasBackward(p, seq(p.OutputLen()))

	// Channel 0: (1..4) + (9..12); channel 1: (5..8) + (13..16).
	assert.Equal(t, []float32{52, 84}, grad)
}

func TestConv2D_InvalidGeometryPanics(t *testing.T) {
	p := Params{N: 1, C: 3, H: 3, W: 3, OC: 2, KH: 3, KW: 3, StrideH: 1, StrideW: 1, Groups: 2}
	assert.Panics(t, func() { Conv2D(p, nil, nil, nil) })

	p = Params{N: 1, C: 1, H: 2, W: 2, OC: 1, KH: 3, KW: 3, StrideH: 1, StrideW: 1}
	assert.Panics(t, func() { Conv2D(p, nil, nil, nil) })
}

func TestMaxAbsDiff(t *testing.T) {
	assert.InDelta(t, 0.5, MaxAbsDiff([]float32{1, 2}, []float32{1.5, 2}), 1e-9)
	assert.True(t, math.IsInf(MaxAbsDiff([]float32{1}, nil), 1))
}
