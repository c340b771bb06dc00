package dnn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayout_Plain(t *testing.T) {
	// {W, H, C, N} = {4, 3, 2, 1}, NCHW strides.
	l, err := NewLayout([]int{4, 3, 2, 1}, []int{1, 4, 12, 24})
	require.NoError(t, err)

	assert.Equal(t, 4, l.Dimension())
	assert.Equal(t, []int{4, 3, 2, 1}, l.Sizes())
	assert.Equal(t, 24, l.MemorySize())
	assert.Equal(t, 24, l.NumElements())
	assert.Equal(t, "plain", l.Format())
	assert.Equal(t, 1*1+2*4+1*12, l.Offset(1, 2, 1, 0))
}

func TestNewLayout_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		sizes   []int
		strides []int
	}{
		{"empty", nil, nil},
		{"too many dims", make([]int, MaxDimension+1), make([]int, MaxDimension+1)},
		{"stride count", []int{2, 2}, []int{1}},
		{"zero size", []int{0, 2}, []int{1, 1}},
		{"zero stride", []int{2, 2}, []int{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayout(tt.sizes, tt.strides)
			require.Error(t, err)
			assert.Equal(t, StatusIncorrectInput, StatusOf(err))
		})
	}
}

func TestDataLayout_BlockedPadsChannels(t *testing.T) {
	// 3 channels blocked by 8 pad to 8.
	l := dataLayout([]int{2, 2, 3, 1}, 8)

	assert.Equal(t, "nChw8c", l.Format())
	assert.Equal(t, 2*2*8, l.MemorySize())
	assert.Equal(t, 12, l.NumElements())
	assert.Contains(t, l.String(), "padded to 32")

	// Channel is innermost: (w=1, h=0, c=2) sits at w*8 + c.
	assert.Equal(t, 1*8+2, l.Offset(1, 0, 2, 0))
}

func TestDataLayout_BlockedOffsetsAreUnique(t *testing.T) {
	l := dataLayout([]int{3, 2, 11, 2}, 4)
	seen := make(map[int]bool)

	l.forEach(func(idx []int) {
		off := l.Offset(idx...)
		assert.False(t, seen[off], "offset %d reused at %v", off, idx)
		assert.Less(t, off, l.MemorySize())
		seen[off] = true
	})
	assert.Len(t, seen, l.NumElements())
}

func TestLayoutCompare(t *testing.T) {
	sizes := []int{5, 4, 3, 2}
	user, err := NewLayout(sizes, []int{1, 5, 20, 60})
	require.NoError(t, err)

	assert.True(t, user.Compare(user))
	assert.True(t, user.Compare(dataLayout(sizes, 1)), "block 1 must equal the plain layout")
	assert.True(t, user.Compare(plainLayout(sizes)))
	assert.False(t, user.Compare(dataLayout(sizes, 8)))
	assert.False(t, user.Compare(nil))

	other, err := NewLayout([]int{5, 4, 3, 3}, []int{1, 5, 20, 60})
	require.NoError(t, err)
	assert.False(t, user.Compare(other))
}

func TestFilterLayout_ForwardAndBackwardDiffer(t *testing.T) {
	sizes := []int{3, 3, 4, 8, 2}

	fwd := filterLayout(sizes, 8, true)
	bwd := filterLayout(sizes, 8, false)

	assert.Equal(t, "gOIhw8i8o", fwd.Format())
	assert.Equal(t, "gOIhw8o8i", bwd.Format())
	assert.False(t, fwd.Compare(bwd))
	assert.Equal(t, fwd.MemorySize(), bwd.MemorySize())

	// Output channel innermost in the forward layout.
	assert.Equal(t, 1, fwd.Offset(0, 0, 0, 1, 0))
	assert.Equal(t, 8, fwd.Offset(0, 0, 1, 0, 0))
	// Input channel innermost in the backward layout.
	assert.Equal(t, 1, bwd.Offset(0, 0, 1, 0, 0))
}

func TestFilterLayout_BlockOneIsPlain(t *testing.T) {
	sizes := []int{3, 3, 4, 6}
	user, err := NewLayout(sizes, []int{1, 3, 9, 36})
	require.NoError(t, err)

	assert.True(t, user.Compare(filterLayout(sizes, 1, true)))
	assert.True(t, user.Compare(filterLayout(sizes, 1, false)))
}
