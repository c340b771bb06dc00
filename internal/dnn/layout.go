package dnn

import (
	"fmt"
	"slices"
	"strings"
)

// MaxDimension is the largest tensor rank a layout can describe.
const MaxDimension = 8

// part is one physical axis of a layout. A logical dimension maps to one part
// when it is not blocked and to two (outer, inner) when it is.
type part struct {
	dim    int  // Logical dimension
	block  int  // Block size of the logical dimension (1 if unblocked)
	inner  bool // idx % block when true, idx / block otherwise
	extent int  // Values this part takes
	stride int  // Elements between consecutive values
}

func (p part) component(idx int) int {
	if p.inner {
		return idx % p.block
	}
	return idx / p.block
}

// Layout describes how the elements of a tensor are arranged in memory.
//
// Logical sizes are listed innermost first: {W, H, C, N} for activations,
// {KW, KH, IC/G, OC/G, G} for grouped filters. A layout is immutable.
type Layout struct {
	sizes  []int
	parts  []part
	format string
	size   int     // Elements, including padding
	table  [][]int // table[d][i] is the offset contribution of index i in dim d
}

// NewLayout creates a plain strided layout, as the framework stores tensors.
func NewLayout(sizes, strides []int) (*Layout, error) {
	const op = "LayoutCreate"
	if len(sizes) == 0 || len(sizes) > MaxDimension {
		return nil, statusErrorf(op, StatusIncorrectInput, "dimension %d out of range [1, %d]", len(sizes), MaxDimension)
	}
	if len(strides) != len(sizes) {
		return nil, statusErrorf(op, StatusIncorrectInput, "%d sizes but %d strides", len(sizes), len(strides))
	}

	parts := make([]part, len(sizes))
	size := 1
	for d := range sizes {
		if sizes[d] <= 0 {
			return nil, statusErrorf(op, StatusIncorrectInput, "size[%d] = %d must be positive", d, sizes[d])
		}
		if strides[d] <= 0 {
			return nil, statusErrorf(op, StatusIncorrectInput, "stride[%d] = %d must be positive", d, strides[d])
		}
		parts[d] = part{dim: d, block: 1, extent: sizes[d], stride: strides[d]}
		size += (sizes[d] - 1) * strides[d]
	}

	return newLayout(sizes, parts, "plain", size), nil
}

// axis names one physical axis when building a dense blocked layout.
type axis struct {
	dim   int
	inner bool
}

// newBlockedLayout builds a dense layout from an innermost-first axis order.
// Dimensions missing from blocks are unblocked; their inner axis is dropped.
func newBlockedLayout(sizes []int, order []axis, blocks map[int]int, format string) *Layout {
	parts := make([]part, 0, len(order))
	stride := 1
	for _, a := range order {
		b := 1
		if blocks != nil && blocks[a.dim] > 1 {
			b = blocks[a.dim]
		}
		p := part{dim: a.dim, block: b, inner: a.inner}
		switch {
		case a.inner && b == 1:
			continue
		case a.inner:
			p.extent = b
		default:
			p.extent = (sizes[a.dim] + b - 1) / b
		}
		p.stride = stride
		stride *= p.extent
		parts = append(parts, p)
	}
	return newLayout(sizes, parts, format, stride)
}

func newLayout(sizes []int, parts []part, format string, size int) *Layout {
	l := &Layout{
		sizes:  slices.Clone(sizes),
		parts:  parts,
		format: format,
		size:   size,
		table:  make([][]int, len(sizes)),
	}
	for d, n := range sizes {
		l.table[d] = make([]int, n)
	}
	for _, p := range parts {
		t := l.table[p.dim]
		for i := range t {
			t[i] += p.component(i) * p.stride
		}
	}
	return l
}

// Dimension returns the number of logical dimensions.
func (l *Layout) Dimension() int {
	return len(l.sizes)
}

// Sizes returns a copy of the logical sizes, innermost first.
func (l *Layout) Sizes() []int {
	return slices.Clone(l.sizes)
}

// NumElements returns the number of logical elements.
func (l *Layout) NumElements() int {
	n := 1
	for _, s := range l.sizes {
		n *= s
	}
	return n
}

// MemorySize returns the number of float32 elements a buffer in this layout needs.
func (l *Layout) MemorySize() int {
	return l.size
}

// Format returns a short description such as "nChw8c" or "plain".
func (l *Layout) Format() string {
	return l.format
}

// Offset returns the buffer offset of the logical index idx (innermost first).
func (l *Layout) Offset(idx ...int) int {
	off := 0
	for d, i := range idx {
		off += l.table[d][i]
	}
	return off
}

// Compare reports whether both layouts place every element at the same offset.
func (l *Layout) Compare(other *Layout) bool {
	if l == other {
		return true
	}
	if l == nil || other == nil {
		return false
	}
	if l.size != other.size || !slices.Equal(l.sizes, other.sizes) {
		return false
	}
	for d := range l.table {
		if !slices.Equal(l.table[d], other.table[d]) {
			return false
		}
	}
	return true
}

// String describes the layout, e.g. "nChw8c[16 16 3 2]".
func (l *Layout) String() string {
	var sb strings.Builder
	sb.WriteString(l.format)
	sb.WriteString(fmt.Sprint(l.sizes))
	if l.size != l.NumElements() {
		fmt.Fprintf(&sb, " padded to %d", l.size)
	}
	return sb.String()
}

// forEach calls f with every logical index, innermost dimension fastest.
func (l *Layout) forEach(f func(idx []int)) {
	idx := make([]int, len(l.sizes))
	total := l.NumElements()
	for k := 0; k < total; k++ {
		f(idx)
		for d := range idx {
			idx[d]++
			if idx[d] < l.sizes[d] {
				break
			}
			idx[d] = 0
		}
	}
}

// dataLayout is the internal activation layout: channels blocked innermost
// (nChw{b}c). sizes are {W, H, C, N}.
func dataLayout(sizes []int, block int) *Layout {
	order := []axis{{2, true}, {0, false}, {1, false}, {2, false}, {3, false}}
	return newBlockedLayout(sizes, order, map[int]int{2: block}, fmt.Sprintf("nChw%dc", block))
}

// filterLayout is an internal filter layout with both channel dims blocked.
// outputInnermost selects {b}i{b}o (forward) over {b}o{b}i (backward).
// sizes are {KW, KH, IC, OC} or {KW, KH, IC, OC, G}.
func filterLayout(sizes []int, block int, outputInnermost bool) *Layout {
	var order []axis
	format := fmt.Sprintf("OIhw%do%di", block, block)
	if outputInnermost {
		order = []axis{{3, true}, {2, true}}
		format = fmt.Sprintf("OIhw%di%do", block, block)
	} else {
		order = []axis{{2, true}, {3, true}}
	}
	order = append(order, axis{0, false}, axis{1, false}, axis{2, false}, axis{3, false})
	if len(sizes) == 5 {
		order = append(order, axis{4, false})
		format = "g" + format
	}
	return newBlockedLayout(sizes, order, map[int]int{2: block, 3: block}, format)
}

// plainLayout is the dense row-major (innermost first) layout of sizes.
func plainLayout(sizes []int) *Layout {
	order := make([]axis, len(sizes))
	for d := range sizes {
		order[d] = axis{dim: d}
	}
	return newBlockedLayout(sizes, order, nil, "plain")
}
