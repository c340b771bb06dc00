package dnn

import (
	"slices"

	"github.com/born-ml/dnnconv/internal/parallel"
)

// conversion copies a tensor between two layouts of the same logical shape.
type conversion struct {
	primitiveBase
	from, to *Layout
	engine   *Engine
}

// CreateConversion creates a primitive that rearranges a buffer in layout from
// into a buffer in layout to. Both must describe the same logical sizes.
func (e *Engine) CreateConversion(from, to *Layout) (Primitive, error) {
	const op = "ConversionCreate"
	if from == nil || to == nil {
		return nil, statusErrorf(op, StatusIncorrectInput, "nil layout")
	}
	if !slices.Equal(from.sizes, to.sizes) {
		return nil, statusErrorf(op, StatusIncorrectInput, "logical sizes differ: %v vs %v", from.sizes, to.sizes)
	}

	c := &conversion{from: from, to: to, engine: e}
	c.kind = KindConversion
	c.layouts[ResourceFrom] = from
	c.layouts[ResourceTo] = to

	e.logger.Debug("dnn.conversion.created", "from", from.String(), "to", to.String())
	return c, nil
}

// Execute copies every logical element from ResourceFrom to ResourceTo.
// Padding of the destination is zeroed.
func (c *conversion) Execute(res *Resources) error {
	if err := c.check("Execute", res); err != nil {
		return err
	}
	src, dst := res[ResourceFrom], res[ResourceTo]
	if c.to.MemorySize() != c.to.NumElements() {
		clear(dst[:c.to.MemorySize()])
	}

	ft, tt := c.from.table, c.to.table
	last := len(c.from.sizes) - 1
	outer := c.from.sizes[last]

	// Split on the outermost logical dimension, then walk the rest.
	inner := c.from.sizes[:last]
	parallel.For(outer, func(o int) {
		fBase, tBase := ft[last][o], tt[last][o]
		if len(inner) == 0 {
			dst[tBase] = src[fBase]
			return
		}
		idx := make([]int, len(inner))
		count := 1
		for _, s := range inner {
			count *= s
		}
		for k := 0; k < count; k++ {
			fo, to := fBase, tBase
			for d, i := range idx {
				fo += ft[d][i]
				to += tt[d][i]
			}
			dst[to] = src[fo]
			for d := range idx {
				idx[d]++
				if idx[d] < inner[d] {
					break
				}
				idx[d] = 0
			}
		}
	}, c.engine.par)
	return nil
}

