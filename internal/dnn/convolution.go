package dnn

import (
	"slices"
)

// Algorithm selects the convolution implementation.
type Algorithm int

// Supported algorithms.
const (
	AlgorithmConvolutionDirect Algorithm = iota
)

// Border selects how out-of-bounds input is treated.
type Border int

// Supported border modes.
const (
	BorderZeros Border = iota
)

// ConvolutionDesc describes a grouped 2-D convolution.
//
// Sizes are innermost first:
//
//	SrcSize    {W, H, C, N}
//	DstSize    {OW, OH, OC, N}
//	FilterSize {KW, KH, C/G, OC/G, G} or {KW, KH, C/G, OC}
//
// Strides is {stride_w, stride_h} and InputOffset is {-pad_w, -pad_h}.
type ConvolutionDesc struct {
	Algorithm   Algorithm
	Groups      int
	Dimension   int
	SrcSize     []int
	DstSize     []int
	FilterSize  []int
	Strides     []int
	InputOffset []int
	Border      Border
}

// geometry is the validated, flattened form of a ConvolutionDesc.
type geometry struct {
	groups     int
	n          int
	iw, ih, ic int // ic is per group
	ow, oh, oc int // oc is per group
	kw, kh     int
	sw, sh     int
	offW, offH int
	grouped    bool // 5-D filter
}

func (g geometry) channels() int    { return g.ic * g.groups }
func (g geometry) numOutput() int   { return g.oc * g.groups }
func (g geometry) srcSize() []int   { return []int{g.iw, g.ih, g.channels(), g.n} }
func (g geometry) dstSize() []int   { return []int{g.ow, g.oh, g.numOutput(), g.n} }
func (g geometry) biasSize() []int  { return []int{g.numOutput()} }
func (g geometry) filterSize() []int {
	if g.grouped {
		return []int{g.kw, g.kh, g.ic, g.oc, g.groups}
	}
	return []int{g.kw, g.kh, g.ic, g.numOutput()}
}

func validateDesc(op string, d *ConvolutionDesc) (geometry, error) {
	var g geometry
	if d == nil {
		return g, statusErrorf(op, StatusIncorrectInput, "nil descriptor")
	}
	if d.Algorithm != AlgorithmConvolutionDirect {
		return g, statusErrorf(op, StatusUnimplemented, "algorithm %d", d.Algorithm)
	}
	if d.Border != BorderZeros {
		return g, statusErrorf(op, StatusUnimplemented, "border %d", d.Border)
	}
	if d.Dimension != 4 {
		return g, statusErrorf(op, StatusIncorrectInput, "dimension %d, only 4 is supported", d.Dimension)
	}
	if d.Groups < 1 {
		return g, statusErrorf(op, StatusIncorrectInput, "groups %d must be positive", d.Groups)
	}
	if len(d.SrcSize) != 4 || len(d.DstSize) != 4 {
		return g, statusErrorf(op, StatusIncorrectInput, "src/dst sizes must have 4 dims, got %d/%d",
			len(d.SrcSize), len(d.DstSize))
	}
	if len(d.Strides) != 2 || len(d.InputOffset) != 2 {
		return g, statusErrorf(op, StatusIncorrectInput, "strides and input offset must have 2 dims")
	}
	for _, s := range append(slices.Clone(d.SrcSize), d.DstSize...) {
		if s <= 0 {
			return g, statusErrorf(op, StatusIncorrectInput, "sizes must be positive: src %v dst %v", d.SrcSize, d.DstSize)
		}
	}
	if d.Strides[0] <= 0 || d.Strides[1] <= 0 {
		return g, statusErrorf(op, StatusIncorrectInput, "strides %v must be positive", d.Strides)
	}
	if d.InputOffset[0] > 0 || d.InputOffset[1] > 0 {
		return g, statusErrorf(op, StatusIncorrectInput, "input offset %v must not be positive", d.InputOffset)
	}
	if d.SrcSize[3] != d.DstSize[3] {
		return g, statusErrorf(op, StatusIncorrectInput, "batch mismatch: src %d dst %d", d.SrcSize[3], d.DstSize[3])
	}

	c, oc := d.SrcSize[2], d.DstSize[2]
	if c%d.Groups != 0 || oc%d.Groups != 0 {
		return g, statusErrorf(op, StatusIncorrectInput, "channels %d/%d not divisible by %d groups", c, oc, d.Groups)
	}

	g = geometry{
		groups: d.Groups,
		n:      d.SrcSize[3],
		iw:     d.SrcSize[0], ih: d.SrcSize[1], ic: c / d.Groups,
		ow: d.DstSize[0], oh: d.DstSize[1], oc: oc / d.Groups,
		sw: d.Strides[0], sh: d.Strides[1],
		offW: d.InputOffset[0], offH: d.InputOffset[1],
	}

	switch len(d.FilterSize) {
	case 5:
		g.grouped = true
		if d.FilterSize[4] != d.Groups || d.FilterSize[3] != g.oc {
			return g, statusErrorf(op, StatusIncorrectInput, "filter %v does not match %d groups of %d outputs",
				d.FilterSize, d.Groups, g.oc)
		}
	case 4:
		if d.FilterSize[3] != oc {
			return g, statusErrorf(op, StatusIncorrectInput, "filter %v does not match %d outputs", d.FilterSize, oc)
		}
	default:
		return g, statusErrorf(op, StatusIncorrectInput, "filter must have 4 or 5 dims, got %d", len(d.FilterSize))
	}
	if d.FilterSize[2] != g.ic {
		return g, statusErrorf(op, StatusIncorrectInput, "filter input channels %d != %d per group", d.FilterSize[2], g.ic)
	}
	g.kw, g.kh = d.FilterSize[0], d.FilterSize[1]
	if g.kw <= 0 || g.kh <= 0 {
		return g, statusErrorf(op, StatusIncorrectInput, "kernel %dx%d must be positive", g.kw, g.kh)
	}

	wantW := (g.iw-2*g.offW-g.kw)/g.sw + 1
	wantH := (g.ih-2*g.offH-g.kh)/g.sh + 1
	if wantW != g.ow || wantH != g.oh {
		return g, statusErrorf(op, StatusIncorrectInput, "dst %dx%d inconsistent with src, expected %dx%d",
			g.ow, g.oh, wantW, wantH)
	}
	return g, nil
}

// convolution is the direct convolution primitive of every kind.
type convolution struct {
	primitiveBase
	geom   geometry
	engine *Engine
}

func (e *Engine) newConvolution(op string, kind Kind, d *ConvolutionDesc) (*convolution, error) {
	g, err := validateDesc(op, d)
	if err != nil {
		return nil, err
	}

	c := &convolution{geom: g, engine: e}
	c.kind = kind
	b := e.blockSize
	switch kind {
	case KindConvolutionForward, KindConvolutionForwardBias:
		c.layouts[ResourceSrc] = dataLayout(g.srcSize(), b)
		c.layouts[ResourceDst] = dataLayout(g.dstSize(), b)
		c.layouts[ResourceFilter] = filterLayout(g.filterSize(), b, true)
		if kind == KindConvolutionForwardBias {
			c.layouts[ResourceBias] = plainLayout(g.biasSize())
		}
	case KindConvolutionBackwardData:
		c.layouts[ResourceDiffSrc] = dataLayout(g.srcSize(), b)
		c.layouts[ResourceDiffDst] = dataLayout(g.dstSize(), b)
		c.layouts[ResourceFilter] = filterLayout(g.filterSize(), b, false)
	case KindConvolutionBackwardFilter:
		c.layouts[ResourceSrc] = dataLayout(g.srcSize(), b)
		c.layouts[ResourceDiffDst] = dataLayout(g.dstSize(), b)
		c.layouts[ResourceDiffFilter] = filterLayout(g.filterSize(), b, false)
	}

	e.logger.Debug("dnn.primitive.created", "kind", kind.String(),
		"src", g.srcSize(), "dst", g.dstSize(), "filter", g.filterSize(), "groups", g.groups)
	return c, nil
}

// CreateConvolutionForward creates a forward convolution without bias.
func (e *Engine) CreateConvolutionForward(d *ConvolutionDesc) (Primitive, error) {
	return e.newConvolution("GroupsConvolutionCreateForward", KindConvolutionForward, d)
}

// CreateConvolutionForwardBias creates a forward convolution that adds a bias.
func (e *Engine) CreateConvolutionForwardBias(d *ConvolutionDesc) (Primitive, error) {
	return e.newConvolution("GroupsConvolutionCreateForwardBias", KindConvolutionForwardBias, d)
}

// CreateConvolutionBackwardData creates the gradient-by-input primitive.
func (e *Engine) CreateConvolutionBackwardData(d *ConvolutionDesc) (Primitive, error) {
	return e.newConvolution("GroupsConvolutionCreateBackwardData", KindConvolutionBackwardData, d)
}

// CreateConvolutionBackwardFilter creates the gradient-by-filter primitive.
func (e *Engine) CreateConvolutionBackwardFilter(d *ConvolutionDesc) (Primitive, error) {
	return e.newConvolution("GroupsConvolutionCreateBackwardFilter", KindConvolutionBackwardFilter, d)
}

// CreateConvolutionBackwardBias creates the gradient-by-bias primitive.
// dstSize is {OW, OH, OC, N}.
func (e *Engine) CreateConvolutionBackwardBias(alg Algorithm, groups, dimension int, dstSize []int) (Primitive, error) {
	const op = "GroupsConvolutionCreateBackwardBias"
	if alg != AlgorithmConvolutionDirect {
		return nil, statusErrorf(op, StatusUnimplemented, "algorithm %d", alg)
	}
	if dimension != 4 || len(dstSize) != 4 {
		return nil, statusErrorf(op, StatusIncorrectInput, "dimension %d with %d dst sizes, only 4 is supported",
			dimension, len(dstSize))
	}
	if groups < 1 || dstSize[2]%groups != 0 {
		return nil, statusErrorf(op, StatusIncorrectInput, "%d outputs not divisible by %d groups", dstSize[2], groups)
	}
	for _, s := range dstSize {
		if s <= 0 {
			return nil, statusErrorf(op, StatusIncorrectInput, "dst sizes %v must be positive", dstSize)
		}
	}

	g := geometry{
		groups: groups,
		n:      dstSize[3],
		ow:     dstSize[0], oh: dstSize[1], oc: dstSize[2] / groups,
	}
	c := &convolution{geom: g, engine: e}
	c.kind = KindConvolutionBackwardBias
	c.layouts[ResourceDiffDst] = dataLayout(g.dstSize(), e.blockSize)
	c.layouts[ResourceDiffBias] = plainLayout(g.biasSize())

	e.logger.Debug("dnn.primitive.created", "kind", c.kind.String(), "dst", g.dstSize(), "groups", groups)
	return c, nil
}

// Execute runs the convolution on the bound resources.
func (c *convolution) Execute(res *Resources) error {
	const op = "Execute"
	if err := c.check(op, res); err != nil {
		return err
	}
	switch c.kind {
	case KindConvolutionForward, KindConvolutionForwardBias:
		c.forward(res)
	case KindConvolutionBackwardData:
		c.backwardData(res)
	case KindConvolutionBackwardFilter:
		c.backwardFilter(res)
	case KindConvolutionBackwardBias:
		c.backwardBias(res)
	default:
		return statusErrorf(op, StatusUnimplemented, "kind %s", c.kind)
	}
	return nil
}
