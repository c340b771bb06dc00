package layers

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"

	"github.com/born-ml/dnnconv/internal/dnn"
	"github.com/born-ml/dnnconv/internal/tensor"
)

// ErrClosed is returned by a layer used after Close.
var ErrClosed = errors.New("layer is closed")

// Option configures a ConvolutionLayer.
type Option func(*ConvolutionLayer)

// WithEngine sets the engine that creates primitives and layouts.
func WithEngine(e *dnn.Engine) Option {
	return func(l *ConvolutionLayer) {
		if e != nil {
			l.engine = e
		}
	}
}

// WithLogger sets the logger for conversion tracing.
func WithLogger(lg *slog.Logger) Option {
	return func(l *ConvolutionLayer) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithRand sets the random source used by weight fillers.
func WithRand(r *rand.Rand) Option {
	return func(l *ConvolutionLayer) {
		if r != nil {
			l.rng = r
		}
	}
}

// WithBuildDate overrides the engine build date that selects the grouped
// filter layout.
func WithBuildDate(date int) Option {
	return func(l *ConvolutionLayer) {
		l.buildDate = date
	}
}

// ConvolutionLayer is a 2-D grouped convolution executed by dnn primitives.
//
// Learnable blobs:
//
//	weights [num_output, channels/group, kernel_h, kernel_w]
//	bias    [num_output] (when bias_term)
//
// Output size per spatial axis:
//
//	out = (in + 2*pad - kernel) / stride + 1
type ConvolutionLayer struct {
	param LayerParameter
	conv  convSettings

	engine    *dnn.Engine
	logger    *slog.Logger
	rng       *rand.Rand
	buildDate int

	// Geometry the primitives were built for.
	num, channels, height, width int
	heightOut, widthOut          int

	blobs              []*tensor.Blob
	paramPropagateDown []bool

	fwd, bwdData, bwdFilter, bwdBias dnn.Primitive

	fwdBottomData, fwdTopData, fwdFilterData, fwdBiasData *MemoryDescriptor
	bwddTopDiff, bwddBottomDiff, bwddFilterData           *MemoryDescriptor
	bwdfTopDiff, bwdfBottomData, bwdfFilterDiff           *MemoryDescriptor
	bwdf2fwdFilterDiff                                    *MemoryDescriptor
	bwdbTopDiff, bwdbBiasDiff                             *MemoryDescriptor

	built  bool
	closed bool
}

// NewConvolutionLayer creates a convolution layer from param.
// Parameters are validated here; blobs are created by SetUp.
func NewConvolutionLayer(param LayerParameter, opts ...Option) (*ConvolutionLayer, error) {
	conv, err := resolve(&param.Convolution)
	if err != nil {
		return nil, fmt.Errorf("convolution %q: %w", param.Name, err)
	}
	l := &ConvolutionLayer{
		param:     param,
		conv:      conv,
		buildDate: dnn.BuildDate(),
	}
	for _, opt := range opts {
		opt(l)
	}
	switch {
	case l.engine == nil && l.logger == nil:
		l.logger = slog.Default()
		l.engine = dnn.New(dnn.WithLogger(l.logger))
	case l.engine == nil:
		l.engine = dnn.New(dnn.WithLogger(l.logger))
	case l.logger == nil:
		l.logger = l.engine.Logger()
	}
	if l.rng == nil {
		//nolint:gosec // Weight initialization, not security-critical.
		l.rng = rand.New(rand.NewSource(1))
	}
	return l, nil
}

// Name returns the layer name.
func (l *ConvolutionLayer) Name() string { return l.param.Name }

// Type returns "Convolution".
func (l *ConvolutionLayer) Type() string { return "Convolution" }

// Blobs returns the weights and, with a bias term, the bias.
func (l *ConvolutionLayer) Blobs() []*tensor.Blob { return l.blobs }

// ParamPropagateDown reports whether the gradient of learnable blob i is computed.
func (l *ConvolutionLayer) ParamPropagateDown(i int) bool {
	return i >= 0 && i < len(l.paramPropagateDown) && l.paramPropagateDown[i]
}

// SetParamPropagateDown enables or disables the gradient of learnable blob i.
func (l *ConvolutionLayer) SetParamPropagateDown(i int, v bool) {
	if i >= 0 && i < len(l.paramPropagateDown) {
		l.paramPropagateDown[i] = v
	}
}

// OutputShape returns the top shape for the current geometry.
func (l *ConvolutionLayer) OutputShape() tensor.Shape {
	return tensor.Shape{l.num, l.conv.numOutput, l.heightOut, l.widthOut}
}

// Geometry is the resolved kernel, stride, pad and group setting of a layer.
type Geometry struct {
	NumOutput        int
	KernelH, KernelW int
	StrideH, StrideW int
	PadH, PadW       int
	Group            int
	BiasTerm         bool
}

// Geometry returns the settings the layer resolved from its parameter.
func (l *ConvolutionLayer) Geometry() Geometry {
	c := l.conv
	return Geometry{
		NumOutput: c.numOutput,
		KernelH:   c.kernelH,
		KernelW:   c.kernelW,
		StrideH:   c.strideH,
		StrideW:   c.strideW,
		PadH:      c.padH,
		PadW:      c.padW,
		Group:     c.group,
		BiasTerm:  c.biasTerm,
	}
}

// Descriptors returns the memory descriptors in a fixed order. Bias
// descriptors are omitted without a bias term.
func (l *ConvolutionLayer) Descriptors() []*MemoryDescriptor {
	all := []*MemoryDescriptor{
		l.fwdBottomData, l.fwdTopData, l.fwdFilterData, l.fwdBiasData,
		l.bwddTopDiff, l.bwddBottomDiff, l.bwddFilterData,
		l.bwdfTopDiff, l.bwdfBottomData, l.bwdfFilterDiff, l.bwdf2fwdFilterDiff,
		l.bwdbTopDiff, l.bwdbBiasDiff,
	}
	return slices.DeleteFunc(all, func(d *MemoryDescriptor) bool { return d == nil })
}

// SetUp checks the bottom, creates or adopts the learnable blobs, builds the
// primitives and shapes top.
func (l *ConvolutionLayer) SetUp(bottom, top []*tensor.Blob) error {
	if l.closed {
		return ErrClosed
	}
	if err := checkCounts(l.param.Name, bottom, top); err != nil {
		return err
	}
	b := bottom[0]
	if len(b.Shape()) != 4 {
		return fmt.Errorf("%w: convolution %q wants a 4-D bottom, got %v",
			ErrInvalidParam, l.param.Name, b.Shape())
	}
	l.channels = b.Channels()
	if l.channels%l.conv.group != 0 {
		return fmt.Errorf("%w: convolution %q: %d channels not divisible by group %d",
			ErrInvalidParam, l.param.Name, l.channels, l.conv.group)
	}
	if err := l.initBlobs(); err != nil {
		return fmt.Errorf("convolution %q: %w", l.param.Name, err)
	}
	return l.Reshape(bottom, top)
}

func (l *ConvolutionLayer) weightShape() tensor.Shape {
	return tensor.Shape{l.conv.numOutput, l.channels / l.conv.group, l.conv.kernelH, l.conv.kernelW}
}

func (l *ConvolutionLayer) initBlobs() error {
	want := []tensor.Shape{l.weightShape()}
	if l.conv.biasTerm {
		want = append(want, tensor.Shape{l.conv.numOutput})
	}

	if len(l.param.Blobs) > 0 {
		if len(l.param.Blobs) != len(want) {
			return fmt.Errorf("%w: %d pretrained blobs, want %d", ErrInvalidParam, len(l.param.Blobs), len(want))
		}
		for i, b := range l.param.Blobs {
			if !b.Shape().Equal(want[i]) {
				return fmt.Errorf("%w: pretrained blob %d has shape %v, want %v",
					tensor.ErrShapeMismatch, i, b.Shape(), want[i])
			}
		}
		l.blobs = slices.Clone(l.param.Blobs)
		l.logger.Debug("layers.blobs.adopted", "layer", l.param.Name, "count", len(l.blobs))
	} else {
		l.blobs = l.blobs[:0]
		fillers := []FillerParameter{l.conv.weightFiller, l.conv.biasFiller}
		for i, shape := range want {
			b, err := tensor.NewBlob(shape...)
			if err != nil {
				return err
			}
			if err := Fill(b, fillers[i], l.rng); err != nil {
				return err
			}
			l.blobs = append(l.blobs, b)
		}
	}

	l.paramPropagateDown = make([]bool, len(l.blobs))
	for i := range l.paramPropagateDown {
		l.paramPropagateDown[i] = true
	}
	return nil
}

// Reshape shapes top for the current bottom. Primitives and descriptors are
// rebuilt only when the bottom geometry changed.
func (l *ConvolutionLayer) Reshape(bottom, top []*tensor.Blob) error {
	if l.closed {
		return ErrClosed
	}
	if err := checkCounts(l.param.Name, bottom, top); err != nil {
		return err
	}
	if l.blobs == nil {
		return fmt.Errorf("convolution %q: reshape before set up", l.param.Name)
	}
	b := bottom[0]
	if len(b.Shape()) != 4 || b.Channels() != l.channels {
		return fmt.Errorf("%w: convolution %q: bottom %v incompatible with %d channels",
			tensor.ErrShapeMismatch, l.param.Name, b.Shape(), l.channels)
	}

	c := l.conv
	oh := (b.Height()+2*c.padH-c.kernelH)/c.strideH + 1
	ow := (b.Width()+2*c.padW-c.kernelW)/c.strideW + 1
	if oh <= 0 || ow <= 0 || b.Height()+2*c.padH < c.kernelH || b.Width()+2*c.padW < c.kernelW {
		return fmt.Errorf("%w: convolution %q: kernel %dx%d larger than padded input %dx%d",
			ErrInvalidParam, l.param.Name, c.kernelH, c.kernelW, b.Height()+2*c.padH, b.Width()+2*c.padW)
	}

	if err := top[0].Reshape(b.Num(), c.numOutput, oh, ow); err != nil {
		return err
	}

	same := l.built && b.Num() == l.num && b.Height() == l.height && b.Width() == l.width
	if same {
		return nil
	}
	l.num, l.height, l.width = b.Num(), b.Height(), b.Width()
	l.heightOut, l.widthOut = oh, ow

	if l.built {
		l.logger.Debug("layers.rebuild", "layer", l.param.Name, "bottom", b.Shape().String())
	}
	if err := l.build(); err != nil {
		l.built = false
		return fmt.Errorf("convolution %q: %w", l.param.Name, err)
	}
	l.built = true
	return nil
}

// userLayouts are the plain framework layouts of the layer's buffers.
type userLayouts struct {
	bottom, top, filter, bias *dnn.Layout
	filterDim                 int
}

func (l *ConvolutionLayer) userLayouts() (userLayouts, []int, error) {
	var u userLayouts
	g := l.conv.group
	n, iw, ih, ic := l.num, l.width, l.height, l.channels
	ow, oh, oc := l.widthOut, l.heightOut, l.conv.numOutput
	kw, kh := l.conv.kernelW, l.conv.kernelH

	// Filters get a separate group dimension from this engine build on.
	gf := g
	u.filterDim = 5
	if g == 1 || l.buildDate < dnn.GroupedFilterBuildDate {
		gf = 1
		u.filterDim = 4
	}
	fSizes := []int{kw, kh, ic / g, oc / gf, gf}[:u.filterDim]
	fStrides := []int{1, kw, kw * kh, kw * kh * ic / g, kw * kh * ic / g * oc / g}[:u.filterDim]

	var err error
	if u.bottom, err = dnn.NewLayout([]int{iw, ih, ic, n}, []int{1, iw, iw * ih, iw * ih * ic}); err != nil {
		return u, nil, err
	}
	if u.top, err = dnn.NewLayout([]int{ow, oh, oc, n}, []int{1, ow, ow * oh, ow * oh * oc}); err != nil {
		return u, nil, err
	}
	if u.filter, err = dnn.NewLayout(fSizes, fStrides); err != nil {
		return u, nil, err
	}
	if u.bias, err = dnn.NewLayout([]int{oc}, []int{1}); err != nil {
		return u, nil, err
	}
	return u, fSizes, nil
}

func (l *ConvolutionLayer) descriptor(role string, isDiff bool, usr *dnn.Layout, p dnn.Primitive, r dnn.Resource) (*MemoryDescriptor, error) {
	d := newMemoryDescriptor(l.engine, l.logger, isDiff)
	d.name = fmt.Sprintf("%-17s @ %s", role, l.param.Name)
	d.layoutUsr = usr
	var err error
	if d.layoutInt, err = dnn.LayoutFromPrimitive(p, r); err != nil {
		return nil, fmt.Errorf("%s: %w", role, err)
	}
	if err := d.createConversions(); err != nil {
		return nil, err
	}
	return d, nil
}

// build creates the primitives and the memory descriptors for the current
// geometry, replacing any previous ones.
func (l *ConvolutionLayer) build() error {
	l.release()

	u, fSizes, err := l.userLayouts()
	if err != nil {
		return err
	}
	desc := &dnn.ConvolutionDesc{
		Algorithm:   dnn.AlgorithmConvolutionDirect,
		Groups:      l.conv.group,
		Dimension:   4,
		SrcSize:     u.bottom.Sizes(),
		DstSize:     u.top.Sizes(),
		FilterSize:  fSizes,
		Strides:     []int{l.conv.strideW, l.conv.strideH},
		InputOffset: []int{-l.conv.padW, -l.conv.padH},
		Border:      dnn.BorderZeros,
	}

	// Forward.
	if l.conv.biasTerm {
		l.fwd, err = l.engine.CreateConvolutionForwardBias(desc)
	} else {
		l.fwd, err = l.engine.CreateConvolutionForward(desc)
	}
	if err != nil {
		return err
	}
	if l.fwdBottomData, err = l.descriptor("fwd_bottom_data", false, u.bottom, l.fwd, dnn.ResourceSrc); err != nil {
		return err
	}
	if l.fwdTopData, err = l.descriptor("fwd_top_data", false, u.top, l.fwd, dnn.ResourceDst); err != nil {
		return err
	}
	if l.fwdFilterData, err = l.descriptor("fwd_filter_data", false, u.filter, l.fwd, dnn.ResourceFilter); err != nil {
		return err
	}
	if l.conv.biasTerm {
		if l.fwdBiasData, err = l.descriptor("fwd_bias_data", false, u.bias, l.fwd, dnn.ResourceBias); err != nil {
			return err
		}
	}

	// Backward by data.
	if l.bwdData, err = l.engine.CreateConvolutionBackwardData(desc); err != nil {
		return err
	}
	if l.bwddBottomDiff, err = l.descriptor("bwdd_bottom_diff", true, u.bottom, l.bwdData, dnn.ResourceDiffSrc); err != nil {
		return err
	}
	if l.bwddTopDiff, err = l.descriptor("bwdd_top_diff", true, u.top, l.bwdData, dnn.ResourceDiffDst); err != nil {
		return err
	}
	if l.bwddFilterData, err = l.descriptor("bwdd_filter_data", false, u.filter, l.bwdData, dnn.ResourceFilter); err != nil {
		return err
	}

	// Backward by filter. The filter gradient is handed to the framework in
	// the forward filter layout; bwdf2fwd converts it there from the layout
	// the primitive produces.
	if l.bwdFilter, err = l.engine.CreateConvolutionBackwardFilter(desc); err != nil {
		return err
	}
	if l.bwdfBottomData, err = l.descriptor("bwdf_bottom_data", false, u.bottom, l.bwdFilter, dnn.ResourceSrc); err != nil {
		return err
	}
	if l.bwdfTopDiff, err = l.descriptor("bwdf_top_diff", true, u.top, l.bwdFilter, dnn.ResourceDiffDst); err != nil {
		return err
	}
	if l.bwdfFilterDiff, err = l.descriptor("bwdf_filter_diff", true, u.filter, l.fwd, dnn.ResourceFilter); err != nil {
		return err
	}
	fwdFilter, err := dnn.LayoutFromPrimitive(l.fwd, dnn.ResourceFilter)
	if err != nil {
		return err
	}
	if l.bwdf2fwdFilterDiff, err = l.descriptor("bwdf2fwd_filter_diff", true, fwdFilter, l.bwdFilter, dnn.ResourceDiffFilter); err != nil {
		return err
	}

	// Backward by bias.
	if l.conv.biasTerm {
		l.bwdBias, err = l.engine.CreateConvolutionBackwardBias(dnn.AlgorithmConvolutionDirect,
			l.conv.group, 4, u.top.Sizes())
		if err != nil {
			return err
		}
		if l.bwdbTopDiff, err = l.descriptor("bwdb_top_diff", true, u.top, l.bwdBias, dnn.ResourceDiffDst); err != nil {
			return err
		}
		if l.bwdbBiasDiff, err = l.descriptor("bwdb_bias_diff", true, u.bias, l.bwdBias, dnn.ResourceDiffBias); err != nil {
			return err
		}
	}

	l.logger.Debug("layers.conv.built", "layer", l.param.Name,
		"bottom", u.bottom.Sizes(), "top", u.top.Sizes(), "filter", fSizes, "group", l.conv.group,
		"filter_fwd", fwdFilter.Format())
	return nil
}

// release forgets the primitives and descriptors. Blobs may still hold
// private buffers of the old descriptors, which stay readable.
func (l *ConvolutionLayer) release() {
	l.fwd, l.bwdData, l.bwdFilter, l.bwdBias = nil, nil, nil, nil
	l.fwdBottomData, l.fwdTopData, l.fwdFilterData, l.fwdBiasData = nil, nil, nil, nil
	l.bwddTopDiff, l.bwddBottomDiff, l.bwddFilterData = nil, nil, nil
	l.bwdfTopDiff, l.bwdfBottomData, l.bwdfFilterDiff, l.bwdf2fwdFilterDiff = nil, nil, nil, nil
	l.bwdbTopDiff, l.bwdbBiasDiff = nil, nil
}

func (l *ConvolutionLayer) checkShapes(bottom, top []*tensor.Blob) error {
	if l.closed {
		return ErrClosed
	}
	if !l.built {
		return fmt.Errorf("convolution %q: not set up", l.param.Name)
	}
	if err := checkCounts(l.param.Name, bottom, top); err != nil {
		return err
	}
	want := tensor.Shape{l.num, l.channels, l.height, l.width}
	if got := bottom[0].Shape(); !got.Equal(want) {
		return fmt.Errorf("%w: convolution %q: bottom %v, layer built for %v",
			tensor.ErrShapeMismatch, l.param.Name, got, want)
	}
	if got := top[0].Shape(); !got.Equal(l.OutputShape()) {
		return fmt.Errorf("%w: convolution %q: top %v, layer built for %v",
			tensor.ErrShapeMismatch, l.param.Name, got, l.OutputShape())
	}
	return nil
}

// Forward computes top = conv(bottom, weights) + bias.
//
// When the top needs a conversion, the result stays in the internal layout
// and is attached to top as private data; it is converted back only when a
// consumer reads the plain buffer.
func (l *ConvolutionLayer) Forward(bottom, top []*tensor.Blob) error {
	if err := l.checkShapes(bottom, top); err != nil {
		return err
	}

	var res dnn.Resources
	var err error
	if res[dnn.ResourceSrc], err = l.fwdBottomData.GetConvertedPrv(bottom[0], false, nil); err != nil {
		return l.wrap("forward", err)
	}
	if res[dnn.ResourceFilter], err = l.fwdFilterData.GetConvertedPrv(l.blobs[0], true, nil); err != nil {
		return l.wrap("forward", err)
	}
	if l.conv.biasTerm {
		if res[dnn.ResourceBias], err = l.fwdBiasData.GetConvertedPrv(l.blobs[1], true, nil); err != nil {
			return l.wrap("forward", err)
		}
	}

	if l.fwdTopData.ConvertsFromInternal() {
		dst, err := l.fwdTopData.PrvPtr()
		if err != nil {
			return l.wrap("forward", err)
		}
		top[0].SetPrvData(dst, l.fwdTopData, false)
		res[dnn.ResourceDst] = dst
	} else if res[dnn.ResourceDst], err = top[0].MutableCPUData(); err != nil {
		return l.wrap("forward", err)
	}

	return l.wrap("forward", dnn.Execute(l.fwd, &res))
}

// Backward computes, in order, the bottom gradient (when propagateDown[0]),
// the weight gradient and the bias gradient (when enabled by
// ParamPropagateDown). Gradients overwrite the previous diff contents.
func (l *ConvolutionLayer) Backward(top []*tensor.Blob, propagateDown []bool, bottom []*tensor.Blob) error {
	if err := l.checkShapes(bottom, top); err != nil {
		return err
	}
	if len(propagateDown) != len(bottom) {
		return fmt.Errorf("%w: convolution %q: %d propagate_down flags for %d bottoms",
			ErrInvalidParam, l.param.Name, len(propagateDown), len(bottom))
	}

	if propagateDown[0] {
		if err := l.backwardData(top[0], bottom[0]); err != nil {
			return l.wrap("backward data", err)
		}
	}
	if l.ParamPropagateDown(0) {
		if err := l.backwardFilter(top[0], bottom[0]); err != nil {
			return l.wrap("backward filter", err)
		}
	}
	if l.conv.biasTerm && l.ParamPropagateDown(1) {
		if err := l.backwardBias(top[0]); err != nil {
			return l.wrap("backward bias", err)
		}
	}
	return nil
}

func (l *ConvolutionLayer) backwardData(top, bottom *tensor.Blob) error {
	var res dnn.Resources
	var err error
	if res[dnn.ResourceDiffDst], err = l.bwddTopDiff.GetConvertedPrv(top, true, nil); err != nil {
		return err
	}
	// Converting the weights here would pad them; keep that off the blob.
	if res[dnn.ResourceFilter], err = l.bwddFilterData.GetConvertedPrv(l.blobs[0], false, nil); err != nil {
		return err
	}
	if l.bwddBottomDiff.ConvertsFromInternal() {
		prv, err := l.bwddBottomDiff.PrvPtr()
		if err != nil {
			return err
		}
		bottom.SetPrvDiff(prv, l.bwddBottomDiff, false)
		res[dnn.ResourceDiffSrc] = prv
	} else if res[dnn.ResourceDiffSrc], err = bottom.MutableCPUDiff(); err != nil {
		return err
	}
	return dnn.Execute(l.bwdData, &res)
}

func (l *ConvolutionLayer) backwardFilter(top, bottom *tensor.Blob) error {
	weights := l.blobs[0]

	var res dnn.Resources
	var err error
	if res[dnn.ResourceDiffDst], err = l.bwdfTopDiff.GetConvertedPrv(top, true, nil); err != nil {
		return err
	}
	if res[dnn.ResourceSrc], err = l.bwdfBottomData.GetConvertedPrv(bottom, false, l.fwdBottomData); err != nil {
		return err
	}

	var fwdDiff []float32 // weight gradient in the forward filter layout
	if l.bwdfFilterDiff.ConvertsFromInternal() {
		if fwdDiff, err = l.bwdfFilterDiff.PrvPtr(); err != nil {
			return err
		}
		weights.SetPrvDiff(fwdDiff, l.bwdfFilterDiff, false)
	} else if fwdDiff, err = weights.MutableCPUDiff(); err != nil {
		return err
	}

	if l.bwdf2fwdFilterDiff.ConvertsFromInternal() {
		if res[dnn.ResourceDiffFilter], err = l.bwdf2fwdFilterDiff.PrvPtr(); err != nil {
			return err
		}
	} else {
		res[dnn.ResourceDiffFilter] = fwdDiff
	}

	if err := dnn.Execute(l.bwdFilter, &res); err != nil {
		return err
	}

	if l.bwdf2fwdFilterDiff.ConvertsFromInternal() {
		l.logger.Debug("layers.convert", "dir", "prv->prv", "descr", l.bwdf2fwdFilterDiff.name,
			"to", l.bwdfFilterDiff.name)
		return l.bwdf2fwdFilterDiff.ConvertFromPrv(fwdDiff)
	}
	return nil
}

func (l *ConvolutionLayer) backwardBias(top *tensor.Blob) error {
	bias := l.blobs[1]

	var res dnn.Resources
	var err error
	if res[dnn.ResourceDiffDst], err = l.bwdbTopDiff.GetConvertedPrv(top, true, nil); err != nil {
		return err
	}
	if l.bwdbBiasDiff.ConvertsFromInternal() {
		prv, err := l.bwdbBiasDiff.PrvPtr()
		if err != nil {
			return err
		}
		bias.SetPrvDiff(prv, l.bwdbBiasDiff, false)
		res[dnn.ResourceDiffBias] = prv
	} else if res[dnn.ResourceDiffBias], err = bias.MutableCPUDiff(); err != nil {
		return err
	}
	return dnn.Execute(l.bwdBias, &res)
}

func (l *ConvolutionLayer) wrap(pass string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("convolution %q: %s: %w", l.param.Name, pass, err)
}

// Close deletes the primitives and conversions. Calling it again is a no-op.
func (l *ConvolutionLayer) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	for _, p := range []dnn.Primitive{l.fwd, l.bwdData, l.bwdFilter, l.bwdBias} {
		errs = append(errs, dnn.Delete(p))
	}
	for _, d := range l.Descriptors() {
		errs = append(errs, d.close())
	}
	l.release()
	l.built = false
	return errors.Join(errs...)
}
