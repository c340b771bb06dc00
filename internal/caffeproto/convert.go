package caffeproto

import (
	"fmt"
	"math"

	"github.com/born-ml/dnnconv/internal/layers"
	"github.com/born-ml/dnnconv/internal/tensor"
)

// ToLayer converts a decoded layer into the layer description the layers
// package builds from. Blobs become tensors.
func ToLayer(l *LayerParameter) (layers.LayerParameter, error) {
	p := layers.LayerParameter{
		Name:          l.Name,
		Type:          l.Type,
		Bottom:        l.Bottom,
		Top:           l.Top,
		PropagateDown: l.PropagateDown,
	}
	if c := l.Convolution; c != nil {
		conv, err := toConvolution(c)
		if err != nil {
			return p, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		p.Convolution = conv
	}
	for i := range l.Blobs {
		b, err := BlobToTensor(&l.Blobs[i])
		if err != nil {
			return p, fmt.Errorf("layer %q blob %d: %w", l.Name, i, err)
		}
		p.Blobs = append(p.Blobs, b)
	}
	return p, nil
}

func ints(vs []uint32) []int {
	if vs == nil {
		return nil
	}
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = int(v)
	}
	return out
}

func uints(vs []int) []uint32 {
	if vs == nil {
		return nil
	}
	out := make([]uint32, len(vs))
	for i, v := range vs {
		out[i] = uint32(v) //nolint:gosec // Validated non-negative by the layer.
	}
	return out
}

func toConvolution(c *ConvolutionParameter) (layers.ConvolutionParameter, error) {
	p := layers.ConvolutionParameter{
		NumOutput:  int(c.NumOutput),
		BiasTerm:   c.BiasTerm,
		Pad:        ints(c.Pad),
		KernelSize: ints(c.KernelSize),
		Stride:     ints(c.Stride),
		Dilation:   ints(c.Dilation),
		PadH:       int(c.PadH),
		PadW:       int(c.PadW),
		KernelH:    int(c.KernelH),
		KernelW:    int(c.KernelW),
		StrideH:    int(c.StrideH),
		StrideW:    int(c.StrideW),
		Engine:     layers.Engine(c.Engine),
	}
	if c.Group != nil {
		p.Group = int(*c.Group)
	}
	if c.Axis != nil {
		a := int(*c.Axis)
		p.Axis = &a
	}
	var err error
	if c.WeightFiller != nil {
		if p.WeightFiller, err = toFiller(c.WeightFiller); err != nil {
			return p, fmt.Errorf("weight_filler: %w", err)
		}
	}
	if c.BiasFiller != nil {
		if p.BiasFiller, err = toFiller(c.BiasFiller); err != nil {
			return p, fmt.Errorf("bias_filler: %w", err)
		}
	}
	return p, nil
}

func toFiller(f *FillerParameter) (*layers.FillerParameter, error) {
	p := layers.DefaultFiller()
	if f.Type != nil {
		p.Type = *f.Type
	}
	if f.Sparse != nil && *f.Sparse > 0 {
		return nil, fmt.Errorf("%w: sparse filler", layers.ErrInvalidParam)
	}
	p.Value, p.Min, p.Mean = f.Value, f.Min, f.Mean
	if f.Max != nil {
		p.Max = *f.Max
	}
	if f.Std != nil {
		p.Std = *f.Std
	}
	p.VarianceNorm = layers.VarianceNorm(f.VarianceNorm)
	return &p, nil
}

// FromLayer builds the message for a layer description and its learnable blobs.
func FromLayer(p layers.LayerParameter, blobs []*tensor.Blob) (LayerParameter, error) {
	c := p.Convolution
	conv := &ConvolutionParameter{
		NumOutput:  uint32(c.NumOutput), //nolint:gosec // Validated positive by the layer.
		BiasTerm:   c.BiasTerm,
		Pad:        uints(c.Pad),
		KernelSize: uints(c.KernelSize),
		Stride:     uints(c.Stride),
		Dilation:   uints(c.Dilation),
		PadH:       uint32(c.PadH),    //nolint:gosec
		PadW:       uint32(c.PadW),    //nolint:gosec
		KernelH:    uint32(c.KernelH), //nolint:gosec
		KernelW:    uint32(c.KernelW), //nolint:gosec
		StrideH:    uint32(c.StrideH), //nolint:gosec
		StrideW:    uint32(c.StrideW), //nolint:gosec
		Engine:     int32(c.Engine),   //nolint:gosec
	}
	if c.Group != 0 {
		g := uint32(c.Group) //nolint:gosec
		conv.Group = &g
	}
	if c.Axis != nil {
		a := int32(*c.Axis) //nolint:gosec
		conv.Axis = &a
	}
	if c.WeightFiller != nil {
		conv.WeightFiller = fromFiller(c.WeightFiller)
	}
	if c.BiasFiller != nil {
		conv.BiasFiller = fromFiller(c.BiasFiller)
	}

	l := LayerParameter{
		Name:          p.Name,
		Type:          p.Type,
		Bottom:        p.Bottom,
		Top:           p.Top,
		PropagateDown: p.PropagateDown,
		Convolution:   conv,
	}
	for i, b := range blobs {
		bp, err := BlobFromTensor(b)
		if err != nil {
			return l, fmt.Errorf("layer %q blob %d: %w", p.Name, i, err)
		}
		l.Blobs = append(l.Blobs, bp)
	}
	return l, nil
}

func fromFiller(p *layers.FillerParameter) *FillerParameter {
	typ, hi, std := p.Type, p.Max, p.Std
	return &FillerParameter{
		Type:         &typ,
		Value:        p.Value,
		Min:          p.Min,
		Max:          &hi,
		Mean:         p.Mean,
		Std:          &std,
		VarianceNorm: int32(p.VarianceNorm), //nolint:gosec
	}
}

// BlobToTensor creates a tensor holding the blob's data and diff.
func BlobToTensor(b *BlobProto) (*tensor.Blob, error) {
	dims := b.Dims()
	if dims == nil {
		dims = []int{len(b.Data)}
	}
	if err := checkDims(b, dims); err != nil {
		return nil, err
	}
	t, err := tensor.NewBlob(dims...)
	if err != nil {
		return nil, err
	}
	if len(b.Data) > 0 {
		if err := t.SetData(b.Data); err != nil {
			return nil, err
		}
	}
	if len(b.Diff) > 0 {
		if err := t.SetDiff(b.Diff); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// checkDims rejects shapes whose element count does not fit an int32 or
// disagrees with the stored data.
func checkDims(b *BlobProto, dims []int) error {
	count := int64(1)
	for _, d := range dims {
		if d <= 0 {
			return fmt.Errorf("%w: blob shape %v has a non-positive dimension", ErrMalformed, dims)
		}
		if count *= int64(d); count > math.MaxInt32 {
			return fmt.Errorf("%w: blob shape %v exceeds %d elements", ErrMalformed, dims, math.MaxInt32)
		}
	}
	for _, v := range [][]float32{b.Data, b.Diff} {
		if len(v) > 0 && int64(len(v)) != count {
			return fmt.Errorf("%w: blob shape %v holds %d values, got %d",
				tensor.ErrShapeMismatch, dims, count, len(v))
		}
	}
	return nil
}

// BlobFromTensor serializes the data of t. The diff is not stored.
func BlobFromTensor(t *tensor.Blob) (BlobProto, error) {
	data, err := t.CPUData()
	if err != nil {
		return BlobProto{}, err
	}
	shape := t.Shape()
	b := BlobProto{Shape: make([]int64, len(shape)), Data: append([]float32(nil), data...)}
	for i, d := range shape {
		b.Shape[i] = int64(d)
	}
	return b, nil
}
