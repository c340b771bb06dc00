package caffeproto

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Marshal encodes net in the binary format.
func Marshal(net *NetParameter) []byte {
	var b []byte
	if net.Name != "" {
		b = protowire.AppendTag(b, netName, protowire.BytesType)
		b = protowire.AppendString(b, net.Name)
	}
	for i := range net.Layers {
		b = protowire.AppendTag(b, netLayer, protowire.BytesType)
		b = protowire.AppendBytes(b, MarshalLayer(&net.Layers[i]))
	}
	return b
}

// WriteFile encodes net into path.
func WriteFile(path string, net *NetParameter) error {
	if err := os.WriteFile(path, Marshal(net), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// MarshalLayer encodes a LayerParameter.
func MarshalLayer(l *LayerParameter) []byte {
	var b []byte
	b = appendString(b, layerName, l.Name)
	b = appendString(b, layerType, l.Type)
	for _, s := range l.Bottom {
		b = protowire.AppendTag(b, layerBottom, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	for _, s := range l.Top {
		b = protowire.AppendTag(b, layerTop, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	for i := range l.Blobs {
		b = protowire.AppendTag(b, layerBlobs, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalBlob(&l.Blobs[i]))
	}
	for _, v := range l.PropagateDown {
		b = protowire.AppendTag(b, layerPropagateDown, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(v))
	}
	if l.Convolution != nil {
		b = protowire.AppendTag(b, layerConvolution, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalConvolution(l.Convolution))
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFloat(b []byte, num protowire.Number, f float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(f))
}

// Repeated convolution scalars are not packed in the Caffe schema.
func appendRepeated(b []byte, num protowire.Number, vs []uint32) []byte {
	for _, v := range vs {
		b = appendVarint(b, num, uint64(v))
	}
	return b
}

func marshalConvolution(c *ConvolutionParameter) []byte {
	var b []byte
	if c.NumOutput != 0 {
		b = appendVarint(b, convNumOutput, uint64(c.NumOutput))
	}
	if c.BiasTerm != nil {
		b = appendVarint(b, convBiasTerm, protowire.EncodeBool(*c.BiasTerm))
	}
	b = appendRepeated(b, convPad, c.Pad)
	b = appendRepeated(b, convKernelSize, c.KernelSize)
	if c.Group != nil {
		b = appendVarint(b, convGroup, uint64(*c.Group))
	}
	b = appendRepeated(b, convStride, c.Stride)
	if c.WeightFiller != nil {
		b = protowire.AppendTag(b, convWeightFiller, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalFiller(c.WeightFiller))
	}
	if c.BiasFiller != nil {
		b = protowire.AppendTag(b, convBiasFiller, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalFiller(c.BiasFiller))
	}
	for _, f := range []struct {
		num protowire.Number
		v   uint32
	}{
		{convPadH, c.PadH}, {convPadW, c.PadW},
		{convKernelH, c.KernelH}, {convKernelW, c.KernelW},
		{convStrideH, c.StrideH}, {convStrideW, c.StrideW},
	} {
		if f.v != 0 {
			b = appendVarint(b, f.num, uint64(f.v))
		}
	}
	if c.Engine != 0 {
		b = appendVarint(b, convEngine, uint64(int64(c.Engine)))
	}
	if c.Axis != nil {
		b = appendVarint(b, convAxis, uint64(int64(*c.Axis)))
	}
	if c.ForceNDIm2Col {
		b = appendVarint(b, convForceNDIm2Col, protowire.EncodeBool(true))
	}
	return appendRepeated(b, convDilation, c.Dilation)
}

func marshalFiller(f *FillerParameter) []byte {
	var b []byte
	if f.Type != nil {
		b = protowire.AppendTag(b, fillerType, protowire.BytesType)
		b = protowire.AppendString(b, *f.Type)
	}
	if f.Value != 0 {
		b = appendFloat(b, fillerValue, f.Value)
	}
	if f.Min != 0 {
		b = appendFloat(b, fillerMin, f.Min)
	}
	if f.Max != nil {
		b = appendFloat(b, fillerMax, *f.Max)
	}
	if f.Mean != 0 {
		b = appendFloat(b, fillerMean, f.Mean)
	}
	if f.Std != nil {
		b = appendFloat(b, fillerStd, *f.Std)
	}
	if f.Sparse != nil {
		b = appendVarint(b, fillerSparse, uint64(int64(*f.Sparse)))
	}
	if f.VarianceNorm != 0 {
		b = appendVarint(b, fillerVarianceNorm, uint64(int64(f.VarianceNorm)))
	}
	return b
}

func appendPackedFloats(b []byte, num protowire.Number, vs []float32) []byte {
	if len(vs) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(4*len(vs)))
	for _, v := range vs {
		b = protowire.AppendFixed32(b, math.Float32bits(v))
	}
	return b
}

func marshalBlob(blob *BlobProto) []byte {
	var b []byte
	for i, v := range []int32{blob.Num, blob.Channels, blob.Height, blob.Width} {
		if v != 0 {
			b = appendVarint(b, blobNum+protowire.Number(i), uint64(int64(v)))
		}
	}
	b = appendPackedFloats(b, blobData, blob.Data)
	b = appendPackedFloats(b, blobDiff, blob.Diff)
	if len(blob.Shape) > 0 {
		var dims []byte
		for _, d := range blob.Shape {
			dims = protowire.AppendVarint(dims, uint64(d))
		}
		var shape []byte
		shape = protowire.AppendTag(shape, shapeDim, protowire.BytesType)
		shape = protowire.AppendBytes(shape, dims)
		b = protowire.AppendTag(b, blobShape, protowire.BytesType)
		b = protowire.AppendBytes(b, shape)
	}
	return b
}
