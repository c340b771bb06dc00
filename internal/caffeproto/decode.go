package caffeproto

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned for input that is not a valid encoding.
var ErrMalformed = errors.New("malformed caffe protobuf")

// Field numbers.
const (
	netName  protowire.Number = 1
	netLayer protowire.Number = 100

	layerName          protowire.Number = 1
	layerType          protowire.Number = 2
	layerBottom        protowire.Number = 3
	layerTop           protowire.Number = 4
	layerBlobs         protowire.Number = 7
	layerPropagateDown protowire.Number = 11
	layerConvolution   protowire.Number = 106

	convNumOutput     protowire.Number = 1
	convBiasTerm      protowire.Number = 2
	convPad           protowire.Number = 3
	convKernelSize    protowire.Number = 4
	convGroup         protowire.Number = 5
	convStride        protowire.Number = 6
	convWeightFiller  protowire.Number = 7
	convBiasFiller    protowire.Number = 8
	convPadH          protowire.Number = 9
	convPadW          protowire.Number = 10
	convKernelH       protowire.Number = 11
	convKernelW       protowire.Number = 12
	convStrideH       protowire.Number = 13
	convStrideW       protowire.Number = 14
	convEngine        protowire.Number = 15
	convAxis          protowire.Number = 16
	convForceNDIm2Col protowire.Number = 17
	convDilation      protowire.Number = 18

	fillerType         protowire.Number = 1
	fillerValue        protowire.Number = 2
	fillerMin          protowire.Number = 3
	fillerMax          protowire.Number = 4
	fillerMean         protowire.Number = 5
	fillerStd          protowire.Number = 6
	fillerSparse       protowire.Number = 7
	fillerVarianceNorm protowire.Number = 8

	blobNum      protowire.Number = 1
	blobChannels protowire.Number = 2
	blobHeight   protowire.Number = 3
	blobWidth    protowire.Number = 4
	blobData     protowire.Number = 5
	blobDiff     protowire.Number = 6
	blobShape    protowire.Number = 7

	shapeDim protowire.Number = 1
)

// ParseFile parses a binary NetParameter file (.caffemodel).
//
//nolint:gosec // G304: Path is provided by the user.
func ParseFile(path string) (*NetParameter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	net, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return net, nil
}

// Parse decodes a binary NetParameter.
func Parse(data []byte) (*NetParameter, error) {
	net := &NetParameter{}
	if err := (&decoder{buf: data, msg: "NetParameter"}).net(net); err != nil {
		return nil, err
	}
	return net, nil
}

// ParseLayer decodes a binary LayerParameter.
func ParseLayer(data []byte) (*LayerParameter, error) {
	l := &LayerParameter{}
	if err := (&decoder{buf: data, msg: "LayerParameter"}).layer(l); err != nil {
		return nil, err
	}
	return l, nil
}

// decoder walks one message. Embedded messages get their own decoder.
type decoder struct {
	buf []byte
	msg string
	num protowire.Number // field being decoded
}

func (d *decoder) fail(n int) error {
	return fmt.Errorf("%w: %s field %d: %w", ErrMalformed, d.msg, d.num, protowire.ParseError(n))
}

func (d *decoder) wrongType(typ protowire.Type) error {
	return fmt.Errorf("%w: %s field %d has wire type %d", ErrMalformed, d.msg, d.num, typ)
}

func (d *decoder) done() bool { return len(d.buf) == 0 }

func (d *decoder) next() (protowire.Number, protowire.Type, error) {
	num, typ, n := protowire.ConsumeTag(d.buf)
	if n < 0 {
		return 0, 0, d.fail(n)
	}
	d.buf = d.buf[n:]
	d.num = num
	return num, typ, nil
}

func (d *decoder) skip(typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(d.num, typ, d.buf)
	if n < 0 {
		return d.fail(n)
	}
	d.buf = d.buf[n:]
	return nil
}

func (d *decoder) varint(typ protowire.Type) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, d.wrongType(typ)
	}
	v, n := protowire.ConsumeVarint(d.buf)
	if n < 0 {
		return 0, d.fail(n)
	}
	d.buf = d.buf[n:]
	return v, nil
}

func (d *decoder) fixed32(typ protowire.Type) (uint32, error) {
	if typ != protowire.Fixed32Type {
		return 0, d.wrongType(typ)
	}
	v, n := protowire.ConsumeFixed32(d.buf)
	if n < 0 {
		return 0, d.fail(n)
	}
	d.buf = d.buf[n:]
	return v, nil
}

func (d *decoder) bytes(typ protowire.Type) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, d.wrongType(typ)
	}
	v, n := protowire.ConsumeBytes(d.buf)
	if n < 0 {
		return nil, d.fail(n)
	}
	d.buf = d.buf[n:]
	return v, nil
}

func (d *decoder) str(typ protowire.Type) (string, error) {
	b, err := d.bytes(typ)
	return string(b), err
}

func (d *decoder) float(typ protowire.Type) (float32, error) {
	v, err := d.fixed32(typ)
	return math.Float32frombits(v), err
}

func (d *decoder) sub(typ protowire.Type, msg string) (*decoder, error) {
	b, err := d.bytes(typ)
	if err != nil {
		return nil, err
	}
	return &decoder{buf: b, msg: msg}, nil
}

// varints reads a repeated varint field in packed or unpacked form.
func (d *decoder) varints(typ protowire.Type, f func(uint64)) error {
	if typ != protowire.BytesType {
		v, err := d.varint(typ)
		if err != nil {
			return err
		}
		f(v)
		return nil
	}
	packed, err := d.bytes(typ)
	if err != nil {
		return err
	}
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return d.fail(n)
		}
		f(v)
		packed = packed[n:]
	}
	return nil
}

// floats reads a repeated float field in packed or unpacked form.
func (d *decoder) floats(typ protowire.Type, dst []float32) ([]float32, error) {
	if typ != protowire.BytesType {
		v, err := d.float(typ)
		return append(dst, v), err
	}
	packed, err := d.bytes(typ)
	if err != nil {
		return dst, err
	}
	if len(packed)%4 != 0 {
		return dst, fmt.Errorf("%w: %s field %d: packed floats of %d bytes", ErrMalformed, d.msg, d.num, len(packed))
	}
	dst = slices.Grow(dst, len(packed)/4)
	for len(packed) > 0 {
		v, n := protowire.ConsumeFixed32(packed)
		if n < 0 {
			return dst, d.fail(n)
		}
		dst = append(dst, math.Float32frombits(v))
		packed = packed[n:]
	}
	return dst, nil
}

func (d *decoder) net(m *NetParameter) error {
	for !d.done() {
		num, typ, err := d.next()
		if err != nil {
			return err
		}
		switch num {
		case netName:
			m.Name, err = d.str(typ)
		case netLayer:
			var sub *decoder
			if sub, err = d.sub(typ, "LayerParameter"); err == nil {
				var l LayerParameter
				err = sub.layer(&l)
				m.Layers = append(m.Layers, l)
			}
		default:
			err = d.skip(typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) layer(m *LayerParameter) error {
	for !d.done() {
		num, typ, err := d.next()
		if err != nil {
			return err
		}
		var s string
		switch num {
		case layerName:
			m.Name, err = d.str(typ)
		case layerType:
			m.Type, err = d.str(typ)
		case layerBottom:
			if s, err = d.str(typ); err == nil {
				m.Bottom = append(m.Bottom, s)
			}
		case layerTop:
			if s, err = d.str(typ); err == nil {
				m.Top = append(m.Top, s)
			}
		case layerBlobs:
			var sub *decoder
			if sub, err = d.sub(typ, "BlobProto"); err == nil {
				var b BlobProto
				err = sub.blob(&b)
				m.Blobs = append(m.Blobs, b)
			}
		case layerPropagateDown:
			err = d.varints(typ, func(v uint64) { m.PropagateDown = append(m.PropagateDown, protowire.DecodeBool(v)) })
		case layerConvolution:
			var sub *decoder
			if sub, err = d.sub(typ, "ConvolutionParameter"); err == nil {
				if m.Convolution == nil {
					m.Convolution = &ConvolutionParameter{}
				}
				err = sub.convolution(m.Convolution)
			}
		default:
			err = d.skip(typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

//nolint:gocyclo,cyclop // One case per field.
func (d *decoder) convolution(m *ConvolutionParameter) error {
	u32 := func(dst *uint32, typ protowire.Type) error {
		v, err := d.varint(typ)
		*dst = uint32(v)
		return err
	}
	for !d.done() {
		num, typ, err := d.next()
		if err != nil {
			return err
		}
		var v uint64
		switch num {
		case convNumOutput:
			err = u32(&m.NumOutput, typ)
		case convBiasTerm:
			if v, err = d.varint(typ); err == nil {
				b := protowire.DecodeBool(v)
				m.BiasTerm = &b
			}
		case convPad:
			err = d.varints(typ, func(v uint64) { m.Pad = append(m.Pad, uint32(v)) })
		case convKernelSize:
			err = d.varints(typ, func(v uint64) { m.KernelSize = append(m.KernelSize, uint32(v)) })
		case convGroup:
			if v, err = d.varint(typ); err == nil {
				g := uint32(v)
				m.Group = &g
			}
		case convStride:
			err = d.varints(typ, func(v uint64) { m.Stride = append(m.Stride, uint32(v)) })
		case convWeightFiller:
			m.WeightFiller, err = d.filler(typ)
		case convBiasFiller:
			m.BiasFiller, err = d.filler(typ)
		case convPadH:
			err = u32(&m.PadH, typ)
		case convPadW:
			err = u32(&m.PadW, typ)
		case convKernelH:
			err = u32(&m.KernelH, typ)
		case convKernelW:
			err = u32(&m.KernelW, typ)
		case convStrideH:
			err = u32(&m.StrideH, typ)
		case convStrideW:
			err = u32(&m.StrideW, typ)
		case convEngine:
			if v, err = d.varint(typ); err == nil {
				m.Engine = int32(v)
			}
		case convAxis:
			if v, err = d.varint(typ); err == nil {
				a := int32(v)
				m.Axis = &a
			}
		case convForceNDIm2Col:
			if v, err = d.varint(typ); err == nil {
				m.ForceNDIm2Col = protowire.DecodeBool(v)
			}
		case convDilation:
			err = d.varints(typ, func(v uint64) { m.Dilation = append(m.Dilation, uint32(v)) })
		default:
			err = d.skip(typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) filler(typ protowire.Type) (*FillerParameter, error) {
	sub, err := d.sub(typ, "FillerParameter")
	if err != nil {
		return nil, err
	}
	m := &FillerParameter{}
	for !sub.done() {
		num, typ, err := sub.next()
		if err != nil {
			return nil, err
		}
		var f float32
		var v uint64
		switch num {
		case fillerType:
			var s string
			if s, err = sub.str(typ); err == nil {
				m.Type = &s
			}
		case fillerValue:
			m.Value, err = sub.float(typ)
		case fillerMin:
			m.Min, err = sub.float(typ)
		case fillerMax:
			if f, err = sub.float(typ); err == nil {
				m.Max = &f
			}
		case fillerMean:
			m.Mean, err = sub.float(typ)
		case fillerStd:
			if f, err = sub.float(typ); err == nil {
				m.Std = &f
			}
		case fillerSparse:
			if v, err = sub.varint(typ); err == nil {
				s := int32(v)
				m.Sparse = &s
			}
		case fillerVarianceNorm:
			if v, err = sub.varint(typ); err == nil {
				m.VarianceNorm = int32(v)
			}
		default:
			err = sub.skip(typ)
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (d *decoder) blob(m *BlobProto) error {
	for !d.done() {
		num, typ, err := d.next()
		if err != nil {
			return err
		}
		var v uint64
		switch num {
		case blobNum, blobChannels, blobHeight, blobWidth:
			if v, err = d.varint(typ); err == nil {
				dims := [...]*int32{&m.Num, &m.Channels, &m.Height, &m.Width}
				*dims[num-blobNum] = int32(v)
			}
		case blobData:
			m.Data, err = d.floats(typ, m.Data)
		case blobDiff:
			m.Diff, err = d.floats(typ, m.Diff)
		case blobShape:
			var sub *decoder
			if sub, err = d.sub(typ, "BlobShape"); err == nil {
				m.Shape, err = sub.shape(m.Shape[:0])
			}
		default:
			err = d.skip(typ)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) shape(dims []int64) ([]int64, error) {
	for !d.done() {
		num, typ, err := d.next()
		if err != nil {
			return dims, err
		}
		if num == shapeDim {
			err = d.varints(typ, func(v uint64) { dims = append(dims, int64(v)) })
		} else {
			err = d.skip(typ)
		}
		if err != nil {
			return dims, err
		}
	}
	return dims, nil
}
