package caffeproto

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/born-ml/dnnconv/internal/layers"
	"github.com/born-ml/dnnconv/internal/tensor"
)

func ptr[T any](v T) *T { return &v }

func sampleNet() *NetParameter {
	return &NetParameter{
		Name: "tiny",
		Layers: []LayerParameter{{
			Name:          "conv1",
			Type:          "Convolution",
			Bottom:        []string{"data"},
			Top:           []string{"conv1"},
			PropagateDown: []bool{true},
			Convolution: &ConvolutionParameter{
				NumOutput:    2,
				BiasTerm:     ptr(true),
				KernelSize:   []uint32{3},
				Pad:          []uint32{1},
				Group:        ptr(uint32(1)),
				Engine:       3,
				Axis:         ptr(int32(1)),
				WeightFiller: &FillerParameter{Type: ptr("msra"), VarianceNorm: 1},
				BiasFiller:   &FillerParameter{Type: ptr("constant"), Value: 0.5},
			},
			Blobs: []BlobProto{
				{Shape: []int64{2, 1, 3, 3}, Data: make([]float32, 18)},
				{Shape: []int64{2}, Data: []float32{0.5, -0.5}},
			},
		}},
	}
}

func TestMarshalParse_RoundTrip(t *testing.T) {
	net := sampleNet()
	got, err := Parse(Marshal(net))
	require.NoError(t, err)
	assert.Equal(t, net, got)
}

func TestWriteFile_ParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.caffemodel")
	require.NoError(t, WriteFile(path, sampleNet()))

	got, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "conv1", got.Layers[0].Name)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestParseLayer_AlternateEncodings(t *testing.T) {
	var blob []byte
	// Legacy dims and unpacked floats.
	blob = appendVarint(blob, blobNum, 1)
	blob = appendVarint(blob, blobChannels, 1)
	blob = appendVarint(blob, blobHeight, 1)
	blob = appendVarint(blob, blobWidth, 2)
	blob = appendFloat(blob, blobData, 1.5)
	blob = appendFloat(blob, blobData, -2)

	var conv []byte
	// Packed kernel_size and an unknown field.
	conv = protowire.AppendTag(conv, convKernelSize, protowire.BytesType)
	conv = protowire.AppendBytes(conv, protowire.AppendVarint(protowire.AppendVarint(nil, 3), 5))
	conv = appendVarint(conv, 99, 7)
	conv = appendVarint(conv, convNumOutput, 4)

	var b []byte
	b = appendString(b, layerName, "c")
	b = protowire.AppendTag(b, 5, protowire.Fixed32Type) // loss_weight, skipped
	b = protowire.AppendFixed32(b, math.Float32bits(1))
	b = protowire.AppendTag(b, layerBlobs, protowire.BytesType)
	b = protowire.AppendBytes(b, blob)
	b = protowire.AppendTag(b, layerConvolution, protowire.BytesType)
	b = protowire.AppendBytes(b, conv)

	l, err := ParseLayer(b)
	require.NoError(t, err)
	assert.Equal(t, "c", l.Name)
	assert.Equal(t, []uint32{3, 5}, l.Convolution.KernelSize)
	assert.Equal(t, uint32(4), l.Convolution.NumOutput)
	require.Len(t, l.Blobs, 1)
	assert.Equal(t, []int{1, 1, 1, 2}, l.Blobs[0].Dims())
	assert.Equal(t, []float32{1.5, -2}, l.Blobs[0].Data)
}

func TestParse_Malformed(t *testing.T) {
	good := Marshal(sampleNet())

	tests := map[string][]byte{
		"truncated":       good[:len(good)-3],
		"bad tag":         {0x00},
		"name as varint":  appendVarint(nil, netName, 1),
		"odd packed data": append(protowire.AppendTag(nil, layerBlobs, protowire.BytesType), 3, 0x2a, 1, 0),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			var err error
			if name == "odd packed data" {
				_, err = ParseLayer(data)
			} else {
				_, err = Parse(data)
			}
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestToLayer_BuildsConvolution(t *testing.T) {
	lp, err := ToLayer(&sampleNet().Layers[0])
	require.NoError(t, err)

	assert.Equal(t, []int{3}, lp.Convolution.KernelSize)
	assert.Equal(t, layers.EngineDNN, lp.Convolution.Engine)
	assert.Equal(t, "msra", lp.Convolution.WeightFiller.Type)
	assert.Equal(t, layers.FanOut, lp.Convolution.WeightFiller.VarianceNorm)
	assert.Equal(t, float32(1), lp.Convolution.WeightFiller.Std)
	require.Len(t, lp.Blobs, 2)
	assert.Equal(t, tensor.Shape{2, 1, 3, 3}, lp.Blobs[0].Shape())

	l, err := layers.NewConvolutionLayer(lp)
	require.NoError(t, err)
	defer l.Close()

	bottom, err := tensor.NewBlob(1, 1, 4, 4)
	require.NoError(t, err)
	top, err := tensor.NewBlob(1)
	require.NoError(t, err)
	require.NoError(t, l.SetUp([]*tensor.Blob{bottom}, []*tensor.Blob{top}))
	require.NoError(t, l.Forward([]*tensor.Blob{bottom}, []*tensor.Blob{top}))

	// Zero weights: the output is the bias.
	out, err := top.CPUData()
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), out[0])
	assert.Equal(t, float32(-0.5), out[len(out)-1])
}

func TestFromLayer(t *testing.T) {
	bias := false
	p := layers.LayerParameter{
		Name: "c",
		Type: "Convolution",
		Convolution: layers.ConvolutionParameter{
			NumOutput: 3, BiasTerm: &bias, KernelH: 1, KernelW: 3, Group: 1,
			WeightFiller: &layers.FillerParameter{Type: "xavier", Max: 1, Std: 1},
		},
	}
	w, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}, 3, 1, 1, 3)
	require.NoError(t, err)

	msg, err := FromLayer(p, []*tensor.Blob{w})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), msg.Convolution.KernelH)
	assert.Equal(t, uint32(1), *msg.Convolution.Group)
	assert.Equal(t, "xavier", *msg.Convolution.WeightFiller.Type)
	assert.Equal(t, []int64{3, 1, 1, 3}, msg.Blobs[0].Shape)

	back, err := ToLayer(&msg)
	require.NoError(t, err)
	assert.Equal(t, p.Convolution, back.Convolution)
}

func TestBlobToTensor_Errors(t *testing.T) {
	_, err := BlobToTensor(&BlobProto{Shape: []int64{2, 2}, Data: []float32{1}})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	_, err = BlobToTensor(&BlobProto{Shape: []int64{1 << 20, 1 << 20, 1 << 20, 1 << 20}})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = BlobToTensor(&BlobProto{Shape: []int64{math.MaxInt32, 2}})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = BlobToTensor(&BlobProto{Shape: []int64{2, -1}})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = BlobToTensor(&BlobProto{Num: 1, Channels: 1, Height: 2, Width: 2, Diff: []float32{1, 2}})
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	b, err := BlobToTensor(&BlobProto{Data: []float32{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{3}, b.Shape())

	_, err = ToLayer(&LayerParameter{Convolution: &ConvolutionParameter{
		WeightFiller: &FillerParameter{Sparse: ptr(int32(2))},
	}})
	assert.ErrorIs(t, err, layers.ErrInvalidParam)
}
