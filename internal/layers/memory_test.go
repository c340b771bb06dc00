package layers

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dnnconv/internal/dnn"
	"github.com/born-ml/dnnconv/internal/tensor"
)

// negateDescr is a private descriptor not owned by this package.
type negateDescr struct{ prv []float32 }

func (d *negateDescr) ConvertFromPrv(cpu []float32) error {
	for i, v := range d.prv {
		cpu[i] = -v
	}
	return nil
}

func (d *negateDescr) Name() string { return "negate" }

// testDescriptor builds a descriptor converting {W, H, C, N} plain data into
// the engine's blocked activation layout.
func testDescriptor(t *testing.T, e *dnn.Engine, sizes []int, isDiff bool) *MemoryDescriptor {
	t.Helper()
	src, err := e.CreateConvolutionBackwardBias(dnn.AlgorithmConvolutionDirect, 1, 4, sizes)
	require.NoError(t, err)

	d := newMemoryDescriptor(e, slog.New(slog.NewTextHandler(io.Discard, nil)), isDiff)
	d.name = "test"
	d.layoutUsr, err = dnn.NewLayout(sizes, []int{1, sizes[0], sizes[0] * sizes[1], sizes[0] * sizes[1] * sizes[2]})
	require.NoError(t, err)
	d.layoutInt, err = dnn.LayoutFromPrimitive(src, dnn.ResourceDiffDst)
	require.NoError(t, err)
	require.NoError(t, d.createConversions())
	return d
}

func seqSlice(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

func TestMemoryDescriptor_ConvertsAndPublishes(t *testing.T) {
	e := dnn.New(dnn.WithBlockSize(4))
	d := testDescriptor(t, e, []int{2, 2, 3, 1}, false)
	require.True(t, d.ConvertsToInternal())
	require.True(t, d.ConvertsFromInternal())
	assert.Equal(t, 16, d.InternalLayout().MemorySize())

	b, err := tensor.FromSlice(seqSlice(12), 1, 3, 2, 2)
	require.NoError(t, err)

	prv, err := d.GetConvertedPrv(b, true, nil)
	require.NoError(t, err)
	assert.Len(t, prv, 16)
	assert.Equal(t, tensor.SyncedPrv, b.DataHead())
	assert.Same(t, d, b.PrvDescriptorData())

	// Published buffer is handed back without converting again.
	again, err := d.GetConvertedPrv(b, true, nil)
	require.NoError(t, err)
	assert.Equal(t, prv, again)
	assert.Equal(t, ConversionStats{ToInternal: 1}, d.Stats())

	out := make([]float32, 12)
	require.NoError(t, d.ConvertFromPrv(out))
	assert.Equal(t, seqSlice(12), out)
}

func TestMemoryDescriptor_ForeignPrivateData(t *testing.T) {
	e := dnn.New(dnn.WithBlockSize(4))
	d := testDescriptor(t, e, []int{2, 1, 2, 1}, true)

	b, err := tensor.NewBlob(1, 2, 1, 2)
	require.NoError(t, err)
	foreign := &negateDescr{prv: []float32{1, 2, 3, 4}}
	b.SetPrvDiff(foreign.prv, foreign, false)

	_, err = d.GetConvertedPrv(b, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats().ToInternal)
	assert.Same(t, d, b.PrvDescriptorDiff())
	assert.Equal(t, tensor.SyncedPrv, b.DiffHead())

	// The published conversion serves the next consumer.
	_, err = d.GetConvertedPrv(b, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Stats().ToInternal)

	out := make([]float32, 4)
	require.NoError(t, d.ConvertFromPrv(out))
	assert.Equal(t, []float32{-1, -2, -3, -4}, out)
	cpu, err := b.CPUDiff()
	require.NoError(t, err)
	assert.Equal(t, []float32{-1, -2, -3, -4}, cpu)
}

func TestMemoryDescriptor_PrvToPrvKeepsStaleCPU(t *testing.T) {
	e := dnn.New(dnn.WithBlockSize(4))
	sizes := []int{2, 2, 3, 1}
	producer := testDescriptor(t, e, sizes, false)
	consumer := testDescriptor(t, dnn.New(dnn.WithBlockSize(2)), sizes, false)

	b, err := tensor.FromSlice(seqSlice(12), 1, 3, 2, 2)
	require.NoError(t, err)
	data, err := b.CPUData()
	require.NoError(t, err)
	require.NoError(t, producer.ConvertToPrv(data))
	prv, err := producer.PrvPtr()
	require.NoError(t, err)
	b.SetPrvData(prv, producer, false)

	_, err = consumer.GetConvertedPrv(b, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, consumer.Stats().PrvToPrv)
	assert.Same(t, consumer, b.PrvDescriptorData())
	assert.Equal(t, tensor.HeadAtPrv, b.DataHead())

	got, err := b.CPUData()
	require.NoError(t, err)
	assert.Equal(t, seqSlice(12), got)

	// The conversion primitive is cached per source layout.
	b.SetPrvData(prv, producer, false)
	_, err = consumer.GetConvertedPrv(b, false, nil)
	require.NoError(t, err)
	assert.Len(t, consumer.convertPrv2Prv, 1)
	assert.Equal(t, 2, consumer.Stats().PrvToPrv)
}

func TestMemoryDescriptor_Errors(t *testing.T) {
	e := dnn.New(dnn.WithBlockSize(1))
	d := testDescriptor(t, e, []int{2, 2, 2, 1}, false)
	assert.False(t, d.ConvertsToInternal())
	assert.Error(t, d.ConvertFromPrv(make([]float32, 8)))
	assert.Error(t, d.ConvertToPrv(make([]float32, 8)))

	b, err := tensor.FromSlice(seqSlice(8), 1, 2, 2, 2)
	require.NoError(t, err)
	plain, err := d.GetConvertedPrv(b, true, nil)
	require.NoError(t, err)
	assert.Equal(t, seqSlice(8), plain)
	assert.Equal(t, tensor.HeadAtCPU, b.DataHead())

	empty := newMemoryDescriptor(e, slog.Default(), false)
	assert.Error(t, empty.createConversions())
	require.NoError(t, d.close())
}
