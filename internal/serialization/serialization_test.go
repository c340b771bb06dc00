package serialization

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dnnconv/internal/tensor"
)

func testBlobs(t *testing.T) map[string]*tensor.Blob {
	t.Helper()
	w, err := tensor.FromSlice([]float32{1, -2, 3.5, 4, 5, 6, 7, 8}, 2, 1, 2, 2)
	require.NoError(t, err)
	b, err := tensor.FromSlice([]float32{0.25, -0.5}, 2)
	require.NoError(t, err)
	return map[string]*tensor.Blob{"conv1.weight": w, "conv1.bias": b}
}

func writeTestFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conv1.safetensors")
	require.NoError(t, WriteBlobs(path, testBlobs(t), map[string]string{"layer": "conv1"}))
	return path
}

func TestWriteReadBlobs(t *testing.T) {
	path := writeTestFile(t)

	blobs, meta, err := ReadBlobs(path)
	require.NoError(t, err)
	require.Len(t, blobs, 2)

	w := blobs["conv1.weight"]
	require.NotNil(t, w)
	assert.Equal(t, tensor.Shape{2, 1, 2, 2}, w.Shape())
	data, err := w.CPUData()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2, 3.5, 4, 5, 6, 7, 8}, data)

	b := blobs["conv1.bias"]
	require.NotNil(t, b)
	data, err = b.CPUData()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5}, data)

	assert.Equal(t, "conv1", meta["layer"])
	assert.Equal(t, FormatName, meta[FormatKey])
	assert.Len(t, meta[ChecksumKey], 64)
}

func TestReader_Layout(t *testing.T) {
	path := writeTestFile(t)

	r, err := Open(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Close()) }()

	assert.Equal(t, []string{"conv1.bias", "conv1.weight"}, r.TensorNames())

	bias, err := r.TensorInfo("conv1.bias")
	require.NoError(t, err)
	assert.Equal(t, TensorMeta{Name: "conv1.bias", DType: DTypeF32, Shape: []int{2}, Offset: 0, Size: 8}, bias)

	weight, err := r.TensorInfo("conv1.weight")
	require.NoError(t, err)
	assert.Equal(t, int64(8), weight.Offset)
	assert.Equal(t, int64(32), weight.Size)

	assert.Zero(t, r.dataStart%8, "data section must be 8-byte aligned")

	_, err = r.TensorInfo("conv2.weight")
	assert.ErrorIs(t, err, ErrTensorNotFound)
}

func TestReader_Closed(t *testing.T) {
	r, err := Open(writeTestFile(t))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Blob("conv1.bias")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReadBlobs_Corrupted(t *testing.T) {
	path := writeTestFile(t)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, _, err = ReadBlobs(path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	r, err := OpenWithOptions(path, ReaderOptions{SkipChecksumValidation: true})
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}

// writeRaw builds a file from a hand-written header and data section.
func writeRaw(t *testing.T, header string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.safetensors")
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
	buf = append(buf, header...)
	buf = append(buf, data...)
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func TestOpen_InvalidFiles(t *testing.T) {
	data := make([]byte, 16)
	sum := ComputeChecksum(data)
	digest := hex.EncodeToString(sum[:])
	meta := `"__metadata__":{"sha256":"` + digest + `"}`

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{
			name:   "overlap",
			header: `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]},` + meta + `}`,
			want:   ErrOffsetOverlap,
		},
		{
			name:   "out of bounds",
			header: `{"a":{"dtype":"F32","shape":[8],"data_offsets":[0,32]},` + meta + `}`,
			want:   ErrOutOfBounds,
		},
		{
			name:   "path traversal",
			header: `{"../a":{"dtype":"F32","shape":[1],"data_offsets":[0,4]},` + meta + `}`,
			want:   ErrInvalidTensorName,
		},
		{
			name:   "separator",
			header: `{"conv\\a":{"dtype":"F32","shape":[1],"data_offsets":[0,4]},` + meta + `}`,
			want:   ErrInvalidTensorName,
		},
		{
			name:   "dtype",
			header: `{"a":{"dtype":"F16","shape":[2],"data_offsets":[0,4]},` + meta + `}`,
			want:   ErrUnsupportedDType,
		},
		{
			name:   "shape",
			header: `{"a":{"dtype":"F32","shape":[3],"data_offsets":[0,8]},` + meta + `}`,
			want:   ErrShapeMismatch,
		},
		{
			name:   "no checksum",
			header: `{"a":{"dtype":"F32","shape":[4],"data_offsets":[0,16]}}`,
			want:   ErrMissingChecksum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(writeRaw(t, tt.header, data))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpen_Truncated(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte{1, 2, 3}, 0o600))
	_, err := Open(short)
	assert.ErrorContains(t, err, "file too small")

	huge := filepath.Join(dir, "huge")
	require.NoError(t, os.WriteFile(huge, binary.LittleEndian.AppendUint64(nil, MaxHeaderSize+1), 0o600))
	_, err = Open(huge)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)

	beyond := filepath.Join(dir, "beyond")
	require.NoError(t, os.WriteFile(beyond, binary.LittleEndian.AppendUint64(nil, 100), 0o600))
	_, err = Open(beyond)
	assert.ErrorContains(t, err, "header extends beyond file")
}

func TestWriteBlobs_Errors(t *testing.T) {
	dir := t.TempDir()

	err := WriteBlobs(filepath.Join(dir, "a"), map[string]*tensor.Blob{"x/y": nil}, nil)
	assert.ErrorIs(t, err, ErrInvalidTensorName)

	err = WriteBlobs(filepath.Join(dir, "b"), map[string]*tensor.Blob{"x": nil}, nil)
	assert.ErrorContains(t, err, "nil blob")

	err = WriteBlobs(filepath.Join(dir, "missing", "c"), testBlobs(t), nil)
	assert.ErrorContains(t, err, "failed to create file")

	w, err := NewWriter(filepath.Join(dir, "d"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Error(t, w.WriteBlobs(testBlobs(t), nil))
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Type: "offset_overlap", Tensor: "a", Tensor2: "b", Details: "x"}
	assert.Equal(t, `offset_overlap: tensors "a" and "b": x`, err.Error())
	assert.True(t, errors.Is(err, ErrOffsetOverlap))

	err = &ValidationError{Type: "too_many_tensors", Details: "y"}
	assert.Equal(t, "too_many_tensors: y", err.Error())
	assert.ErrorIs(t, err, ErrTooManyTensors)

	assert.NoError(t, errors.Unwrap(&ValidationError{Type: "other"}))
}

func TestValidateChecksum(t *testing.T) {
	data := []byte("blob data")
	sum := ComputeChecksum(data)

	assert.NoError(t, ValidateChecksum(data, hex.EncodeToString(sum[:])))
	assert.ErrorIs(t, ValidateChecksum([]byte("other"), hex.EncodeToString(sum[:])), ErrChecksumMismatch)
	assert.ErrorIs(t, ValidateChecksum(data, "zz"), ErrChecksumMismatch)
	assert.ErrorIs(t, ValidateChecksum(data, ""), ErrMissingChecksum)
}
