package serialization

import (
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"os"

	"github.com/born-ml/dnnconv/internal/tensor"
)

// Reader gives memory-mapped access to a SafeTensors file.
//
// Only the header is decoded when the file is opened; tensor data is copied
// out of the mapping on demand. Always call Close when done.
type Reader struct {
	file      *os.File
	data      []byte // mmap'd file (read-only)
	header    Header
	index     map[string]int
	dataStart int64
	closed    bool
}

// ReaderOptions configures the behavior of Reader.
type ReaderOptions struct {
	SkipChecksumValidation bool // Map the data section without hashing it
}

// Open maps the file at path and verifies its checksum.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions maps the file at path with custom options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for snapshots
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.Size() < HeaderSizeBytes {
		_ = file.Close()
		return nil, fmt.Errorf("file too small: %d bytes (minimum %d bytes required)", stat.Size(), HeaderSizeBytes)
	}

	data, err := mmapFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	r := &Reader{file: file, data: data}
	if err := r.parseHeader(opts); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) parseHeader(opts ReaderOptions) error {
	size := int64(len(r.data))
	headerSize := binary.LittleEndian.Uint64(r.data[:HeaderSizeBytes])
	if headerSize > MaxHeaderSize {
		return ErrHeaderTooLarge
	}
	headerEnd := HeaderSizeBytes + int64(headerSize) //nolint:gosec // G115: bounded by MaxHeaderSize
	if headerEnd > size {
		return fmt.Errorf("header extends beyond file: header_end=%d, file_size=%d", headerEnd, size)
	}

	h, err := decodeHeader(r.data[HeaderSizeBytes:headerEnd])
	if err != nil {
		return fmt.Errorf("failed to parse header: %w", err)
	}
	r.dataStart = headerEnd

	if err := validateHeader(&h, size-headerEnd); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(r.data[headerEnd:], h.Metadata[ChecksumKey]); err != nil {
			return err
		}
	}

	r.header = h
	r.index = make(map[string]int, len(h.Tensors))
	for i, t := range h.Tensors {
		r.index[t.Name] = i
	}
	return nil
}

// Header returns the decoded header.
func (r *Reader) Header() Header {
	return r.header
}

// Metadata returns the __metadata__ entries, including the checksum.
func (r *Reader) Metadata() map[string]string {
	return maps.Clone(r.header.Metadata)
}

// TensorNames returns the tensor names in alphabetical order.
func (r *Reader) TensorNames() []string {
	names := make([]string, len(r.header.Tensors))
	for i, t := range r.header.Tensors {
		names[i] = t.Name
	}
	return names
}

// TensorInfo returns the metadata of the named tensor.
func (r *Reader) TensorInfo(name string) (TensorMeta, error) {
	i, ok := r.index[name]
	if !ok {
		return TensorMeta{}, fmt.Errorf("%w: %q", ErrTensorNotFound, name)
	}
	return r.header.Tensors[i], nil
}

// Blob copies the named tensor into a new blob.
func (r *Reader) Blob(name string) (*tensor.Blob, error) {
	if r.closed {
		return nil, ErrClosed
	}
	meta, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	start := r.dataStart + meta.Offset
	end := start + meta.Size
	if meta.Offset < 0 || end > int64(len(r.data)) {
		return nil, fmt.Errorf("%w: tensor %q: offset %d + size %d > file_size %d",
			ErrOutOfBounds, name, start, meta.Size, len(r.data))
	}
	if meta.DType != DTypeF32 || meta.Size%float32Size != 0 {
		return nil, fmt.Errorf("%w: tensor %q has dtype %s and %d bytes", ErrUnsupportedDType, name, meta.DType, meta.Size)
	}

	b, err := tensor.NewBlob(meta.Shape...)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	if int64(b.Count())*float32Size != meta.Size {
		return nil, fmt.Errorf("%w: tensor %q: shape %v, %d bytes", ErrShapeMismatch, name, meta.Shape, meta.Size)
	}
	values, err := b.MutableCPUData()
	if err != nil {
		return nil, err
	}
	raw := r.data[start:end]
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*float32Size:]))
	}
	return b, nil
}

// Blobs copies every tensor into a new blob.
func (r *Reader) Blobs() (map[string]*tensor.Blob, error) {
	out := make(map[string]*tensor.Blob, len(r.header.Tensors))
	for _, t := range r.header.Tensors {
		b, err := r.Blob(t.Name)
		if err != nil {
			return nil, err
		}
		out[t.Name] = b
	}
	return out, nil
}

// Close unmaps and closes the file.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.data != nil {
		err = munmapFile(r.data)
		r.data = nil
	}
	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// ReadBlobs reads every blob and the metadata of the file at path.
func ReadBlobs(path string) (map[string]*tensor.Blob, map[string]string, error) {
	r, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		_ = r.Close() // Read-only mapping, nothing to flush
	}()

	blobs, err := r.Blobs()
	if err != nil {
		return nil, nil, err
	}
	return blobs, r.Metadata(), nil
}
