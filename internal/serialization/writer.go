package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/born-ml/dnnconv/internal/tensor"
)

// Writer writes blobs in SafeTensors format.
type Writer struct {
	file   *os.File
	closed bool
}

// NewWriter creates a new SafeTensors file writer.
func NewWriter(path string) (*Writer, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for snapshots
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &Writer{file: file}, nil
}

// WriteBlobs writes the data of blobs to a SafeTensors file at path.
func WriteBlobs(path string, blobs map[string]*tensor.Blob, metadata map[string]string) (err error) {
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	return w.WriteBlobs(blobs, metadata)
}

// WriteBlobs writes the plain data of every blob.
//
// Private engine buffers are synced back first, so a blob last written by a
// layer in an internal layout is saved in NCHW order. Tensors are written in
// alphabetical order by name; metadata is stored next to the checksum.
func (w *Writer) WriteBlobs(blobs map[string]*tensor.Blob, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}
	if len(blobs) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(blobs), MaxTensorCount),
		}
	}

	names := make([]string, 0, len(blobs))
	for name := range blobs {
		if err := validateName(name); err != nil {
			return err
		}
		if blobs[name] == nil {
			return fmt.Errorf("tensor %q: nil blob", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	var data []byte
	for _, name := range names {
		b := blobs[name]
		values, err := b.CPUData()
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}
		start := int64(len(data))
		for _, v := range values {
			data = binary.LittleEndian.AppendUint32(data, math.Float32bits(v))
		}

		shape := make([]int64, len(b.Shape()))
		for i, d := range b.Shape() {
			shape[i] = int64(d)
		}
		header[name] = TensorHeader{
			DType:       DTypeF32,
			Shape:       shape,
			DataOffsets: [2]int64{start, int64(len(data))},
		}
	}

	meta := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	sum := ComputeChecksum(data)
	meta[ChecksumKey] = hex.EncodeToString(sum[:])
	meta[FormatKey] = FormatName
	header[MetadataKey] = meta

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	// Pad with spaces so the data section starts 8-byte aligned.
	if pad := len(headerJSON) % 8; pad != 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	if err := binary.Write(w.file, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := w.file.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("failed to write tensor data: %w", err)
	}
	return nil
}

// Close closes the writer and the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
