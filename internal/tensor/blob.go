// Package tensor provides the framework-side blob container.
//
// A Blob holds data and gradient ("diff") buffers in the plain NCHW layout.
// Layers backed by the dnn engine may additionally attach private buffers in
// engine layouts; the blob converts them back lazily when plain data is read.
package tensor

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when values do not fit a blob.
var ErrShapeMismatch = errors.New("shape mismatch")

// Blob is an N-D tensor with data and diff, usually shaped (N, C, H, W).
type Blob struct {
	shape Shape
	data  *SyncedMemory
	diff  *SyncedMemory
}

// NewBlob creates a blob of the given shape.
func NewBlob(shape ...int) (*Blob, error) {
	b := &Blob{}
	if err := b.Reshape(shape...); err != nil {
		return nil, err
	}
	return b, nil
}

// FromSlice creates a blob holding a copy of values.
func FromSlice(values []float32, shape ...int) (*Blob, error) {
	b, err := NewBlob(shape...)
	if err != nil {
		return nil, err
	}
	if err := b.SetData(values); err != nil {
		return nil, err
	}
	return b, nil
}

// Reshape changes the shape. Buffers are kept when the element count is
// unchanged and reallocated otherwise.
func (b *Blob) Reshape(shape ...int) error {
	s := Shape(shape)
	if err := s.Validate(); err != nil {
		return fmt.Errorf("reshape blob: %w", err)
	}
	count := s.NumElements()
	if b.data == nil || b.data.Size() != count {
		b.data = NewSyncedMemory(count)
		b.diff = NewSyncedMemory(count)
	}
	b.shape = s.Clone()
	return nil
}

// Shape returns a copy of the shape.
func (b *Blob) Shape() Shape {
	return b.shape.Clone()
}

// Count returns the number of elements.
func (b *Blob) Count() int {
	return b.shape.NumElements()
}

// Num returns the batch dimension.
func (b *Blob) Num() int { return b.shape.legacyAxis(0) }

// Channels returns the channel dimension.
func (b *Blob) Channels() int { return b.shape.legacyAxis(1) }

// Height returns the height dimension.
func (b *Blob) Height() int { return b.shape.legacyAxis(2) }

// Width returns the width dimension.
func (b *Blob) Width() int { return b.shape.legacyAxis(3) }

// CPUData returns the data for reading.
func (b *Blob) CPUData() ([]float32, error) { return b.data.CPUData() }

// MutableCPUData returns the data for writing.
func (b *Blob) MutableCPUData() ([]float32, error) { return b.data.MutableCPUData() }

// CPUDiff returns the gradient for reading.
func (b *Blob) CPUDiff() ([]float32, error) { return b.diff.CPUData() }

// MutableCPUDiff returns the gradient for writing.
func (b *Blob) MutableCPUDiff() ([]float32, error) { return b.diff.MutableCPUData() }

// PrvData returns the private data buffer if it is current.
func (b *Blob) PrvData() []float32 { return b.data.PrvData() }

// PrvDiff returns the private gradient buffer if it is current.
func (b *Blob) PrvDiff() []float32 { return b.diff.PrvData() }

// SetPrvData attaches a private data buffer.
func (b *Blob) SetPrvData(prv []float32, d PrvDescriptor, sameData bool) {
	b.data.SetPrvData(prv, d, sameData)
}

// SetPrvDiff attaches a private gradient buffer.
func (b *Blob) SetPrvDiff(prv []float32, d PrvDescriptor, sameData bool) {
	b.diff.SetPrvData(prv, d, sameData)
}

// PrvDescriptorData returns the descriptor of the private data, or nil.
func (b *Blob) PrvDescriptorData() PrvDescriptor { return b.data.PrvDescriptor() }

// PrvDescriptorDiff returns the descriptor of the private gradient, or nil.
func (b *Blob) PrvDescriptorDiff() PrvDescriptor { return b.diff.PrvDescriptor() }

// DataHead returns the synchronization state of the data.
func (b *Blob) DataHead() Head { return b.data.Head() }

// DiffHead returns the synchronization state of the gradient.
func (b *Blob) DiffHead() Head { return b.diff.Head() }

// SetData copies values into the data.
func (b *Blob) SetData(values []float32) error {
	return b.set(b.data, values)
}

// SetDiff copies values into the gradient.
func (b *Blob) SetDiff(values []float32) error {
	return b.set(b.diff, values)
}

func (b *Blob) set(m *SyncedMemory, values []float32) error {
	if len(values) != b.Count() {
		return fmt.Errorf("%w: %d values for blob %v", ErrShapeMismatch, len(values), b.shape)
	}
	dst, err := m.MutableCPUData()
	if err != nil {
		return err
	}
	copy(dst, values)
	return nil
}

// Update applies data -= lr * diff.
func (b *Blob) Update(lr float32) error {
	diff, err := b.CPUDiff()
	if err != nil {
		return err
	}
	data, err := b.MutableCPUData()
	if err != nil {
		return err
	}
	for i := range data {
		data[i] -= lr * diff[i]
	}
	return nil
}

// String returns a short description.
func (b *Blob) String() string {
	return fmt.Sprintf("Blob%v data=%s diff=%s", b.shape, b.data.Head(), b.diff.Head())
}
