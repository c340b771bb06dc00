// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/dnnconv/internal/tensor"
)

// Type aliases for public API

// Blob is an N-D tensor with data and diff buffers.
type Blob = tensor.Blob

// Shape represents the dimensions of a blob.
// Example: Shape{2, 3, 4, 4} is a batch of two 3-channel 4×4 images.
type Shape = tensor.Shape

// Head reports which copy of a buffer is current.
type Head = tensor.Head

// PrvDescriptor is implemented by whoever owns a private buffer and can
// convert it back to the plain layout.
type PrvDescriptor = tensor.PrvDescriptor

// Memory heads.
const (
	Uninitialized = tensor.Uninitialized
	AtCPU         = tensor.HeadAtCPU
	AtPrv         = tensor.HeadAtPrv
	SyncedPrv     = tensor.SyncedPrv
)

// ErrShapeMismatch is returned when values do not fit a blob.
var ErrShapeMismatch = tensor.ErrShapeMismatch

// NewBlob creates a blob of the given shape. Buffers are allocated on first use.
func NewBlob(shape ...int) (*Blob, error) {
	return tensor.NewBlob(shape...)
}

// FromSlice creates a blob holding a copy of values.
func FromSlice(values []float32, shape ...int) (*Blob, error) {
	return tensor.FromSlice(values, shape...)
}
