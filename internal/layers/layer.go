// Package layers implements framework layers on top of the dnn engine.
//
// The convolution layer keeps the framework's plain NCHW blobs as the source
// of truth and hands the engine buffers in its preferred internal layouts.
// A MemoryDescriptor per (blob, role) pair converts between the two on demand
// and attaches converted buffers to the blobs, so that consecutive consumers
// in the same layout skip the conversion.
package layers

import (
	"fmt"

	"github.com/born-ml/dnnconv/internal/tensor"
)

// Layer is the framework contract of a layer with one bottom and one top.
type Layer interface {
	// Name returns the instance name from the layer parameter.
	Name() string

	// Type returns the registered layer type, e.g. "Convolution".
	Type() string

	// SetUp validates bottom and top, creates learnable blobs and shapes top.
	SetUp(bottom, top []*tensor.Blob) error

	// Reshape adapts the layer and top to the current bottom shape.
	Reshape(bottom, top []*tensor.Blob) error

	// Forward computes top from bottom.
	Forward(bottom, top []*tensor.Blob) error

	// Backward computes the gradients of bottom and of the learnable blobs
	// from the gradient of top.
	Backward(top []*tensor.Blob, propagateDown []bool, bottom []*tensor.Blob) error

	// Blobs returns the learnable blobs.
	Blobs() []*tensor.Blob

	// Close releases engine resources. The layer is unusable afterwards.
	Close() error
}

// New creates the layer described by param.
func New(param LayerParameter, opts ...Option) (Layer, error) {
	switch param.Type {
	case "Convolution":
		return NewConvolutionLayer(param, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown layer type %q", ErrInvalidParam, param.Type)
	}
}

func checkCounts(name string, bottom, top []*tensor.Blob) error {
	if len(bottom) != 1 || len(top) != 1 {
		return fmt.Errorf("%w: layer %q takes exactly one bottom and one top, got %d and %d",
			ErrInvalidParam, name, len(bottom), len(top))
	}
	if bottom[0] == nil || top[0] == nil {
		return fmt.Errorf("%w: layer %q got a nil blob", ErrInvalidParam, name)
	}
	return nil
}
