package dnn

import (
	"sync/atomic"
)

// Kind identifies what a primitive computes.
type Kind int

// Primitive kinds.
const (
	KindConvolutionForward Kind = iota
	KindConvolutionForwardBias
	KindConvolutionBackwardData
	KindConvolutionBackwardFilter
	KindConvolutionBackwardBias
	KindConversion
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConvolutionForward:
		return "convolution_forward"
	case KindConvolutionForwardBias:
		return "convolution_forward_bias"
	case KindConvolutionBackwardData:
		return "convolution_backward_data"
	case KindConvolutionBackwardFilter:
		return "convolution_backward_filter"
	case KindConvolutionBackwardBias:
		return "convolution_backward_bias"
	case KindConversion:
		return "conversion"
	default:
		return "unknown"
	}
}

// Primitive is a configured computation bound to fixed shapes and layouts.
type Primitive interface {
	// Kind reports what the primitive computes.
	Kind() Kind

	// Layout returns the layout the primitive expects for resource r.
	Layout(r Resource) (*Layout, error)

	// Execute runs the primitive on the buffers bound in res.
	Execute(res *Resources) error

	// Close releases the primitive. Executing a closed primitive fails.
	Close() error
}

// primitiveBase carries the resource layouts and the closed flag.
type primitiveBase struct {
	kind    Kind
	layouts [ResourceNumber]*Layout
	outputs []Resource
	closed  atomic.Bool
}

func (p *primitiveBase) Kind() Kind {
	return p.kind
}

func (p *primitiveBase) Layout(r Resource) (*Layout, error) {
	if r < 0 || r >= ResourceNumber || p.layouts[r] == nil {
		return nil, statusErrorf("LayoutCreateFromPrimitive", StatusIncorrectInput,
			"%s primitive has no %s resource", p.kind, r)
	}
	return p.layouts[r], nil
}

func (p *primitiveBase) Close() error {
	p.closed.Store(true)
	return nil
}

// check validates that every resource the primitive uses is bound and large enough.
func (p *primitiveBase) check(op string, res *Resources) error {
	if p.closed.Load() {
		return statusErrorf(op, StatusIncorrectInput, "%s primitive is closed", p.kind)
	}
	if res == nil {
		return statusErrorf(op, StatusIncorrectInput, "nil resources")
	}
	for r, l := range p.layouts {
		if l == nil {
			continue
		}
		buf := res[r]
		if buf == nil {
			return statusErrorf(op, StatusIncorrectInput, "resource %s is not bound", Resource(r))
		}
		if len(buf) < l.MemorySize() {
			return statusErrorf(op, StatusIncorrectInput, "resource %s holds %d elements, layout %s needs %d",
				Resource(r), len(buf), l, l.MemorySize())
		}
	}
	return nil
}

// Delete closes p if it is not nil.
func Delete(p Primitive) error {
	if p == nil {
		return nil
	}
	return p.Close()
}
