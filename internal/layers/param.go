package layers

import (
	"errors"
	"fmt"

	"github.com/born-ml/dnnconv/internal/tensor"
)

// ErrInvalidParam is returned for layer parameters the layer cannot honor.
var ErrInvalidParam = errors.New("invalid layer parameter")

// Engine selects which implementation a layer asks for.
type Engine int

// Engine values, numbered as in the Caffe model format.
const (
	EngineDefault Engine = 0
	EngineCaffe   Engine = 1
	EngineCUDNN   Engine = 2
	EngineDNN     Engine = 3
)

// String returns the engine name.
func (e Engine) String() string {
	switch e {
	case EngineDefault:
		return "DEFAULT"
	case EngineCaffe:
		return "CAFFE"
	case EngineCUDNN:
		return "CUDNN"
	case EngineDNN:
		return "DNN"
	default:
		return fmt.Sprintf("engine(%d)", int(e))
	}
}

// VarianceNorm selects the fan used by the xavier and msra fillers.
type VarianceNorm int

// VarianceNorm values.
const (
	FanIn   VarianceNorm = 0
	FanOut  VarianceNorm = 1
	Average VarianceNorm = 2
)

// FillerParameter describes how a learnable blob is initialized.
//
// Type is one of "constant", "uniform", "gaussian", "xavier" or "msra".
type FillerParameter struct {
	Type         string
	Value        float32 // constant
	Min, Max     float32 // uniform
	Mean, Std    float32 // gaussian
	VarianceNorm VarianceNorm
}

// DefaultFiller returns the filler used when none is given: constant zero.
func DefaultFiller() FillerParameter {
	return FillerParameter{Type: "constant", Max: 1, Std: 1}
}

// ConvolutionParameter holds the convolution settings of a layer.
//
// Kernel, pad and stride follow the Caffe rules: either the repeated fields
// (one value for both axes, or {h, w}) or the explicit _h/_w pair is used,
// never both.
type ConvolutionParameter struct {
	NumOutput  int
	BiasTerm   *bool // nil means true
	Pad        []int
	KernelSize []int
	Stride     []int
	Dilation   []int
	PadH       int
	PadW       int
	KernelH    int
	KernelW    int
	StrideH    int
	StrideW    int
	Group      int // 0 means 1
	Axis       *int
	Engine     Engine

	WeightFiller *FillerParameter
	BiasFiller   *FillerParameter
}

// LayerParameter is the framework description of a layer.
type LayerParameter struct {
	Name   string
	Type   string
	Bottom []string
	Top    []string

	// PropagateDown, when set, says per bottom whether to compute its gradient.
	PropagateDown []bool

	Convolution ConvolutionParameter

	// Blobs are pretrained learnable blobs, weights first then bias.
	Blobs []*tensor.Blob
}

// convSettings is the resolved form of a ConvolutionParameter.
type convSettings struct {
	numOutput        int
	biasTerm         bool
	kernelH, kernelW int
	strideH, strideW int
	padH, padW       int
	group            int
	weightFiller     FillerParameter
	biasFiller       FillerParameter
}

// spatial resolves a repeated field or its explicit _h/_w pair.
func spatial(field string, values []int, h, w, def int, explicit bool) (int, int, error) {
	if explicit {
		if len(values) != 0 {
			return 0, 0, fmt.Errorf("%w: either %s or %s_h/%s_w, not both", ErrInvalidParam, field, field, field)
		}
		return h, w, nil
	}
	switch len(values) {
	case 0:
		return def, def, nil
	case 1:
		return values[0], values[0], nil
	case 2:
		return values[0], values[1], nil
	default:
		return 0, 0, fmt.Errorf("%w: %s has %d values, want 1 or 2 for a 2-D convolution",
			ErrInvalidParam, field, len(values))
	}
}

func resolve(p *ConvolutionParameter) (convSettings, error) {
	var s convSettings
	if p.Engine != EngineDefault && p.Engine != EngineDNN {
		return s, fmt.Errorf("%w: engine %s is not served by this layer", ErrInvalidParam, p.Engine)
	}
	if p.Axis != nil && *p.Axis != 1 && *p.Axis != -3 {
		return s, fmt.Errorf("%w: axis %d, only the channel axis 1 is supported", ErrInvalidParam, *p.Axis)
	}
	for _, d := range p.Dilation {
		if d != 1 {
			return s, fmt.Errorf("%w: dilation %v is not supported", ErrInvalidParam, p.Dilation)
		}
	}
	if p.NumOutput <= 0 {
		return s, fmt.Errorf("%w: num_output must be positive, got %d", ErrInvalidParam, p.NumOutput)
	}

	var err error
	kExplicit := p.KernelH != 0 || p.KernelW != 0
	if kExplicit && (p.KernelH == 0 || p.KernelW == 0) {
		return s, fmt.Errorf("%w: kernel_h and kernel_w must be given together", ErrInvalidParam)
	}
	if !kExplicit && len(p.KernelSize) == 0 {
		return s, fmt.Errorf("%w: kernel_size or kernel_h/kernel_w is required", ErrInvalidParam)
	}
	if s.kernelH, s.kernelW, err = spatial("kernel_size", p.KernelSize, p.KernelH, p.KernelW, 0, kExplicit); err != nil {
		return s, err
	}
	sExplicit := p.StrideH != 0 || p.StrideW != 0
	if s.strideH, s.strideW, err = spatial("stride", p.Stride, p.StrideH, p.StrideW, 1, sExplicit); err != nil {
		return s, err
	}
	pExplicit := p.PadH != 0 || p.PadW != 0
	if s.padH, s.padW, err = spatial("pad", p.Pad, p.PadH, p.PadW, 0, pExplicit); err != nil {
		return s, err
	}

	if s.kernelH <= 0 || s.kernelW <= 0 {
		return s, fmt.Errorf("%w: kernel %dx%d must be positive", ErrInvalidParam, s.kernelH, s.kernelW)
	}
	if s.strideH <= 0 || s.strideW <= 0 {
		return s, fmt.Errorf("%w: stride %dx%d must be positive", ErrInvalidParam, s.strideH, s.strideW)
	}
	if s.padH < 0 || s.padW < 0 {
		return s, fmt.Errorf("%w: pad %dx%d must not be negative", ErrInvalidParam, s.padH, s.padW)
	}

	s.group = p.Group
	if s.group == 0 {
		s.group = 1
	}
	if s.group < 0 || p.NumOutput%s.group != 0 {
		return s, fmt.Errorf("%w: num_output %d not divisible by group %d", ErrInvalidParam, p.NumOutput, s.group)
	}
	s.numOutput = p.NumOutput
	s.biasTerm = p.BiasTerm == nil || *p.BiasTerm

	s.weightFiller = DefaultFiller()
	if p.WeightFiller != nil {
		s.weightFiller = *p.WeightFiller
	}
	s.biasFiller = DefaultFiller()
	if p.BiasFiller != nil {
		s.biasFiller = *p.BiasFiller
	}
	return s, nil
}

// Validate reports whether p describes a usable convolution.
func (p ConvolutionParameter) Validate() error {
	_, err := resolve(&p)
	return err
}
