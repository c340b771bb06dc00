package config

import (
	"fmt"
	"strings"

	"github.com/born-ml/dnnconv/internal/layers"
)

// Map applies defaults to dto and validates it.
func Map(path string, dto YAMLConfig) (Config, error) {
	cfg := Config{
		Model:      strings.TrimSpace(dto.Model),
		Seed:       DefaultSeed,
		Iterations: DefaultIterations,
		Tolerance:  DefaultTolerance,
		Engine: Engine{
			BlockSize: DefaultBlockSize,
			Workers:   dto.Engine.Workers,
			MinChunk:  dto.Engine.MinChunk,
		},
		Input: Input{
			Num:      dto.Input.Num,
			Channels: dto.Input.Channels,
			Height:   dto.Input.Height,
			Width:    dto.Input.Width,
		},
	}
	if dto.Seed != nil {
		cfg.Seed = *dto.Seed
	}
	if dto.Iterations != nil {
		cfg.Iterations = *dto.Iterations
	}
	if dto.Tolerance != nil {
		cfg.Tolerance = *dto.Tolerance
	}
	if dto.Engine.BlockSize != nil {
		cfg.Engine.BlockSize = *dto.Engine.BlockSize
	}
	if cfg.Input.Num == 0 {
		cfg.Input.Num = 1
	}

	if cfg.Iterations < 1 {
		return Config{}, invalidField(path, "iterations", "must be at least 1")
	}
	if cfg.Tolerance <= 0 {
		return Config{}, invalidField(path, "tolerance", "must be positive")
	}
	if cfg.Engine.BlockSize < 1 {
		return Config{}, invalidField(path, "engine.block_size", "must be at least 1")
	}
	if cfg.Engine.Workers < 0 {
		return Config{}, invalidField(path, "engine.workers", "must not be negative")
	}
	if cfg.Engine.MinChunk < 0 {
		return Config{}, invalidField(path, "engine.min_chunk", "must not be negative")
	}
	for field, v := range map[string]int{
		"input.num": cfg.Input.Num, "input.channels": cfg.Input.Channels,
		"input.height": cfg.Input.Height, "input.width": cfg.Input.Width,
	} {
		if v <= 0 {
			return Config{}, invalidField(path, field, "must be positive")
		}
	}

	layer, err := mapLayer(path, dto.Layer, cfg.Model != "")
	if err != nil {
		return Config{}, err
	}
	cfg.Layer = layer
	return cfg, nil
}

func mapLayer(path string, y YAMLLayer, fromModel bool) (layers.LayerParameter, error) {
	name := strings.TrimSpace(y.Name)
	if fromModel {
		// The model supplies the layer; an empty name selects its first
		// convolution.
		return layers.LayerParameter{Name: name, Type: "Convolution"}, nil
	}
	if name == "" {
		name = DefaultLayerName
	}
	p := layers.LayerParameter{
		Name:   name,
		Type:   "Convolution",
		Bottom: []string{"data"},
		Top:    []string{name},
	}
	if y.NumOutput <= 0 {
		return p, invalidField(path, "layer.num_output", "must be positive")
	}

	engine, err := parseEngine(y.Engine)
	if err != nil {
		return p, invalidField(path, "layer.engine", err.Error())
	}
	p.Convolution = layers.ConvolutionParameter{
		NumOutput:  y.NumOutput,
		BiasTerm:   y.BiasTerm,
		KernelSize: y.KernelSize,
		Stride:     y.Stride,
		Pad:        y.Pad,
		KernelH:    y.KernelH,
		KernelW:    y.KernelW,
		StrideH:    y.StrideH,
		StrideW:    y.StrideW,
		PadH:       y.PadH,
		PadW:       y.PadW,
		Group:      y.Group,
		Engine:     engine,
	}

	weight := &YAMLFiller{Type: "xavier"}
	if y.WeightFiller != nil {
		weight = y.WeightFiller
	}
	if p.Convolution.WeightFiller, err = mapFiller(weight); err != nil {
		return p, invalidField(path, "layer.weight_filler", err.Error())
	}
	if y.BiasFiller != nil {
		if p.Convolution.BiasFiller, err = mapFiller(y.BiasFiller); err != nil {
			return p, invalidField(path, "layer.bias_filler", err.Error())
		}
	}

	if err := p.Convolution.Validate(); err != nil {
		return p, invalidField(path, "layer", err.Error())
	}
	return p, nil
}

func parseEngine(s string) (layers.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return layers.EngineDefault, nil
	case "dnn", "mkl2017":
		return layers.EngineDNN, nil
	default:
		return 0, fmt.Errorf("unsupported engine %q", s)
	}
}

func mapFiller(y *YAMLFiller) (*layers.FillerParameter, error) {
	f := layers.DefaultFiller()
	if t := strings.ToLower(strings.TrimSpace(y.Type)); t != "" {
		f.Type = t
	}
	switch f.Type {
	case "constant", "uniform", "gaussian", "xavier", "msra":
	default:
		return nil, fmt.Errorf("unknown filler type %q", y.Type)
	}
	f.Value, f.Min, f.Mean = y.Value, y.Min, y.Mean
	if y.Max != nil {
		f.Max = *y.Max
	}
	if y.Std != nil {
		f.Std = *y.Std
	}
	switch strings.ToLower(strings.TrimSpace(y.VarianceNorm)) {
	case "", "fan_in":
		f.VarianceNorm = layers.FanIn
	case "fan_out":
		f.VarianceNorm = layers.FanOut
	case "average":
		f.VarianceNorm = layers.Average
	default:
		return nil, fmt.Errorf("unknown variance_norm %q", y.VarianceNorm)
	}
	return &f, nil
}
