package config

import (
	"github.com/born-ml/dnnconv/internal/layers"
	"github.com/born-ml/dnnconv/internal/tensor"
)

// Config describes one convolution run.
type Config struct {
	// Model, when set, is a binary Caffe model; its first convolution layer
	// (or the one named by Layer.Name) replaces the configured layer.
	Model string

	Layer  layers.LayerParameter
	Input  Input
	Engine Engine

	Seed       int64
	Iterations int
	Tolerance  float64
}

// Input is the bottom blob shape.
type Input struct {
	Num, Channels, Height, Width int
}

// Shape returns the NCHW shape.
func (i Input) Shape() tensor.Shape {
	return tensor.Shape{i.Num, i.Channels, i.Height, i.Width}
}

// Engine holds the dnn engine options.
type Engine struct {
	BlockSize int
	Workers   int
	MinChunk  int
}

// Defaults.
const (
	DefaultLayerName  = "conv"
	DefaultBlockSize  = 8
	DefaultSeed       = 1
	DefaultIterations = 1
	DefaultTolerance  = 1e-4
)
