// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package layers provides framework layers backed by the dnn engine.
//
// The convolution layer accepts and produces plain NCHW blobs. Internally
// it runs on the engine's blocked layouts and leaves converted buffers on
// the blobs it touches, so a following engine-backed consumer skips the
// conversion.
//
// Example:
//
//	param := layers.LayerParameter{
//	    Name: "conv1",
//	    Type: "Convolution",
//	    Convolution: layers.ConvolutionParameter{
//	        NumOutput:  16,
//	        KernelSize: []int{3},
//	        Pad:        []int{1},
//	    },
//	}
//	conv, err := layers.New(param)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conv.Close()
//
//	bottom, _ := tensor.NewBlob(2, 3, 32, 32)
//	top, _ := tensor.NewBlob(1)
//	if err := conv.SetUp([]*tensor.Blob{bottom}, []*tensor.Blob{top}); err != nil {
//	    log.Fatal(err)
//	}
//	err = conv.Forward([]*tensor.Blob{bottom}, []*tensor.Blob{top})
package layers

import (
	"log/slog"
	"math/rand"

	"github.com/born-ml/dnnconv/internal/dnn"
	"github.com/born-ml/dnnconv/internal/layers"
	"github.com/born-ml/dnnconv/internal/tensor"
)

// Type aliases for public API

// Layer is the framework contract of a layer with one bottom and one top.
type Layer = layers.Layer

// ConvolutionLayer is the engine-backed convolution.
type ConvolutionLayer = layers.ConvolutionLayer

// MemoryDescriptor binds one buffer role of a layer to its layouts.
type MemoryDescriptor = layers.MemoryDescriptor

// ConversionStats counts the layout conversions of a descriptor.
type ConversionStats = layers.ConversionStats

// Geometry is the resolved convolution setting of a layer.
type Geometry = layers.Geometry

// LayerParameter describes a layer instance.
type LayerParameter = layers.LayerParameter

// ConvolutionParameter holds the convolution settings.
type ConvolutionParameter = layers.ConvolutionParameter

// FillerParameter describes how a learnable blob is initialized.
type FillerParameter = layers.FillerParameter

// Engine selects the implementation requested by a layer parameter.
type Engine = layers.Engine

// VarianceNorm selects the fan used by the xavier and msra fillers.
type VarianceNorm = layers.VarianceNorm

// Option configures a ConvolutionLayer.
type Option = layers.Option

// Engines.
const (
	EngineDefault = layers.EngineDefault
	EngineCaffe   = layers.EngineCaffe
	EngineCUDNN   = layers.EngineCUDNN
	EngineDNN     = layers.EngineDNN
)

// Variance norms.
const (
	FanIn   = layers.FanIn
	FanOut  = layers.FanOut
	Average = layers.Average
)

// Errors.
var (
	ErrInvalidParam = layers.ErrInvalidParam
	ErrClosed       = layers.ErrClosed
)

// New creates the layer described by param.
func New(param LayerParameter, opts ...Option) (Layer, error) {
	return layers.New(param, opts...)
}

// NewConvolutionLayer creates a convolution layer.
func NewConvolutionLayer(param LayerParameter, opts ...Option) (*ConvolutionLayer, error) {
	return layers.NewConvolutionLayer(param, opts...)
}

// WithEngine runs the layer on e instead of a private engine.
func WithEngine(e *dnn.Engine) Option { return layers.WithEngine(e) }

// WithLogger sets the layer logger.
func WithLogger(l *slog.Logger) Option { return layers.WithLogger(l) }

// WithRand sets the source used by the fillers.
func WithRand(r *rand.Rand) Option { return layers.WithRand(r) }

// WithBuildDate overrides the engine build date that selects the grouped
// filter layout.
func WithBuildDate(date int) Option { return layers.WithBuildDate(date) }

// DefaultFiller returns the filler used when none is given.
func DefaultFiller() FillerParameter { return layers.DefaultFiller() }

// Fill initializes the data of b as described by p.
func Fill(b *tensor.Blob, p FillerParameter, rng *rand.Rand) error {
	return layers.Fill(b, p, rng)
}
