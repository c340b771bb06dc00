// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dnn exposes the direct convolution engine.
//
// The engine follows a create/execute/delete primitive model. Every
// primitive publishes the memory layout it wants for each resource; callers
// convert their buffers with conversion primitives when those layouts differ
// from their own.
//
// Example:
//
//	e := dnn.New(dnn.WithBlockSize(8))
//	fwd, err := e.CreateConvolutionForwardBias(&dnn.ConvolutionDesc{...})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dnn.Delete(fwd)
//
//	src, _ := dnn.LayoutFromPrimitive(fwd, dnn.ResourceSrc)
//	fmt.Println(src.Format()) // nChw8c
package dnn

import (
	"log/slog"

	"github.com/born-ml/dnnconv/internal/dnn"
)

// Type aliases for public API

// Engine creates primitives and buffers.
type Engine = dnn.Engine

// Option configures an Engine.
type Option = dnn.Option

// Layout describes how a logical tensor is placed in a flat buffer.
type Layout = dnn.Layout

// Primitive is an executable engine operation.
type Primitive = dnn.Primitive

// Kind identifies the operation of a primitive.
type Kind = dnn.Kind

// Resource indexes the buffers of an execution.
type Resource = dnn.Resource

// Resources binds one buffer per resource slot.
type Resources = dnn.Resources

// ConvolutionDesc describes a grouped 2-D convolution.
type ConvolutionDesc = dnn.ConvolutionDesc

// Algorithm selects the convolution implementation.
type Algorithm = dnn.Algorithm

// Border selects how out-of-bounds input is treated.
type Border = dnn.Border

// Status is the result code of an engine call.
type Status = dnn.Status

// StatusError is returned by every failing engine call.
type StatusError = dnn.StatusError

// Version describes the engine release.
type Version = dnn.Version

// Resource slots.
const (
	ResourceSrc        = dnn.ResourceSrc
	ResourceDst        = dnn.ResourceDst
	ResourceFilter     = dnn.ResourceFilter
	ResourceBias       = dnn.ResourceBias
	ResourceDiffSrc    = dnn.ResourceDiffSrc
	ResourceDiffFilter = dnn.ResourceDiffFilter
	ResourceDiffBias   = dnn.ResourceDiffBias
	ResourceDiffDst    = dnn.ResourceDiffDst
	ResourceFrom       = dnn.ResourceFrom
	ResourceTo         = dnn.ResourceTo
)

// Status codes.
const (
	StatusSuccess        = dnn.StatusSuccess
	StatusIncorrectInput = dnn.StatusIncorrectInput
	StatusMemoryError    = dnn.StatusMemoryError
	StatusUnimplemented  = dnn.StatusUnimplemented
)

// Algorithms and border modes.
const (
	AlgorithmConvolutionDirect = dnn.AlgorithmConvolutionDirect
	BorderZeros                = dnn.BorderZeros
)

// DefaultBlockSize is the channel block of the internal layouts.
const DefaultBlockSize = dnn.DefaultBlockSize

// GroupedFilterBuildDate is the first build with 5-D grouped filters.
const GroupedFilterBuildDate = dnn.GroupedFilterBuildDate

// New creates an engine.
func New(opts ...Option) *Engine { return dnn.New(opts...) }

// WithBlockSize sets the channel block size; 1 makes every layout plain.
func WithBlockSize(b int) Option { return dnn.WithBlockSize(b) }

// WithWorkers limits the goroutines a kernel uses; 0 means GOMAXPROCS.
func WithWorkers(n int) Option { return dnn.WithWorkers(n) }

// WithMinChunk sets the smallest unit of work handed to one goroutine.
func WithMinChunk(n int) Option { return dnn.WithMinChunk(n) }

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *slog.Logger) Option { return dnn.WithLogger(l) }

// NewLayout creates a plain strided layout. Sizes and strides are innermost first.
func NewLayout(sizes, strides []int) (*Layout, error) { return dnn.NewLayout(sizes, strides) }

// LayoutFromPrimitive returns the layout p expects for resource r.
func LayoutFromPrimitive(p Primitive, r Resource) (*Layout, error) {
	return dnn.LayoutFromPrimitive(p, r)
}

// Execute runs p on res.
func Execute(p Primitive, res *Resources) error { return dnn.Execute(p, res) }

// Delete releases p.
func Delete(p Primitive) error { return dnn.Delete(p) }

// StatusOf extracts the engine status from err.
func StatusOf(err error) Status { return dnn.StatusOf(err) }

// GetVersion returns the engine version.
func GetVersion() Version { return dnn.GetVersion() }

// BuildDate returns the numeric engine build date.
func BuildDate() int { return dnn.BuildDate() }
