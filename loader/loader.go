// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader reads layer weights from binary Caffe models and
// SafeTensors snapshots.
//
// Example usage:
//
//	import "github.com/born-ml/dnnconv/loader"
//
//	// Open a model with format detection
//	model, err := loader.OpenModel("path/to/net.caffemodel")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Build the first convolution with its pretrained blobs
//	param, err := model.Layer("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	conv, err := layers.New(param)
package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/born-ml/dnnconv/internal/caffeproto"
	"github.com/born-ml/dnnconv/internal/layers"
	"github.com/born-ml/dnnconv/internal/serialization"
	"github.com/born-ml/dnnconv/internal/tensor"
)

// ModelFormat represents the weight file format.
type ModelFormat int

// Supported model formats.
const (
	FormatUnknown ModelFormat = iota
	FormatCaffe
	FormatSafeTensors
)

// String returns the format name.
func (f ModelFormat) String() string {
	switch f {
	case FormatCaffe:
		return "Caffe"
	case FormatSafeTensors:
		return "SafeTensors"
	default:
		return "unknown"
	}
}

// DetectFormat infers the format from the file extension.
func DetectFormat(path string) ModelFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".caffemodel", ".binaryproto":
		return FormatCaffe
	case ".safetensors":
		return FormatSafeTensors
	default:
		return FormatUnknown
	}
}

// Model is the decoded content of a weight file.
type Model struct {
	Format ModelFormat

	// Name is the network name of a Caffe model.
	Name string

	// Layers are the convolution layers of a Caffe model, in definition
	// order, with their blobs.
	Layers []layers.LayerParameter

	// Blobs and Metadata are the tensors and metadata of a snapshot.
	Blobs    map[string]*tensor.Blob
	Metadata map[string]string
}

// OpenModel reads a model file and auto-detects the format.
//
// Supported formats:
//   - .caffemodel (binary Caffe NetParameter)
//   - .safetensors (snapshot written by WriteSnapshot or dnnconv run --save)
func OpenModel(path string) (*Model, error) {
	switch f := DetectFormat(path); f {
	case FormatCaffe:
		return openCaffe(path)
	case FormatSafeTensors:
		blobs, meta, err := serialization.ReadBlobs(path)
		if err != nil {
			return nil, err
		}
		return &Model{Format: f, Blobs: blobs, Metadata: meta}, nil
	default:
		return nil, fmt.Errorf("unsupported file format: %s (expected .caffemodel or .safetensors)", filepath.Ext(path))
	}
}

func openCaffe(path string) (*Model, error) {
	net, err := caffeproto.ParseFile(path)
	if err != nil {
		return nil, err
	}
	m := &Model{Format: FormatCaffe, Name: net.Name}
	for i := range net.Layers {
		if net.Layers[i].Type != "Convolution" {
			continue
		}
		p, err := caffeproto.ToLayer(&net.Layers[i])
		if err != nil {
			return nil, err
		}
		m.Layers = append(m.Layers, p)
	}
	return m, nil
}

// Layer returns the named convolution layer, or the first one when name is
// empty. Snapshot blobs named "<name>.weight" and "<name>.bias" are returned
// as a layer parameter without convolution settings.
func (m *Model) Layer(name string) (layers.LayerParameter, error) {
	if m.Format == FormatSafeTensors {
		w, ok := m.Blobs[name+".weight"]
		if !ok {
			return layers.LayerParameter{}, fmt.Errorf("snapshot has no weights for layer %q", name)
		}
		p := layers.LayerParameter{Name: name, Type: "Convolution", Blobs: []*tensor.Blob{w}}
		if b, ok := m.Blobs[name+".bias"]; ok {
			p.Blobs = append(p.Blobs, b)
		}
		return p, nil
	}
	for _, l := range m.Layers {
		if name == "" || l.Name == name {
			return l, nil
		}
	}
	return layers.LayerParameter{}, fmt.Errorf("model %q has no convolution layer %q", m.Name, name)
}

// WriteSnapshot saves blobs as a SafeTensors file.
func WriteSnapshot(path string, blobs map[string]*tensor.Blob, metadata map[string]string) error {
	return serialization.WriteBlobs(path, blobs, metadata)
}
