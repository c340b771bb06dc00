package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/born-ml/dnnconv/internal/caffeproto"
	"github.com/born-ml/dnnconv/internal/config"
	"github.com/born-ml/dnnconv/internal/dnn"
	"github.com/born-ml/dnnconv/internal/layers"
	"github.com/born-ml/dnnconv/internal/serialization"
	"github.com/born-ml/dnnconv/internal/tensor"
)

// session is a set-up layer with its bottom and top blobs.
type session struct {
	cfg    config.Config
	param  layers.LayerParameter
	logger *slog.Logger
	rng    *rand.Rand
	engine *dnn.Engine
	layer  *layers.ConvolutionLayer
	bottom *tensor.Blob
	top    *tensor.Blob
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newSession builds the layer described by cfg, optionally restoring its
// blobs from a snapshot, and fills the bottom with U(-1, 1).
func newSession(cfg config.Config, logger *slog.Logger, weights string) (*session, error) {
	param := cfg.Layer
	if cfg.Model != "" {
		var err error
		if param, err = layerFromModel(cfg.Model, cfg.Layer.Name); err != nil {
			return nil, err
		}
	}
	if weights != "" {
		blobs, err := loadWeights(weights, param.Name)
		if err != nil {
			return nil, err
		}
		param.Blobs = blobs
	}

	//nolint:gosec // Synthetic inputs, not security-critical.
	rng := rand.New(rand.NewSource(cfg.Seed))
	engine := dnn.New(
		dnn.WithBlockSize(cfg.Engine.BlockSize),
		dnn.WithWorkers(cfg.Engine.Workers),
		dnn.WithMinChunk(cfg.Engine.MinChunk),
		dnn.WithLogger(logger),
	)
	layer, err := layers.NewConvolutionLayer(param,
		layers.WithEngine(engine),
		layers.WithLogger(logger),
		layers.WithRand(rng),
	)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, param: param, logger: logger, rng: rng, engine: engine, layer: layer}
	if s.bottom, err = tensor.NewBlob(cfg.Input.Shape()...); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	if s.top, err = tensor.NewBlob(1); err != nil {
		return nil, err
	}
	if err := layers.Fill(s.bottom, uniformFiller, rng); err != nil {
		return nil, err
	}
	if err := layer.SetUp(s.blobs()); err != nil {
		_ = layer.Close()
		return nil, err
	}
	logger.Info("layer.ready",
		"layer", layer.Name(),
		"bottom", s.bottom.Shape().String(),
		"top", s.top.Shape().String(),
		"block_size", engine.BlockSize(),
	)
	return s, nil
}

var uniformFiller = layers.FillerParameter{Type: "uniform", Min: -1, Max: 1}

func (s *session) blobs() ([]*tensor.Blob, []*tensor.Blob) {
	return []*tensor.Blob{s.bottom}, []*tensor.Blob{s.top}
}

// step runs one forward pass, seeds the top gradient with U(-1, 1) and runs
// the backward pass.
func (s *session) step() error {
	bottom, top := s.blobs()
	if err := s.layer.Forward(bottom, top); err != nil {
		return err
	}
	diff, err := s.top.MutableCPUDiff()
	if err != nil {
		return err
	}
	for i := range diff {
		diff[i] = float32(s.rng.Float64()*2 - 1)
	}
	return s.layer.Backward(top, []bool{true}, bottom)
}

func (s *session) Close() error {
	return s.layer.Close()
}

// layerFromModel returns the named convolution of a binary Caffe model, or
// its first convolution when name is empty.
func layerFromModel(path, name string) (layers.LayerParameter, error) {
	net, err := caffeproto.ParseFile(path)
	if err != nil {
		return layers.LayerParameter{}, err
	}
	for i := range net.Layers {
		l := &net.Layers[i]
		if l.Type != "Convolution" || (name != "" && l.Name != name) {
			continue
		}
		return caffeproto.ToLayer(l)
	}
	if name == "" {
		return layers.LayerParameter{}, fmt.Errorf("model %s: no convolution layer", path)
	}
	return layers.LayerParameter{}, fmt.Errorf("model %s: no convolution layer %q", path, name)
}

// Snapshot tensor names.
func weightName(layer string) string { return layer + ".weight" }
func biasName(layer string) string   { return layer + ".bias" }

var errMissingWeights = errors.New("snapshot has no weights for layer")

func loadWeights(path, layer string) ([]*tensor.Blob, error) {
	blobs, _, err := serialization.ReadBlobs(path)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	w, ok := blobs[weightName(layer)]
	if !ok {
		return nil, fmt.Errorf("%w %q: %s", errMissingWeights, layer, path)
	}
	out := []*tensor.Blob{w}
	if b, ok := blobs[biasName(layer)]; ok {
		out = append(out, b)
	}
	return out, nil
}

func saveWeights(path string, l *layers.ConvolutionLayer, meta map[string]string) error {
	blobs := l.Blobs()
	m := map[string]*tensor.Blob{weightName(l.Name()): blobs[0]}
	if len(blobs) > 1 {
		m[biasName(l.Name())] = blobs[1]
	}
	return serialization.WriteBlobs(path, m, meta)
}
