package dnn

import (
	"log/slog"
	"math"

	"github.com/born-ml/dnnconv/internal/parallel"
)

// DefaultBlockSize is the channel block of internal layouts.
const DefaultBlockSize = 8

// Engine creates primitives, layouts and buffers.
//
// The engine is stateless apart from its options; primitives it creates are
// independent and may be executed from different goroutines.
type Engine struct {
	blockSize int
	par       parallel.Config
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithBlockSize sets the channel block of internal layouts.
// A block of 1 makes every internal layout equal to the plain user layout.
func WithBlockSize(b int) Option {
	return func(e *Engine) {
		if b > 0 {
			e.blockSize = b
		}
	}
}

// WithWorkers sets how many goroutines kernels may use. 0 keeps the CPU count.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.par = e.par.WithWorkers(n)
	}
}

// WithMinChunk sets the minimum number of work items per goroutine.
func WithMinChunk(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.par.MinChunkSize = n
		}
	}
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		blockSize: DefaultBlockSize,
		par:       parallel.DefaultConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BlockSize returns the channel block of internal layouts.
func (e *Engine) BlockSize() int {
	return e.blockSize
}

// Logger returns the engine logger. Layers built on the engine log through
// it unless given their own.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// AllocateBuffer returns a zeroed buffer large enough for layout.
func (e *Engine) AllocateBuffer(l *Layout) ([]float32, error) {
	if l == nil {
		return nil, statusErrorf("AllocateBuffer", StatusIncorrectInput, "nil layout")
	}
	if l.MemorySize() > math.MaxInt32 {
		return nil, statusErrorf("AllocateBuffer", StatusMemoryError,
			"%d elements exceed the buffer limit of %d", l.MemorySize(), math.MaxInt32)
	}
	return make([]float32, l.MemorySize()), nil
}
