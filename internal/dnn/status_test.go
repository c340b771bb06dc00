package dnn

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusSuccess, StatusOf(nil))
	assert.Equal(t, StatusIncorrectInput, StatusOf(fmt.Errorf("plain")))

	err := statusErrorf("Op", StatusMemoryError, "out of %s", "memory")
	assert.Equal(t, StatusMemoryError, StatusOf(err))

	// Survives additional wrapping by callers.
	wrapped := errors.Wrap(err, "layer setup")
	assert.Equal(t, StatusMemoryError, StatusOf(wrapped))
	assert.Contains(t, wrapped.Error(), "layer setup: dnn: Op failed with status -3 (memory error): out of memory")
}

func TestStatusError_Message(t *testing.T) {
	e := &StatusError{Op: "Execute", Status: StatusUnimplemented}
	assert.Equal(t, "dnn: Execute failed with status -127 (unimplemented)", e.Error())
	assert.Equal(t, "status(5)", Status(5).String())
	assert.Equal(t, "success", StatusSuccess.String())
}

func TestResourceString(t *testing.T) {
	assert.Equal(t, "src", ResourceFrom.String())
	assert.Equal(t, "dst", ResourceTo.String())
	assert.Equal(t, "diff_filter", ResourceDiffFilter.String())
	assert.Equal(t, "unknown", ResourceNumber.String())
}

func TestVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, "2017.0.3 (build 20170425)", v.String())
	assert.Equal(t, 20170425, BuildDate())
	assert.GreaterOrEqual(t, BuildDate(), GroupedFilterBuildDate)
}

func TestEngineOptions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	e := New(WithBlockSize(4), WithWorkers(1), WithMinChunk(2), WithLogger(logger), WithBlockSize(0))
	assert.Equal(t, 4, e.BlockSize())
	assert.Same(t, logger, e.Logger())

	from, err := NewLayout([]int{2, 2, 4, 1}, []int{1, 2, 4, 16})
	require.NoError(t, err)
	_, err = e.CreateConversion(from, dataLayout(from.Sizes(), 4))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "dnn.conversion.created")

	_, err = e.AllocateBuffer(nil)
	assert.Equal(t, StatusIncorrectInput, StatusOf(err))

	huge, err := NewLayout([]int{1 << 16, 1 << 16}, []int{1, 1 << 16})
	require.NoError(t, err)
	_, err = e.AllocateBuffer(huge)
	assert.Equal(t, StatusMemoryError, StatusOf(err))
}
