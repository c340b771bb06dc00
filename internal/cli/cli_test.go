package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/dnnconv/internal/caffeproto"
	"github.com/born-ml/dnnconv/internal/serialization"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const smallConfig = `
layer:
  name: conv1
  num_output: 4
  kernel_size: 3
  pad: 1
  group: 2
  bias_filler: {type: constant, value: 0.1}
input: {num: 2, channels: 4, height: 6, width: 5}
engine: {block_size: %d}
`

func smallConfigWithBlock(t *testing.T, block int) string {
	t.Helper()
	return writeConfig(t, fmt.Sprintf(smallConfig, block))
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dnnconv "+Version)
	assert.Contains(t, out, "engine ")
	assert.Contains(t, out, "build   ")
}

func TestRun_SavesSnapshot(t *testing.T) {
	snapshot := filepath.Join(t.TempDir(), "conv1.safetensors")
	out, err := execute(t, "run", "--config", smallConfigWithBlock(t, 4), "-n", "2", "--save", snapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "Layer:      conv1")
	assert.Contains(t, out, "Top:        (2, 4, 6, 5)")
	assert.Contains(t, out, "Iterations: 2")
	assert.Contains(t, out, "Saved:      "+snapshot)

	blobs, meta, err := serialization.ReadBlobs(snapshot)
	require.NoError(t, err)
	require.Contains(t, blobs, "conv1.weight")
	require.Contains(t, blobs, "conv1.bias")
	assert.Equal(t, 4*2*3*3, blobs["conv1.weight"].Count())
	assert.Equal(t, "conv1", meta["layer"])
	assert.Equal(t, "4", meta["block_size"])

	// The snapshot feeds the next run.
	_, err = execute(t, "run", "--config", smallConfigWithBlock(t, 1), "--weights", snapshot)
	require.NoError(t, err)
}

func TestRun_InvalidIterations(t *testing.T) {
	_, err := execute(t, "run", "-n", "0")
	assert.ErrorContains(t, err, "--iterations")
}

func TestCheck_AllBlockSizes(t *testing.T) {
	out, err := execute(t, "check", "--config", smallConfigWithBlock(t, 8),
		"--block-size", "1,4,8", "--tolerance", "1e-3")
	require.NoError(t, err)
	for _, q := range []string{"output", "bottom_diff", "weight_diff", "bias_diff"} {
		assert.Contains(t, out, q)
	}
	assert.Contains(t, out, "block=1")
	assert.Contains(t, out, "block=4")
	assert.NotContains(t, out, "FAIL")
}

func TestCheck_DefaultConfig(t *testing.T) {
	_, err := execute(t, "check", "--tolerance", "1e-3")
	require.NoError(t, err)
}

func TestInspect(t *testing.T) {
	out, err := execute(t, "inspect", "--config", smallConfigWithBlock(t, 4), "--format", "json")
	require.NoError(t, err)

	var infos []descriptorInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 13)
	assert.Equal(t, "fwd_bottom_data   @ conv1", infos[0].Name)
	assert.True(t, infos[0].Converts)

	out, err = execute(t, "inspect", "--config", smallConfigWithBlock(t, 1), "--format", "json")
	require.NoError(t, err)
	infos = nil
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	for _, d := range infos {
		assert.False(t, d.Converts, d.Name)
	}

	out, err = execute(t, "inspect", "--config", smallConfigWithBlock(t, 4))
	require.NoError(t, err)
	assert.Contains(t, out, "DESCRIPTOR")

	_, err = execute(t, "inspect", "--format", "xml")
	assert.ErrorContains(t, err, "unsupported format")
}

func TestExport_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "conv1.caffemodel")

	out, err := execute(t, "export", "--config", smallConfigWithBlock(t, 4), "--out", model)
	require.NoError(t, err)
	assert.Contains(t, out, "layer conv1, 2 blob(s)")

	net, err := caffeproto.ParseFile(model)
	require.NoError(t, err)
	require.Len(t, net.Layers, 1)
	assert.Equal(t, "conv1", net.Layers[0].Name)
	assert.Equal(t, "Convolution", net.Layers[0].Type)
	assert.Len(t, net.Layers[0].Blobs, 2)

	// A config pointing at the model takes the layer and its blobs from it.
	cfg := writeConfig(t, "model: "+model+"\ninput: {num: 1, channels: 4, height: 6, width: 5}\n")
	_, err = execute(t, "check", "--config", cfg, "--tolerance", "1e-3")
	require.NoError(t, err)

	cfg = writeConfig(t, "model: "+model+"\nlayer: {name: conv9}\ninput: {channels: 4, height: 6, width: 5}\n")
	_, err = execute(t, "run", "--config", cfg)
	assert.ErrorContains(t, err, `no convolution layer "conv9"`)
}

func TestExport_RequiresOut(t *testing.T) {
	_, err := execute(t, "export")
	assert.ErrorContains(t, err, `"out" not set`)
}

func TestRoot_BadLogFormat(t *testing.T) {
	_, err := execute(t, "--log-format", "xml", "version")
	assert.ErrorContains(t, err, "unknown log format")
}

func TestRoot_MissingConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "config.load")
}
