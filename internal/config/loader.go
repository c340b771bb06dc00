// Package config loads the YAML description of a convolution run.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads, defaults and validates the configuration at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: Path is provided by the user.
	if err != nil {
		return Config{}, &Error{Op: "config.load", Path: path, Err: err}
	}
	return Parse(path, b)
}

// Parse decodes configuration bytes. path is only used in errors.
func Parse(path string, b []byte) (Config, error) {
	var dto YAMLConfig
	if err := yaml.Unmarshal(b, &dto); err != nil {
		return Config{}, &Error{Op: "config.parse", Path: path, Err: err}
	}
	return Map(path, dto)
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg, err := Map("", YAMLConfig{
		Layer: YAMLLayer{Name: "conv1", NumOutput: 16, KernelSize: IntList{3}, Pad: IntList{1}},
		Input: YAMLInput{Num: 2, Channels: 3, Height: 16, Width: 16},
	})
	if err != nil {
		panic(err)
	}
	return cfg
}
