package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

type YAMLConfig struct {
	Model      string     `yaml:"model"`
	Layer      YAMLLayer  `yaml:"layer"`
	Input      YAMLInput  `yaml:"input"`
	Engine     YAMLEngine `yaml:"engine"`
	Seed       *int64     `yaml:"seed"`
	Iterations *int       `yaml:"iterations"`
	Tolerance  *float64   `yaml:"tolerance"`
}

type YAMLLayer struct {
	Name       string  `yaml:"name"`
	NumOutput  int     `yaml:"num_output"`
	KernelSize IntList `yaml:"kernel_size"`
	Stride     IntList `yaml:"stride"`
	Pad        IntList `yaml:"pad"`
	KernelH    int     `yaml:"kernel_h"`
	KernelW    int     `yaml:"kernel_w"`
	StrideH    int     `yaml:"stride_h"`
	StrideW    int     `yaml:"stride_w"`
	PadH       int     `yaml:"pad_h"`
	PadW       int     `yaml:"pad_w"`
	Group      int     `yaml:"group"`
	BiasTerm   *bool   `yaml:"bias_term"`
	Engine     string  `yaml:"engine"`

	WeightFiller *YAMLFiller `yaml:"weight_filler"`
	BiasFiller   *YAMLFiller `yaml:"bias_filler"`
}

type YAMLFiller struct {
	Type         string   `yaml:"type"`
	Value        float32  `yaml:"value"`
	Min          float32  `yaml:"min"`
	Max          *float32 `yaml:"max"`
	Mean         float32  `yaml:"mean"`
	Std          *float32 `yaml:"std"`
	VarianceNorm string   `yaml:"variance_norm"`
}

type YAMLInput struct {
	Num      int `yaml:"num"`
	Channels int `yaml:"channels"`
	Height   int `yaml:"height"`
	Width    int `yaml:"width"`
}

type YAMLEngine struct {
	BlockSize *int `yaml:"block_size"`
	Workers   int  `yaml:"workers"`
	MinChunk  int  `yaml:"min_chunk"`
}

// IntList accepts either a single integer or a sequence of integers.
type IntList []int

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *IntList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var v int
		if err := value.Decode(&v); err != nil {
			return err
		}
		*l = IntList{v}
		return nil
	case yaml.SequenceNode:
		var vs []int
		if err := value.Decode(&vs); err != nil {
			return err
		}
		*l = vs
		return nil
	default:
		return fmt.Errorf("line %d: expected an integer or a list of integers", value.Line)
	}
}
