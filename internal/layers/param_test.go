package layers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	no := false
	axis := 2
	tests := []struct {
		name    string
		param   ConvolutionParameter
		want    convSettings
		wantErr bool
	}{
		{
			name:  "defaults",
			param: ConvolutionParameter{NumOutput: 8, KernelSize: []int{3}},
			want: convSettings{numOutput: 8, biasTerm: true, kernelH: 3, kernelW: 3,
				strideH: 1, strideW: 1, group: 1},
		},
		{
			name: "repeated pairs are h then w",
			param: ConvolutionParameter{NumOutput: 4, KernelSize: []int{2, 5}, Stride: []int{1, 2},
				Pad: []int{0, 1}, Group: 2, BiasTerm: &no},
			want: convSettings{numOutput: 4, kernelH: 2, kernelW: 5, strideH: 1, strideW: 2,
				padW: 1, group: 2},
		},
		{
			name: "explicit fields",
			param: ConvolutionParameter{NumOutput: 1, KernelH: 3, KernelW: 1, StrideH: 2, StrideW: 1,
				PadH: 1, Engine: EngineDNN, Dilation: []int{1, 1}},
			want: convSettings{numOutput: 1, biasTerm: true, kernelH: 3, kernelW: 1, strideH: 2, strideW: 1,
				padH: 1, group: 1},
		},
		{name: "no kernel", param: ConvolutionParameter{NumOutput: 1}, wantErr: true},
		{name: "kernel both ways", param: ConvolutionParameter{NumOutput: 1, KernelSize: []int{3}, KernelH: 3, KernelW: 3}, wantErr: true},
		{name: "half explicit kernel", param: ConvolutionParameter{NumOutput: 1, KernelH: 3}, wantErr: true},
		{name: "three kernel values", param: ConvolutionParameter{NumOutput: 1, KernelSize: []int{3, 3, 3}}, wantErr: true},
		{name: "zero outputs", param: ConvolutionParameter{KernelSize: []int{3}}, wantErr: true},
		{name: "group does not divide", param: ConvolutionParameter{NumOutput: 6, KernelSize: []int{3}, Group: 4}, wantErr: true},
		{name: "dilation", param: ConvolutionParameter{NumOutput: 1, KernelSize: []int{3}, Dilation: []int{2}}, wantErr: true},
		{name: "axis", param: ConvolutionParameter{NumOutput: 1, KernelSize: []int{3}, Axis: &axis}, wantErr: true},
		{name: "engine", param: ConvolutionParameter{NumOutput: 1, KernelSize: []int{3}, Engine: EngineCUDNN}, wantErr: true},
		{name: "negative pad", param: ConvolutionParameter{NumOutput: 1, KernelSize: []int{3}, Pad: []int{-1}}, wantErr: true},
		{name: "zero stride", param: ConvolutionParameter{NumOutput: 1, KernelSize: []int{3}, Stride: []int{0}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolve(&tt.param)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParam)
				return
			}
			require.NoError(t, err)
			got.weightFiller, got.biasFiller = FillerParameter{}, FillerParameter{}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Fillers(t *testing.T) {
	s, err := resolve(&ConvolutionParameter{NumOutput: 1, KernelSize: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, DefaultFiller(), s.weightFiller)

	xavier := &FillerParameter{Type: "xavier"}
	s, err = resolve(&ConvolutionParameter{NumOutput: 1, KernelSize: []int{1}, WeightFiller: xavier})
	require.NoError(t, err)
	assert.Equal(t, "xavier", s.weightFiller.Type)
	assert.Equal(t, "constant", s.biasFiller.Type)
}

func TestEngineString(t *testing.T) {
	assert.Equal(t, "DNN", EngineDNN.String())
	assert.Equal(t, "CAFFE", EngineCaffe.String())
	assert.Equal(t, "engine(9)", Engine(9).String())
}
