// Package reference implements a straightforward NCHW convolution used as the
// numerical oracle for the engine and the convolution layer.
package reference

import (
	"fmt"
	"math"
)

// Params describes a grouped 2-D convolution in framework (NCHW) terms.
//
// Input shape:  [N, C, H, W]
// Weight shape: [OC, C/Groups, KH, KW]
// Bias shape:   [OC]
// Output shape: [N, OC, OH, OW]
type Params struct {
	N, C, H, W       int
	OC, KH, KW       int
	StrideH, StrideW int
	PadH, PadW       int
	Groups           int
}

// OutputSize returns [out_h, out_w].
//
//	out_h = (H + 2*pad_h - KH) / stride_h + 1
//	out_w = (W + 2*pad_w - KW) / stride_w + 1
func (p Params) OutputSize() (int, int) {
	return (p.H+2*p.PadH-p.KH)/p.StrideH + 1, (p.W+2*p.PadW-p.KW)/p.StrideW + 1
}

func (p Params) groups() int {
	if p.Groups < 1 {
		return 1
	}
	return p.Groups
}

func (p Params) validate(op string) {
	g := p.groups()
	if p.C%g != 0 || p.OC%g != 0 {
		panic(fmt.Sprintf("%s: channels %d/%d not divisible by %d groups", op, p.C, p.OC, g))
	}
	if p.StrideH <= 0 || p.StrideW <= 0 {
		panic(fmt.Sprintf("%s: invalid stride %dx%d", op, p.StrideH, p.StrideW))
	}
	oh, ow := p.OutputSize()
	if oh <= 0 || ow <= 0 {
		panic(fmt.Sprintf("%s: invalid output dimensions: out_h=%d, out_w=%d (check stride/padding)", op, oh, ow))
	}
}

// Sizes of the flat buffers.
func (p Params) InputLen() int  { return p.N * p.C * p.H * p.W }
func (p Params) WeightLen() int { return p.OC * (p.C / p.groups()) * p.KH * p.KW }
func (p Params) OutputLen() int {
	oh, ow := p.OutputSize()
	return p.N * p.OC * oh * ow
}

// Conv2D performs grouped convolution using im2col.
//
// Algorithm, per image and group:
//  1. Im2col: input patches -> [OH*OW, Cg*KH*KW]
//  2. Weight rows [OCg, Cg*KH*KW] dotted with every patch row
//  3. Bias added per output channel (bias may be nil)
func Conv2D(p Params, input, weight, bias []float32) []float32 {
	p.validate("conv2d")
	g := p.groups()
	cg, ocg := p.C/g, p.OC/g
	oh, ow := p.OutputSize()

	colWidth := cg * p.KH * p.KW
	colHeight := oh * ow
	colBuf := make([]float32, colHeight*colWidth)
	output := make([]float32, p.OutputLen())

	for n := 0; n < p.N; n++ {
		for grp := 0; grp < g; grp++ {
			im2col(colBuf, input, p, n, grp*cg, cg, oh, ow)

			for o := 0; o < ocg; o++ {
				oc := grp*ocg + o
				wRow := weight[oc*colWidth : (oc+1)*colWidth]
				var b float32
				if bias != nil {
					b = bias[oc]
				}
				outBase := (n*p.OC + oc) * colHeight
				for j := 0; j < colHeight; j++ {
					sum := b
					row := colBuf[j*colWidth : (j+1)*colWidth]
					for k, v := range row {
						sum += wRow[k] * v
					}
					output[outBase+j] = sum
				}
			}
		}
	}
	return output
}

// im2col transforms the channels [c0, c0+cg) of image n into column rows.
//
// Each row of colBuf corresponds to one output position; each column to one
// kernel weight. Out-of-bounds positions read as zero (padding).
func im2col(colBuf, input []float32, p Params, n, c0, cg, oh, ow int) {
	colWidth := cg * p.KH * p.KW
	colIdx := 0

	for outH := 0; outH < oh; outH++ {
		for outW := 0; outW < ow; outW++ {
			hStart := outH*p.StrideH - p.PadH
			wStart := outW*p.StrideW - p.PadW
			bufIdx := colIdx * colWidth

			for c := 0; c < cg; c++ {
				plane := ((n*p.C)+c0+c)*p.H*p.W
				for kh := 0; kh < p.KH; kh++ {
					for kw := 0; kw < p.KW; kw++ {
						h := hStart + kh
						w := wStart + kw
						if h >= 0 && h < p.H && w >= 0 && w < p.W {
							colBuf[bufIdx] = input[plane+h*p.W+w]
						} else {
							colBuf[bufIdx] = 0
						}
						bufIdx++
					}
				}
			}
			colIdx++
		}
	}
}

// MaxAbsDiff returns the largest absolute element difference of a and b.
// It returns +Inf when the lengths differ.
func MaxAbsDiff(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var m float64
	for i := range a {
		d := math.Abs(float64(a[i]) - float64(b[i]))
		if d > m || math.IsNaN(d) {
			m = d
		}
	}
	return m
}
