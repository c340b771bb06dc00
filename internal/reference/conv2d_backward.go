package reference

// Conv2DInputBackward computes the gradient w.r.t. the input using transposed
// convolution: every output gradient is distributed back to the input
// positions that produced it, weighted by the kernel.
//
// References:
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
//
//nolint:gocognit // High complexity inherent to convolution backprop
func Conv2DInputBackward(p Params, weight, grad []float32) []float32 {
	p.validate("conv2d_input_backward")
	g := p.groups()
	cg, ocg := p.C/g, p.OC/g
	oh, ow := p.OutputSize()
	inputGrad := make([]float32, p.InputLen())

	for n := 0; n < p.N; n++ {
		for oc := 0; oc < p.OC; oc++ {
			grp := oc / ocg
			gradPlane := grad[(n*p.OC+oc)*oh*ow : (n*p.OC+oc+1)*oh*ow]
			kernelOC := weight[oc*cg*p.KH*p.KW : (oc+1)*cg*p.KH*p.KW]

			for outH := 0; outH < oh; outH++ {
				for outW := 0; outW < ow; outW++ {
					gradVal := gradPlane[outH*ow+outW]
					for c := 0; c < cg; c++ {
						plane := (n*p.C + grp*cg + c) * p.H * p.W
						kernelC := kernelOC[c*p.KH*p.KW : (c+1)*p.KH*p.KW]
						for kh := 0; kh < p.KH; kh++ {
							h := outH*p.StrideH - p.PadH + kh
							if h < 0 || h >= p.H {
								continue
							}
							for kw := 0; kw < p.KW; kw++ {
								w := outW*p.StrideW - p.PadW + kw
								if w < 0 || w >= p.W {
									continue
								}
								inputGrad[plane+h*p.W+w] += gradVal * kernelC[kh*p.KW+kw]
							}
						}
					}
				}
			}
		}
	}
	return inputGrad
}

// Conv2DKernelBackward computes the gradient w.r.t. the weights by
// correlating the input with the output gradient.
//
//nolint:gocognit // High complexity inherent to convolution backprop
func Conv2DKernelBackward(p Params, input, grad []float32) []float32 {
	p.validate("conv2d_kernel_backward")
	g := p.groups()
	cg, ocg := p.C/g, p.OC/g
	oh, ow := p.OutputSize()
	kernelGrad := make([]float32, p.WeightLen())

	for oc := 0; oc < p.OC; oc++ {
		grp := oc / ocg
		for c := 0; c < cg; c++ {
			for kh := 0; kh < p.KH; kh++ {
				for kw := 0; kw < p.KW; kw++ {
					var sum float32
					for n := 0; n < p.N; n++ {
						plane := (n*p.C + grp*cg + c) * p.H * p.W
						gradPlane := (n*p.OC + oc) * oh * ow
						for outH := 0; outH < oh; outH++ {
							h := outH*p.StrideH - p.PadH + kh
							if h < 0 || h >= p.H {
								continue
							}
							for outW := 0; outW < ow; outW++ {
								w := outW*p.StrideW - p.PadW + kw
								if w < 0 || w >= p.W {
									continue
								}
								sum += grad[gradPlane+outH*ow+outW] * input[plane+h*p.W+w]
							}
						}
					}
					kernelGrad[((oc*cg+c)*p.KH+kh)*p.KW+kw] = sum
				}
			}
		}
	}
	return kernelGrad
}

// BiasBackward sums the output gradient over batch and spatial positions.
func BiasBackward(p Params, grad []float32) []float32 {
	oh, ow := p.OutputSize()
	biasGrad := make([]float32, p.OC)
	for n := 0; n < p.N; n++ {
		for oc := 0; oc < p.OC; oc++ {
			base := (n*p.OC + oc) * oh * ow
			for _, v := range grad[base : base+oh*ow] {
				biasGrad[oc] += v
			}
		}
	}
	return biasGrad
}
