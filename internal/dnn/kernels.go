package dnn

import (
	"github.com/born-ml/dnnconv/internal/parallel"
)

// Direct convolution kernels. Every buffer access goes through the layout
// offset tables, so the same loops serve plain and blocked layouts.
// Table index order is {W, H, C, N} for data and {KW, KH, IC, OC[, G]} for filters.

// filterBase is the offset contribution of output channel ocg in group grp.
func (g geometry) filterBase(f [][]int, grp, ocg int) int {
	if g.grouped {
		return f[3][ocg] + f[4][grp]
	}
	return f[3][grp*g.oc+ocg]
}

// forward computes dst = conv(src, filter) [+ bias].
//
//nolint:gocognit // Loop nest inherent to direct convolution
func (c *convolution) forward(res *Resources) {
	g := c.geom
	src, dst, filt := res[ResourceSrc], res[ResourceDst], res[ResourceFilter]
	s := c.layouts[ResourceSrc].table
	d := c.layouts[ResourceDst].table
	f := c.layouts[ResourceFilter].table

	var bias []float32
	var bt [][]int
	if c.kind == KindConvolutionForwardBias {
		bias = res[ResourceBias]
		bt = c.layouts[ResourceBias].table
	}

	parallel.ForBatch(g.n, g.groups, func(n, grp int) {
		for ocg := 0; ocg < g.oc; ocg++ {
			oc := grp*g.oc + ocg
			fBase := g.filterBase(f, grp, ocg)
			dBase := d[2][oc] + d[3][n]

			var b0 float32
			if bias != nil {
				b0 = bias[bt[0][oc]]
			}

			for oh := 0; oh < g.oh; oh++ {
				for ow := 0; ow < g.ow; ow++ {
					sum := b0
					for ic := 0; ic < g.ic; ic++ {
						sBase := s[2][grp*g.ic+ic] + s[3][n]
						fChan := fBase + f[2][ic]
						for kh := 0; kh < g.kh; kh++ {
							ih := oh*g.sh + g.offH + kh
							if ih < 0 || ih >= g.ih {
								continue
							}
							sRow := sBase + s[1][ih]
							fRow := fChan + f[1][kh]
							for kw := 0; kw < g.kw; kw++ {
								iw := ow*g.sw + g.offW + kw
								if iw < 0 || iw >= g.iw {
									continue
								}
								sum += src[sRow+s[0][iw]] * filt[fRow+f[0][kw]]
							}
						}
					}
					dst[dBase+d[1][oh]+d[0][ow]] = sum
				}
			}
		}
	}, c.engine.par)
}

// backwardData computes diff_src from diff_dst and filter.
// Work is split by (image, group); a group only touches its own input channels.
//
//nolint:gocognit // Loop nest inherent to direct convolution
func (c *convolution) backwardData(res *Resources) {
	g := c.geom
	diffSrc, diffDst, filt := res[ResourceDiffSrc], res[ResourceDiffDst], res[ResourceFilter]
	s := c.layouts[ResourceDiffSrc].table
	d := c.layouts[ResourceDiffDst].table
	f := c.layouts[ResourceFilter].table

	parallel.ForBatch(g.n, g.groups, func(n, grp int) {
		for ic := 0; ic < g.ic; ic++ {
			base := s[2][grp*g.ic+ic] + s[3][n]
			for ih := 0; ih < g.ih; ih++ {
				row := base + s[1][ih]
				for iw := 0; iw < g.iw; iw++ {
					diffSrc[row+s[0][iw]] = 0
				}
			}
		}

		for ocg := 0; ocg < g.oc; ocg++ {
			oc := grp*g.oc + ocg
			fBase := g.filterBase(f, grp, ocg)
			dBase := d[2][oc] + d[3][n]
			for oh := 0; oh < g.oh; oh++ {
				for ow := 0; ow < g.ow; ow++ {
					gv := diffDst[dBase+d[1][oh]+d[0][ow]]
					if gv == 0 {
						continue
					}
					for ic := 0; ic < g.ic; ic++ {
						sBase := s[2][grp*g.ic+ic] + s[3][n]
						fChan := fBase + f[2][ic]
						for kh := 0; kh < g.kh; kh++ {
							ih := oh*g.sh + g.offH + kh
							if ih < 0 || ih >= g.ih {
								continue
							}
							sRow := sBase + s[1][ih]
							fRow := fChan + f[1][kh]
							for kw := 0; kw < g.kw; kw++ {
								iw := ow*g.sw + g.offW + kw
								if iw < 0 || iw >= g.iw {
									continue
								}
								diffSrc[sRow+s[0][iw]] += gv * filt[fRow+f[0][kw]]
							}
						}
					}
				}
			}
		}
	}, c.engine.par)
}

// backwardFilter computes diff_filter from src and diff_dst.
// Work is split by output channel; each writes a disjoint filter slice.
//
//nolint:gocognit // Loop nest inherent to direct convolution
func (c *convolution) backwardFilter(res *Resources) {
	g := c.geom
	src, diffDst, diffFilt := res[ResourceSrc], res[ResourceDiffDst], res[ResourceDiffFilter]
	s := c.layouts[ResourceSrc].table
	d := c.layouts[ResourceDiffDst].table
	f := c.layouts[ResourceDiffFilter].table

	parallel.For(g.numOutput(), func(oc int) {
		grp, ocg := oc/g.oc, oc%g.oc
		fBase := g.filterBase(f, grp, ocg)
		for ic := 0; ic < g.ic; ic++ {
			ch := grp*g.ic + ic
			for kh := 0; kh < g.kh; kh++ {
				for kw := 0; kw < g.kw; kw++ {
					var sum float32
					for n := 0; n < g.n; n++ {
						sBase := s[2][ch] + s[3][n]
						dBase := d[2][oc] + d[3][n]
						for oh := 0; oh < g.oh; oh++ {
							ih := oh*g.sh + g.offH + kh
							if ih < 0 || ih >= g.ih {
								continue
							}
							sRow := sBase + s[1][ih]
							dRow := dBase + d[1][oh]
							for ow := 0; ow < g.ow; ow++ {
								iw := ow*g.sw + g.offW + kw
								if iw < 0 || iw >= g.iw {
									continue
								}
								sum += diffDst[dRow+d[0][ow]] * src[sRow+s[0][iw]]
							}
						}
					}
					diffFilt[fBase+f[2][ic]+f[1][kh]+f[0][kw]] = sum
				}
			}
		}
	}, c.engine.par)
}

// backwardBias computes diff_bias as the per-channel sum of diff_dst.
func (c *convolution) backwardBias(res *Resources) {
	g := c.geom
	diffDst, diffBias := res[ResourceDiffDst], res[ResourceDiffBias]
	d := c.layouts[ResourceDiffDst].table
	b := c.layouts[ResourceDiffBias].table

	parallel.For(g.numOutput(), func(oc int) {
		var sum float32
		for n := 0; n < g.n; n++ {
			base := d[2][oc] + d[3][n]
			for oh := 0; oh < g.oh; oh++ {
				row := base + d[1][oh]
				for ow := 0; ow < g.ow; ow++ {
					sum += diffDst[row+d[0][ow]]
				}
			}
		}
		diffBias[b[0][oc]] = sum
	}, c.engine.par)
}
