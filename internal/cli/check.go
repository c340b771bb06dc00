package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/born-ml/dnnconv/internal/config"
	"github.com/born-ml/dnnconv/internal/reference"
)

// checkResult is the largest deviation from the reference for one quantity.
type checkResult struct {
	BlockSize int
	Quantity  string
	MaxAbs    float64
}

func checkCmd(opts *globalOptions) *cobra.Command {
	var tolerance float64
	var blockSizes []int
	var weights string

	c := &cobra.Command{
		Use:   "check",
		Short: "Compare the layer output and gradients against the reference convolution",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("tolerance") {
				cfg.Tolerance = tolerance
			}
			if len(blockSizes) == 0 {
				blockSizes = []int{cfg.Engine.BlockSize}
			}

			var results []checkResult
			for _, bs := range blockSizes {
				if bs < 1 {
					return fmt.Errorf("--block-size must be at least 1, got %d", bs)
				}
				cfg.Engine.BlockSize = bs
				r, err := checkOnce(cfg, opts, weights)
				if err != nil {
					return fmt.Errorf("block size %d: %w", bs, err)
				}
				results = append(results, r...)
			}

			failed := printCheck(cmd.OutOrStdout(), results, cfg.Tolerance)
			if failed > 0 {
				return fmt.Errorf("check failed: %d of %d comparisons exceed tolerance %g", failed, len(results), cfg.Tolerance)
			}
			return nil
		},
	}

	c.Flags().Float64Var(&tolerance, "tolerance", config.DefaultTolerance, "Maximum absolute difference (overrides the config)")
	c.Flags().IntSliceVar(&blockSizes, "block-size", nil, "Engine block sizes to check (default: the configured one)")
	c.Flags().StringVar(&weights, "weights", "", "SafeTensors snapshot to load the layer blobs from")
	return c
}

func checkOnce(cfg config.Config, opts *globalOptions, weights string) ([]checkResult, error) {
	s, err := newSession(cfg, opts.logger, weights)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	if err := s.step(); err != nil {
		return nil, err
	}

	g := s.layer.Geometry()
	p := reference.Params{
		N: s.bottom.Num(), C: s.bottom.Channels(), H: s.bottom.Height(), W: s.bottom.Width(),
		OC: g.NumOutput, KH: g.KernelH, KW: g.KernelW,
		StrideH: g.StrideH, StrideW: g.StrideW,
		PadH: g.PadH, PadW: g.PadW,
		Groups: g.Group,
	}

	blobs := s.layer.Blobs()
	input, err := s.bottom.CPUData()
	if err != nil {
		return nil, err
	}
	weight, err := blobs[0].CPUData()
	if err != nil {
		return nil, err
	}
	var bias []float32
	if g.BiasTerm {
		if bias, err = blobs[1].CPUData(); err != nil {
			return nil, err
		}
	}
	output, err := s.top.CPUData()
	if err != nil {
		return nil, err
	}
	topDiff, err := s.top.CPUDiff()
	if err != nil {
		return nil, err
	}
	bottomDiff, err := s.bottom.CPUDiff()
	if err != nil {
		return nil, err
	}
	weightDiff, err := blobs[0].CPUDiff()
	if err != nil {
		return nil, err
	}

	bs := s.engine.BlockSize()
	results := []checkResult{
		{bs, "output", reference.MaxAbsDiff(output, reference.Conv2D(p, input, weight, bias))},
		{bs, "bottom_diff", reference.MaxAbsDiff(bottomDiff, reference.Conv2DInputBackward(p, weight, topDiff))},
		{bs, "weight_diff", reference.MaxAbsDiff(weightDiff, reference.Conv2DKernelBackward(p, input, topDiff))},
	}
	if g.BiasTerm {
		biasDiff, err := blobs[1].CPUDiff()
		if err != nil {
			return nil, err
		}
		results = append(results, checkResult{bs, "bias_diff", reference.MaxAbsDiff(biasDiff, reference.BiasBackward(p, topDiff))})
	}
	return results, nil
}

func printCheck(w io.Writer, results []checkResult, tolerance float64) (failed int) {
	for _, r := range results {
		status := "OK"
		if r.MaxAbs > tolerance {
			status = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "- [%s] block=%d %-12s max_abs=%.3g\n", status, r.BlockSize, r.Quantity, r.MaxAbs)
	}
	return failed
}
