package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/born-ml/dnnconv/internal/dnn"
)

func runCmd(opts *globalOptions) *cobra.Command {
	var iterations int
	var weights string
	var save string

	c := &cobra.Command{
		Use:   "run",
		Short: "Run forward and backward passes of the configured layer and report timings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("iterations") {
				if iterations < 1 {
					return fmt.Errorf("--iterations must be at least 1, got %d", iterations)
				}
				cfg.Iterations = iterations
			}

			s, err := newSession(cfg, opts.logger, weights)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			timings := make([]time.Duration, 0, cfg.Iterations)
			for i := 0; i < cfg.Iterations; i++ {
				start := time.Now()
				if err := s.step(); err != nil {
					return fmt.Errorf("iteration %d: %w", i, err)
				}
				timings = append(timings, time.Since(start))
				opts.logger.Debug("run.iteration", "i", i, "elapsed", timings[i])
			}
			printTimings(cmd.OutOrStdout(), s, timings)

			if save != "" {
				meta := map[string]string{
					"layer":      s.layer.Name(),
					"engine":     dnn.GetVersion().String(),
					"block_size": strconv.Itoa(s.engine.BlockSize()),
				}
				if err := saveWeights(save, s.layer, meta); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved:      %s\n", save)
			}
			return nil
		},
	}

	c.Flags().IntVarP(&iterations, "iterations", "n", 1, "Forward+backward iterations (overrides the config)")
	c.Flags().StringVar(&weights, "weights", "", "SafeTensors snapshot to load the layer blobs from")
	c.Flags().StringVar(&save, "save", "", "Write the layer blobs to this SafeTensors file after the run")
	return c
}

func printTimings(w io.Writer, s *session, timings []time.Duration) {
	var total, best time.Duration
	for i, d := range timings {
		total += d
		if i == 0 || d < best {
			best = d
		}
	}
	mean := total / time.Duration(len(timings))

	fmt.Fprintf(w, "Layer:      %s\n", s.layer.Name())
	fmt.Fprintf(w, "Bottom:     %s\n", s.bottom.Shape())
	fmt.Fprintf(w, "Top:        %s\n", s.top.Shape())
	fmt.Fprintf(w, "Block size: %d\n", s.engine.BlockSize())
	fmt.Fprintf(w, "Iterations: %d\n", len(timings))
	fmt.Fprintf(w, "Mean:       %s\n", mean)
	fmt.Fprintf(w, "Best:       %s\n", best)
}
