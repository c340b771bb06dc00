// Package cli implements the dnnconv command line.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/dnnconv/internal/logging"
)

// Version is the dnnconv release, set at link time.
var Version = "v0.1.0-dev"

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath string
	debug      bool
	logFormat  string

	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:          "dnnconv",
		Short:        "Run and verify convolution layers on the blocked-layout engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := logging.Setup(logging.Config{
				Debug:  opts.debug,
				Format: opts.logFormat,
				Output: cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			opts.logger = l
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML run configuration (optional; built-in defaults if omitted)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log primitive creation and layout conversions")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format: text|json")

	cmd.AddCommand(
		runCmd(opts),
		checkCmd(opts),
		inspectCmd(opts),
		exportCmd(opts),
		versionCmd(),
	)
	return cmd
}
