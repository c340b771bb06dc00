package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/dnnconv/internal/dnn"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the dnnconv and engine versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := dnn.GetVersion()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "dnnconv %s\n", Version)
			fmt.Fprintf(w, "engine  %s %s\n", v.Product, v)
			fmt.Fprintf(w, "build   %d\n", dnn.BuildDate())
			return nil
		},
	}
}
