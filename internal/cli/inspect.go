package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/born-ml/dnnconv/internal/layers"
)

type descriptorInfo struct {
	Name     string `json:"name"`
	Diff     bool   `json:"diff"`
	User     string `json:"user_layout"`
	Internal string `json:"internal_layout"`
	Converts bool   `json:"converts"`
}

func inspectCmd(opts *globalOptions) *cobra.Command {
	var format string

	c := &cobra.Command{
		Use:   "inspect",
		Short: "Show the layouts chosen for every buffer of the configured layer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			s, err := newSession(cfg, opts.logger, "")
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			return printDescriptors(cmd.OutOrStdout(), describe(s.layer.Descriptors()), format)
		},
	}

	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")
	return c
}

func describe(ds []*layers.MemoryDescriptor) []descriptorInfo {
	out := make([]descriptorInfo, 0, len(ds))
	for _, d := range ds {
		out = append(out, descriptorInfo{
			Name:     d.Name(),
			Diff:     d.IsDiff(),
			User:     d.UserLayout().Format(),
			Internal: d.InternalLayout().Format(),
			Converts: d.ConvertsToInternal(),
		})
	}
	return out
}

func printDescriptors(w io.Writer, infos []descriptorInfo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "pretty", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "DESCRIPTOR\tUSER\tINTERNAL\tCONVERTS")
		for _, d := range infos {
			converts := "no"
			if d.Converts {
				converts = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.User, d.Internal, converts)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}
