package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/born-ml/dnnconv/internal/caffeproto"
)

func exportCmd(opts *globalOptions) *cobra.Command {
	var out string
	var weights string

	c := &cobra.Command{
		Use:   "export",
		Short: "Write the configured layer and its blobs as a binary Caffe model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			s, err := newSession(cfg, opts.logger, weights)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			layer, err := caffeproto.FromLayer(s.param, s.layer.Blobs())
			if err != nil {
				return err
			}
			net := &caffeproto.NetParameter{Name: s.layer.Name(), Layers: []caffeproto.LayerParameter{layer}}
			if err := caffeproto.WriteFile(out, net); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (layer %s, %d blob(s))\n", out, s.layer.Name(), len(s.layer.Blobs()))
			return nil
		},
	}

	c.Flags().StringVarP(&out, "out", "o", "", "Output .caffemodel path (required)")
	c.Flags().StringVar(&weights, "weights", "", "SafeTensors snapshot to load the layer blobs from")
	_ = c.MarkFlagRequired("out")
	return c
}
