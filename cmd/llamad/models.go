package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"llamad/internal/common/fsutil"
	"llamad/internal/registry"
	"llamad/pkg/types"
)

func newModelsCmd(opts *globalOpts) *cobra.Command {
	var (
		ef     engineFlags
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List *.gguf models in the models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts, &ef)
			if err != nil {
				return err
			}
			models, err := registry.LoadDir(cfg.ModelsDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if models == nil {
					models = []types.Model{}
				}
				return enc.Encode(types.ModelsResponse{Models: models})
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tQUANT\tSIZE\tPATH")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Quant, humanize.IBytes(uint64(m.SizeBytes)), m.Path)
			}
			return tw.Flush()
		},
	}
	ef.register(cmd.Flags())
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

// resolveModel maps a registry id or a path to a model file path. Unknown
// values are returned as given so the controller reports them as not found.
func resolveModel(modelsDir, idOrPath string) string {
	if p, err := fsutil.ExpandHome(idOrPath); err == nil {
		if ok, _ := fsutil.IsRegularFile(p); ok {
			return p
		}
	}
	if models, err := registry.LoadDir(modelsDir); err == nil {
		if m, ok := registry.Find(models, idOrPath); ok {
			return m.Path
		}
	}
	return idOrPath
}
