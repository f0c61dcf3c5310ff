package main

import (
	"fmt"
	"path/filepath"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"chatd/internal/common/fsutil"
	"chatd/internal/registry"
	"chatd/pkg/types"
)

func newModelsCmd(opts *globalOptions) *cobra.Command {
	var dirs string
	cmd := &cobra.Command{
		Use:     "models",
		Short:   "List model directories and .gguf files that chatd can serve",
		Example: "  chatd models --dirs ~/models,/opt/models",
		RunE: func(cmd *cobra.Command, args []string) error {
			scan := splitCSV(dirs)
			if len(scan) == 0 {
				cfg, err := loadConfig(opts, cmd)
				if err != nil {
					return err
				}
				p, err := fsutil.ExpandHome(cfg.ModelPath)
				if err != nil {
					return err
				}
				scan = []string{filepath.Dir(p)}
			}
			var all []types.Model
			for _, d := range scan {
				ms, err := registry.LoadDir(d)
				if err != nil {
					return fmt.Errorf("%s: %w", d, err)
				}
				all = append(all, ms...)
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"ID", "BACKEND", "SIZE", "PATH"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetHeaderLine(false)
			table.SetBorder(false)
			table.SetNoWhiteSpace(true)
			table.SetTablePadding("    ")
			for _, m := range all {
				table.Append([]string{m.ID, m.Backend, humanBytes(m.SizeBytes), m.Path})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&dirs, "dirs", "", "comma separated directories to scan, default is the parent of model_path")
	return cmd
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
