package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"chatd/internal/manager"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the model path, tokenizer, backend and host memory without loading",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg, nil)
			mgr := manager.NewWithConfig(managerConfig(cfg, applyThreads(cfg.Threads), &logger))
			defer mgr.Close()
			rep := mgr.SanityCheck()
			out := cmd.OutOrStdout()

			ok := color.New(color.FgGreen).SprintFunc()
			bad := color.New(color.FgRed).SprintFunc()
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"CHECK", "RESULT", "DETAIL"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			for _, c := range rep.Checks {
				res := ok("ok")
				if !c.OK {
					res = bad("FAIL")
				}
				table.Append([]string{c.Name, res, c.Detail})
			}
			table.Render()
			fmt.Fprintf(out, "backend=%s device=%s\n", rep.Backend, rep.Device)
			if !rep.OK() {
				return fmt.Errorf("sanity check failed")
			}
			return nil
		},
	}
	addModelFlags(cmd)
	return cmd
}
