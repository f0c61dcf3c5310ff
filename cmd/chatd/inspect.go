package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"chatd/internal/manager"
	"chatd/internal/memory"
	"chatd/internal/nn"
	"chatd/internal/quant"
)

func newInspectCmd(opts *globalOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "inspect [model-path]",
		Short: "Print the module graph and the quantization plan without serving",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.ModelPath = args[0]
			}
			logger := newLogger(cfg, nil)
			mc := managerConfig(cfg, applyThreads(cfg.Threads), &logger)
			// load in float so the plan is computed against the original graph
			mc.EnableDynamicInt8 = false
			pub := manager.NewMemoryPublisher()
			mc.Publisher = pub
			mgr := manager.NewWithConfig(mc)
			defer mgr.Close()
			if err := mgr.Load(context.Background()); err != nil {
				return err
			}
			s, err := mgr.Session()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, st := range pub.Timeline() {
				fmt.Fprintf(out, "%8s  %s\n", st.Offset.Round(time.Millisecond), st.Name)
			}
			fmt.Fprintln(out)

			graph := s.Model.Graph()
			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"PATH", "KIND", "PARAMS", "DTYPE", "BYTES"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			table.SetBorder(false)
			nn.Walk(graph, func(path string, m nn.Module) bool {
				if _, isParent := m.(nn.Parent); isParent && !all {
					return true
				}
				var n, b int64
				var dtypes []string
				for _, t := range append(m.Parameters(), m.Buffers()...) {
					n += t.Numel()
					b += t.NBytes()
					dtypes = append(dtypes, t.DType.String())
				}
				table.Append([]string{path, m.Kind(), strconv.FormatInt(n, 10), strings.Join(uniq(dtypes), ","), strconv.FormatInt(b, 10)})
				return true
			})
			table.Render()

			est := memory.EstimateModelBytes(graph)
			plan := quant.PlanFor(string(s.Device), est, quant.Options{
				Enabled:  cfg.EnableDynamicInt8,
				Safe:     cfg.SafeQuant,
				Headroom: cfg.QuantHeadroom,
				Probe:    memory.System(),
			})
			fmt.Fprintf(out, "\nbackend=%s device=%s dtype=%s tokenizer=%s max_length=%d position_limit=%d\n",
				s.Backend, s.Device, s.Model.DType(), s.Tokenizer.Kind(), s.MaxLength, s.PositionLimit)
			fmt.Fprintf(out, "linear layers=%d estimated bytes=%d\n", quant.CountLinear(graph), est)
			fmt.Fprintf(out, "quantization plan: mode=%s engine=%s", plan.Mode, plan.Engine)
			if plan.MemoryKnown {
				fmt.Fprintf(out, " available=%d", plan.AvailableBytes)
			}
			if plan.Reason != "" {
				fmt.Fprintf(out, " reason=%q", plan.Reason)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	addModelFlags(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "include container modules")
	return cmd
}

func uniq(ss []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
