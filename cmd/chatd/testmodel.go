package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chatd/internal/backend/native"
)

func newCreateTestModelCmd() *cobra.Command {
	var (
		opts  native.TestModelOptions
		words string
	)
	cmd := &cobra.Command{
		Use:   "create-test-model DIR",
		Short: "Write a tiny random model (config, tokenizer files, safetensors weights)",
		Long: "create-test-model writes a small reference checkpoint for the native backend.\n" +
			"It produces gibberish but exercises loading, quantization and streaming on any host.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Words = splitCSV(words)
			if err := os.MkdirAll(args[0], 0o755); err != nil {
				return err
			}
			cfg, err := native.WriteTestModel(args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: vocab=%d hidden=%d layers=%d positions=%d\n",
				args[0], cfg.VocabSize, cfg.HiddenSize, cfg.NumHiddenLayers, cfg.MaxPositionEmbeddings)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.HiddenSize, "hidden", 32, "hidden size")
	f.IntVar(&opts.IntermediateSize, "intermediate", 64, "MLP intermediate size")
	f.IntVar(&opts.Layers, "layers", 2, "number of MLP blocks")
	f.IntVar(&opts.MixWindow, "mix-window", 4, "token mixing window")
	f.IntVar(&opts.MaxPositions, "max-positions", 2048, "position limit")
	f.IntVar(&opts.ModelMaxLength, "model-max-length", 0, "tokenizer model_max_length, 0 omits it")
	f.Int64Var(&opts.Seed, "seed", 1, "weight initialisation seed")
	f.BoolVar(&opts.AllowEOS, "allow-eos", false, "let the model end its turn")
	f.BoolVar(&opts.SkipFastTokenizer, "slow-only", false, "write only the slow tokenizer files")
	f.StringVar(&words, "words", "", "comma separated vocabulary words, default is a built-in Korean list")
	return cmd
}
