package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tkrajina/typescriptify-golang-structs/typescriptify"

	"chatd/pkg/types"
)

// apiTypes are exported to TypeScript for web clients.
var apiTypes = []any{
	types.ChatMessage{},
	types.StreamOptions{},
	types.ChatCompletionRequest{},
	types.Usage{},
	types.ChatCompletionChoice{},
	types.ChatCompletionResponse{},
	types.ChunkDelta{},
	types.ChatCompletionChunkChoice{},
	types.ChatCompletionChunk{},
	types.ErrorResponse{},
	types.StreamError{},
	types.HealthResponse{},
	types.ModelCard{},
	types.ModelList{},
}

func tsConverter() *typescriptify.TypeScriptify {
	c := typescriptify.New()
	c.CreateInterface = true
	c.BackupDir = ""
	for _, t := range apiTypes {
		c.Add(t)
	}
	return c
}

func newGenTSCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "gen-ts",
		Short: "Generate TypeScript interfaces for the HTTP API types",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := tsConverter().Convert(nil)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), src)
				return err
			}
			return os.WriteFile(out, []byte(src+"\n"), 0o644)
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "-", "output file, - for stdout")
	return cmd
}
