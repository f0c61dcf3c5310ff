package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"chatd/internal/client"
	"chatd/pkg/types"
)

type chatOptions struct {
	url         string
	stream      bool
	system      string
	maxTokens   int
	temperature float64
}

func newChatCmd() *cobra.Command {
	var o chatOptions
	cmd := &cobra.Command{
		Use:   "chat [PROMPT]",
		Short: "Talk to a running chatd server",
		Long: "chat sends PROMPT and prints the answer. Without PROMPT it starts an\n" +
			"interactive session that keeps the conversation history; piped stdin is\n" +
			"sent as a single prompt.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			c := client.New(o.url, 0)
			out := cmd.OutOrStdout()
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				color.NoColor = true
			}

			if len(args) == 1 {
				_, err := o.turn(ctx, c, out, []types.ChatMessage{{Role: "user", Content: args[0]}})
				return err
			}
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				prompt := strings.TrimSpace(string(raw))
				if prompt == "" {
					return errors.New("empty prompt on stdin")
				}
				_, err = o.turn(ctx, c, out, []types.ChatMessage{{Role: "user", Content: prompt}})
				return err
			}
			return o.repl(ctx, c, cmd.InOrStdin(), out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.url, "url", "http://localhost:8080", "server base URL")
	f.BoolVar(&o.stream, "stream", true, "stream tokens as they arrive")
	f.StringVar(&o.system, "system", "", "system instruction, default is the server's")
	f.IntVar(&o.maxTokens, "max-tokens", 0, "max new tokens, 0 uses the server default")
	f.Float64Var(&o.temperature, "temperature", -1, "sampling temperature, negative uses the server default")
	return cmd
}

func (o chatOptions) request(history []types.ChatMessage) types.ChatCompletionRequest {
	msgs := history
	if o.system != "" {
		msgs = append([]types.ChatMessage{{Role: "system", Content: o.system}}, history...)
	}
	req := types.ChatCompletionRequest{Messages: msgs, Stream: o.stream}
	if o.maxTokens > 0 {
		n := o.maxTokens
		req.MaxTokens = &n
	}
	if o.temperature >= 0 {
		t := o.temperature
		req.Temperature = &t
	}
	return req
}

// turn sends history and prints the assistant answer, returning its text.
func (o chatOptions) turn(ctx context.Context, c *client.Client, out io.Writer, history []types.ChatMessage) (string, error) {
	req := o.request(history)
	var reply strings.Builder
	if o.stream {
		err := c.StreamChatCompletion(ctx, req, func(ch types.ChatCompletionChunk) error {
			for _, choice := range ch.Choices {
				if choice.Delta.Content != "" {
					reply.WriteString(choice.Delta.Content)
					fmt.Fprint(out, choice.Delta.Content)
				}
			}
			return nil
		})
		fmt.Fprintln(out)
		return reply.String(), err
	}
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) > 0 {
		reply.WriteString(resp.Choices[0].Message.Content)
	}
	fmt.Fprintln(out, reply.String())
	return reply.String(), nil
}

func (o chatOptions) repl(ctx context.Context, c *client.Client, in io.Reader, out io.Writer) error {
	prompt := color.New(color.FgCyan, color.Bold).SprintFunc()
	errc := color.New(color.FgRed).SprintFunc()
	fmt.Fprintln(out, color.New(color.Faint).Sprint("/reset clears the history, /exit or Ctrl-D quits"))

	var history []types.ChatMessage
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(out, prompt(">>> "))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			history = nil
			continue
		}
		history = append(history, types.ChatMessage{Role: "user", Content: line})
		reply, err := o.turn(ctx, c, out, history)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(out, errc("error: "+err.Error()))
			history = history[:len(history)-1]
			continue
		}
		history = append(history, types.ChatMessage{Role: "assistant", Content: reply})
	}
}
