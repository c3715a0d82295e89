package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"vision-assist/citation"
	"vision-assist/config"
	"vision-assist/gemini"
	"vision-assist/meta"
)

const (
	prompt    = "USER QUERY >>> "
	lineWidth = 70
)

// Asker is the upstream call, satisfied by *gemini.Client.
type Asker interface {
	Ask(ctx context.Context, query string) gemini.Result
}

func Chat(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client := gemini.NewClient(cfg, meta.GetPrompt())
	return Loop(ctx.Context, os.Stdin, os.Stdout, client, cfg.Model)
}

// Loop reads one query per line from in and answers it on out, one at a time, until an
// exit command, end of input, or ctx is cancelled.
func Loop(ctx context.Context, in io.Reader, out io.Writer, asker Asker, model string) error {
	fmt.Fprintln(out, strings.Repeat("=", lineWidth))
	fmt.Fprintf(out, "J.A.R.V.I.S. ASSISTANT - %s PROTOCOL INITIALIZED (CLI Mode)\n", meta.AssistantName)
	fmt.Fprintf(out, "Model: %s | Search Grounding: ACTIVE\n", model)
	fmt.Fprintln(out, "Enter 'exit' or 'quit' to terminate the assistant.")
	fmt.Fprintln(out, strings.Repeat("-", lineWidth))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines, readErr := readLines(ctx, in)
	for {
		fmt.Fprint(out, prompt)

		var userInput string
		select {
		case <-ctx.Done():
			interrupted(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				interrupted(out)
				return nil
			}
			userInput = line
		}

		switch strings.ToLower(strings.TrimSpace(userInput)) {
		case "exit", "quit":
			fmt.Fprintf(out, "\n[%s] | System shutting down. Have a productive day.\n", meta.AssistantName)
			return nil
		case "":
			continue
		}

		fmt.Fprintf(out, "[%s] | Initializing sequence...\n", strings.ToUpper(model))
		result := asker.Ask(ctx, userInput)
		if ctx.Err() != nil {
			interrupted(out)
			return nil
		}
		PrintResult(out, result)
	}
}

// PrintResult writes an answer with its Markdown source log between separator lines.
func PrintResult(out io.Writer, result gemini.Result) {
	fmt.Fprintln(out, "\n"+strings.Repeat("=", lineWidth))
	fmt.Fprintf(out, "[%s] | RESPONSE GENERATED:\n", meta.AssistantName)

	if text := result.Display(); text != "" {
		fmt.Fprintln(out, text)
	}
	fmt.Fprintln(out, citation.Markdown(result.Sources))

	fmt.Fprintln(out, strings.Repeat("-", lineWidth))
}

func interrupted(out io.Writer) {
	fmt.Fprintf(out, "\n[%s] | Sequence interrupted. Terminating.\n", meta.AssistantName)
}

// readLines feeds input lines to the loop so that it can also wait on ctx. Lines have no
// length limit. The error channel receives the read error (nil at end of input or on
// cancellation) once lines is closed.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		reader := bufio.NewReader(in)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				select {
				case lines <- strings.TrimRight(line, "\r\n"):
				case <-ctx.Done():
					readErr <- nil
					return
				}
			}
			if errors.Is(err, io.EOF) {
				readErr <- nil
				return
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	return lines, readErr
}
