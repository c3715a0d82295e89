package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"vision-assist/cmd/ask"
	"vision-assist/cmd/chat"
	"vision-assist/cmd/serve"
)

func main() {
	app := &cli.App{
		Name:  "vision",
		Usage: "Search-grounded assistant over the Gemini API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from a YAML `FILE`",
				EnvVars: []string{"VISION_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "Load environment variables from `FILE` if it exists",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"s"},
				Usage:   "Run the JSON web API",
				Action:  serve.Serve,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "port",
						Usage: "Listen on `PORT` (overrides PORT and the config file)",
					},
				},
			},
			{
				Name:    "chat",
				Aliases: []string{"cli"},
				Usage:   "Start the interactive assistant",
				Action:  chat.Chat,
			},
			{
				Name:      "ask",
				Aliases:   []string{"a"},
				Usage:     "Answer a single query and exit",
				ArgsUsage: "QUERY...",
				Action:    ask.Ask,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(ctx *cli.Context) error {
	level := slog.LevelInfo
	if ctx.Bool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := godotenv.Load(ctx.String("env-file")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", slog.String("path", ctx.String("env-file")), slog.Any("error", err))
	}
	return nil
}
