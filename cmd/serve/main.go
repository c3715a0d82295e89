package serve

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"vision-assist/archive"
	"vision-assist/config"
	"vision-assist/gemini"
	"vision-assist/meta"
	"vision-assist/service"
)

// Serve runs the JSON web API until the process is stopped.
func Serve(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if ctx.IsSet("port") {
		cfg.Port = ctx.String("port")
	}

	logger := slog.Default()
	if !ctx.Bool("verbose") {
		gin.SetMode(gin.ReleaseMode)
	}

	var exchangeArchive service.Archive
	switch {
	case cfg.Archive.UsesOpenSearch():
		store, err := archive.New(cfg.Archive, nil)
		if err != nil {
			return fmt.Errorf("failed to set up exchange archive: %w", err)
		}
		exchangeArchive = store
		logger.Info("archiving exchanges to opensearch", slog.Any("addresses", cfg.Archive.Addresses), slog.String("index", cfg.Archive.Index))
	case cfg.Archive.File != "":
		exchangeArchive = archive.NewFile(cfg.Archive.File)
		logger.Info("archiving exchanges to file", slog.String("path", cfg.Archive.File))
	}

	client := gemini.NewClient(cfg, meta.GetPrompt(), gemini.WithLogger(logger))
	server := service.NewServer(service.NewAssistant(client, exchangeArchive, logger), cfg.Model, logger)

	addr := net.JoinHostPort("0.0.0.0", cfg.Port)
	logger.Info("starting web server", slog.String("addr", addr), slog.String("model", cfg.Model))
	return server.Run(ctx.Context, addr)
}
