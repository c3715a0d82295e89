package ask

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"vision-assist/cmd/chat"
	"vision-assist/config"
	"vision-assist/gemini"
	"vision-assist/meta"
)

// Ask answers the query given as arguments once and exits.
func Ask(ctx *cli.Context) error {
	userQuery := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
	if userQuery == "" {
		return cli.Exit("No query provided.", 2)
	}

	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	client := gemini.NewClient(cfg, meta.GetPrompt())
	chat.PrintResult(os.Stdout, client.Ask(ctx.Context, userQuery))
	return nil
}
