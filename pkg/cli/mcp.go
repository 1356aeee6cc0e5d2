package cli

import (
	"context"
	"os"

	mcpsvc "github.com/m-mizutani/skyalgo/pkg/service/mcp"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the history tools over MCP on stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			// stdout carries the protocol
			ctx = cfg.withLogger(ctx, os.Stderr)

			repo, closeRepo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			ctrl, err := cfg.newController(ctx, repo)
			if err != nil {
				return err
			}

			return mcpsvc.Serve(ctx, mcpsvc.NewServer(ctrl, Version))
		},
	}
}
