package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/server"
	mcpsvc "github.com/m-mizutani/skyalgo/pkg/service/mcp"
	"github.com/m-mizutani/skyalgo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg     config
		addr    string
		withMCP bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Aliases:     []string{"a"},
			Usage:       "Listen address",
			Value:       server.DefaultAddr,
			Sources:     cli.EnvVars("SKYALGO_ADDR"),
			Destination: &addr,
		},
		&cli.BoolFlag{
			Name:        "mcp",
			Usage:       "Also serve the MCP tools over HTTP at /mcp",
			Sources:     cli.EnvVars("SKYALGO_SERVE_MCP"),
			Destination: &withMCP,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the analysis page and its API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx, os.Stderr)

			// Initialize dependencies
			repo, closeRepo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			ctrl, err := cfg.newController(ctx, repo)
			if err != nil {
				return err
			}
			if !ctrl.CredentialReady() {
				logging.From(ctx).Warn("no Gemini credential configured, waiting for one from the page")
			}

			opts := []server.Option{server.WithAddr(addr)}
			if withMCP {
				handler := mcpsvc.NewHTTPHandler(mcpsvc.NewServer(ctrl, Version))
				opts = append(opts, server.WithMount("/mcp", handler))
			}

			srv, err := server.New(ctrl, opts...)
			if err != nil {
				return goerr.Wrap(err, "failed to create server")
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx)
		},
	}
}
