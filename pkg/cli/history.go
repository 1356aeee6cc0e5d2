package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect and share recorded analyses",
		Commands: []*cli.Command{
			historyListCommand(),
			historyShowCommand(),
			historyShareCommand(),
			historyClearCommand(),
		},
	}
}

// withController builds a history subcommand around a session controller
func withController(cfg *config, cmd *cli.Command, run func(ctx context.Context, c *cli.Command, ctrl *session.Controller) error) *cli.Command {
	cmd.Flags = append(cmd.Flags, globalFlags(cfg)...)
	cmd.Flags = append(cmd.Flags, storeFlags(cfg)...)
	cmd.Flags = append(cmd.Flags, sessionFlags(cfg)...)

	cmd.Action = func(ctx context.Context, c *cli.Command) error {
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

		if _, err := ctrl.LoadHistory(ctx); err != nil {
			return goerr.Wrap(err, "failed to load history")
		}

		return run(ctx, c, ctrl)
	}
	return cmd
}

func entryIDFlag(dst *model.HistoryEntryID) cli.Flag {
	return &cli.StringFlag{
		Name:        "id",
		Usage:       "History entry ID",
		Destination: (*string)(dst),
		Required:    true,
	}
}

func historyListCommand() *cli.Command {
	var (
		cfg    config
		format string
	)

	cmd := &cli.Command{
		Name:  "list",
		Usage: "List recorded analyses, newest first",
		Flags: []cli.Flag{formatFlag(&format)},
	}
	return withController(&cfg, cmd, func(ctx context.Context, c *cli.Command, ctrl *session.Controller) error {
		history, err := ctrl.History(ctx)
		if err != nil {
			return goerr.Wrap(err, "failed to list history")
		}
		return writeHistory(c.Root().Writer, format, history)
	})
}

func historyShowCommand() *cli.Command {
	var (
		cfg     config
		format  string
		entryID model.HistoryEntryID
	)

	cmd := &cli.Command{
		Name:  "show",
		Usage: "Show the report of a recorded analysis",
		Flags: []cli.Flag{entryIDFlag(&entryID), formatFlag(&format)},
	}
	return withController(&cfg, cmd, func(ctx context.Context, c *cli.Command, ctrl *session.Controller) error {
		entry, err := ctrl.Entry(ctx, entryID)
		if err != nil {
			return goerr.Wrap(err, session.UserMessage(err))
		}
		return writeEntry(c.Root().Writer, format, entry)
	})
}

func historyShareCommand() *cli.Command {
	var (
		cfg     config
		entryID model.HistoryEntryID
	)

	cmd := &cli.Command{
		Name:  "share",
		Usage: "Print a read-only share link of a recorded analysis",
		Flags: []cli.Flag{entryIDFlag(&entryID)},
	}
	return withController(&cfg, cmd, func(ctx context.Context, c *cli.Command, ctrl *session.Controller) error {
		link, err := ctrl.ShareLink(ctx, entryID)
		if err != nil {
			return goerr.Wrap(err, session.UserMessage(err))
		}
		fmt.Fprintln(c.Root().Writer, link)
		return nil
	})
}

func historyClearCommand() *cli.Command {
	var cfg config

	cmd := &cli.Command{
		Name:  "clear",
		Usage: "Delete every recorded analysis",
	}
	return withController(&cfg, cmd, func(ctx context.Context, c *cli.Command, ctrl *session.Controller) error {
		if err := ctrl.ClearHistory(ctx); err != nil {
			return goerr.Wrap(err, "failed to clear history")
		}
		fmt.Fprintln(c.Root().Writer, "History cleared.")
		return nil
	})
}
