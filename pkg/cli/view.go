package cli

import (
	"context"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
	"github.com/m-mizutani/skyalgo/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func viewCommand() *cli.Command {
	var (
		cfg    config
		format string
	)

	flags := []cli.Flag{formatFlag(&format)}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "view",
		Usage:     "Decode a share link and print the analysis it carries",
		ArgsUsage: "<share-link-or-view-value>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx, os.Stderr)

			value := strings.TrimSpace(c.Args().First())
			if value == "" {
				return goerr.New("share link is required")
			}

			if strings.Contains(value, "?") {
				v, err := session.ShareValueFromURL(value)
				if err != nil {
					return goerr.Wrap(err, session.UserMessage(err))
				}
				value = v
			}

			entry, err := session.DecodeShareLink(value)
			if err != nil {
				logging.From(ctx).Debug("failed to decode share link", "error", err)
				return goerr.Wrap(err, session.UserMessage(err))
			}

			return writeEntry(c.Root().Writer, format, entry)
		},
	}
}
