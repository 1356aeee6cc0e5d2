package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

// Version is reported by --version and by the MCP server
const Version = "0.1.0"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	if err := newRootCommand().Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "skyalgo",
		Usage:   "Chart screenshot trading analysis",
		Version: Version,
		Commands: []*cli.Command{
			serveCommand(),
			analyzeCommand(),
			historyCommand(),
			viewCommand(),
			mcpCommand(),
		},
	}
}
