package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/usecase/encoder"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
	"github.com/urfave/cli/v3"
)

func analyzeCommand() *cli.Command {
	var (
		cfg    config
		price  string
		format string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "price",
			Usage:       "Current price of the instrument (prompted when omitted on a terminal)",
			Destination: &price,
		},
		formatFlag(&format),
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze chart screenshots and record the report",
		ArgsUsage: "<image> [<image>...]",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.withLogger(ctx, os.Stderr)
			paths := c.Args().Slice()

			if len(paths) > 0 && strings.TrimSpace(price) == "" && readline.IsTerminal(int(os.Stdin.Fd())) {
				p, err := promptPrice(cfg.instrument)
				if err != nil {
					return err
				}
				price = p
			}

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

			if len(paths) > model.MaxImages {
				return goerr.Wrap(model.ErrTooManyImages, session.UserMessage(model.ErrTooManyImages))
			}

			sources := make([]encoder.Source, 0, len(paths))
			for _, path := range paths {
				sources = append(sources, encoder.FileSource(path))
			}
			images, err := encoder.EncodeAll(ctx, sources)
			if err != nil {
				return goerr.Wrap(err, session.UserMessage(err))
			}

			stop := startSpinner(os.Stderr, " Analyzing charts...")
			entry, err := ctrl.RunAnalysis(ctx, images, price)
			stop()
			if err != nil {
				return goerr.Wrap(err, session.UserMessage(err))
			}

			w := c.Root().Writer
			if err := writeEntry(w, format, entry); err != nil {
				return err
			}

			if format == formatText {
				link, err := ctrl.EncodeShareLink(entry, "")
				if err != nil {
					return goerr.Wrap(err, "failed to create share link")
				}
				fmt.Fprintf(w, "Share: %s\n", link)
			}
			return nil
		},
	}
}

// promptPrice asks for the current price until a non-blank value is entered
func promptPrice(instrument string) (string, error) {
	rl, err := readline.New(fmt.Sprintf("Current %s price: ", instrument))
	if err != nil {
		return "", goerr.Wrap(err, "failed to open prompt")
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return "", goerr.New("price input cancelled")
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to read price")
		}
		if p := strings.TrimSpace(line); p != "" {
			return p, nil
		}
	}
}

// startSpinner shows progress on a terminal. The returned function stops it.
func startSpinner(w *os.File, suffix string) func() {
	if !readline.IsTerminal(int(w.Fd())) {
		return func() {}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = suffix
	s.Start()
	return s.Stop
}
