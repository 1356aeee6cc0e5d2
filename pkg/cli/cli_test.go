package cli_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/skyalgo/pkg/cli"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/repository"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, images []*model.EncodedImage, price string) (*model.TradingAnalysis, error) {
	return &model.TradingAnalysis{
		MarketSummary: &model.MarketSummary{TrendDirection: "Uptrend"},
		FinalTradingDecision: &model.FinalTradingDecision{
			MarketBias: model.MarketBiasBullish,
			EntryZone:  "22100-22120",
			StopLoss:   "22080",
			Target1:    "22180",
			Confidence: "High",
		},
	}, nil
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := cli.NewRootCommand()
	cmd.Writer = &buf
	cmd.ErrWriter = &buf
	err := cmd.Run(context.Background(), append([]string{"skyalgo"}, args...))
	return buf.String(), err
}

// seed records one analysis in a file store and returns it
func seed(t *testing.T, dir string) *model.HistoryEntry {
	t.Helper()
	repo, err := repository.NewFile(dir)
	gt.NoError(t, err)

	ctrl := session.New(repo, stubAnalyzer{},
		session.WithIDGenerator(func() model.HistoryEntryID { return "entry-1" }),
		session.WithClock(func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) }),
	)
	images := []*model.EncodedImage{{Base64: "aGVsbG8=", MIMEType: "image/png"}}
	entry, err := ctrl.RunAnalysis(context.Background(), images, "22150")
	gt.NoError(t, err)
	return entry
}

func TestHistoryCommands(t *testing.T) {
	dir := t.TempDir()
	store := []string{"--store", "file", "--dir", dir}

	out, err := run(t, append([]string{"history", "list"}, store...)...)
	gt.NoError(t, err)
	gt.S(t, out).Contains("No analyses recorded.")

	seed(t, dir)

	t.Run("list", func(t *testing.T) {
		out, err := run(t, append([]string{"history", "list"}, store...)...)
		gt.NoError(t, err)
		gt.S(t, out).Contains("entry-1")
		gt.S(t, out).Contains("Bullish")
		gt.S(t, out).Contains("entry 22100-22120")
	})

	t.Run("show as yaml", func(t *testing.T) {
		out, err := run(t, append([]string{"history", "show", "--id", "entry-1", "--format", "yaml"}, store...)...)
		gt.NoError(t, err)
		gt.S(t, out).Contains("marketBias: Bullish")
		gt.S(t, out).Contains("id: entry-1")
	})

	t.Run("show unknown entry", func(t *testing.T) {
		_, err := run(t, append([]string{"history", "show", "--id", "missing"}, store...)...)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrHistoryNotFound))
	})

	t.Run("share and view", func(t *testing.T) {
		out, err := run(t, append([]string{"history", "share", "--id", "entry-1", "--base-url", "https://skyalgo.example.com/"}, store...)...)
		gt.NoError(t, err)
		gt.S(t, out).Contains("https://skyalgo.example.com/?view=")

		link := string(bytes.TrimSpace([]byte(out)))
		out, err = run(t, "view", "--format", "json", link)
		gt.NoError(t, err)
		gt.S(t, out).Contains(`"id": "entry-1"`)
		gt.S(t, out).Contains(`"entryZone": "22100-22120"`)

		out, err = run(t, "view", link)
		gt.NoError(t, err)
		gt.S(t, out).Contains("Final Trading Decision")
		gt.S(t, out).Contains("22080")
	})

	t.Run("clear", func(t *testing.T) {
		out, err := run(t, append([]string{"history", "clear"}, store...)...)
		gt.NoError(t, err)
		gt.S(t, out).Contains("History cleared.")

		_, err = os.Stat(filepath.Join(dir, repository.HistoryKey+".json"))
		gt.True(t, errors.Is(err, os.ErrNotExist))

		out, err = run(t, append([]string{"history", "list"}, store...)...)
		gt.NoError(t, err)
		gt.S(t, out).Contains("No analyses recorded.")
	})
}

func TestViewCommand(t *testing.T) {
	entry := seed(t, t.TempDir())

	value, err := session.EncodeShareValue(entry)
	gt.NoError(t, err)

	out, err := run(t, "view", "--format", "yaml", value)
	gt.NoError(t, err)
	gt.S(t, out).Contains("trendDirection: Uptrend")

	t.Run("broken value", func(t *testing.T) {
		_, err := run(t, "view", "%%%")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrShareLink))
	})

	t.Run("missing value", func(t *testing.T) {
		_, err := run(t, "view")
		gt.Error(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := run(t, "view", "--format", "xml", value)
		gt.Error(t, err)
	})
}
