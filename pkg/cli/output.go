package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func formatFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "format",
		Aliases:     []string{"f"},
		Usage:       "Output format (text, json, yaml)",
		Value:       formatText,
		Destination: dst,
	}
}

// writeStructured prints v as JSON or YAML. YAML keys follow the JSON field names.
func writeStructured(w io.Writer, format string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal output")
	}

	switch format {
	case formatJSON:
		fmt.Fprintf(w, "%s\n", string(raw))
		return nil

	case formatYAML:
		var tree any
		if err := json.Unmarshal(raw, &tree); err != nil {
			return goerr.Wrap(err, "failed to convert output")
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return goerr.Wrap(err, "failed to write yaml")
		}
		return enc.Close()

	default:
		return goerr.New("unknown output format", goerr.V("format", format))
	}
}

// writeEntry prints a captured analysis in the requested format
func writeEntry(w io.Writer, format string, entry *model.HistoryEntry) error {
	if format != formatText {
		return writeStructured(w, format, entry)
	}

	if entry.ID != "" {
		fmt.Fprintf(w, "ID:        %s\n", entry.ID)
	}
	fmt.Fprintf(w, "Timestamp: %s\n\n", entry.Timestamp)
	writeReport(w, &entry.TradingAnalysis)
	return nil
}

type field struct {
	label string
	value string
}

func writeSection(w io.Writer, title string, fields ...field) {
	fmt.Fprintf(w, "== %s ==\n", title)
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		fmt.Fprintf(w, "  %-22s %s\n", f.label+":", f.value)
	}
	fmt.Fprintln(w)
}

// writeReport prints the report sections in display order, skipping absent ones
func writeReport(w io.Writer, a *model.TradingAnalysis) {
	if d := a.FinalTradingDecision; d != nil {
		writeSection(w, "Final Trading Decision",
			field{"Market Bias", string(d.MarketBias)},
			field{"Entry Zone", d.EntryZone},
			field{"Stop Loss", d.StopLoss},
			field{"Target 1", d.Target1},
			field{"Target 2", d.Target2},
			field{"Confidence", d.Confidence},
			field{"Risk/Reward", d.RiskRewardRatio},
		)
	}
	if s := a.MarketSummary; s != nil {
		writeSection(w, "Market Summary",
			field{"Trend Direction", s.TrendDirection},
			field{"Price Behavior", s.PriceBehavior},
			field{"Support/Resistance", s.KeySupportResistance},
			field{"Indicator Alignments", s.IndicatorAlignments},
		)
	}
	if o := a.OpenInterestAnalysis; o != nil {
		writeSection(w, "Open Interest Analysis",
			field{"CE vs PE Strength", o.CEvsPEStrength},
			field{"Build-up/Unwinding", o.BuildUpOrUnwinding},
			field{"Major Strike Levels", o.MajorStrikeLevels},
			field{"Market Bias", o.MarketBias},
		)
	}
	if o := a.OptionChainInsight; o != nil {
		writeSection(w, "Option Chain Insight",
			field{"Heavy CE/PE Activity", o.HeavyCEPEActivity},
			field{"IV Trend", o.ImpliedVolatilityTrend},
			field{"PCR", o.PCR},
		)
	}
	if t := a.TechnicalIndicatorAnalysis; t != nil {
		writeSection(w, "Technical Indicators",
			field{"EMA/VWAP Trend", t.EMAVWAPTrend},
			field{"ADX", t.ADX},
			field{"RSI/Stochastic", t.RSIStochastic},
			field{"Divergences", t.Divergences},
		)
	}
	if r := a.Reasoning; r != nil {
		writeSection(w, "Reasoning",
			field{"Summary", r.Summary},
			field{"Alignment", r.Alignment},
			field{"Potential", r.Potential},
		)
	}
}

// writeHistory prints one line per entry, newest first
func writeHistory(w io.Writer, format string, history []*model.HistoryEntry) error {
	if format != formatText {
		if history == nil {
			history = []*model.HistoryEntry{}
		}
		return writeStructured(w, format, history)
	}

	if len(history) == 0 {
		fmt.Fprintln(w, "No analyses recorded.")
		return nil
	}

	for _, entry := range history {
		cols := []string{string(entry.ID), entry.Timestamp}
		if d := entry.FinalTradingDecision; d != nil {
			cols = append(cols, string(d.MarketBias), "entry "+d.EntryZone, "stop "+d.StopLoss)
		}
		fmt.Fprintln(w, strings.Join(cols, "  "))
	}
	return nil
}
