package audit

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/shopspring/decimal"
)

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// Levels are the numeric price levels found in a trade decision
type Levels struct {
	EntryLow  decimal.Decimal
	EntryHigh decimal.Decimal
	StopLoss  decimal.Decimal
}

// ParseLevels reads the entry zone and stop loss of a decision. The model writes them as
// free text ("24,520 - 24,540", "Below 24500"), so the first one or two numbers are used.
// It returns false when either level has no number.
func ParseLevels(decision *model.FinalTradingDecision) (*Levels, bool) {
	if decision == nil {
		return nil, false
	}

	entry := findNumbers(decision.EntryZone, 2)
	stop := findNumbers(decision.StopLoss, 1)
	if len(entry) == 0 || len(stop) == 0 {
		return nil, false
	}

	return &Levels{
		EntryLow:  decimal.Min(entry[0], entry[1:]...),
		EntryHigh: decimal.Max(entry[0], entry[1:]...),
		StopLoss:  stop[0],
	}, true
}

// StopDistance is how far the stop loss sits from the nearest bound of the entry zone. A
// stop inside the zone has distance zero.
func (l *Levels) StopDistance() decimal.Decimal {
	switch {
	case l.StopLoss.LessThan(l.EntryLow):
		return l.EntryLow.Sub(l.StopLoss)
	case l.StopLoss.GreaterThan(l.EntryHigh):
		return l.StopLoss.Sub(l.EntryHigh)
	default:
		return decimal.Zero
	}
}

func findNumbers(text string, limit int) []decimal.Decimal {
	text = strings.ReplaceAll(text, ",", "")
	matches := numberPattern.FindAllString(text, limit)

	numbers := make([]decimal.Decimal, 0, len(matches))
	for _, m := range matches {
		d, err := decimal.NewFromString(m)
		if err != nil {
			continue
		}
		numbers = append(numbers, d)
	}
	return numbers
}

// regoInput renders levels as exact JSON numbers for policy evaluation
func (l *Levels) regoInput() map[string]any {
	if l == nil {
		return map[string]any{"parsed": false}
	}
	return map[string]any{
		"parsed":        true,
		"entry_low":     json.Number(l.EntryLow.String()),
		"entry_high":    json.Number(l.EntryHigh.String()),
		"stop_loss":     json.Number(l.StopLoss.String()),
		"stop_distance": json.Number(l.StopDistance().String()),
	}
}
