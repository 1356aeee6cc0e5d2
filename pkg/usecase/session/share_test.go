package session_test

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"github.com/m-mizutani/skyalgo/pkg/usecase/session"
)

func fullEntry() *model.HistoryEntry {
	return &model.HistoryEntry{
		TradingAnalysis: model.TradingAnalysis{
			MarketSummary: &model.MarketSummary{
				TrendDirection:       "Sideways",
				PriceBehavior:        "Consolidation near 22,150 (± 40)",
				KeySupportResistance: "S: 22100 / R: 22200",
				IndicatorAlignments:  "Price ~ VWAP; RSI 52 & flat",
			},
			OpenInterestAnalysis: &model.OpenInterestAnalysis{
				CEvsPEStrength:     "Balanced",
				BuildUpOrUnwinding: "Short covering",
				MajorStrikeLevels:  "22000 PE, 22300 CE",
				MarketBias:         "Neutral",
			},
			OptionChainInsight: &model.OptionChainInsight{
				HeavyCEPEActivity:      "22200 CE",
				ImpliedVolatilityTrend: "Falling",
				PCR:                    "0.98 → neutral",
			},
			TechnicalIndicatorAnalysis: &model.TechnicalIndicatorAnalysis{
				EMAVWAPTrend:  "EMA9 ≈ EMA15",
				ADX:           "18 (weak)",
				RSIStochastic: "Mid-range",
				Divergences:   "None",
			},
			FinalTradingDecision: &model.FinalTradingDecision{
				MarketBias:      model.MarketBiasNeutral,
				EntryZone:       "N/A",
				StopLoss:        "N/A",
				Target1:         "N/A",
				Target2:         "N/A",
				Confidence:      "Low",
				RiskRewardRatio: "1:2",
			},
			Reasoning: &model.Reasoning{
				Summary:   "No high-probability trade found (<85%).",
				Alignment: "Mixed",
				Potential: "Wait for breakout + volume?",
			},
		},
		ID:        "3f1c2a9e-7d44-4b8e-9a51-0c7e2b6f1d20",
		Timestamp: "2026-10-15T09:30:00.000Z",
	}
}

func TestShareLinkRoundTrip(t *testing.T) {
	entries := map[string]*model.HistoryEntry{
		"full entry": fullEntry(),
		"required sections only": {
			TradingAnalysis: model.TradingAnalysis{
				MarketSummary:        &model.MarketSummary{},
				FinalTradingDecision: &model.FinalTradingDecision{MarketBias: model.MarketBiasBearish},
			},
			ID:        "b",
			Timestamp: "2026-01-02T03:04:05.006Z",
		},
	}

	for name, entry := range entries {
		t.Run(name, func(t *testing.T) {
			link, err := session.EncodeShareLink(entry, "https://skyalgo.example.com/app")
			gt.NoError(t, err)

			value, err := session.ShareValueFromURL(link)
			gt.NoError(t, err)

			decoded, err := session.DecodeShareLink(value)
			gt.NoError(t, err)
			gt.V(t, *decoded).Equal(*entry)
		})
	}
}

func TestEncodeShareLinkDropsQueryAndFragment(t *testing.T) {
	link, err := session.EncodeShareLink(fullEntry(), "https://skyalgo.example.com/app/?admin=true&x=1#history")
	gt.NoError(t, err)
	gt.True(t, strings.HasPrefix(link, "https://skyalgo.example.com/app/?view="))

	u, err := url.Parse(link)
	gt.NoError(t, err)
	gt.Equal(t, u.Fragment, "")
	gt.A(t, u.Query()["admin"]).Length(0)
	gt.A(t, u.Query()["view"]).Length(1)
}

func TestEncodeShareValueIsPercentEncodedBase64(t *testing.T) {
	entry := fullEntry()
	value, err := session.EncodeShareValue(entry)
	gt.NoError(t, err)

	gt.False(t, strings.ContainsAny(value, "+/="))

	unescaped, err := url.QueryUnescape(value)
	gt.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(unescaped)
	gt.NoError(t, err)
	gt.S(t, string(raw)).Contains(`"id":"3f1c2a9e-7d44-4b8e-9a51-0c7e2b6f1d20"`)
}

func TestDecodeShareLinkAcceptsDecodedValue(t *testing.T) {
	entry := fullEntry()
	value, err := session.EncodeShareValue(entry)
	gt.NoError(t, err)

	// a router may hand over the value after one round of percent-decoding
	once, err := url.QueryUnescape(value)
	gt.NoError(t, err)

	decoded, err := session.DecodeShareLink(once)
	gt.NoError(t, err)
	gt.Equal(t, decoded.ID, entry.ID)
}

func TestDecodeShareLinkErrors(t *testing.T) {
	b64 := func(s string) string {
		return url.QueryEscape(base64.StdEncoding.EncodeToString([]byte(s)))
	}

	cases := map[string]struct {
		value     string
		structure bool
	}{
		"empty":                  {value: ""},
		"bad percent encoding":   {value: "%zz"},
		"not base64":             {value: "!!!not-base64!!!"},
		"not JSON":               {value: b64("hello")},
		"missing final decision": {value: b64(`{"marketSummary":{}}`), structure: true},
		"missing market summary": {value: b64(`{"finalTradingDecision":{}}`), structure: true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			entry, err := session.DecodeShareLink(tc.value)
			gt.True(t, entry == nil)
			gt.True(t, errors.Is(err, model.ErrShareLink))
			gt.Equal(t, errors.Is(err, model.ErrInvalidAnalysisStructure), tc.structure)

			if tc.structure {
				gt.Equal(t, session.UserMessage(err), "Invalid share link data.")
			} else {
				gt.Equal(t, session.UserMessage(err), "Could not load the shared analysis. The link may be corrupted.")
			}
		})
	}
}

func TestDecodeShareLinkDoesNotTouchDisplay(t *testing.T) {
	ctrl := newController(nil, returning(nil))
	_, err := ctrl.DecodeShareLink("%%%")
	gt.True(t, errors.Is(err, model.ErrShareLink))
	gt.True(t, ctrl.Display() == nil)
}

func TestShareValueFromURL(t *testing.T) {
	_, err := session.ShareValueFromURL("https://skyalgo.example.com/app?admin=true")
	gt.True(t, errors.Is(err, model.ErrShareLink))
}
