package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

type MarketBias string

const (
	MarketBiasBullish MarketBias = "Bullish"
	MarketBiasBearish MarketBias = "Bearish"
	MarketBiasNeutral MarketBias = "Neutral"
)

// MarketBiases lists the values accepted by the response schema.
func MarketBiases() []MarketBias {
	return []MarketBias{MarketBiasBullish, MarketBiasBearish, MarketBiasNeutral}
}

type MarketSummary struct {
	TrendDirection       string `json:"trendDirection"`
	PriceBehavior        string `json:"priceBehavior"`
	KeySupportResistance string `json:"keySupportResistance"`
	IndicatorAlignments  string `json:"indicatorAlignments"`
}

type OpenInterestAnalysis struct {
	CEvsPEStrength     string `json:"ceVsPeStrength"`
	BuildUpOrUnwinding string `json:"buildUpOrUnwinding"`
	MajorStrikeLevels  string `json:"majorStrikeLevels"`
	MarketBias         string `json:"marketBias"`
}

type OptionChainInsight struct {
	HeavyCEPEActivity      string `json:"heavyCePeActivity"`
	ImpliedVolatilityTrend string `json:"impliedVolatilityTrend"`
	PCR                    string `json:"pcr"`
}

type TechnicalIndicatorAnalysis struct {
	EMAVWAPTrend  string `json:"emaVwapTrend"`
	ADX           string `json:"adx"`
	RSIStochastic string `json:"rsiStochastic"`
	Divergences   string `json:"divergences"`
}

type FinalTradingDecision struct {
	MarketBias      MarketBias `json:"marketBias"`
	EntryZone       string     `json:"entryZone"`
	StopLoss        string     `json:"stopLoss"`
	Target1         string     `json:"target1"`
	Target2         string     `json:"target2"`
	Confidence      string     `json:"confidence"`
	RiskRewardRatio string     `json:"riskRewardRatio,omitempty"`
}

type Reasoning struct {
	Summary   string `json:"summary"`
	Alignment string `json:"alignment"`
	Potential string `json:"potential"`
}

// TradingAnalysis is the report produced by the model. Only MarketSummary and
// FinalTradingDecision are guaranteed to be non-nil after parsing; any other section or
// field may be missing.
type TradingAnalysis struct {
	MarketSummary              *MarketSummary              `json:"marketSummary"`
	OpenInterestAnalysis       *OpenInterestAnalysis       `json:"openInterestAnalysis,omitempty"`
	OptionChainInsight         *OptionChainInsight         `json:"optionChainInsight,omitempty"`
	TechnicalIndicatorAnalysis *TechnicalIndicatorAnalysis `json:"technicalIndicatorAnalysis,omitempty"`
	FinalTradingDecision       *FinalTradingDecision       `json:"finalTradingDecision"`
	Reasoning                  *Reasoning                  `json:"reasoning,omitempty"`
}

var requiredAnalysisSections = []string{"marketSummary", "finalTradingDecision"}

// ParseTradingAnalysis decodes a model payload. Syntax errors and non-object roots are
// ErrResponseFormat; missing required sections are ErrInvalidAnalysisStructure.
func ParseTradingAnalysis(data []byte) (*TradingAnalysis, error) {
	var analysis TradingAnalysis
	if err := decodeAnalysis(data, &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// decodeAnalysis checks the untyped tree for the required sections before decoding it
// into dst.
func decodeAnalysis(data []byte, dst any) error {
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return goerr.Wrap(ErrResponseFormat, "failed to parse analysis JSON",
			goerr.V("error", err.Error()))
	}
	if tree == nil {
		return goerr.Wrap(ErrResponseFormat, "analysis JSON is null")
	}

	for _, key := range requiredAnalysisSections {
		if v, ok := tree[key]; !ok || v == nil {
			return goerr.Wrap(ErrInvalidAnalysisStructure, "required section is missing",
				goerr.V("section", key))
		}
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return goerr.Wrap(ErrInvalidAnalysisStructure, "analysis does not match the report shape",
			goerr.V("error", err.Error()))
	}
	return nil
}
