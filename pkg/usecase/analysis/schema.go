package analysis

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/skyalgo/pkg/model"
	"google.golang.org/genai"
)

func stringField(description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: description}
}

func section(description string, fields map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: description,
		Properties:  fields,
	}
}

// ReportSchema describes the TradingAnalysis object the model must return
func ReportSchema() *jsonschema.Schema {
	biases := make([]any, 0, 3)
	for _, b := range model.MarketBiases() {
		biases = append(biases, string(b))
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"marketSummary": section("Market summary read from the charts", map[string]*jsonschema.Schema{
				"trendDirection":       stringField("Uptrend, downtrend, or sideways."),
				"priceBehavior":        stringField("Breakout, consolidation, pullback, or reversal."),
				"keySupportResistance": stringField("Levels where price repeatedly reacts."),
				"indicatorAlignments":  stringField("Price relative to EMA and VWAP, RSI strength or weakness."),
			}),
			"openInterestAnalysis": section("Open interest activity", map[string]*jsonschema.Schema{
				"ceVsPeStrength":     stringField("Total call versus put open interest."),
				"buildUpOrUnwinding": stringField("Whether positions are being built up or unwound."),
				"majorStrikeLevels":  stringField("Strikes holding the highest open interest."),
				"marketBias":         stringField("Directional hint from the open interest pattern."),
			}),
			"optionChainInsight": section("Option chain readings", map[string]*jsonschema.Schema{
				"heavyCePeActivity":      stringField("Top 3-5 strikes by open interest or change."),
				"impliedVolatilityTrend": stringField("Expected volatility direction."),
				"pcr":                    stringField("Put/call ratio and the sentiment it implies."),
			}),
			"technicalIndicatorAnalysis": section("Internally derived indicators", map[string]*jsonschema.Schema{
				"emaVwapTrend":  stringField("EMA9 versus EMA15, price versus VWAP."),
				"adx":           stringField("Trend strength."),
				"rsiStochastic": stringField("Momentum and overbought/oversold zones from RSI, Stochastic and Williams %R."),
				"divergences":   stringField("RSI or MACD divergences hinting at reversal."),
			}),
			"finalTradingDecision": section("The single trade setup", map[string]*jsonschema.Schema{
				"marketBias": {
					Type: "string",
					Enum: biases,
				},
				"entryZone":       stringField("Level where the trade triggers."),
				"stopLoss":        stringField("Risk control level, exactly 20 points from the entry zone."),
				"target1":         stringField("First profit zone."),
				"target2":         stringField("Second profit zone."),
				"confidence":      stringField("Low, Medium or High depending on how many signals align."),
				"riskRewardRatio": stringField("Optional risk/reward ratio."),
			}),
			"reasoning": section("Why the setup makes sense", map[string]*jsonschema.Schema{
				"summary":   stringField("Logic behind the decision."),
				"alignment": stringField("Whether the bias agrees with open interest and volatility data."),
				"potential": stringField("Possible follow-through."),
			}),
		},
	}
}

// convertJSONSchemaToGenai converts JSON Schema to Gemini genai.Schema
func convertJSONSchemaToGenai(schema *jsonschema.Schema) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}

	genaiSchema := &genai.Schema{
		Description: schema.Description,
	}

	switch schema.Type {
	case "object":
		genaiSchema.Type = genai.TypeObject
	case "string":
		genaiSchema.Type = genai.TypeString
	case "number", "integer":
		genaiSchema.Type = genai.TypeNumber
	case "boolean":
		genaiSchema.Type = genai.TypeBoolean
	case "array":
		genaiSchema.Type = genai.TypeArray
	default:
		if schema.Type != "" {
			return nil, goerr.New("unsupported schema type", goerr.V("type", schema.Type))
		}
	}

	if len(schema.Enum) > 0 {
		genaiSchema.Enum = make([]string, 0, len(schema.Enum))
		for _, v := range schema.Enum {
			s, ok := v.(string)
			if !ok {
				return nil, goerr.New("enum value must be a string", goerr.V("value", v))
			}
			genaiSchema.Enum = append(genaiSchema.Enum, s)
		}
	}

	if len(schema.Properties) > 0 {
		genaiSchema.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for name, propSchema := range schema.Properties {
			converted, err := convertJSONSchemaToGenai(propSchema)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert property schema",
					goerr.V("property", name))
			}
			genaiSchema.Properties[name] = converted
		}
	}

	if len(schema.Required) > 0 {
		genaiSchema.Required = schema.Required
	}

	if schema.Items != nil {
		converted, err := convertJSONSchemaToGenai(schema.Items)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert items schema")
		}
		genaiSchema.Items = converted
	}

	return genaiSchema, nil
}

// responseSchema returns the genai form of ReportSchema
func responseSchema() (*genai.Schema, error) {
	return convertJSONSchemaToGenai(ReportSchema())
}
