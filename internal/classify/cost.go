package classify

import (
	"math"
	"strings"
)

// DefaultPricePer1K applies to models missing from the price table.
const DefaultPricePer1K = 0.001

// pricePer1K is the blended input/output price in USD per 1K tokens.
var pricePer1K = map[string]float64{
	"openai/gpt-4o":        0.005,
	"openai/gpt-4o-mini":   0.00015,
	"openai/gpt-4-turbo":   0.01,
	"openai/gpt-3.5-turbo": 0.0005,
	"openai/gpt-4.1":       0.01,
	"openai/gpt-4.1-mini":  0.00015,
	"openai/gpt-4.1-nano":  0.000075,
	"openai/gpt-5":         0.01,
	"openai/gpt-5-mini":    0.00015,
	"openai/gpt-5-nano":    0.000075,

	"anthropic/claude-3-5-sonnet": 0.003,
	"anthropic/claude-3-haiku":    0.00025,
	"anthropic/claude-3-sonnet":   0.015,
	"anthropic/claude-3-opus":     0.075,

	"google/gemini-pro":   0.0005,
	"google/gemini-flash": 0.000075,

	"meta-llama/llama-3.1-8b-instruct":  0.0002,
	"meta-llama/llama-3.1-70b-instruct": 0.0008,

	"moonshotai/kimi-dev-72b:free": 0.0,
	"moonshotai/kimi-dev-72b":      0.0006,

	"mistralai/mistral-7b-instruct":   0.00014,
	"mistralai/mixtral-8x7b-instruct": 0.00024,
}

// PricePer1K returns the table price for model.
func PricePer1K(model string) float64 {
	if price, ok := pricePer1K[strings.TrimSpace(model)]; ok {
		return price
	}
	return DefaultPricePer1K
}

// EstimateCost prices tokens on model in USD, rounded to four decimals.
func EstimateCost(tokens int, model string) float64 {
	return round4(float64(tokens) * PricePer1K(model) / 1000)
}

// CostBreakdown compares two-stage spend with sending everything to the detailed model.
type CostBreakdown struct {
	QuickModel     string  `json:"quick_model"`
	DetailedModel  string  `json:"detailed_model"`
	QuickTokens    int     `json:"quick_tokens"`
	DetailedTokens int     `json:"detailed_tokens"`
	Quick          float64 `json:"quick_cost"`
	Detailed       float64 `json:"detailed_cost"`
	Total          float64 `json:"total_cost"`
	SingleStage    float64 `json:"single_stage_cost"`
	Savings        float64 `json:"savings"`
}

// Breakdown prices a run's per-stage token totals.
func Breakdown(quickModel string, quickTokens int, detailedModel string, detailedTokens int) CostBreakdown {
	b := CostBreakdown{
		QuickModel:     quickModel,
		DetailedModel:  detailedModel,
		QuickTokens:    quickTokens,
		DetailedTokens: detailedTokens,
		Quick:          EstimateCost(quickTokens, quickModel),
		Detailed:       EstimateCost(detailedTokens, detailedModel),
		SingleStage:    EstimateCost(quickTokens+detailedTokens, detailedModel),
	}
	b.Total = round4(b.Quick + b.Detailed)
	b.Savings = round4(b.SingleStage - b.Total)
	return b
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
