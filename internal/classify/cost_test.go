package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	assert.Equal(t, 0.005, EstimateCost(1000, "openai/gpt-4o"))
	assert.Equal(t, 0.0, EstimateCost(50000, "moonshotai/kimi-dev-72b:free"))
	assert.Equal(t, 0.002, EstimateCost(2000, "someone/unknown-model"))
	// 1234 tokens at 0.00015/1K is 0.0001851 before rounding.
	assert.Equal(t, 0.0002, EstimateCost(1234, "openai/gpt-4o-mini"))
	assert.Equal(t, 0.0, EstimateCost(0, "openai/gpt-4o"))
}

func TestBreakdown(t *testing.T) {
	b := Breakdown("openai/gpt-4.1-nano", 40000, "openai/gpt-4.1", 10000)

	assert.Equal(t, 0.003, b.Quick)
	assert.Equal(t, 0.1, b.Detailed)
	assert.Equal(t, 0.103, b.Total)
	assert.Equal(t, 0.5, b.SingleStage)
	assert.Equal(t, 0.397, b.Savings)
	assert.Equal(t, 40000, b.QuickTokens)
	assert.Equal(t, 10000, b.DetailedTokens)
}
