package vision

import (
	"github.com/openai/openai-go"
	"github.com/pkoukk/tiktoken-go"
)

// pricing holds USD per million tokens.
type pricing struct {
	input  float64
	output float64
}

// modelPricing covers the vision-capable models the engine is expected to
// run against. Unknown models fall back to gpt-4o-mini rates, the cheapest
// tier, so cost tracking stays a lower bound rather than zero.
var modelPricing = map[string]pricing{
	"gpt-4o":      {input: 2.50, output: 10.00},
	"gpt-4o-mini": {input: 0.15, output: 0.60},
	"gpt-4.1":     {input: 2.00, output: 8.00},
}

// imageTokenEstimate approximates the token cost of one low-detail
// screenshot attachment when the API omits usage data.
const imageTokenEstimate = 850

// callCost computes the cost of a completed call from reported usage,
// estimating token counts locally when the API returned none.
func callCost(model, prompt string, usage openai.CompletionUsage) float64 {
	rates, ok := modelPricing[model]
	if !ok {
		rates = modelPricing[DefaultModel]
	}

	inputTokens := float64(usage.PromptTokens)
	outputTokens := float64(usage.CompletionTokens)
	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		inputTokens = float64(estimateTokens(prompt) + imageTokenEstimate)
	}

	return (inputTokens*rates.input + outputTokens*rates.output) / 1_000_000
}

// estimateTokens counts prompt tokens with the cl100k_base encoding, falling
// back to a bytes/4 heuristic if the encoding is unavailable.
func estimateTokens(text string) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
