package gateway

// price is a model's per-million-token rate, in USD.
type price struct {
	PromptPerMToken     float64
	CompletionPerMToken float64
	CachedPerMToken     float64
}

// priceTable is keyed by model name. Unknown models fall back to a
// zero-cost entry with a logged warning (SPEC_FULL.md §3) rather than
// blocking the scan on an accounting gap.
var priceTable = map[string]price{
	"claude-opus-4-6":   {PromptPerMToken: 15, CompletionPerMToken: 75, CachedPerMToken: 1.5},
	"claude-sonnet-4-5": {PromptPerMToken: 3, CompletionPerMToken: 15, CachedPerMToken: 0.3},
	"claude-haiku-4-5":  {PromptPerMToken: 0.8, CompletionPerMToken: 4, CachedPerMToken: 0.08},
}

// costUSD returns the USD cost for the given token counts and whether
// model had a priceTable entry. Callers log a warning on a false known,
// since an unknown model otherwise silently reports zero cost.
func costUSD(model string, promptTokens, completionTokens, cachedTokens int64) (usd float64, known bool) {
	p, ok := priceTable[model]
	if !ok {
		return 0, false
	}
	const perM = 1_000_000.0
	return float64(promptTokens)*p.PromptPerMToken/perM +
		float64(completionTokens)*p.CompletionPerMToken/perM +
		float64(cachedTokens)*p.CachedPerMToken/perM, true
}
