package primitives

import "strings"

// Currency is a closed ISO-4217-style code; only USD is priced by default.
type Currency string

const CurrencyUSD Currency = "USD"

// Rate holds per-1000-token pricing for one provider/model pair.
type Rate struct {
	PromptPer1k     float64
	CompletionPer1k float64
	Currency        Currency
}

var defaultRate = Rate{PromptPer1k: 0.01, CompletionPer1k: 0.03, Currency: CurrencyUSD}

// pricingTable is keyed by lowercase provider, then lowercase model.
// Ordering within a provider's slice matters: it is the substring-fallback
// search order.
var pricingTable = map[string][]struct {
	model string
	rate  Rate
}{
	"openai": {
		{"gpt-4o", Rate{0.005, 0.015, CurrencyUSD}},
		{"gpt-4-turbo", Rate{0.01, 0.03, CurrencyUSD}},
		{"gpt-4", Rate{0.03, 0.06, CurrencyUSD}},
		{"gpt-3.5-turbo", Rate{0.0005, 0.0015, CurrencyUSD}},
	},
	"anthropic": {
		{"claude-3-opus", Rate{0.015, 0.075, CurrencyUSD}},
		{"claude-3-sonnet", Rate{0.003, 0.015, CurrencyUSD}},
		{"claude-3-haiku", Rate{0.00025, 0.00125, CurrencyUSD}},
	},
	"google": {
		{"gemini-1.5-pro", Rate{0.0035, 0.0105, CurrencyUSD}},
		{"gemini-1.5-flash", Rate{0.00035, 0.00105, CurrencyUSD}},
		{"palm", Rate{0.0005, 0.0005, CurrencyUSD}},
	},
}

// LookupRate resolves a rate for provider/model: exact match first, then
// the first keyed model that is a case-insensitive substring of the
// requested model (within the provider), then the global default.
func LookupRate(provider, model string) Rate {
	p := strings.ToLower(provider)
	m := strings.ToLower(model)

	models, ok := pricingTable[p]
	if !ok {
		return defaultRate
	}
	for _, entry := range models {
		if entry.model == m {
			return entry.rate
		}
	}
	for _, entry := range models {
		if strings.Contains(m, entry.model) {
			return entry.rate
		}
	}
	return defaultRate
}

// Cost computes the estimated spend for a request given prompt/completion
// token counts.
func Cost(provider, model string, promptTokens, completionTokens int) (amount float64, currency Currency) {
	rate := LookupRate(provider, model)
	amount = float64(promptTokens)/1000*rate.PromptPer1k + float64(completionTokens)/1000*rate.CompletionPer1k
	return amount, rate.Currency
}
