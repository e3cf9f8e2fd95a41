package primitives

import "testing"

func TestLookupRateExactMatch(t *testing.T) {
	r := LookupRate("OpenAI", "gpt-4o")
	if r.PromptPer1k != 0.005 {
		t.Fatalf("expected exact match rate, got %+v", r)
	}
}

func TestLookupRateSubstringFallback(t *testing.T) {
	r := LookupRate("openai", "gpt-4o-2024-08-06")
	if r.PromptPer1k != 0.005 {
		t.Fatalf("expected substring fallback to gpt-4o rate, got %+v", r)
	}
}

func TestLookupRateDefault(t *testing.T) {
	r := LookupRate("unknown-provider", "some-model")
	if r != defaultRate {
		t.Fatalf("expected default rate, got %+v", r)
	}
}

func TestCostFormula(t *testing.T) {
	amount, currency := Cost("openai", "gpt-4", 1000, 500)
	want := 1000.0/1000*0.03 + 500.0/1000*0.06
	if amount != want {
		t.Fatalf("expected %f, got %f", want, amount)
	}
	if currency != CurrencyUSD {
		t.Fatalf("expected USD, got %s", currency)
	}
}
