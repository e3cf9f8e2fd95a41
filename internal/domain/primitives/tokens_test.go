package primitives

import "testing"

func TestEstimateEmpty(t *testing.T) {
	got := Estimate("", "gpt-4")
	if got.Tokens != 0 || got.Method != "exact" {
		t.Fatalf("expected zero/exact, got %+v", got)
	}
}

func TestEstimateDefaultRatio(t *testing.T) {
	got := Estimate("12345678", "gpt-4")
	if got.Method != "estimate" {
		t.Fatalf("expected estimate method, got %s", got.Method)
	}
	if got.Tokens != 2 {
		t.Fatalf("expected ceil(8/4.0)=2, got %d", got.Tokens)
	}
}

func TestEstimateGeminiRatio(t *testing.T) {
	got := Estimate("123456789", "gemini-1.5-pro")
	if got.Tokens != 2 {
		t.Fatalf("expected ceil(9/4.5)=2, got %d", got.Tokens)
	}
}

func TestEstimateConversationOverhead(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "ok"}}
	got := EstimateConversation(msgs, "gpt-4")
	// base 3 + 2*(4 + ceil(2/4.0)=1) = 3 + 2*5 = 13
	if got.Tokens != 13 {
		t.Fatalf("expected 13, got %d", got.Tokens)
	}
}

func TestMaxContextKnownAndUnknown(t *testing.T) {
	if MaxContext("gpt-4-turbo-preview") != 128000 {
		t.Fatalf("expected 128000 for gpt-4-turbo prefix")
	}
	if MaxContext("some-unknown-model") != defaultMaxContext {
		t.Fatalf("expected default context for unknown model")
	}
}

func TestMaxCompletion(t *testing.T) {
	if got := MaxCompletion(3000, 4096, nil); got != 1096 {
		t.Fatalf("expected 1096, got %d", got)
	}
	desired := 500
	if got := MaxCompletion(3000, 4096, &desired); got != 500 {
		t.Fatalf("expected desired cap of 500, got %d", got)
	}
	if got := MaxCompletion(5000, 4096, nil); got != 0 {
		t.Fatalf("expected floor of 0 when prompt exceeds max, got %d", got)
	}
}
