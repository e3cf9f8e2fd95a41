package primitives

import (
	"strings"
	"testing"
)

func TestDetectPIIEmail(t *testing.T) {
	matches := DetectPII("contact me at jane.doe@example.com please")
	found := false
	for _, m := range matches {
		if m.Type == PIIEmail && m.Confidence == ConfidenceHigh {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected high-confidence email match, got %+v", matches)
	}
}

func TestDetectPIISSN(t *testing.T) {
	matches := DetectPII("ssn is 123-45-6789 on file")
	if len(matches) == 0 {
		t.Fatal("expected a match")
	}
	var hit *Match
	for i := range matches {
		if matches[i].Type == PIISSN {
			hit = &matches[i]
		}
	}
	if hit == nil || hit.Confidence != ConfidenceHigh {
		t.Fatalf("expected high-confidence ssn match, got %+v", matches)
	}
}

func TestDetectPIICreditCardLuhn(t *testing.T) {
	matches := DetectPII("card 4111 1111 1111 1111 is valid")
	var hit *Match
	for i := range matches {
		if matches[i].Type == PIICreditCard {
			hit = &matches[i]
		}
	}
	if hit == nil || hit.Confidence != ConfidenceHigh {
		t.Fatalf("expected luhn-valid card to be high confidence, got %+v", matches)
	}

	matches = DetectPII("card 1234 5678 9012 3456 is invalid")
	hit = nil
	for i := range matches {
		if matches[i].Type == PIICreditCard {
			hit = &matches[i]
		}
	}
	if hit == nil || hit.Confidence != ConfidenceLow {
		t.Fatalf("expected luhn-invalid card to be low confidence, got %+v", matches)
	}
}

func TestDetectPIIIPv4(t *testing.T) {
	matches := DetectPII("server at 10.0.0.1 and bogus 999.999.999.999")
	highCount, lowCount := 0, 0
	for _, m := range matches {
		if m.Type != PIIIPv4 {
			continue
		}
		if m.Confidence == ConfidenceHigh {
			highCount++
		} else {
			lowCount++
		}
	}
	if highCount == 0 || lowCount == 0 {
		t.Fatalf("expected both a high and a low confidence ipv4 match, got %+v", matches)
	}
}

func TestRedactPreservesLength(t *testing.T) {
	text := "email jane@example.com now"
	matches := DetectPII(text)
	out := Redact(text, matches, '*')
	if len(out) != len(text) {
		t.Fatalf("expected same length, got %d vs %d", len(out), len(text))
	}
}

func TestRedactLabeledMultipleMatches(t *testing.T) {
	text := "jane@example.com and 123-45-6789"
	matches := DetectPII(text)
	out := RedactLabeled(text, matches)
	if !strings.Contains(out, "EMAIL_REDACTED") || !strings.Contains(out, "SSN_REDACTED") {
		t.Fatalf("expected both labels present, got %s", out)
	}
}

func TestTypesDeduplicated(t *testing.T) {
	matches := DetectPII("a@b.com and c@d.com")
	types := Types(matches)
	if len(types) != 1 || types[0] != PIIEmail {
		t.Fatalf("expected single deduplicated type, got %+v", types)
	}
}
