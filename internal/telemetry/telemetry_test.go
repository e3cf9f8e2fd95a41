package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewProviderInstallsTracerAndMeter(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewProvider(Config{ServiceName: "policy-engine-test", SamplingRatio: 1, Writer: &buf})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer p.Shutdown(context.Background())

	if p.Tracer() == nil {
		t.Fatal("Tracer() returned nil")
	}
	if p.Meter() == nil {
		t.Fatal("Meter() returned nil")
	}
}

func TestNewProviderDefaultsWriterToDiscard(t *testing.T) {
	p, err := NewProvider(Config{})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer p.Shutdown(context.Background())
}

func TestStartEvaluationSpanSetsRequestIDAttribute(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewProvider(Config{ServiceName: "policy-engine-test", SamplingRatio: 1, Writer: &buf})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	_, span := StartEvaluationSpan(context.Background(), p.Tracer(), "req-123")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "policy.evaluate") {
		t.Fatalf("expected exported span name policy.evaluate, got: %s", out)
	}
	if !strings.Contains(out, "req-123") {
		t.Fatalf("expected request.id attribute in exported span, got: %s", out)
	}
}

func TestStartEvaluationSpanWithEmptyRequestIDIsValid(t *testing.T) {
	p, err := NewProvider(Config{SamplingRatio: 1})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	defer p.Shutdown(context.Background())

	_, span := StartEvaluationSpan(context.Background(), p.Tracer(), "")
	defer span.End()

	if !span.SpanContext().IsValid() {
		t.Fatal("expected a valid span context")
	}
}
