package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

const validPolicyYAML = `
metadata:
  id: test-policy-v1
  name: test-policy
  version: "1.0.0"
  namespace: test
rules:
  - id: rule-1
    name: deny-gpt4
    condition:
      operator: eq
      field: request.model
      value: gpt-4
    action:
      decision: deny
      reason: model not permitted
`

const invalidPolicyYAML = `
metadata:
  name: test-policy
rules: []
`

func TestValidateCmd_Registered(t *testing.T) {
	found := false
	for _, c := range rootCmd.Commands() {
		if c.Name() == "validate" {
			found = true
			break
		}
	}
	if !found {
		t.Error("validate command not registered with rootCmd")
	}
}

func TestRunValidateAcceptsValidPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(validPolicyYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runValidate(validateCmd, []string{path}); err != nil {
		t.Fatalf("runValidate() error = %v, want nil", err)
	}
}

func TestReadInputReadsPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(invalidPolicyYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	// os.Exit(1) on validation failure is exercised via the exit code in a
	// real invocation; here we only check the error path doesn't panic
	// before exit by calling the validator directly would duplicate
	// runValidate's logic, so this test is limited to readInput plumbing.
	data, err := readInput([]string{path})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("test-policy")) {
		t.Error("expected file contents to round-trip through readInput")
	}
}

func TestReadInputFallsBackToStdin(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	orig := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = orig }()

	go func() {
		w.Write([]byte("hello"))
		w.Close()
	}()

	data, err := readInput(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("readInput() = %q, want %q", data, "hello")
	}
}
