package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelpdp/policy-engine/internal/adapter/outbound/memory"
	"github.com/sentinelpdp/policy-engine/internal/domain/policy"
	"github.com/sentinelpdp/policy-engine/internal/parser"
	"github.com/sentinelpdp/policy-engine/internal/service"
	"github.com/sentinelpdp/policy-engine/internal/validate"
)

var (
	evalContextPath string
	evalTrace       bool
	evalDryRun      bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [policy-file]",
	Short: "Evaluate a request against a single policy document",
	Long: `Parse and validate a policy document, load it into a throwaway
engine, and run one evaluation request against it. Useful for iterating on
a policy without a running server. The evaluation context is read as JSON
from --context, or stdin if --context is not given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvaluate,
}

func init() {
	evaluateCmd.Flags().StringVar(&evalContextPath, "context", "", "path to a JSON evaluation context (default: stdin)")
	evaluateCmd.Flags().BoolVar(&evalTrace, "trace", false, "include the first evaluated rule's trace entry in the result")
	evaluateCmd.Flags().BoolVar(&evalDryRun, "dry-run", false, "simulate only: force trace, skip audit/cache")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	policyData, err := readInput(args)
	if err != nil {
		return fmt.Errorf("read policy document: %w", err)
	}

	p, err := parser.Parse(policyData)
	if err != nil {
		return fmt.Errorf("parse policy: %w", err)
	}
	if result := validate.Validate(p); !result.Valid {
		return fmt.Errorf("policy failed validation: %v", result.Errors)
	}
	p.Status = policy.StatusActive

	evalCtx, err := readEvaluationContext()
	if err != nil {
		return fmt.Errorf("read evaluation context: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := memory.NewPolicyStore()
	ctx := context.Background()
	if _, err := store.Create(ctx, p, "cli"); err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	engine, err := service.NewEngine(ctx, store, logger)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	req := policy.EvaluationRequest{Context: evalCtx, Trace: evalTrace, DryRun: evalDryRun}
	var result policy.EvaluationResult
	if evalDryRun {
		result, err = engine.Simulate(ctx, req)
	} else {
		result, err = engine.Evaluate(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func readEvaluationContext() (map[string]any, error) {
	var data []byte
	var err error
	if evalContextPath != "" {
		data, err = os.ReadFile(evalContextPath)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var ctx map[string]any
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}
