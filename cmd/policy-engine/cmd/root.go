// Package cmd provides the CLI commands for the policy decision point.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelpdp/policy-engine/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "policy-engine",
	Short: "Policy Decision Point for LLM provider requests",
	Long: `policy-engine evaluates LLM provider requests against a set of
declarative policies and returns an allow/deny/modify/warn decision.

Quick start:
  1. Create a config file: policy-engine.yaml
  2. Run: policy-engine serve

Configuration:
  Config is loaded from policy-engine.yaml in the current directory,
  $HOME/.policy-engine/, or /etc/policy-engine/.

  Environment variables can override config values with the POLICY_ENGINE_
  prefix. Example: POLICY_ENGINE_SERVER_PORT=9090

Commands:
  serve       Start the decision API and health endpoints
  validate    Validate a policy document against the schema
  evaluate    Run a single evaluation request against a policy document
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./policy-engine.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
