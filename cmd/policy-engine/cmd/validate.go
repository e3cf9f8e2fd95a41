package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelpdp/policy-engine/internal/parser"
	"github.com/sentinelpdp/policy-engine/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a policy document against the schema",
	Long: `Parse a YAML or JSON policy document and run it through the
schema validator (required metadata fields, rule/action shape, condition
operator arity). Reads from stdin if no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := readInput(args)
	if err != nil {
		return err
	}

	p, err := parser.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse error: %v\n", err)
		os.Exit(1)
	}

	result := validate.Validate(p)
	if result.Valid {
		fmt.Printf("valid: %s/%s@%s\n", p.Metadata.Namespace, p.Metadata.Name, p.Metadata.Version)
		return nil
	}

	fmt.Println("invalid:")
	for _, e := range result.Errors {
		fmt.Printf("  - %s\n", e)
	}
	os.Exit(1)
	return nil
}

// readInput reads a policy document from the given path, or from stdin if
// no path was given.
func readInput(args []string) ([]byte, error) {
	if len(args) == 1 {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}
