// Command policy-engine is the policy decision point CLI: serve the
// decision API, validate policy documents, or run one-off evaluations.
package main

import "github.com/sentinelpdp/policy-engine/cmd/policy-engine/cmd"

func main() {
	cmd.Execute()
}
