// Command bindu boots the runtime described in spec.md: it wires the
// Storage, Scheduler, Worker pool, Task Manager, and Push dispatcher
// together behind the A2A JSON-RPC and discovery HTTP surface, then
// serves until a shutdown signal arrives. A real deployment replaces
// exampleHandler with its own agent function; everything else in
// serve.go is the composition root a host program would otherwise write
// itself (spec §6: "configured programmatically by passing a
// configuration object and a handler callable to a single entry point").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bindu",
	Short: "Bindu - a protocol-compliant agent runtime",
	Long: `Bindu turns a user-supplied agent function into a networked,
multi-tenant, A2A-protocol-compliant agent service: a Task Manager,
a Scheduler-to-Worker loop, and pluggable Storage behind one binary.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
