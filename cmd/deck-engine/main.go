// Command deck-engine serves a deck engine over HTTP and inspects running instances.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deck-engine",
	Short: "Deck engine server and tools",
	Long: `deck-engine plays matches of registered decks.
A deck is a named pipeline of cards. Every submission becomes a match that waits in its deck's arena,
runs under the arena's concurrency ceiling and is retried with backoff until it wins or runs out of attempts.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
