package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hexanote-server",
	Short: "Hexanote sync server",
	Long: `Hexanote keeps a single user's notes consistent across devices.

Devices push batches of edits, the server orders them through a versioned
ledger, resolves conflicts server-wins and pushes accepted changes to every
other connected device over WebSocket.

Configuration is read from the environment (and a .env file when present).
Running without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
