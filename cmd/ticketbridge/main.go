package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "ticketbridge",
		Short:        "Open GLPI tickets with network diagnostics for new managed events",
		Long:         `ticketbridge polls the GestionEventos table, opens a GLPI ticket for every new row, attaches ping, traceroute and port-check results, and phones the on-call engineer.`,
		Version:      version,
		SilenceUsage: true,
	}

	run := newRunCommand()
	rootCmd.AddCommand(
		run,
		newMigrateCommand(),
		newProbeCommand(),
		newCursorCommand(),
	)
	// A bare invocation runs the bridge.
	rootCmd.RunE = run.RunE

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
