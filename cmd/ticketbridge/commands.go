package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ticketbridge/internal/config"
	"ticketbridge/internal/content"
	"ticketbridge/internal/cursor"
	"ticketbridge/internal/db"
	"ticketbridge/internal/diagnostics"
	"ticketbridge/internal/logging"
	"ticketbridge/internal/target"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the bridge's own tables and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format)
			conn, err := db.Open(cmd.Context(), cfg.DB, logger)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			if err := cursor.NewStore(conn, cursor.DefaultKey).Init(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema up to date", "driver", conn.Dialect())
			return nil
		},
	}
}

func newCursorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cursor",
		Short: "Print the id of the last processed event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			conn, err := db.Open(cmd.Context(), cfg.DB, logging.Discard())
			if err != nil {
				return err
			}
			defer conn.Close()
			v, err := cursor.NewStore(conn, cursor.DefaultKey).Get(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newProbeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <target>",
		Short: "Resolve a free-text target and run the diagnostics against it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			return probe(cmd.Context(), cmd, cfg.Diagnostics, args[0])
		},
	}
}

func probe(ctx context.Context, cmd *cobra.Command, cfg config.DiagnosticsConfig, raw string) error {
	out := cmd.OutOrStdout()
	t := target.Resolve(raw)
	if !t.Valid() {
		fmt.Fprintln(out, content.InvalidTarget(raw))
		fmt.Fprintln(out, content.InvalidTargetSummary)
		return nil
	}
	runner := diagnostics.NewRunner(diagnostics.Options{
		PingCount:    cfg.PingCount,
		PingTimeout:  cfg.PingTimeout,
		TraceMaxHops: cfg.TraceMaxHops,
		TraceTimeout: cfg.TraceTimeout,
		PortTimeout:  cfg.PortTimeout,
		Logger:       logging.Discard(),
	})
	res := runner.Run(ctx, t)
	fmt.Fprintln(out, content.Followup(raw, t, res))
	fmt.Fprintln(out, res.Summary())
	return nil
}
