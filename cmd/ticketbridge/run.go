package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"ticketbridge/internal/auth"
	"ticketbridge/internal/config"
	"ticketbridge/internal/content"
	"ticketbridge/internal/cursor"
	"ticketbridge/internal/db"
	"ticketbridge/internal/diagnostics"
	"ticketbridge/internal/events"
	"ticketbridge/internal/glpi"
	"ticketbridge/internal/httpserver"
	"ticketbridge/internal/lease"
	"ticketbridge/internal/ledger"
	"ticketbridge/internal/logging"
	"ticketbridge/internal/oncall"
	"ticketbridge/internal/pipeline"
	"ticketbridge/internal/retell"
	"ticketbridge/internal/telemetry"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge loop",
		Long:  `Poll for new events and process them until interrupted. Serves the operator API when http.addr is set.`,
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, cfg.OTel, version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	conn, err := db.Open(ctx, cfg.DB, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		return err
	}
	cur := cursor.NewStore(conn, cursor.DefaultKey)
	if err := cur.Init(ctx); err != nil {
		return err
	}

	tickets := glpi.New(cfg.GLPI)
	if err := tickets.InitSession(ctx); err != nil {
		return fmt.Errorf("glpi session: %w", err)
	}
	// Runs before the database is closed.
	defer func() {
		killCtx := context.WithoutCancel(ctx)
		if err := tickets.KillSession(killCtx); err != nil {
			logger.Warn("kill glpi session", "err", err)
		}
	}()

	runner := diagnostics.NewRunner(diagnostics.Options{
		PingCount:    cfg.Diagnostics.PingCount,
		PingTimeout:  cfg.Diagnostics.PingTimeout,
		TraceMaxHops: cfg.Diagnostics.TraceMaxHops,
		TraceTimeout: cfg.Diagnostics.TraceTimeout,
		PortTimeout:  cfg.Diagnostics.PortTimeout,
		Logger:       logger,
	})
	poller := events.NewPoller(conn, cfg.DB.BatchLimit)

	deps := pipeline.Deps{
		Source:      poller,
		Cursor:      cur,
		Tickets:     tickets,
		Diagnostics: runner,
		Renderer:    content.NewRenderer(),
	}
	if cfg.Pipeline.Idempotent {
		deps.Ledger = ledger.NewStore(conn)
	}
	if cfg.Retell.Enabled() {
		deps.Contacts = oncall.NewStore(conn, cfg.OnCall.Location())
		deps.Caller = retell.New(cfg.Retell, nil)
	} else {
		logger.Info("RETELL_API_KEY not set, phone notifications disabled")
	}

	bridge := pipeline.New(deps, pipeline.Options{
		PollInterval: cfg.PollInterval(),
		CallFrom:     cfg.Retell.FromNumber,
		AgentID:      cfg.Retell.AgentID,
		DefaultCC:    cfg.Retell.DefaultCC,
	}, logger)

	if cfg.HTTP.Enabled() {
		api, err := operatorAPI(ctx, cfg, conn, cur, poller, bridge, runner, logger)
		if err != nil {
			return err
		}
		apiCtx, stopAPI := context.WithCancel(ctx)
		apiDone := make(chan struct{})
		go func() {
			defer close(apiDone)
			if err := api.Run(apiCtx); err != nil {
				logger.Error("operator API stopped", "err", err)
			}
		}()
		defer func() {
			stopAPI()
			<-apiDone
		}()
	}

	err = runWithLease(ctx, cfg.Redis, bridge.Run, logger)
	if ctx.Err() != nil {
		logger.Info("interrupted, shutting down", "status", bridge.Status())
		return nil
	}
	if err != nil {
		logger.Error("bridge stopped", "err", err)
	}
	return err
}

func operatorAPI(ctx context.Context, cfg config.Config, conn *db.DB, cur *cursor.Store, poller *events.Poller,
	bridge *pipeline.Bridge, runner *diagnostics.Runner, logger *slog.Logger,
) (*httpserver.Server, error) {
	operators := auth.NewStore(conn)
	n, err := operators.SeedFromFile(ctx, cfg.HTTP.OperatorsPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Warn("operators file not found, no operator can log in", "path", cfg.HTTP.OperatorsPath)
	case err != nil:
		return nil, fmt.Errorf("seed operators: %w", err)
	case n > 0:
		logger.Info("operators seeded", "count", n)
	}

	handler := httpserver.NewRouter(logger,
		auth.NewService(operators, cfg.HTTP.JWTSecret),
		bridge,
		&events.BacklogHandler{Poller: poller, Cursor: cur, Logger: logger},
		runner,
	)
	return httpserver.New(cfg.HTTP.Addr, handler, cfg.Diagnostics, logger), nil
}

// runWithLease holds the Redis lease around fn when Redis is configured.
func runWithLease(ctx context.Context, cfg config.RedisConfig, fn func(context.Context) error, logger *slog.Logger) error {
	if !cfg.Enabled() {
		logger.Debug("redis not configured, single-instance lease disabled")
		return fn(ctx)
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()
	return lease.New(client, cfg.LeaseKey, cfg.LeaseTTL, logger).Run(ctx, fn)
}
