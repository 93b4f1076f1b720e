package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/rangehawk/internal/server"
	"github.com/telhawk-systems/rangehawk/internal/service"
	"github.com/telhawk-systems/rangehawk/internal/tokens"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the grading service",
	Long: `Run the HTTP grading service.

Answer keys are looked up in the configured key store (keys.backend).
Results are kept in PostgreSQL when database.enabled is set (migrations
run at startup), otherwise in memory. Grade events are published to NATS
when nats.enabled and grading.publish are set.

Endpoints:
  GET  /healthz, /readyz, /metrics
  GET  /api/v1/scenarios
  GET  /api/v1/scenarios/{scenario}
  POST /api/v1/scenarios/{scenario}/instances/{id}/grade/{soc|ml|combined}
  GET  /api/v1/instances/{id}/results`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Int("port", 0, "listen port (default: server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	b := newBackends()
	defer b.Close()

	keys, err := b.keyStore(ctx)
	if err != nil {
		return err
	}
	opts := []service.GraderOption{service.WithGraderLogger(logger)}
	repo, err := b.resultsRepo(ctx, true)
	if err != nil {
		return err
	}
	if repo != nil {
		opts = append(opts, service.WithResults(repo))
	}
	if cfg.Grading.Publish {
		pub, err := b.publisher("rangehawk-grader")
		if err != nil {
			return err
		}
		if pub != nil {
			opts = append(opts, service.WithPublisher(pub, cfg.NATS.SubjectPrefix))
		}
	}

	grader := service.NewGrader(cat, keys, opts...)
	auth := tokens.NewTokenGenerator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	srv := server.New(cat, grader, auth, logger)
	for name, check := range b.checks {
		srv.AddReadyCheck(name, check)
	}
	srv.AllowOrigins(cfg.Server.CORSOrigins...)

	logger.Info("grading service starting",
		"scenarios", len(cat.List()),
		"keys_backend", cfg.Keys.Backend,
		"database", cfg.Database.Enabled,
		"nats", cfg.NATS.Enabled && cfg.Grading.Publish,
	)

	return server.Run(ctx, server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, srv.Handler(), logger)
}
