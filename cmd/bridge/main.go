// Command bridge serves Anthropic- and OpenAI-style chat endpoints and
// forwards each request to the backend its model is routed to.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/config"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/dispatch"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/logging"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/metrics"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/provider"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/registry"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/server"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/storage"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/storage/memory"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/storage/sqlite"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/telemetry"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/tokens"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "bridge",
		Usage: "translate Anthropic and OpenAI chat requests to the configured backends",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "bridge.yaml",
				Usage:   "path to the bridge settings file (optional)",
				Sources: cli.EnvVars("BRIDGE_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "validate settings and the routing table, then exit",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Bool("check") {
				return check(c.String("config"), os.Stdout)
			}
			return run(ctx, c.String("config"))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bridge: %v\n", err)
		os.Exit(1)
	}
}

// check loads everything run would load and reports the routed models.
func check(configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	for _, name := range reg.Models() {
		route, _ := reg.Resolve(name)
		fmt.Fprintf(out, "%s\t%s\n", name, route.Kind)
	}
	return nil
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer(cfg.Telemetry, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	reg, err := buildRegistry(cfg)
	if err != nil {
		var cfgErr *domain.ConfigError
		if errors.As(err, &cfgErr) {
			logger.Error("invalid routing configuration",
				slog.String("model", cfgErr.Model),
				slog.String("reason", cfgErr.Reason),
				slog.String("models_file", cfg.Routing.ModelsFile),
			)
		}
		return err
	}

	egress, err := provider.NewSet(provider.Options{
		HTTPClient:   provider.NewHTTPClient(cfg.Backend.ConnectTimeout),
		IncludeUsage: cfg.Backend.IncludeUsage,
	})
	if err != nil {
		return err
	}

	usage, err := openUsageStore(cfg.Usage)
	if err != nil {
		return fmt.Errorf("open usage store: %w", err)
	}
	defer usage.Close()

	counter := tokens.NewCounter()
	m := metrics.New()

	d, err := dispatch.New(reg, egress,
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(m),
		dispatch.WithUsageStore(usage),
		dispatch.WithTokenCounter(counter),
		dispatch.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		ServiceName: cfg.Telemetry.ServiceName,
	}, logger)
	rt := &routes{
		cfg:        cfg,
		registry:   reg,
		dispatcher: d,
		counter:    counter,
		metrics:    m,
		usage:      usage,
		logger:     logger,
	}
	if err := rt.mount(srv.Router); err != nil {
		return err
	}

	logger.Info("model registry loaded",
		slog.Int("models", len(reg.Models())),
		slog.String("default_model", reg.DefaultModel()),
		slog.String("force_model", cfg.Routing.ForceModel),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown signal received, draining requests")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("bridge shutdown complete")
	return nil
}

// buildRegistry loads the routing table and secrets and resolves them into
// the immutable registry. Every failure is fatal.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	table, err := config.LoadRoutes(cfg.Routing.ModelsFile)
	if err != nil {
		return nil, &domain.ConfigError{Reason: "cannot read routing table", Err: err}
	}
	secrets, err := config.LoadSecrets(cfg.Routing.SecretsFile)
	if err != nil {
		return nil, &domain.ConfigError{Reason: "cannot read secrets file", Err: err}
	}
	return registry.Build(table, secrets, registry.Options{
		DefaultModel: cfg.Routing.DefaultModel,
		ForceModel:   cfg.Routing.ForceModel,
	})
}

func openUsageStore(cfg config.UsageConfig) (storage.UsageStore, error) {
	if cfg.SQLitePath == "" {
		return memory.New(), nil
	}
	return sqlite.New(cfg.SQLitePath)
}
