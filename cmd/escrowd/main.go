package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cataloro/config"
	"cataloro/escrow"
	"cataloro/gateway"
	"cataloro/observability/logging"
	"cataloro/observability/otel"
	"cataloro/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the service configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("escrowd", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enable {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "escrowd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	secret, err := cfg.JWTSecret()
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", cfg.LedgerPath, err)
	}
	ledger := storage.NewSQLLedger(db)

	audit, err := gateway.NewAuditStore(cfg.AuditPath)
	if err != nil {
		return fmt.Errorf("open audit store %s: %w", cfg.AuditPath, err)
	}
	defer audit.Close()

	leaseWait, err := cfg.LeaseWait()
	if err != nil {
		return err
	}
	outcomeTTL, err := cfg.OutcomeTTL()
	if err != nil {
		return err
	}
	coord := escrow.NewCoordinator(
		escrow.WithWaitBudget(leaseWait),
		escrow.WithOutcomeTTL(outcomeTTL),
	)

	engine := escrow.NewEngine(ledger, escrow.NewGuard(gateway.ClaimsRoleChecker{}), coord)
	engine.SetEmitter(logEmitter{logger: logger})

	server := gateway.New(gateway.Config{
		Engine:    engine,
		Audit:     audit,
		Logger:    logger,
		JWTSecret: []byte(secret),
		RateLimit: gateway.RateLimit{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			Burst:             cfg.RateLimitBurst,
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server.Handler())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("escrowd listening", "address", cfg.ListenAddress, "environment", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// logEmitter publishes lifecycle events to the structured log. Deployments
// that feed a message bus can swap this for a broker-backed emitter.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt escrow.Event) {
	attrs := make([]any, 0, len(evt.Attributes)*2)
	for key, value := range evt.Attributes {
		attrs = append(attrs, key, value)
	}
	l.logger.Info(evt.Type, attrs...)
}
