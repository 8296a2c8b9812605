package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"governor/internal/audit"
	"governor/internal/ledger"
	ledgerhandler "governor/internal/ledger/handler"
	ledgermetrics "governor/internal/ledger/metrics"
	ledgersvc "governor/internal/ledger/service"
	ledgermemory "governor/internal/ledger/store/memory"
	ledgerpostgres "governor/internal/ledger/store/postgres"
	ledgerredis "governor/internal/ledger/store/redis"
	"governor/internal/platform/config"
	"governor/internal/platform/httpserver"
	"governor/internal/platform/logger"
	"governor/internal/platform/postgres"
	platformredis "governor/internal/platform/redis"
	"governor/internal/retention"
	retentionhandler "governor/internal/retention/handler"
	retentionmetrics "governor/internal/retention/metrics"
	retentionsvc "governor/internal/retention/service"
	retentionmemory "governor/internal/retention/store/memory"
	retentionpostgres "governor/internal/retention/store/postgres"
	"governor/internal/retention/sweeper"
	"governor/internal/rules"
	"governor/internal/validator"
	validatorhandler "governor/internal/validator/handler"
	validatormetrics "governor/internal/validator/metrics"
	"governor/pkg/platform/middleware/requestid"
	"governor/pkg/platform/middleware/requesttime"
)

// main wires dependencies and owns the process lifecycle. Rule or policy
// load failures abort startup; everything downstream degrades instead of
// failing.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("governor exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ruleSet, err := rules.LoadFile(cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	policies, err := retention.LoadPoliciesFile(cfg.PoliciesPath)
	if err != nil {
		return fmt.Errorf("load policies: %w", err)
	}
	thresholds := ledger.Thresholds{
		MediumAt:   cfg.EscalationMediumAt,
		CriticalAt: cfg.EscalationCriticalAt,
	}
	if err := thresholds.Validate(); err != nil {
		return fmt.Errorf("escalation thresholds: %w", err)
	}

	ledgerStore, retentionStore, cleanup, err := openStores(ctx, cfg, policies, log)
	if err != nil {
		cleanup()
		return err
	}
	defer cleanup()

	// Violation event stream, only when brokers are configured. A nil
	// worker is a safe no-op sink.
	var eventWorker *audit.Worker
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := audit.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		defer publisher.Close()

		eventWorker = audit.NewWorker(publisher, log)
		go func() {
			if err := eventWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("event worker stopped", "error", err)
			}
		}()
		log.Info("violation event stream enabled",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
	}

	ledgerService, err := ledgersvc.New(ledgerStore, thresholds,
		ledgersvc.WithLogger(log),
		ledgersvc.WithMetrics(ledgermetrics.New()),
		ledgersvc.WithEventSink(eventWorker),
	)
	if err != nil {
		return fmt.Errorf("ledger service: %w", err)
	}

	retentionService, err := retentionsvc.New(retentionStore, policies,
		retentionsvc.WithLogger(log),
		retentionsvc.WithMetrics(retentionmetrics.New()),
	)
	if err != nil {
		return fmt.Errorf("retention service: %w", err)
	}

	validatorService, err := validator.New(
		rules.NewMatcher(ruleSet),
		ledgerService,
		retentionService,
		validator.TTLs{
			Low:    cfg.CacheTTLLow,
			Medium: cfg.CacheTTLMedium,
			High:   cfg.CacheTTLHigh,
		},
		validator.WithLogger(log),
		validator.WithMetrics(validatormetrics.New()),
		validator.WithRecallLimit(cfg.RecallLimit),
	)
	if err != nil {
		return fmt.Errorf("validator service: %w", err)
	}

	sweep := sweeper.New(retentionService, cfg.SweepInterval, log)
	go func() {
		if err := sweep.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("sweeper stopped", "error", err)
		}
	}()

	router := chi.NewRouter()
	router.Use(requestid.Middleware)
	router.Use(requesttime.Middleware)
	validatorhandler.New(validatorService, log).Register(router)
	ledgerhandler.New(ledgerService, log).Register(router)
	retentionhandler.New(retentionService, log).Register(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("governor listening",
		"addr", cfg.Addr,
		"rules", ruleSet.Len(),
		"policies", len(policies.Names()),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("governor stopped")
	return nil
}

// openStores picks the backing stores from configuration: Postgres when a
// URL is set, Redis for the ledger as a second choice, in-memory otherwise.
func openStores(ctx context.Context, cfg config.Config, policies *retention.Policies, log *slog.Logger) (ledger.Store, retention.Store, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var ledgerStore ledger.Store
	var retentionStore retention.Store

	if cfg.PostgresURL != "" {
		db, err := postgres.Open(cfg.PostgresURL)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })

		pg := ledgerpostgres.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, nil, cleanup, fmt.Errorf("ledger schema: %w", err)
		}
		ledgerStore = pg

		pool, err := postgres.OpenPool(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("open postgres pool: %w", err)
		}
		closers = append(closers, pool.Close)

		rs := retentionpostgres.New(pool, policies)
		if err := rs.EnsureSchema(ctx); err != nil {
			return nil, nil, cleanup, fmt.Errorf("retention schema: %w", err)
		}
		retentionStore = rs
		log.Info("using postgres stores")
	}

	if ledgerStore == nil && cfg.Redis.URL != "" {
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("open redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		ledgerStore = ledgerredis.New(client)
		log.Info("using redis ledger store")
	}

	if ledgerStore == nil {
		ledgerStore = ledgermemory.New()
		log.Info("using in-memory ledger store")
	}
	if retentionStore == nil {
		retentionStore = retentionmemory.New(policies)
		log.Info("using in-memory retention store")
	}
	return ledgerStore, retentionStore, cleanup, nil
}
