package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"certflow/internal/certification/assignment"
	"certflow/internal/certification/certificate"
	"certflow/internal/certification/handler"
	"certflow/internal/certification/ledger"
	certmetrics "certflow/internal/certification/metrics"
	"certflow/internal/certification/ports"
	"certflow/internal/certification/process"
	"certflow/internal/certification/scheduler"
	"certflow/internal/certification/store/memory"
	"certflow/internal/certification/store/postgres"
	redisledger "certflow/internal/certification/store/redis"
	jwttoken "certflow/internal/jwt_token"
	"certflow/internal/notify"
	"certflow/internal/platform/config"
	"certflow/internal/platform/logger"
	"certflow/internal/platform/metrics"
	platformpg "certflow/internal/platform/postgres"
	platformredis "certflow/internal/platform/redis"
	"certflow/internal/platform/tracing"
	audit "certflow/pkg/platform/audit"
	"certflow/pkg/platform/audit/publisher"
	"certflow/pkg/platform/audit/publishers/kafka"
	auditmemory "certflow/pkg/platform/audit/store/memory"
	auditpg "certflow/pkg/platform/audit/store/postgres"
	"certflow/pkg/platform/audit/worker"
)

// backend is what both repositories implement.
type backend interface {
	ports.Repository
	ports.DocumentStore
	ports.AuthorizationOracle
	ports.EvaluatorDirectory
}

// app holds the wired engine. close releases everything open in reverse
// order of acquisition.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *metrics.Registry
	db        *sql.DB
	backend   backend
	processes *process.Service
	assigner  *assignment.Service
	scheduler *scheduler.Scheduler
	jwt       *jwttoken.JWTService

	health  []func(context.Context) error
	closers []func(context.Context)
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	a := &app{
		cfg:      cfg,
		logger:   log,
		registry: metrics.NewRegistry(),
		jwt:      jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience),
	}
	if err := a.wire(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	shutdownTracing, err := tracing.Setup(ctx, a.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	a.onClose(func(ctx context.Context) { _ = shutdownTracing(ctx) })

	if err := a.openBackend(ctx); err != nil {
		return err
	}
	if catalogPath != "" {
		if err := loadCatalog(ctx, a.backend, catalogPath); err != nil {
			return err
		}
	}

	ledgerStore, err := a.openLedgerStore(ctx)
	if err != nil {
		return err
	}
	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	auditPublisher, err := a.newAuditPublisher(ctx)
	if err != nil {
		return err
	}

	m := certmetrics.New(a.registry)
	sc := a.cfg.Scheduler

	l, err := ledger.New(ledgerStore, notifier, ledger.WithLogger(a.logger), ledger.WithMetrics(m))
	if err != nil {
		return err
	}
	certs, err := certificate.New(a.backend, l, a.backend,
		certificate.WithLogger(a.logger),
		certificate.WithAuditPublisher(auditPublisher),
		certificate.WithMetrics(m),
		certificate.WithWorkers(sc.Workers),
		certificate.WithRecordTimeout(sc.RecordTimeout),
	)
	if err != nil {
		return err
	}
	a.processes, err = process.New(a.backend, a.backend, certs, l,
		process.WithLogger(a.logger),
		process.WithAuditPublisher(auditPublisher),
		process.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	a.assigner, err = assignment.New(a.backend, a.backend, l,
		assignment.WithLogger(a.logger),
		assignment.WithAuditPublisher(auditPublisher),
		assignment.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	a.scheduler, err = scheduler.New(a.backend, a.backend, l, certs,
		scheduler.WithLogger(a.logger),
		scheduler.WithAuditPublisher(auditPublisher),
		scheduler.WithMetrics(m),
		scheduler.WithWorkers(sc.Workers),
		scheduler.WithSweepTimeout(sc.SweepTimeout),
		scheduler.WithRecordTimeout(sc.RecordTimeout),
	)
	return err
}

func (a *app) openBackend(ctx context.Context) error {
	db, err := platformpg.Open(ctx, a.cfg.Database)
	if err != nil {
		return err
	}
	if db == nil {
		a.logger.WarnContext(ctx, "no database configured, using in-memory store")
		a.backend = memory.New()
		return nil
	}
	a.db = db
	a.onClose(func(context.Context) { _ = db.Close() })
	if a.cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		if err := auditpg.Migrate(ctx, db); err != nil {
			return err
		}
	}
	store := postgres.New(db)
	a.backend = store
	a.health = append(a.health, store.Health)
	a.logger.InfoContext(ctx, "using postgres store")
	return nil
}

// openLedgerStore prefers Redis for the notification log when configured.
func (a *app) openLedgerStore(ctx context.Context) (ports.LedgerStore, error) {
	client, err := platformredis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return a.backend, nil
	}
	a.onClose(func(context.Context) { _ = client.Close() })
	a.health = append(a.health, client.Health)
	a.logger.InfoContext(ctx, "using redis notification ledger")
	return redisledger.New(client.Client), nil
}

func (a *app) newNotifier() (ports.Notifier, error) {
	wc := a.cfg.Webhook
	if wc.URL == "" {
		return notify.NewLogNotifier(a.logger), nil
	}
	webhook, err := notify.NewWebhookNotifier(wc.URL,
		notify.WithTimeout(wc.Timeout),
		notify.WithMaxRetries(wc.MaxRetries),
		notify.WithRateLimit(wc.RatePerSec, wc.Burst),
		notify.WithSecret(wc.SharedSecret),
		notify.WithWebhookLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	a.logger.Info("webhook notifier enabled", "url", notify.RedactURL(wc.URL))
	if a.cfg.IsProduction() {
		return webhook, nil
	}
	return notify.NewFanout(webhook, notify.NewLogNotifier(a.logger)), nil
}

// newAuditPublisher stores audit events in Postgres (memory without a
// database) and, when Kafka is configured, forwards a copy through a worker
// that drains on close.
func (a *app) newAuditPublisher(ctx context.Context) (ports.AuditPublisher, error) {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if a.db != nil {
		store = auditpg.New(a.db)
	}

	kc := a.cfg.Kafka
	if len(kc.Brokers) > 0 {
		sink, err := kafka.New(kc.Brokers, kc.Topic, kafka.WithLogger(a.logger))
		if err != nil {
			return nil, err
		}
		if err := sink.EnsureTopic(ctx, kc.Partitions, kc.ReplicationFactor); err != nil {
			sink.Close(ctx)
			return nil, err
		}
		tee := worker.NewTee(store, 1024, func(e audit.Event) {
			a.logger.Warn("audit outbox full, event not forwarded", "action", e.Action)
		})
		a.onClose(func(ctx context.Context) { sink.Close(ctx) })

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = worker.NewWorker(sink, tee.Outbox(), a.logger).Run(context.Background())
		}()
		a.onClose(func(ctx context.Context) {
			tee.Close()
			select {
			case <-done:
			case <-ctx.Done():
			}
		})
		store = tee
	}

	pub := publisher.NewPublisher(store, publisher.WithLogger(a.logger))
	a.onClose(func(context.Context) { pub.Close() })
	return pub, nil
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", a.registry.Handler())

	h := handler.New(a.processes, a.assigner, a.scheduler, a.backend, a.backend, a.jwt.Middleware(),
		handler.WithLogger(a.logger))
	h.Register(r)
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	var errs []error
	for _, check := range a.health {
		errs = append(errs, check(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.WarnContext(ctx, "health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *app) onClose(fn func(context.Context)) {
	a.closers = append(a.closers, fn)
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

