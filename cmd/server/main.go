package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"eeia/internal/ingest"
	"eeia/internal/ingest/handler"
	"eeia/internal/offlinequeue"
	"eeia/internal/platform/config"
	"eeia/internal/platform/httpserver"
	"eeia/internal/platform/logger"
	natsplatform "eeia/internal/platform/nats"
	"eeia/internal/platform/postgres"
	redisplatform "eeia/internal/platform/redis"
	"eeia/internal/policy"
	"eeia/internal/routing"
	"eeia/internal/routing/metrics"
	"eeia/internal/scoring"
	"eeia/internal/security"
	"eeia/internal/seed"
	"eeia/pkg/platform/audit"
	auditkafka "eeia/pkg/platform/audit/kafka"
	auditpublisher "eeia/pkg/platform/audit/publishers/security"
	auditmemory "eeia/pkg/platform/audit/store/memory"
	"eeia/pkg/platform/circuit"
)

// main wires configuration, storage and background workers, then serves HTTP
// until SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("eeia-edge stopped with error", "error", err)
		os.Exit(1)
	}
}

// infra holds connections that must be closed on shutdown.
type infra struct {
	db    *sql.DB
	redis *redisplatform.Client
	nats  *natsplatform.Conn
	kafka *auditkafka.Sink
}

func (i *infra) close(log *slog.Logger) {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.nats != nil {
		if err := i.nats.Close(); err != nil {
			log.Warn("nats drain failed", "error", err)
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("postgres close failed", "error", err)
		}
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	res := &infra{}
	defer res.close(log)

	// Policies and keys.
	policies := policy.NewRegistry()
	keys := buildKeyStore(cfg.Security.KeyStore)
	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err != nil {
			return err
		}
		if err := f.Apply(policies.Upsert, keys, os.LookupEnv); err != nil {
			return fmt.Errorf("apply seed file: %w", err)
		}
		log.Info("seed loaded", "file", cfg.SeedFile, "policies", len(f.Policies), "keys", len(f.Keys))
	}
	engine := routing.New(policies)
	recorder := metrics.New(reg)

	gateOpts := []security.GateOption{
		security.WithRequireSignature(cfg.Security.RequireSignature),
		security.WithThresholds(cfg.Security.BlockThreshold, cfg.Security.AuditThreshold),
		security.WithGateLogger(log),
	}
	if cfg.Security.HeuristicScorer {
		gateOpts = append(gateOpts, security.WithScorer(scoring.NewHeuristic()))
	}
	gate, err := security.NewGate(keys, gateOpts...)
	if err != nil {
		return fmt.Errorf("build entry gate: %w", err)
	}

	// Offline queue.
	store, err := buildQueueStore(ctx, cfg, log, res)
	if err != nil {
		return err
	}
	queue := offlinequeue.New(store,
		offlinequeue.WithLogger(log),
		offlinequeue.WithMetrics(offlinequeue.NewMetrics(reg)),
		offlinequeue.WithBackendName(cfg.Queue.Backend),
	)

	breakers := circuit.NewSet(
		circuit.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		circuit.WithSuccessThreshold(cfg.Breaker.SuccessThreshold),
	)

	// Audit.
	publisher, auditFlusher, err := buildAudit(ctx, cfg, log, reg, res)
	if err != nil {
		return err
	}

	// Ingest and redelivery share one forwarder so both feed the same breakers.
	forwarder := offlinequeue.LogForwarder{Logger: log}
	redeliverer, err := offlinequeue.NewRedeliverer(queue, engine, forwarder,
		offlinequeue.WithBatchSize(cfg.Redelivery.Batch),
		offlinequeue.WithParallelism(cfg.Redelivery.Parallelism),
		offlinequeue.WithInterval(cfg.Redelivery.Interval),
		offlinequeue.WithBreakers(breakers),
		offlinequeue.WithRedeliveryLogger(log),
	)
	if err != nil {
		return fmt.Errorf("build redeliverer: %w", err)
	}

	svc, err := ingest.New(gate, engine, queue,
		ingest.WithRecorder(recorder),
		ingest.WithForwarder(forwarder),
		ingest.WithBreakers(breakers),
		ingest.WithAuditPublisher(publisher),
		ingest.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("build ingest service: %w", err)
	}
	adminSvc, err := ingest.NewAdmin(policies, keys, queue,
		ingest.WithDrainer(redeliverer),
		ingest.WithAdminBreakers(breakers),
		ingest.WithAdminAudit(publisher),
		ingest.WithAdminLogger(log),
	)
	if err != nil {
		return fmt.Errorf("build admin service: %w", err)
	}
	if cfg.Admin.Token == "" && cfg.Admin.TokenHash == "" {
		log.Warn("EEIA_ADMIN_TOKEN is not set; admin routes will reject every request")
	}

	h := handler.New(svc, adminSvc, recorder, log,
		handler.WithAdminToken(cfg.Admin.Token, cfg.Admin.TokenHash),
		handler.WithGatherer(reg),
		handler.WithMetrics(handler.NewMetrics(reg)),
	)
	srv := httpserver.New(cfg.Addr, handler.NewRouter(h, log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting eeia-edge", "addr", cfg.Addr, "queue_backend", queue.Backend(), "policies", policies.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(redeliverer.Run(gctx))
	})
	if auditFlusher != nil {
		g.Go(func() error {
			return ignoreCanceled(auditFlusher.Run(gctx))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func buildKeyStore(kind string) security.KeyRegistry {
	if kind == config.KeyStoreSingle {
		return security.NewSingleKeyStore()
	}
	return security.NewMultiKeyStore()
}

func buildQueueStore(ctx context.Context, cfg config.Config, log *slog.Logger, res *infra) (offlinequeue.Store, error) {
	deps := offlinequeue.Deps{}
	switch cfg.Queue.Backend {
	case offlinequeue.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Queue.PostgresDSN)
		if err != nil {
			return nil, err
		}
		res.db = db
		deps.DB = db
	case offlinequeue.BackendRedis:
		client, err := redisplatform.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		res.redis = client
		deps.Redis = client.Client
	case offlinequeue.BackendJetStream:
		conn, err := natsplatform.Connect(cfg.Queue.NATSURL, log)
		if err != nil {
			return nil, err
		}
		res.nats = conn
		deps.JetStream = conn.JS
		deps.JetStreamOptions = []offlinequeue.JetStreamOption{offlinequeue.WithReplicas(cfg.Queue.JetStreamReplicas)}
	}
	store, err := offlinequeue.NewStore(ctx, cfg.Queue.Backend, deps)
	if err != nil {
		return nil, fmt.Errorf("build offline queue: %w", err)
	}
	return store, nil
}

// buildAudit returns the publisher domain code emits to and, when Kafka is
// configured, the buffered publisher whose Run loop must be started.
func buildAudit(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer, res *infra) (audit.Publisher, *auditpublisher.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return auditmemory.NewInMemoryStore(), nil, nil
	}
	sink, err := auditkafka.NewSink(auditkafka.Config{Brokers: cfg.Kafka.Brokers}, log)
	if err != nil {
		return nil, nil, err
	}
	res.kafka = sink
	if err := sink.EnsureTopics(ctx); err != nil {
		// Topics may be provisioned out of band; the publisher buffers until
		// the brokers accept writes.
		log.Warn("could not ensure audit topics", "error", err)
	}
	p := auditpublisher.New(sink,
		auditpublisher.WithLogger(log),
		auditpublisher.WithMetrics(auditpublisher.NewMetrics(reg)),
	)
	return p, p, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
