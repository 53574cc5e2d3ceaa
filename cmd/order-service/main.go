package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	orchestrator "github.com/dmehra2102/Order-Fulfillment-Saga/internal/orchestrator/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	orderhttp "github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/http"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/inbound"
	orderkafka "github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/memory"
	orderpg "github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/pricing"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/rabbitmq"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/config"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/idempotency"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/logging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/metrics"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/outbox"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/shutdown"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
)

type runner interface {
	Run(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("order-service stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("order-service shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sagaMetrics := metrics.NewSaga(reg)
	serverMetrics := metrics.NewServerMetrics(reg, cfg.ServiceName)

	// Order store
	var (
		store application.OrderStore
		pool  *pgxpool.Pool
	)
	switch cfg.OrderStore {
	case "postgres":
		pool, err = pgxpool.New(ctx, cfg.PGURL)
		if err != nil {
			return fmt.Errorf("pg connect: %w", err)
		}
		defer pool.Close()
		if err := orderpg.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("pg migrate: %w", err)
		}
		store = orderpg.NewRepository(log, pool)
	default:
		log.Warn("using in-memory order store")
		store = memory.NewStore()
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	prices := pricing.NewCachedProvider(log, rdb,
		pricing.NewClient(cfg.ProductAPIURL, tracing.HTTPClient(&http.Client{Timeout: 5 * time.Second})),
		cfg.PriceCacheTTL)

	var workers []runner

	// Transport
	var (
		pub     application.EventPublisher
		consume func(routes map[string]inbound.Handler) runner
	)
	switch cfg.Broker {
	case "rabbitmq":
		conn, err := rabbitmq.Dial(ctx, log, cfg.AMQPURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		pubCh, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("amqp channel: %w", err)
		}
		if err := rabbitmq.Setup(pubCh); err != nil {
			return err
		}
		consumeCh, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("amqp channel: %w", err)
		}
		pub = rabbitmq.NewPublisher(pubCh)
		consume = func(routes map[string]inbound.Handler) runner {
			return rabbitmq.NewConsumer(log, consumeCh, routes, idem)
		}
	default:
		writer := orderkafka.NewWriter(cfg.KafkaBrokers)
		defer writer.Close()

		dispatch := outbox.NewDispatcher(log, writer, nil)
		if cfg.OutboxEnabled {
			outboxStore := orderpg.NewOutboxStore(log, pool)
			pub = orderpg.NewPublisher(outboxStore)
			workers = append(workers, outbox.NewRelay(log, outboxStore, dispatch, cfg.ServiceName+"-relay"))
		} else {
			pub = orderkafka.NewPublisher(dispatch)
		}
		consume = func(routes map[string]inbound.Handler) runner {
			reader := orderkafka.NewReader(cfg.KafkaBrokers, cfg.KafkaGroup, inbound.Topics(routes))
			return orderkafka.NewConsumer(log, reader, routes, idem, writer)
		}
	}

	svc := application.NewService(log, store, pub, prices)

	sagaCfg := orchestrator.DefaultConfig()
	sagaCfg.PaymentRetryAttempts = cfg.PaymentRetryAttempts
	sagaCfg.PaymentRetryDelay = cfg.PaymentRetryDelay
	sagaCfg.ConflictRetries = cfg.ConflictRetries
	coordinator := orchestrator.NewCoordinator(log, store, pub, sagaCfg, orchestrator.WithMetrics(sagaMetrics))

	workers = append(workers, consume(inbound.Routes(coordinator, svc)))

	// HTTP server
	r := chi.NewRouter()
	r.Mount("/", orderhttp.NewHandler(log, svc, serverMetrics).Routes())
	r.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      tracing.WrapHTTPHandler(r, "order-service"),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error { return w.Run(ctx) })
	}
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		return shutdown.ServeHTTP(ctx, srv, 10*time.Second)
	})
	return g.Wait()
}
