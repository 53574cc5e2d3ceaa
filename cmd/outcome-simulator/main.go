package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/inbound"
	orderkafka "github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/infrastructure/rabbitmq"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/simulator"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/config"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/idempotency"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/logging"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/outbox"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/shutdown"
	"github.com/dmehra2102/Order-Fulfillment-Saga/pkg/tracing"
)

const serviceName = "outcome-simulator"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel).With("service", serviceName)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("simulator stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("simulator shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	maxAmount, err := decimal.NewFromString(cfg.SimMaxAmount)
	if err != nil {
		return fmt.Errorf("SIM_MAX_AMOUNT: %w", err)
	}

	tp, err := tracing.Init(ctx, serviceName, cfg.OTLPEndpoint, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

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

		svc := simulator.NewService(log, rabbitmq.NewPublisher(pubCh), cfg.SimMaxQuantity, maxAmount)
		return rabbitmq.NewConsumer(log, consumeCh, svc.Routes(), idem).Run(ctx)
	default:
		writer := orderkafka.NewWriter(cfg.KafkaBrokers)
		defer writer.Close()

		pub := orderkafka.NewPublisher(outbox.NewDispatcher(log, writer, nil))
		svc := simulator.NewService(log, pub, cfg.SimMaxQuantity, maxAmount)

		routes := svc.Routes()
		reader := orderkafka.NewReader(cfg.KafkaBrokers, serviceName, inbound.Topics(routes))
		return orderkafka.NewConsumer(log, reader, routes, idem, writer).Run(ctx)
	}
}
