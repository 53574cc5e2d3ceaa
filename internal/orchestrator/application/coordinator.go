package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sagadomain "github.com/dmehra2102/Order-Fulfillment-Saga/internal/orchestrator/domain"
	orderapp "github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

// Metrics receives saga decisions. pkg/metrics.Saga implements it.
type Metrics interface {
	Outcome(leg string, success bool)
	Compensation(routingKey string)
	Closed(status string)
	Stalled()
}

type noopMetrics struct{}

func (noopMetrics) Outcome(string, bool) {}
func (noopMetrics) Compensation(string)  {}
func (noopMetrics) Closed(string)        {}
func (noopMetrics) Stalled()             {}

type Config struct {
	// PaymentRetryAttempts bounds how many times a payment outcome re-reads
	// an order that is not visible yet.
	PaymentRetryAttempts int
	PaymentRetryDelay    time.Duration
	// ConflictRetries bounds how many times a handler is re-run after a
	// stale-version write.
	ConflictRetries int
	ConflictDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PaymentRetryAttempts: 3,
		PaymentRetryDelay:    100 * time.Millisecond,
		ConflictRetries:      3,
		ConflictDelay:        10 * time.Millisecond,
	}
}

type Option func(*Coordinator)

// WithSleep replaces the wait between payment retries.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) { c.sleep = sleep }
}

func WithMetrics(m Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator drives an order from OPEN to one of its closed statuses in
// response to stock and payment outcomes. Both handlers may run
// concurrently for the same order, be redelivered, and arrive in any order.
type Coordinator struct {
	log     *slog.Logger
	store   orderapp.OrderStore
	pub     orderapp.EventPublisher
	cfg     Config
	sleep   func(ctx context.Context, d time.Duration) error
	metrics Metrics
	tracer  trace.Tracer
}

func NewCoordinator(log *slog.Logger, store orderapp.OrderStore, pub orderapp.EventPublisher, cfg Config, opts ...Option) *Coordinator {
	if cfg.PaymentRetryAttempts < 1 {
		cfg.PaymentRetryAttempts = 1
	}
	if cfg.ConflictRetries < 0 {
		cfg.ConflictRetries = 0
	}
	c := &Coordinator{
		log:     log,
		store:   store,
		pub:     pub,
		cfg:     cfg,
		sleep:   sleepContext,
		metrics: noopMetrics{},
		tracer:  otel.Tracer("saga-coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) HandleStockOutcome(ctx context.Context, ev sagadomain.StockOutcome) error {
	ctx, span := c.tracer.Start(ctx, "HandleStockOutcome", trace.WithAttributes(
		attribute.String("order.id", ev.OrderID),
		attribute.Bool("outcome.success", ev.Success),
	))
	defer span.End()

	c.metrics.Outcome(string(sagadomain.LegStock), ev.Success)
	sent := emitted{}
	err := c.retryOnConflict(ctx, ev.OrderID, func() error {
		return c.stockOutcome(ctx, ev.OrderID, ev.Success, sent)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Coordinator) HandlePaymentOutcome(ctx context.Context, ev sagadomain.PaymentOutcome) error {
	ctx, span := c.tracer.Start(ctx, "HandlePaymentOutcome", trace.WithAttributes(
		attribute.String("order.id", ev.OrderID),
		attribute.Bool("outcome.success", ev.Success),
	))
	defer span.End()

	c.metrics.Outcome(string(sagadomain.LegPayment), ev.Success)
	sent := emitted{}
	err := c.retryOnConflict(ctx, ev.OrderID, func() error {
		return c.paymentOutcome(ctx, ev.OrderID, ev.Success, sent)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Coordinator) stockOutcome(ctx context.Context, orderID string, success bool, sent emitted) error {
	o, err := c.load(ctx, orderID)
	if err != nil {
		return err
	}
	c.logSnapshot("stock outcome received", o, success)

	if o.Status.IsTerminal() {
		c.log.Info("stock outcome ignored, order already closed", "order_id", o.ID, "status", o.Status)
		return nil
	}

	if !success {
		next := o.WithStatus(domain.StatusClosedWithoutStock)
		// A pending payment may already be in flight, so it is unwound too.
		// It stays PENDING so that its late outcome still settles the refund.
		if p := o.Payment.Status; p == domain.PaymentApproved || p == domain.PaymentPending {
			if err := c.compensate(ctx, sent, domain.RefundPayment{OrderID: o.ID, Amount: o.TotalAmount}); err != nil {
				return err
			}
			if p == domain.PaymentApproved {
				next = next.WithPaymentStatus(domain.PaymentRefunded)
			}
		}
		if _, err := c.update(ctx, next); err != nil {
			return err
		}
		c.metrics.Closed(string(domain.StatusClosedWithoutStock))
		c.log.Info("order closed", "order_id", o.ID, "status", domain.StatusClosedWithoutStock)
		return nil
	}

	// The payment leg may have written since the first read.
	o, err = c.load(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status.IsTerminal() {
		c.log.Info("stock outcome ignored, order already closed", "order_id", o.ID, "status", o.Status)
		return nil
	}
	if o.StockReserved {
		c.log.Info("stock already reserved", "order_id", o.ID)
	} else {
		o, err = c.update(ctx, o.WithStockReserved(true))
		if err != nil {
			return err
		}
	}
	return c.closeIfComplete(ctx, o)
}

func (c *Coordinator) paymentOutcome(ctx context.Context, orderID string, success bool, sent emitted) error {
	o, err := c.loadVisible(ctx, orderID)
	if err != nil {
		return err
	}
	c.logSnapshot("payment outcome received", o, success)

	switch o.Status {
	case domain.StatusClosedWithSuccess, domain.StatusClosedWithoutCredit:
		c.log.Info("payment outcome ignored, order already closed", "order_id", o.ID, "status", o.Status)
		return nil
	case domain.StatusClosedWithoutStock:
		if o.Payment.Status == domain.PaymentRefunded {
			c.log.Info("payment already refunded", "order_id", o.ID)
			return nil
		}
		if err := c.compensate(ctx, sent, domain.RefundPayment{OrderID: o.ID, Amount: o.TotalAmount}); err != nil {
			return err
		}
		_, err := c.update(ctx, o.WithPaymentStatus(domain.PaymentRefunded))
		return err
	}

	if !success {
		if err := c.compensate(ctx, sent, domain.ReleaseStock{OrderID: o.ID, ProductSKU: o.ProductSKU, Quantity: o.ProductQuantity}); err != nil {
			return err
		}
		next := o.WithStatus(domain.StatusClosedWithoutCredit).WithPaymentStatus(domain.PaymentRejected)
		if _, err := c.update(ctx, next); err != nil {
			return err
		}
		c.metrics.Closed(string(domain.StatusClosedWithoutCredit))
		c.log.Info("order closed", "order_id", o.ID, "status", domain.StatusClosedWithoutCredit)
		return nil
	}

	if o.Payment.Status != domain.PaymentApproved {
		o, err = c.update(ctx, o.WithPaymentStatus(domain.PaymentApproved))
		if err != nil {
			return err
		}
	}
	return c.closeIfComplete(ctx, o)
}

// closeIfComplete is the single convergence point of both legs.
func (c *Coordinator) closeIfComplete(ctx context.Context, o domain.Order) error {
	if o.Status == domain.StatusClosedWithSuccess {
		return nil
	}
	if !o.CanClose() {
		c.log.Debug("order not closed yet", "order_id", o.ID, "stock_reserved", o.StockReserved, "payment_status", o.Payment.Status)
		return nil
	}
	if _, err := c.update(ctx, o.WithStatus(domain.StatusClosedWithSuccess)); err != nil {
		return err
	}
	c.metrics.Closed(string(domain.StatusClosedWithSuccess))
	c.log.Info("order closed", "order_id", o.ID, "status", domain.StatusClosedWithSuccess)
	return nil
}

// loadVisible re-reads an order that is not visible yet, for at most
// PaymentRetryAttempts reads.
func (c *Coordinator) loadVisible(ctx context.Context, orderID string) (domain.Order, error) {
	for attempt := 1; ; attempt++ {
		o, err := c.load(ctx, orderID)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, err
		}
		if attempt >= c.cfg.PaymentRetryAttempts {
			c.metrics.Stalled()
			c.log.Error("saga stalled", "order_id", orderID, "attempts", attempt)
			return domain.Order{}, &sagadomain.SagaStalledError{OrderID: orderID, Attempts: attempt, Err: err}
		}
		c.log.Warn("order not visible, retrying payment outcome", "order_id", orderID, "attempt", attempt, "delay", c.cfg.PaymentRetryDelay)
		if err := c.sleep(ctx, c.cfg.PaymentRetryDelay); err != nil {
			return domain.Order{}, err
		}
	}
}

func (c *Coordinator) load(ctx context.Context, orderID string) (domain.Order, error) {
	o, err := c.store.FindByID(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, err)
	}
	if err != nil {
		return domain.Order{}, &orderapp.PersistenceError{Op: "find", OrderID: orderID, Err: err}
	}
	return o, nil
}

func (c *Coordinator) update(ctx context.Context, o domain.Order) (domain.Order, error) {
	saved, err := c.store.Update(ctx, o)
	if err != nil {
		return domain.Order{}, &orderapp.PersistenceError{Op: "update", OrderID: o.ID, Err: err}
	}
	return saved, nil
}

// emitted tracks the compensations published by one handler invocation, so
// a re-run after a lost write persists the outcome without publishing again.
type emitted map[string]bool

func (c *Coordinator) compensate(ctx context.Context, sent emitted, cmd domain.Command) error {
	if sent[cmd.RoutingKey()] {
		c.log.Debug("compensation already emitted by this handler", "order_id", cmd.AggregateID(), "command", cmd.RoutingKey())
		return nil
	}
	if err := c.pub.Publish(ctx, cmd); err != nil {
		return &orderapp.PublishError{Command: cmd.RoutingKey(), OrderID: cmd.AggregateID(), Err: err}
	}
	sent[cmd.RoutingKey()] = true
	c.metrics.Compensation(cmd.RoutingKey())
	c.log.Info("compensation emitted", "order_id", cmd.AggregateID(), "command", cmd.RoutingKey())
	return nil
}

// retryOnConflict re-runs a whole handler when one of its writes lost an
// optimistic version race. Every other error is returned as is.
func (c *Coordinator) retryOnConflict(ctx context.Context, orderID string, handle func() error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := handle()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrConflict) {
			c.log.Warn("write conflict, re-running handler", "order_id", orderID, "attempt", attempt)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.cfg.ConflictDelay), uint64(c.cfg.ConflictRetries)),
		ctx,
	)
	return backoff.Retry(op, b)
}

func (c *Coordinator) logSnapshot(msg string, o domain.Order, success bool) {
	c.log.Info(msg,
		"order_id", o.ID,
		"success", success,
		"status", o.Status,
		"stock_reserved", o.StockReserved,
		"payment_status", o.Payment.Status,
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
