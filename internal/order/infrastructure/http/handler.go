package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/domain"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req application.CreateOrderRequest) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
}

// Observer records one finished request.
type Observer interface {
	Observe(handler string, status int, elapsed time.Duration)
}

type Handler struct {
	log     *slog.Logger
	service OrderService
	metrics Observer
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service OrderService, metrics Observer) *Handler {
	return &Handler{
		log:     log,
		service: service,
		metrics: metrics,
		tracer:  otel.Tracer("order-http"),
	}
}

type paymentDetailsReq struct {
	PaymentMethod string `json:"paymentMethod"`
	CardNumber    string `json:"cardNumber"`
}

type createOrderReq struct {
	ProductSKU      string            `json:"productSku"`
	ProductQuantity int               `json:"productQuantity"`
	ClientCPF       string            `json:"clientCpf"`
	PaymentDetails  paymentDetailsReq `json:"paymentDetails"`
}

type paymentDetailsResp struct {
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	CardNumber    string               `json:"cardNumber"`
	Status        domain.PaymentStatus `json:"status"`
}

type orderResp struct {
	ID              string             `json:"id"`
	ProductSKU      string             `json:"productSku"`
	ProductQuantity int                `json:"productQuantity"`
	ClientCPF       string             `json:"clientCpf"`
	Status          domain.OrderStatus `json:"status"`
	TotalAmount     string             `json:"totalAmount"`
	StockReserved   bool               `json:"stockReserved"`
	PaymentDetails  paymentDetailsResp `json:"paymentDetails"`
}

type errorResp struct {
	Message string   `json:"message"`
	Error   string   `json:"error"`
	Errors  []string `json:"errors,omitempty"`
	OrderID string   `json:"orderId,omitempty"`
}

func toResp(o domain.Order) orderResp {
	return orderResp{
		ID:              o.ID,
		ProductSKU:      o.ProductSKU,
		ProductQuantity: o.ProductQuantity,
		ClientCPF:       o.ClientCPF,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount.StringFixed(2),
		StockReserved:   o.StockReserved,
		PaymentDetails: paymentDetailsResp{
			PaymentMethod: o.Payment.Method,
			CardNumber:    o.Payment.CardNumber,
			Status:        o.Payment.Status,
		},
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.With(h.observe("create_order")).Post("/", h.createOrder)
		r.With(h.observe("get_order")).Get("/{id}", h.getOrder)
		r.With(h.observe("delete_order")).Delete("/{id}", h.deleteOrder)
	})

	return r
}

func (h *Handler) observe(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			h.metrics.Observe(name, ww.Status(), time.Since(start))
		})
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Message: "invalid body", Error: "bad_request"})
		return
	}

	o, err := h.service.CreateOrder(ctx, application.CreateOrderRequest{
		ProductSKU:      req.ProductSKU,
		ProductQuantity: req.ProductQuantity,
		ClientCPF:       req.ClientCPF,
		PaymentMethod:   req.PaymentDetails.PaymentMethod,
		CardNumber:      req.PaymentDetails.CardNumber,
	})
	if err != nil {
		h.writeError(w, err, o.ID)
		return
	}

	span.SetAttributes(attribute.String("order.id", o.ID))
	writeJSON(w, http.StatusCreated, toResp(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id := chi.URLParam(r, "id")
	o, err := h.service.GetOrder(ctx, id)
	if err != nil {
		h.writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, toResp(o))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteOrder")
	defer span.End()

	id := chi.URLParam(r, "id")
	if err := h.service.DeleteOrder(ctx, id); err != nil {
		h.writeError(w, err, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, orderID string) {
	var (
		verr *domain.ValidationError
		perr *application.PublishError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResp{Message: "invalid order", Error: "validation_failed", Errors: verr.Messages})
	case errors.Is(err, domain.ErrProductNotFound):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp{Message: err.Error(), Error: "product_not_found"})
	case errors.Is(err, domain.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Message: fmt.Sprintf("Order with id=[%s] not found.", orderID), Error: "order_not_found"})
	case errors.As(err, &perr):
		h.log.Error("order saved but commands not published", "order_id", orderID, "err", err)
		writeJSON(w, http.StatusBadGateway, errorResp{Message: "order saved but not dispatched", Error: "publish_failed", OrderID: orderID})
	default:
		h.log.Error("request failed", "order_id", orderID, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResp{Message: "internal error", Error: "internal"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
