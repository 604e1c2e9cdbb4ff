package httppresentation

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mojig27/web-site-sub001/internal/application"
	"github.com/mojig27/web-site-sub001/internal/application/checkout"
	appinventory "github.com/mojig27/web-site-sub001/internal/application/inventory"
	apporder "github.com/mojig27/web-site-sub001/internal/application/order"
	apppayment "github.com/mojig27/web-site-sub001/internal/application/payment"
	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/mojig27/web-site-sub001/internal/observability/logctx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	headerUserID         = "X-User-ID"
	headerIdempotencyKey = "Idempotency-Key"

	requestTimeout = 30 * time.Second
)

// Services are the use cases the HTTP surface drives.
type Services struct {
	Checkout    application.UseCase[checkout.CheckoutInput, *checkout.CheckoutResult]
	Retry       application.UseCase[checkout.RetryPaymentInput, *checkout.CheckoutResult]
	Cancel      application.UseCase[checkout.CancelInput, *checkout.CancelResult]
	Reconcile   application.UseCase[apppayment.ReconcileInput, *apppayment.Result]
	Query       *apporder.Query
	Fulfillment *apporder.Fulfillment
	Stock       *appinventory.Stock
	// Health reports store reachability; nil means always healthy.
	Health func(ctx context.Context) error
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
}

type Handler struct {
	svc Services
	log observability.Logger
	tel observability.Observability
}

func NewHandler(svc Services, tel observability.Observability) *Handler {
	return &Handler{
		svc: svc,
		log: observability.LoggerOf(tel).With(observability.F("component", componentHTTPHandler)),
		tel: tel,
	}
}

// Router wires Recoverer -> Trace -> request logger + metrics -> access log
// in front of every route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withTrace)
	r.Use(ObservabilityMiddleware(h.log, h.tel))
	r.Use(h.withAccessLog)

	r.Get("/health", h.handleHealth)
	if h.svc.Metrics != nil {
		r.Handle("/metrics", h.svc.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Post("/checkout", h.handleCheckout)
		r.Get("/payment/callback", h.handleCallback)
		r.Post("/payment/callback", h.handleCallback)

		r.Route("/orders/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetOrder)
			r.Post("/cancel", h.handleCancel)
			r.Post("/payment/retry", h.handleRetry)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/orders", h.handleAdminListOrders)
			r.Get("/orders/{id}", h.handleAdminGetOrder)
			r.Post("/orders/{id}/status", h.handleAdminAdvance)
			r.Get("/payments/review", h.handleReview)
			r.Get("/inventory/{productID}", h.handleGetStock)
			r.Put("/inventory/{productID}", h.handleSetStock)
		})
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.svc.Health != nil {
		if err := h.svc.Health(r.Context()); err != nil {
			logctx.FromOr(r.Context(), h.log).Error("health_check_failed", observability.F("error", err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "unavailable"})
			return
		}
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err)
		return
	}
	key := r.Header.Get(headerIdempotencyKey)
	if key == "" {
		key = req.IdempotencyKey
	}

	res, err := h.svc.Checkout.Execute(r.Context(), checkout.CheckoutInput{
		UserID:          userID(r, req.UserID),
		IdempotencyKey:  key,
		Items:           req.cartItems(),
		ShippingAddress: req.ShippingAddress.domain(),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	render.Status(r, status)
	render.JSON(w, r, newCheckoutResponse(res))
}

// handleCallback accepts the gateway's return in either form: query
// parameters on GET, or a form body on POST.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err)
		return
	}
	reference := r.Form.Get("Authority")
	if reference == "" {
		reference = r.Form.Get("authority")
	}
	claimed := r.Form.Get("Status")
	if claimed == "" {
		claimed = r.Form.Get("status")
	}
	if reference == "" {
		writeError(w, r, http.StatusBadRequest, "authority_required", errors.New("Authority is required"))
		return
	}

	res, err := h.svc.Reconcile.Execute(r.Context(), apppayment.ReconcileInput{
		GatewayReference: reference,
		ClaimedStatus:    claimed,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	render.JSON(w, r, callbackResponse{
		OrderID:       res.OrderID,
		AttemptID:     res.AttemptID,
		OrderStatus:   string(res.OrderStatus),
		AttemptStatus: string(res.AttemptStatus),
		Outcome:       res.Outcome,
		Cached:        res.Cached,
	})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	o, err := h.svc.Query.Order(r.Context(), chi.URLParam(r, "id"), uid)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	render.JSON(w, r, newOrderView(o))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Cancel.Execute(r.Context(), checkout.CancelInput{
		OrderID: chi.URLParam(r, "id"),
		UserID:  uid,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"order_id": res.OrderID, "status": string(res.Status)})
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	uid, ok := requireUser(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Retry.Execute(r.Context(), checkout.RetryPaymentInput{
		OrderID: chi.URLParam(r, "id"),
		UserID:  uid,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	render.JSON(w, r, newCheckoutResponse(res))
}

func (h *Handler) handleAdminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := order.ListFilter{UserID: q.Get("user_id")}
	if s := q.Get("status"); s != "" {
		status, err := order.ParseStatus(s)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_status", err)
			return
		}
		filter.Status = status
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	filter.Limit = limit

	orders, err := h.svc.Query.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, newOrderView(o))
	}
	render.JSON(w, r, map[string]any{"total_count": len(views), "orders": views})
}

func (h *Handler) handleAdminGetOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.svc.Query.Order(r.Context(), id, "")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	attempts, err := h.svc.Query.Attempts(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	render.JSON(w, r, adminOrderView{orderView: newOrderView(o), Attempts: newAttemptViews(attempts)})
}

func (h *Handler) handleAdminAdvance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err)
		return
	}
	to, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_status", err)
		return
	}
	o, err := h.svc.Fulfillment.Advance(r.Context(), apporder.AdvanceInput{
		OrderID:         chi.URLParam(r, "id"),
		To:              to,
		TrackingCode:    req.TrackingCode,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	render.JSON(w, r, newOrderView(o))
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	attempts, err := h.svc.Query.Review(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	views := newAttemptViews(attempts)
	render.JSON(w, r, map[string]any{"total_count": len(views), "attempts": views})
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Stock.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	render.JSON(w, r, newStockView(s))
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.Available == nil {
		writeError(w, r, http.StatusBadRequest, "available_required", errors.New("available is required"))
		return
	}
	s, err := h.svc.Stock.Set(r.Context(), chi.URLParam(r, "productID"), *req.Available)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	render.JSON(w, r, newStockView(s))
}

// userID prefers the X-User-ID header set by the edge proxy over a value in
// the body.
func userID(r *http.Request, fallback string) string {
	if v := r.Header.Get(headerUserID); v != "" {
		return v
	}
	return fallback
}

// requireUser rejects requests without X-User-ID; customer order routes are
// always scoped to an owner.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := userID(r, "")
	if uid == "" {
		writeError(w, r, http.StatusBadRequest, "user_required", errors.New(headerUserID+" header is required"))
		return "", false
	}
	return uid, true
}

// queryLimit parses the optional limit parameter; zero leaves the default.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return 0, true
	}
	n, err := strconv.Atoi(l)
	if err != nil || n < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error(), Code: code})
}

// writeDomainError is the single place domain errors become status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var shortage *inventory.InsufficientStockError
	switch {
	case errors.As(err, &shortage):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, errorResponse{Error: err.Error(), Code: "insufficient_stock", Shortages: newShortageViews(shortage)})
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, r, http.StatusConflict, "insufficient_stock", err)
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, inventory.ErrReservationNotFound),
		errors.Is(err, payment.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err)
	case errors.Is(err, checkout.ErrValidation),
		errors.Is(err, apporder.ErrTrackingCodeRequired),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrInvalidPrice),
		errors.Is(err, order.ErrAmountOverflow):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, checkout.ErrPaymentInFlight):
		writeError(w, r, http.StatusConflict, "payment_in_flight", err)
	case errors.Is(err, order.ErrVersionConflict),
		errors.Is(err, payment.ErrVersionConflict),
		errors.Is(err, order.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", err)
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, payment.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, payment.ErrGatewayUnreachable):
		writeError(w, r, http.StatusBadGateway, "gateway_unreachable", err)
	case errors.Is(err, payment.ErrGatewayRejected):
		writeError(w, r, http.StatusBadGateway, "gateway_rejected", err)
	default:
		logctx.FromOr(r.Context(), nil).Error("http_internal_error", observability.F("error", err))
		writeError(w, r, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}
