package httppresentation

import (
	"time"

	"github.com/mojig27/web-site-sub001/internal/application/checkout"
	"github.com/mojig27/web-site-sub001/internal/domain/inventory"
	"github.com/mojig27/web-site-sub001/internal/domain/order"
	"github.com/mojig27/web-site-sub001/internal/domain/payment"
)

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type receiverRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type addressRequest struct {
	Province   string          `json:"province"`
	City       string          `json:"city"`
	Address    string          `json:"address"`
	PostalCode string          `json:"postal_code"`
	Receiver   receiverRequest `json:"receiver"`
}

func (a addressRequest) domain() order.ShippingAddress {
	return order.ShippingAddress{
		Province:   a.Province,
		City:       a.City,
		Address:    a.Address,
		PostalCode: a.PostalCode,
		Receiver:   order.Receiver{Name: a.Receiver.Name, Phone: a.Receiver.Phone},
	}
}

type checkoutRequest struct {
	UserID          string            `json:"user_id"`
	IdempotencyKey  string            `json:"idempotency_key"`
	Items           []cartItemRequest `json:"items"`
	ShippingAddress addressRequest    `json:"shipping_address"`
}

func (c checkoutRequest) cartItems() []checkout.CartItem {
	items := make([]checkout.CartItem, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, checkout.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return items
}

type checkoutResponse struct {
	OrderID          string `json:"order_id"`
	PaymentAttemptID string `json:"payment_attempt_id,omitempty"`
	RedirectURL      string `json:"redirect_url,omitempty"`
	Status           string `json:"status"`
	TotalAmount      int64  `json:"total_amount"`
	Replayed         bool   `json:"replayed"`
}

func newCheckoutResponse(r *checkout.CheckoutResult) checkoutResponse {
	return checkoutResponse{
		OrderID:          r.OrderID,
		PaymentAttemptID: r.PaymentAttemptID,
		RedirectURL:      r.RedirectURL,
		Status:           string(r.Status),
		TotalAmount:      r.TotalAmount,
		Replayed:         r.Replayed,
	}
}

type callbackResponse struct {
	OrderID       string `json:"order_id"`
	AttemptID     string `json:"payment_attempt_id"`
	OrderStatus   string `json:"order_status"`
	AttemptStatus string `json:"payment_status"`
	Outcome       string `json:"outcome"`
	Cached        bool   `json:"cached"`
}

type advanceRequest struct {
	Status          string `json:"status"`
	TrackingCode    string `json:"tracking_code"`
	ExpectedVersion int64  `json:"expected_version"`
}

type setStockRequest struct {
	Available *int `json:"available"`
}

type lineItemView struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type orderView struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	Status           string         `json:"status"`
	Items            []lineItemView `json:"items"`
	TotalAmount      int64          `json:"total_amount"`
	ShippingAddress  addressRequest `json:"shipping_address"`
	PaymentAttemptID string         `json:"payment_attempt_id,omitempty"`
	TrackingCode     string         `json:"tracking_code,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	Version          int64          `json:"version"`
}

func newOrderView(o *order.Order) orderView {
	items := make([]lineItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, lineItemView{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	a := o.ShippingAddress
	return orderView{
		ID:          o.ID,
		UserID:      o.UserID,
		Status:      string(o.Status),
		Items:       items,
		TotalAmount: o.TotalAmount,
		ShippingAddress: addressRequest{
			Province:   a.Province,
			City:       a.City,
			Address:    a.Address,
			PostalCode: a.PostalCode,
			Receiver:   receiverRequest{Name: a.Receiver.Name, Phone: a.Receiver.Phone},
		},
		PaymentAttemptID: o.PaymentAttemptID,
		TrackingCode:     o.TrackingCode,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		Version:          o.Version,
	}
}

type attemptView struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"order_id"`
	GatewayReference string     `json:"gateway_reference,omitempty"`
	Amount           int64      `json:"amount"`
	Status           string     `json:"status"`
	VerifyAttempts   int        `json:"verify_attempts"`
	NeedsReview      bool       `json:"needs_review"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	ProviderRef      string     `json:"provider_ref,omitempty"`
	NextCheckAt      *time.Time `json:"next_check_at,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func newAttemptViews(attempts []*payment.Attempt) []attemptView {
	views := make([]attemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, attemptView{
			ID:               a.ID,
			OrderID:          a.OrderID,
			GatewayReference: a.GatewayReference,
			Amount:           a.Amount,
			Status:           string(a.Status),
			VerifyAttempts:   a.VerifyAttempts,
			NeedsReview:      a.NeedsReview,
			FailureReason:    a.FailureReason,
			ProviderRef:      a.ProviderRef,
			NextCheckAt:      optionalTime(a.NextCheckAt),
			VerifiedAt:       optionalTime(a.VerifiedAt),
			CreatedAt:        a.CreatedAt,
		})
	}
	return views
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type adminOrderView struct {
	orderView
	Attempts []attemptView `json:"payment_attempts"`
}

type stockView struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}

func newStockView(s *inventory.Stock) stockView {
	return stockView{ProductID: s.ProductID, Available: s.Available, Reserved: s.Reserved}
}

type shortageView struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

func newShortageViews(e *inventory.InsufficientStockError) []shortageView {
	views := make([]shortageView, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		views = append(views, shortageView{ProductID: s.ProductID, Requested: s.Requested, Available: s.Available})
	}
	return views
}

type errorResponse struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Shortages []shortageView `json:"shortages,omitempty"`
}
