package payment

import (
	"context"
	"errors"
)

var (
	ErrGatewayUnreachable = errors.New("payment: gateway unreachable")
	ErrGatewayRejected    = errors.New("payment: gateway rejected the request")
)

type InitiateRequest struct {
	OrderID     string
	AttemptID   string
	Amount      int64
	CallbackURL string
	Description string
}

type InitiateResult struct {
	GatewayReference string
	RedirectURL      string
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRejected  Outcome = "rejected"
	// OutcomeAmbiguous means the gateway's answer is unknown (timeout,
	// transport error, 5xx). It is neither a confirmation nor a rejection.
	OutcomeAmbiguous Outcome = "ambiguous"
)

type Verification struct {
	Outcome Outcome
	// Amount is what the gateway reports as captured.
	Amount      int64
	ProviderRef string
	Reason      string
}

// Gateway is the external payment provider.
type Gateway interface {
	// Initiate fails with ErrGatewayUnreachable or ErrGatewayRejected.
	Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error)
	// Verify never fails; every failure to learn the outcome is OutcomeAmbiguous.
	Verify(ctx context.Context, gatewayReference string, amount int64) Verification
}
