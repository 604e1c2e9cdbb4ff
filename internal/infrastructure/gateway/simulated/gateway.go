package simulated

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/mojig27/web-site-sub001/internal/domain/payment"
)

const defaultSuccessRate = 0.7

// Gateway is an in-process stand-in for the payment provider. Verifications
// follow a scripted queue first and fall back to a weighted coin flip.
type Gateway struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	redirectURL string
	seq         int
	amounts     map[string]int64
	script      []payment.Verification
	initiateErr error
	verifies    map[string]int
}

func New(redirectBaseURL string) *Gateway {
	return &Gateway{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: defaultSuccessRate,
		redirectURL: redirectBaseURL,
		amounts:     make(map[string]int64),
		verifies:    make(map[string]int),
	}
}

func (g *Gateway) SetSuccessRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successRate = rate
}

// Script queues verification answers. A confirmed answer with zero Amount
// echoes the amount passed to Verify.
func (g *Gateway) Script(outcomes ...payment.Verification) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = append(g.script, outcomes...)
}

// FailInitiate makes every following Initiate return err; nil restores it.
func (g *Gateway) FailInitiate(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initiateErr = err
}

// Verifies reports how many times reference was verified.
func (g *Gateway) Verifies(reference string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifies[reference]
}

func (g *Gateway) Initiate(ctx context.Context, req payment.InitiateRequest) (payment.InitiateResult, error) {
	if err := ctx.Err(); err != nil {
		return payment.InitiateResult{}, fmt.Errorf("%w: %v", payment.ErrGatewayUnreachable, err)
	}
	if req.Amount <= 0 {
		return payment.InitiateResult{}, fmt.Errorf("%w: amount must be positive", payment.ErrGatewayRejected)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initiateErr != nil {
		return payment.InitiateResult{}, g.initiateErr
	}
	g.seq++
	ref := fmt.Sprintf("SIM%016d", g.seq)
	g.amounts[ref] = req.Amount
	return payment.InitiateResult{
		GatewayReference: ref,
		RedirectURL:      g.redirectURL + ref,
	}, nil
}

func (g *Gateway) Verify(ctx context.Context, reference string, amount int64) payment.Verification {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies[reference]++

	if err := ctx.Err(); err != nil {
		return payment.Verification{Outcome: payment.OutcomeAmbiguous, Reason: err.Error()}
	}

	if len(g.script) > 0 {
		v := g.script[0]
		g.script = g.script[1:]
		if v.Outcome == payment.OutcomeConfirmed && v.Amount == 0 {
			v.Amount = amount
		}
		if v.Outcome == payment.OutcomeConfirmed && v.ProviderRef == "" {
			v.ProviderRef = "sim-" + reference
		}
		return v
	}

	initiated, ok := g.amounts[reference]
	if !ok {
		return payment.Verification{Outcome: payment.OutcomeRejected, Reason: "unknown authority"}
	}
	if initiated != amount {
		return payment.Verification{Outcome: payment.OutcomeRejected, Reason: "amount mismatch"}
	}
	if g.random.Float64() <= g.successRate {
		return payment.Verification{Outcome: payment.OutcomeConfirmed, Amount: initiated, ProviderRef: "sim-" + reference}
	}
	return payment.Verification{Outcome: payment.OutcomeRejected, Reason: "payment_declined"}
}
