package simulated

import (
	"context"
	"testing"

	"github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateway_ScriptedThenRandom(t *testing.T) {
	ctx := context.Background()
	g := New("https://sim.test/StartPay/")

	res, err := g.Initiate(ctx, payment.InitiateRequest{OrderID: "o-1", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, "https://sim.test/StartPay/"+res.GatewayReference, res.RedirectURL)

	g.Script(payment.Verification{Outcome: payment.OutcomeAmbiguous, Reason: "timeout"})
	assert.Equal(t, payment.OutcomeAmbiguous, g.Verify(ctx, res.GatewayReference, 500).Outcome)

	g.SetSuccessRate(1)
	v := g.Verify(ctx, res.GatewayReference, 500)
	assert.Equal(t, payment.OutcomeConfirmed, v.Outcome)
	assert.Equal(t, int64(500), v.Amount)
	assert.Equal(t, 2, g.Verifies(res.GatewayReference))

	assert.Equal(t, payment.OutcomeRejected, g.Verify(ctx, res.GatewayReference, 400).Outcome)
}

func TestGateway_FailInitiate(t *testing.T) {
	g := New("https://sim.test/StartPay/")
	g.FailInitiate(payment.ErrGatewayUnreachable)
	_, err := g.Initiate(context.Background(), payment.InitiateRequest{OrderID: "o-1", Amount: 500})
	assert.ErrorIs(t, err, payment.ErrGatewayUnreachable)

	g.FailInitiate(nil)
	_, err = g.Initiate(context.Background(), payment.InitiateRequest{OrderID: "o-1", Amount: 500})
	assert.NoError(t, err)
}
