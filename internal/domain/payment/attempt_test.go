package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = RetryPolicy{Initial: time.Second, Max: 8 * time.Second, MaxAttempts: 3}

func TestAttemptHappyPath(t *testing.T) {
	a, err := NewAttempt("a-1", "o-1", 1000)
	require.NoError(t, err)
	now := time.Now()

	require.NoError(t, a.AttachGateway("A0001", "https://pay/StartPay/A0001", now))
	assert.Error(t, a.AttachGateway("A0002", "", now), "reference is set once")

	require.NoError(t, a.StartVerifying(now, now.Add(time.Minute)))
	assert.Equal(t, StatusVerifying, a.Status)
	assert.False(t, a.NextCheckAt.IsZero())

	require.NoError(t, a.MarkVerified("ref-1", now))
	assert.Equal(t, StatusVerified, a.Status)
	assert.True(t, a.Status.IsTerminal())
	assert.True(t, a.NextCheckAt.IsZero())
	assert.Equal(t, "ref-1", a.ProviderRef)
}

func TestAttemptRejectsIllegalMoves(t *testing.T) {
	a, err := NewAttempt("a-1", "o-1", 1000)
	require.NoError(t, err)
	now := time.Now()

	assert.ErrorIs(t, a.MarkVerified("x", now), ErrInvalidTransition)
	require.NoError(t, a.StartVerifying(now, now))
	assert.ErrorIs(t, a.StartVerifying(now, now), ErrInvalidTransition, "only one verification may be claimed")
	assert.ErrorIs(t, a.MarkExpired(now), ErrInvalidTransition, "a verifying attempt cannot expire")
	require.NoError(t, a.MarkFailed("declined", now))
	assert.ErrorIs(t, a.MarkVerified("x", now), ErrInvalidTransition)
}

func TestRecordAmbiguousBacksOffThenFlags(t *testing.T) {
	a, err := NewAttempt("a-1", "o-1", 1000)
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, a.StartVerifying(now, now))

	require.NoError(t, a.RecordAmbiguous("timeout", now, testPolicy))
	assert.Equal(t, now.Add(time.Second), a.NextCheckAt)
	require.NoError(t, a.RecordAmbiguous("timeout", now, testPolicy))
	assert.Equal(t, now.Add(2*time.Second), a.NextCheckAt)
	assert.False(t, a.NeedsReview)

	require.NoError(t, a.RecordAmbiguous("timeout", now, testPolicy))
	assert.True(t, a.NeedsReview)
	assert.True(t, a.NextCheckAt.IsZero())
	assert.Equal(t, StatusVerifying, a.Status, "ambiguity never resolves the attempt")
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{Initial: time.Second, Max: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(60))
}

func TestNewAttemptRejectsNonPositiveAmount(t *testing.T) {
	_, err := NewAttempt("a", "o", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRenewOnlyForScheduledVerifying(t *testing.T) {
	a, err := NewAttempt("a-1", "o-1", 1000)
	require.NoError(t, err)
	now := time.Now()

	assert.ErrorIs(t, a.Renew(now, now.Add(time.Minute)), ErrInvalidTransition)
	require.NoError(t, a.StartVerifying(now, now))
	require.NoError(t, a.Renew(now, now.Add(time.Minute)))
	assert.Equal(t, now.Add(time.Minute).UTC(), a.NextCheckAt)

	a.FlagForReview("manual", now)
	assert.ErrorIs(t, a.Renew(now, now.Add(time.Minute)), ErrInvalidTransition)
}
