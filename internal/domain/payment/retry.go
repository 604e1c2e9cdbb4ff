package payment

import (
	"math"
	"time"
)

// RetryPolicy bounds re-checks of ambiguous verifications.
type RetryPolicy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// Delay is the wait before re-check n (1-based): Initial doubled per attempt,
// capped at Max.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := time.Duration(math.Pow(2, float64(n-1))) * p.Initial
	if p.Max > 0 && (d > p.Max || d <= 0) {
		return p.Max
	}
	return d
}
