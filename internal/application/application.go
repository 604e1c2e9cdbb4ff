package application

import (
	"context"
	"time"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// IDGenerator issues opaque identifiers for new aggregates.
type IDGenerator interface {
	NewID() string
}

// Clock is injected where behavior depends on wall time.
type Clock func() time.Time
