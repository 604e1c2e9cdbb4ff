package workerpresentation

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/mojig27/web-site-sub001/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Job is a periodic background task such as the reservation sweeper or the
// payment re-checker.
type Job struct {
	Name     string
	Interval time.Duration
	Tick     func(ctx context.Context) error
}

// Runner drives jobs on their own tickers until the context ends.
type Runner struct {
	tel observability.Observability
	log observability.Logger
	wg  sync.WaitGroup
}

func NewRunner(tel observability.Observability) *Runner {
	return &Runner{tel: tel, log: observability.LoggerOf(tel)}
}

// Start launches one goroutine per job. A job with a non-positive interval
// is skipped.
func (r *Runner) Start(ctx context.Context, jobs ...Job) {
	for _, job := range jobs {
		if job.Interval <= 0 || job.Tick == nil {
			r.log.Info("job_disabled", observability.F("job", job.Name))
			continue
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.loop(ctx, job)
		}()
	}
}

// Wait blocks until every started job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	r.log.Info("job_started", observability.F("job", job.Name), observability.F("interval", job.Interval.String()))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("job_stopped", observability.F("job", job.Name))
			return
		case <-ticker.C:
			r.RunOnce(ctx, job)
		}
	}
}

// RunOnce executes a single tick of job inside its own root span. Panics are
// recovered so one bad tick never stops the loop.
func (r *Runner) RunOnce(ctx context.Context, job Job) (err error) {
	ctx, span := r.tel.Tracer().Start(ctx, "job."+job.Name, attribute.String("job.name", job.Name))
	defer span.End()
	ctx = WithEventContext(ctx, r.log, map[string]string{"job": job.Name})

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, p)
			logctx.FromOr(ctx, r.log).Error("job_panic",
				observability.F("panic", p),
				observability.F("stack", string(debug.Stack())),
			)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err = job.Tick(ctx); err != nil {
		logctx.FromOr(ctx, r.log).Warn("job_tick_failed", observability.F("error", err))
	}
	return err
}
