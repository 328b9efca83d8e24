// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// Logger defines the logging interface required by the use cases.
// This abstracts the logger dependency to avoid coupling to a specific implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// LookupObserver receives lookup and batch measurements.
type LookupObserver interface {
	ObserveLookup(status domain.LookupStatus, elapsed time.Duration)
	BatchStarted()
	BatchFinished(elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveLookup(domain.LookupStatus, time.Duration) {}
func (noopObserver) BatchStarted()                                    {}
func (noopObserver) BatchFinished(time.Duration)                      {}

// PoolOption configures a LookupPool.
type PoolOption func(*LookupPool)

// WithRateLimit caps outbound lookups to perSecond. Zero or negative disables the limit.
func WithRateLimit(perSecond float64) PoolOption {
	return func(p *LookupPool) {
		if perSecond <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithObserver attaches a LookupObserver to the pool.
func WithObserver(o LookupObserver) PoolOption {
	return func(p *LookupPool) {
		if o != nil {
			p.observer = o
		}
	}
}

// LookupPool fans a batch of emails out across a fixed number of workers.
// The worker count bounds the number of concurrent directory connections.
type LookupPool struct {
	client   domain.DirectoryClient
	workers  int
	limiter  *rate.Limiter
	observer LookupObserver
	logger   Logger
}

// NewLookupPool creates a pool running at most workers lookups at once.
// A non-positive worker count falls back to domain.DefaultWorkerCount.
func NewLookupPool(client domain.DirectoryClient, workers int, log Logger, opts ...PoolOption) *LookupPool {
	if workers <= 0 {
		workers = domain.DefaultWorkerCount
	}
	p := &LookupPool{
		client:   client,
		workers:  workers,
		observer: noopObserver{},
		logger:   log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Workers returns the maximum number of concurrent lookups.
func (p *LookupPool) Workers() int {
	return p.workers
}

// Run submits every email and returns a channel of completions in completion order.
// Completed counts from 1 to len(emails); Index is the submission index.
// The channel is closed after the last completion. Callers must drain it,
// since workers block on a full channel. A Run cannot be restarted.
func (p *LookupPool) Run(
	ctx context.Context,
	emails []string,
	creds domain.DirectoryCredentials,
) <-chan domain.Completion {
	total := len(emails)
	finished := make(chan domain.Completion, p.workers)
	out := make(chan domain.Completion, p.workers)

	go func() {
		wp := pool.New().WithMaxGoroutines(p.workers)
		for i, email := range emails {
			wp.Go(func() {
				finished <- domain.Completion{
					Index:  i,
					Total:  total,
					Result: p.lookup(ctx, email, creds),
				}
			})
		}
		wp.Wait()
		close(finished)
	}()

	// A single collector assigns completion counts so they are strictly increasing.
	go func() {
		defer close(out)
		completed := 0
		for c := range finished {
			completed++
			c.Completed = completed
			out <- c
		}
	}()

	return out
}

// lookup performs one directory query. Panics and rate limiter failures are
// converted to error results so a single row never stops the batch.
func (p *LookupPool) lookup(
	ctx context.Context,
	email string,
	creds domain.DirectoryCredentials,
) (result domain.LookupResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = domain.NewErrorResult(email, fmt.Errorf("lookup panicked: %v", r))
		}
		p.observer.ObserveLookup(result.Status, time.Since(start))
		if result.Status == domain.StatusFailed {
			p.logger.Warn(ctx, "directory lookup failed", map[string]interface{}{
				"email": email,
				"error": result.Name,
			})
		}
	}()

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return domain.NewErrorResult(email, fmt.Errorf("rate limiter: %w", err))
		}
	}

	result = p.client.Lookup(ctx, email, creds)
	result.Email = email
	return result
}
