package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// DefaultEventBuffer is the capacity of the progress event channel handed to a stream.
const DefaultEventBuffer = 16

// BatchService coordinates submission, processing and download of batches.
type BatchService struct {
	pool        *LookupPool
	writer      domain.ReportWriter
	store       *SessionStore
	logger      Logger
	observer    LookupObserver
	eventBuffer int
	newID       func() string
	now         func() time.Time
}

// BatchOption configures a BatchService.
type BatchOption func(*BatchService)

// WithBatchObserver attaches a LookupObserver for batch-level measurements.
func WithBatchObserver(o LookupObserver) BatchOption {
	return func(s *BatchService) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithEventBuffer sets the capacity of progress event channels.
func WithEventBuffer(n int) BatchOption {
	return func(s *BatchService) {
		if n > 0 {
			s.eventBuffer = n
		}
	}
}

// NewBatchService creates a BatchService with the given dependencies.
// All dependencies are injected to support testing.
func NewBatchService(
	lookupPool *LookupPool,
	writer domain.ReportWriter,
	store *SessionStore,
	log Logger,
	opts ...BatchOption,
) *BatchService {
	s := &BatchService{
		pool:        lookupPool,
		writer:      writer,
		store:       store,
		logger:      log,
		observer:    noopObserver{},
		eventBuffer: DefaultEventBuffer,
		newID:       func() string { return ulid.Make().String() },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit stores a new batch and returns it. previousID is the batch the caller's
// session held before; it is discarded so each session has one active batch.
func (s *BatchService) Submit(
	ctx context.Context,
	previousID string,
	emails []string,
	creds domain.DirectoryCredentials,
) (*Batch, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	if previousID != "" {
		s.store.Delete(previousID)
	}

	b := newBatch(s.newID(), emails, creds, s.now())
	s.store.Put(b)

	s.logger.Info(ctx, "batch submitted", map[string]interface{}{
		"batch_id":    b.ID,
		"emails":      len(emails),
		"server":      creds.Server,
		"search_base": creds.SearchBase,
		"bind_user":   creds.BindUser,
		"replaced_id": previousID,
	})

	return b, nil
}

// Get returns the stored batch with the given ID.
func (s *BatchService) Get(id string) (*Batch, bool) {
	if id == "" {
		return nil, false
	}
	return s.store.Get(id)
}

// Stream starts processing the batch and returns its progress events.
// The channel carries one "Processing n/total" event per completed lookup and a
// terminal event, then closes. It returns domain.ErrNoActiveBatch when the batch
// does not exist or was already started.
//
// Processing is detached from ctx: once started, a batch runs to completion even
// if the consumer goes away. Events are dropped after ctx is done.
func (s *BatchService) Stream(ctx context.Context, id string) (<-chan string, error) {
	b, ok := s.Get(id)
	if !ok {
		return nil, domain.ErrNoActiveBatch
	}
	if err := b.reporter.Start(len(b.Emails)); err != nil {
		return nil, err
	}

	events := make(chan string, s.eventBuffer)
	detached := ctx.Done()
	emit := func(msg string) {
		select {
		case events <- msg:
		case <-detached:
		}
	}

	go func() {
		defer close(events)
		s.process(context.WithoutCancel(ctx), b, emit)
	}()

	return events, nil
}

// Download returns the finished report of the batch.
func (s *BatchService) Download(id string) ([]byte, error) {
	b, ok := s.Get(id)
	if !ok {
		return nil, domain.ErrNoArtifact
	}
	return b.Artifact()
}

// RunBatch processes emails synchronously without storing a batch and returns
// the report. emit, if non-nil, receives every progress event.
func (s *BatchService) RunBatch(
	ctx context.Context,
	emails []string,
	creds domain.DirectoryCredentials,
	emit func(string),
) ([]byte, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if emit == nil {
		emit = func(string) {}
	}

	b := newBatch(s.newID(), emails, creds, s.now())
	if err := b.reporter.Start(len(emails)); err != nil {
		return nil, err
	}
	s.process(ctx, b, emit)
	return b.Artifact()
}

// process drains the lookup pool for b, fills results in submission order,
// builds the report and emits the terminal event. The report is attached to
// the batch before the terminal event is emitted.
func (s *BatchService) process(ctx context.Context, b *Batch, emit func(string)) {
	start := s.now()
	total := len(b.Emails)
	s.observer.BatchStarted()

	s.logger.Info(ctx, "batch started", map[string]interface{}{
		"batch_id": b.ID,
		"emails":   total,
		"workers":  s.pool.Workers(),
	})

	results := make([]domain.LookupResult, total)
	counts := make(map[domain.LookupStatus]int)
	for c := range s.pool.Run(ctx, b.Emails, b.creds) {
		results[c.Index] = c.Result
		counts[c.Result.Status]++

		msg, err := b.reporter.Advance()
		if err != nil {
			s.logger.Error(ctx, "progress out of step", err, map[string]interface{}{
				"batch_id": b.ID,
			})
			continue
		}
		emit(msg)
	}

	artifact, err := s.writer.Write(results)
	if err != nil {
		err = fmt.Errorf("failed to write report: %w", err)
		s.logger.Error(ctx, "batch report failed", err, map[string]interface{}{
			"batch_id": b.ID,
		})
		artifact = nil
	}
	b.finish(results, artifact, reportFailure(err))

	elapsed := s.now().Sub(start)
	s.observer.BatchFinished(elapsed)

	s.logger.Info(ctx, "batch complete", map[string]interface{}{
		"batch_id":   b.ID,
		"emails":     total,
		"found":      counts[domain.StatusFound],
		"not_found":  counts[domain.StatusNotFound],
		"failed":     counts[domain.StatusFailed],
		"elapsed_ms": elapsed.Milliseconds(),
	})

	msg, cerr := b.reporter.Complete()
	if cerr != nil {
		s.logger.Error(ctx, "progress out of step", cerr, map[string]interface{}{
			"batch_id": b.ID,
		})
		msg = domain.CompleteMarker
	}
	if err != nil {
		msg = "ERROR - " + err.Error()
	}
	emit(msg)
}

func reportFailure(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(domain.ErrNoArtifact, err)
}
