package usecases

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// ErrInvalidTransition indicates a progress event was requested in the wrong state.
var ErrInvalidTransition = errors.New("invalid progress transition")

// FormatProgress renders the text of a per-record progress event.
func FormatProgress(completed, total int) string {
	return fmt.Sprintf("Processing %d/%d", completed, total)
}

// ProgressReporter tracks a batch through IDLE -> RUNNING -> COMPLETE and
// produces the text of each progress event.
type ProgressReporter struct {
	mu        sync.Mutex
	state     domain.BatchState
	total     int
	completed int
}

// NewProgressReporter returns a reporter in the idle state.
func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{state: domain.StateIdle}
}

// Start moves the reporter to RUNNING for a batch of total records.
// It returns domain.ErrNoActiveBatch unless the reporter is idle, so a batch
// can only be started once.
func (r *ProgressReporter) Start(total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateIdle {
		return fmt.Errorf("%w: batch is %s", domain.ErrNoActiveBatch, r.state)
	}
	r.state = domain.StateRunning
	r.total = total
	r.completed = 0
	return nil
}

// Advance records one completed lookup and returns its event text.
func (r *ProgressReporter) Advance() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateRunning {
		return "", fmt.Errorf("%w: advance while %s", ErrInvalidTransition, r.state)
	}
	if r.completed >= r.total {
		return "", fmt.Errorf("%w: %d of %d already completed", ErrInvalidTransition, r.completed, r.total)
	}
	r.completed++
	return FormatProgress(r.completed, r.total), nil
}

// Complete moves the reporter to COMPLETE and returns the terminal event text.
func (r *ProgressReporter) Complete() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != domain.StateRunning {
		return "", fmt.Errorf("%w: complete while %s", ErrInvalidTransition, r.state)
	}
	if r.completed != r.total {
		return "", fmt.Errorf("%w: only %d of %d completed", ErrInvalidTransition, r.completed, r.total)
	}
	r.state = domain.StateComplete
	return domain.CompleteMarker, nil
}

// State returns the current state.
func (r *ProgressReporter) State() domain.BatchState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Counts returns the completed and total record counts.
func (r *ProgressReporter) Counts() (completed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed, r.total
}
