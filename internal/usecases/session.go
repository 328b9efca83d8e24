package usecases

import (
	"sync"
	"time"

	"github.com/MyCarrier-DevOps/adcheck/internal/domain"
)

// DefaultBatchTTL is how long an idle or finished batch is kept.
const DefaultBatchTTL = time.Hour

// Batch is one submitted list of emails plus the credentials to resolve them.
type Batch struct {
	// ID is the opaque identifier handed to the browser session.
	ID string

	// Emails are the lookup requests in submission order.
	Emails []string

	// CreatedAt is the submission time.
	CreatedAt time.Time

	creds    domain.DirectoryCredentials
	reporter *ProgressReporter

	mu       sync.Mutex
	touched  time.Time
	results  []domain.LookupResult
	artifact []byte
	failure  error
}

func newBatch(id string, emails []string, creds domain.DirectoryCredentials, now time.Time) *Batch {
	return &Batch{
		ID:        id,
		Emails:    emails,
		CreatedAt: now,
		creds:     creds,
		reporter:  NewProgressReporter(),
		touched:   now,
	}
}

// State returns the batch's progress state.
func (b *Batch) State() domain.BatchState {
	return b.reporter.State()
}

// Progress returns the completed and total record counts.
func (b *Batch) Progress() (completed, total int) {
	return b.reporter.Counts()
}

// Results returns a copy of the results in submission order, or nil before completion.
func (b *Batch) Results() []domain.LookupResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.results == nil {
		return nil
	}
	out := make([]domain.LookupResult, len(b.results))
	copy(out, b.results)
	return out
}

// Artifact returns the finished report. It returns domain.ErrNoArtifact until
// the batch has completed with a report.
func (b *Batch) Artifact() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.artifact == nil {
		if b.failure != nil {
			return nil, b.failure
		}
		return nil, domain.ErrNoArtifact
	}
	return b.artifact, nil
}

func (b *Batch) finish(results []domain.LookupResult, artifact []byte, failure error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = results
	b.artifact = artifact
	b.failure = failure
}

func (b *Batch) touch(now time.Time) {
	b.mu.Lock()
	b.touched = now
	b.mu.Unlock()
}

func (b *Batch) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.touched
}

// SessionStore holds batches keyed by ID. Expired batches are evicted lazily
// on access; running batches are never evicted.
type SessionStore struct {
	mu      sync.Mutex
	batches map[string]*Batch
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionStore creates a store that evicts batches idle for longer than ttl.
// A non-positive ttl falls back to DefaultBatchTTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultBatchTTL
	}
	return &SessionStore{
		batches: make(map[string]*Batch),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores b, replacing any batch with the same ID.
func (s *SessionStore) Put(b *Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	s.batches[b.ID] = b
}

// Get returns the batch with the given ID and marks it as recently used.
func (s *SessionStore) Get(id string) (*Batch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked()
	b, ok := s.batches[id]
	if ok {
		b.touch(s.now())
	}
	return b, ok
}

// Delete removes the batch with the given ID. A running batch keeps running
// but can no longer be reached through the store.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, id)
}

// Len returns the number of stored batches.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *SessionStore) evictLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, b := range s.batches {
		if b.State() == domain.StateRunning {
			continue
		}
		if b.idleSince().Before(cutoff) {
			delete(s.batches, id)
		}
	}
}
