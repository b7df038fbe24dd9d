// Package index maintains secondary indexes over triples.
//
// Updates are write-behind: AddToIndex and RemoveFromIndex only queue the
// change, and a single background worker applies queued changes to the
// Backend in batches. Lookups see what the worker has flushed.
package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aleksaelezovic/trindex/pkg/observability"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

const (
	DefaultMaxBatchSize     = 10000
	DefaultFlushConcurrency = 4
)

type options struct {
	observer         observability.Observer
	logger           *slog.Logger
	maxBatchSize     int
	maxPending       int
	flushConcurrency int
}

// Option configures a Manager
type Option func(*options)

// WithObserver adds an observer for indexer events. Events are also
// logged through the manager's logger.
func WithObserver(o observability.Observer) Option {
	return func(opts *options) {
		opts.observer = o
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = l
	}
}

// WithMaxBatchSize bounds the number of actions flushed together; 0 means
// a batch runs until the kind changes or the queue is empty
func WithMaxBatchSize(n int) Option {
	return func(opts *options) {
		opts.maxBatchSize = n
	}
}

// WithMaxPending bounds the queue; 0 means unbounded. A full queue
// rejects new actions with ErrQueueFull.
func WithMaxPending(n int) Option {
	return func(opts *options) {
		opts.maxPending = n
	}
}

// WithFlushConcurrency limits how many indexes of one batch are written at once
func WithFlushConcurrency(n int) Option {
	return func(opts *options) {
		opts.flushConcurrency = n
	}
}

// Stats is a snapshot of manager activity
type Stats struct {
	Enqueued      int64
	Processed     int64
	Batches       int64
	FailedBatches int64
	Pending       int
	State         State
}

// Manager is the public face of the index: it queues updates for the
// background worker and answers pattern lookups from the backend.
type Manager struct {
	backend  Backend
	queue    *writeQueue
	worker   *indexer
	logger   *slog.Logger
	enqueued atomic.Int64

	closeOnce sync.Once
}

// NewManager starts the background worker for backend
func NewManager(backend Backend, opts ...Option) (*Manager, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", ErrInvalidArgument)
	}

	o := options{
		maxBatchSize:     DefaultMaxBatchSize,
		flushConcurrency: DefaultFlushConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxBatchSize < 0 || o.maxPending < 0 || o.flushConcurrency < 1 {
		return nil, fmt.Errorf("%w: batch size %d, max pending %d, flush concurrency %d",
			ErrInvalidArgument, o.maxBatchSize, o.maxPending, o.flushConcurrency)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var observer observability.Observer = observability.NewSlogObserver(o.logger)
	if o.observer != nil {
		observer = observability.NewMultiObserver(observer, o.observer)
	}

	m := &Manager{
		backend: backend,
		queue:   newWriteQueue(o.maxPending),
		logger:  o.logger,
	}
	m.worker = &indexer{
		queue:       m.queue,
		backend:     backend,
		observer:    observer,
		logger:      o.logger,
		maxBatch:    o.maxBatchSize,
		concurrency: o.flushConcurrency,
	}
	m.worker.start()

	m.logger.Debug("index manager started",
		"max_batch_size", o.maxBatchSize,
		"max_pending", o.maxPending,
		"flush_concurrency", o.flushConcurrency)
	return m, nil
}

// AddToIndex queues triples for indexing and returns without waiting for
// them to be written. It fails with ErrInvalidArgument when a triple has no
// N-Triples form, with ErrShuttingDown once Close has begun and with
// ErrQueueFull when the queue bound would be exceeded; in each case nothing
// is queued.
func (m *Manager) AddToIndex(ts ...rdf.Triple) error {
	return m.enqueue(ts, false)
}

// RemoveFromIndex queues triples for removal. It behaves like AddToIndex.
func (m *Manager) RemoveFromIndex(ts ...rdf.Triple) error {
	return m.enqueue(ts, true)
}

func (m *Manager) enqueue(ts []rdf.Triple, isDelete bool) error {
	if len(ts) == 0 {
		return nil
	}
	for i, t := range ts {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: triple %d: %w", ErrInvalidArgument, i, err)
		}
	}
	m.enqueued.Add(int64(len(ts)))
	if err := m.queue.push(newActions(ts, isDelete)); err != nil {
		m.enqueued.Add(-int64(len(ts)))
		return err
	}
	return nil
}

// TriplesWithSubject returns the triples with subject s
func (m *Manager) TriplesWithSubject(s rdf.Term) (Iterator, error) {
	if err := requireTerms(s); err != nil {
		return nil, err
	}
	return m.backend.Triples(m.backend.ForSubject(s))
}

// TriplesWithPredicate returns the triples with predicate p
func (m *Manager) TriplesWithPredicate(p rdf.Term) (Iterator, error) {
	if err := requireTerms(p); err != nil {
		return nil, err
	}
	return m.backend.Triples(m.backend.ForPredicate(p))
}

// TriplesWithObject returns the triples with object o
func (m *Manager) TriplesWithObject(o rdf.Term) (Iterator, error) {
	if err := requireTerms(o); err != nil {
		return nil, err
	}
	return m.backend.Triples(m.backend.ForObject(o))
}

func (m *Manager) TriplesWithSubjectPredicate(s, p rdf.Term) (Iterator, error) {
	if err := requireTerms(s, p); err != nil {
		return nil, err
	}
	return m.backend.Triples(m.backend.ForSubjectPredicate(s, p))
}

func (m *Manager) TriplesWithPredicateObject(p, o rdf.Term) (Iterator, error) {
	if err := requireTerms(p, o); err != nil {
		return nil, err
	}
	return m.backend.Triples(m.backend.ForPredicateObject(p, o))
}

func (m *Manager) TriplesWithSubjectObject(s, o rdf.Term) (Iterator, error) {
	if err := requireTerms(s, o); err != nil {
		return nil, err
	}
	return m.backend.Triples(m.backend.ForSubjectObject(s, o))
}

// Triples looks up a complete triple; the result holds it at most once
func (m *Manager) Triples(t rdf.Triple) (Iterator, error) {
	if err := requireTerms(t.Subject, t.Predicate, t.Object); err != nil {
		return nil, err
	}
	return m.backend.Triples(m.backend.ForTriple(t))
}

// TriplesMatching dispatches to the lookup for the non-nil components.
// At least one component must be given.
func (m *Manager) TriplesMatching(s, p, o rdf.Term) (Iterator, error) {
	switch {
	case s != nil && p != nil && o != nil:
		return m.Triples(rdf.NewTriple(s, p, o))
	case s != nil && p != nil:
		return m.TriplesWithSubjectPredicate(s, p)
	case p != nil && o != nil:
		return m.TriplesWithPredicateObject(p, o)
	case s != nil && o != nil:
		return m.TriplesWithSubjectObject(s, o)
	case s != nil:
		return m.TriplesWithSubject(s)
	case p != nil:
		return m.TriplesWithPredicate(p)
	case o != nil:
		return m.TriplesWithObject(o)
	default:
		return nil, fmt.Errorf("%w: at least one of subject, predicate and object is required", ErrInvalidArgument)
	}
}

// Drain blocks until every action queued before the call has been applied
// to the backend. Cancelling ctx stops the wait, not the work.
func (m *Manager) Drain(ctx context.Context) error {
	barrier, err := m.queue.pushBarrier()
	if err != nil {
		// closing: everything queued is applied before the worker exits
		barrier = m.worker.done
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting updates, waits for the worker to apply everything
// already queued, and returns once it has exited. Calling Close again
// waits for the same shutdown.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.queue.close()
		m.logger.Debug("index manager closing", "pending", m.queue.len())
	})
	<-m.worker.done

	return nil
}

// Stats returns a snapshot of the manager's counters
func (m *Manager) Stats() Stats {
	return Stats{
		Enqueued:      m.enqueued.Load(),
		Processed:     m.worker.processed.Load(),
		Batches:       m.worker.batches.Load(),
		FailedBatches: m.worker.failedBatches.Load(),
		Pending:       m.queue.len(),
		State:         m.worker.currentState(),
	}
}

func requireTerms(terms ...rdf.Term) error {
	for _, t := range terms {
		if err := rdf.ValidateTerm(t); err != nil {
			return fmt.Errorf("%w: lookup: %w", ErrInvalidArgument, err)
		}
	}
	return nil
}
