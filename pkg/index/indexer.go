package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aleksaelezovic/trindex/pkg/observability"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// State is the lifecycle state of the background indexer
type State int32

const (
	StateIdle     State = iota // queue empty, waiting for work
	StateDraining              // applying queued actions
	StateStopping              // close requested, applying what is left
	StateStopped               // worker exited
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	EventBatchFlushed observability.EventType = "index.batch.flushed"
	EventFlushFailed  observability.EventType = "index.flush.failed"
)

// batch collects contiguous actions of one kind, grouped by index name
type batch struct {
	op      Op
	actions int
	groups  map[string][]rdf.Triple
	order   []string
}

func newBatch() *batch {
	return &batch{groups: make(map[string][]rdf.Triple)}
}

func (b *batch) add(a Action, names []string) {
	if b.actions == 0 {
		b.op = a.Op()
	}
	b.actions++
	for _, name := range names {
		if _, ok := b.groups[name]; !ok {
			b.order = append(b.order, name)
		}
		b.groups[name] = append(b.groups[name], a.Triple)
	}
}

func (b *batch) reset() {
	b.actions = 0
	clear(b.groups)
	b.order = b.order[:0]
}

// indexer is the single worker that applies queued actions to the backend
type indexer struct {
	queue       *writeQueue
	backend     Backend
	observer    observability.Observer
	logger      *slog.Logger
	maxBatch    int
	concurrency int

	state         atomic.Int32
	processed     atomic.Int64
	batches       atomic.Int64
	failedBatches atomic.Int64

	done chan struct{}
}

func (w *indexer) start() {
	w.done = make(chan struct{})
	go w.run()
}

func (w *indexer) run() {
	defer close(w.done)
	defer w.setState(StateStopped)

	b := newBatch()
	for {
		w.drain(b)
		if w.queue.finished() {
			w.logger.Debug("indexer stopped", "processed", w.processed.Load())
			return
		}
		if !w.queue.isClosed() {
			w.setState(StateIdle)
		}
		<-w.queue.notify
	}
}

// drain applies everything currently queued. A batch is flushed whenever
// the action kind changes, a barrier is reached, the batch is full, or
// the queue runs empty.
func (w *indexer) drain(b *batch) {
	for {
		item, ok := w.queue.pop()
		if !ok {
			break
		}
		if w.queue.isClosed() {
			w.setState(StateStopping)
		} else {
			w.setState(StateDraining)
		}

		if item.barrier != nil {
			w.flush(b)
			close(item.barrier)
			continue
		}

		if b.actions > 0 && item.action.Op() != b.op {
			w.flush(b)
		}
		b.add(item.action, w.backend.IndexNames(item.action.Triple))
		if w.maxBatch > 0 && b.actions >= w.maxBatch {
			w.flush(b)
		}
	}
	w.flush(b)
}

// flush applies a batch to every index it touches. Indexes are updated
// concurrently; all of them are attempted even when some fail.
func (w *indexer) flush(b *batch) {
	if b.actions == 0 {
		return
	}
	defer b.reset()

	ctx := context.Background()
	start := time.Now()

	var (
		mu     sync.Mutex
		failed []string
		errs   []error
	)

	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for _, name := range b.order {
		ts := b.groups[name]
		g.Go(func() error {
			var err error
			if b.op == OpRemove {
				err = w.backend.RemoveFromIndex(ctx, ts, name)
			} else {
				err = w.backend.AddToIndex(ctx, ts, name)
			}
			if err != nil {
				mu.Lock()
				failed = append(failed, name)
				errs = append(errs, fmt.Errorf("index %s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	w.processed.Add(int64(b.actions))
	w.batches.Add(1)

	if len(failed) > 0 {
		w.failedBatches.Add(1)
		slices.Sort(failed)
		ferr := &FlushError{
			Indexes: failed,
			Op:      b.op,
			Count:   b.actions,
			Err:     errors.Join(errs...),
		}
		w.observer.OnEvent(ctx, observability.NewEvent(EventFlushFailed, observability.LevelError, "index", map[string]any{
			observability.AttrOp:      b.op.String(),
			observability.AttrIndexes: failed,
			observability.AttrTriples: b.actions,
			observability.AttrError:   ferr,
		}))
		return
	}

	w.observer.OnEvent(ctx, observability.NewEvent(EventBatchFlushed, observability.LevelVerbose, "index", map[string]any{
		observability.AttrOp:       b.op.String(),
		observability.AttrIndexes:  len(b.order),
		observability.AttrTriples:  b.actions,
		observability.AttrDuration: time.Since(start),
	}))
}

func (w *indexer) setState(s State) {
	w.state.Store(int32(s))
}

func (w *indexer) currentState() State {
	return State(w.state.Load())
}
