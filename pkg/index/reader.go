package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/google/uuid"

	"github.com/aleksaelezovic/trindex/pkg/document"
	"github.com/aleksaelezovic/trindex/pkg/observability"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// Iterator is a forward-only, single-pass sequence of triples.
// Callers must Close it; Close after exhaustion is still required to
// release the backing document.
type Iterator interface {
	Next() bool
	Triple() (rdf.Triple, error)
	Err() error
	Reset() error
	Close() error
}

const (
	EventReaderOpened observability.EventType = "index.reader.opened"
	EventReaderClosed observability.EventType = "index.reader.closed"
)

type readerState int

const (
	readerPending readerState = iota
	readerOpen
	readerDone
	readerClosed
)

// Reader streams the triples of one index document. The read session is
// opened by the first Next and ended as soon as the stream is exhausted
// or the reader is closed, whichever comes first.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	doc      document.Document
	observer observability.Observer
	id       uuid.UUID

	state   readerState
	session io.ReadCloser
	dec     *rdf.Decoder
	current rdf.Triple
	valid   bool
	count   int
	err     error
}

var _ Iterator = (*Reader)(nil)

// NewReader creates a reader over doc. The reader releases doc to its
// manager on Close, so doc must have been acquired with GetDocument.
func NewReader(doc document.Document, observer observability.Observer) *Reader {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Reader{
		doc:      doc,
		observer: observer,
		id:       uuid.New(),
	}
}

// Next advances to the next triple. It returns false at the end of the
// stream, on error (see Err) and after Close.
func (r *Reader) Next() bool {
	r.valid = false

	if r.state == readerPending {
		if err := r.open(); err != nil {
			r.err = err
			r.state = readerDone
			return false
		}
	}
	if r.state != readerOpen {
		return false
	}

	if r.dec.EOF() {
		r.finish()
		return false
	}
	t, err := r.dec.Next()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			r.err = fmt.Errorf("read index %s: %w", r.doc.Name(), err)
		}
		r.finish()
		return false
	}

	r.current = t
	r.valid = true
	r.count++
	return true
}

// Triple returns the current triple
func (r *Reader) Triple() (rdf.Triple, error) {
	if !r.valid {
		return rdf.Triple{}, fmt.Errorf("%w: reader has no current triple", ErrInvalidState)
	}
	return r.current, nil
}

// Err returns the error that stopped iteration, if any
func (r *Reader) Err() error {
	return r.err
}

// Reset always fails; open a new reader to read the index again
func (r *Reader) Reset() error {
	return fmt.Errorf("index reader cannot restart: %w", errors.ErrUnsupported)
}

// Close ends the read session if it is still open and releases the
// document. Calling Close more than once is a no-op.
func (r *Reader) Close() error {
	if r.state == readerClosed {
		return nil
	}
	r.state = readerClosed
	r.valid = false

	err := r.endSession()
	r.doc.Manager().ReleaseDocument(r.doc.Name())

	r.emit(EventReaderClosed, observability.LevelVerbose, map[string]any{
		observability.AttrTriples: r.count,
	})
	return err
}

// All returns the remaining triples as a range-over-func sequence.
// The reader is closed when the loop ends. A read error is yielded once
// as the final element.
func (r *Reader) All() iter.Seq2[rdf.Triple, error] {
	return func(yield func(rdf.Triple, error) bool) {
		defer r.Close()
		for r.Next() {
			if !yield(r.current, nil) {
				return
			}
		}
		if err := r.Err(); err != nil {
			yield(rdf.Triple{}, err)
		}
	}
}

func (r *Reader) open() error {
	session, err := r.doc.BeginRead()
	if err != nil {
		return fmt.Errorf("open index %s: %w", r.doc.Name(), err)
	}
	r.session = session
	r.dec = rdf.NewDecoder(session)
	r.state = readerOpen

	r.emit(EventReaderOpened, observability.LevelVerbose, nil)
	return nil
}

// finish ends the session at the end of the stream
func (r *Reader) finish() {
	r.state = readerDone
	if err := r.endSession(); err != nil && r.err == nil {
		r.err = err
	}
}

// endSession closes the read session at most once
func (r *Reader) endSession() error {
	if r.session == nil {
		return nil
	}
	session := r.session
	r.session = nil
	r.dec = nil
	if err := session.Close(); err != nil {
		return fmt.Errorf("end read of index %s: %w", r.doc.Name(), err)
	}
	return nil
}

func (r *Reader) emit(typ observability.EventType, level observability.Level, data map[string]any) {
	if data == nil {
		data = make(map[string]any, 2)
	}
	data[observability.AttrReader] = r.id.String()
	data[observability.AttrIndex] = r.doc.Name()
	r.observer.OnEvent(context.Background(), observability.NewEvent(typ, level, "index.reader", data))
}

// Collect reads every remaining triple from it and closes it
func Collect(it Iterator) ([]rdf.Triple, error) {
	defer it.Close()

	var out []rdf.Triple
	for it.Next() {
		t, err := it.Triple()
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	if err := it.Err(); err != nil {
		return out, err
	}
	return out, it.Close()
}
