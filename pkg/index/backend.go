package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aleksaelezovic/trindex/pkg/document"
	"github.com/aleksaelezovic/trindex/pkg/observability"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// Backend is the physical side of the index: it names indexes and applies
// batches to them. The Manager calls AddToIndex and RemoveFromIndex from
// its worker only, possibly concurrently for different names, while
// Triples may be called from any goroutine.
type Backend interface {
	KeyDeriver

	AddToIndex(ctx context.Context, ts []rdf.Triple, name string) error
	RemoveFromIndex(ctx context.Context, ts []rdf.Triple, name string) error
	Triples(name string) (Iterator, error)
}

// DefaultKeyCacheSize is the number of indexes whose triple keys a
// DocumentBackend keeps in memory
const DefaultKeyCacheSize = 64

// DocumentBackend keeps each index as one N-Triples document of a
// document.Manager. An index holds each triple at most once.
//
// To skip duplicates, AddToIndex needs the keys already in the index.
// Those of recently written indexes are cached, so repeated batches into
// a hot index do not decode its document again. The cache assumes the
// backend is the only writer of its documents.
type DocumentBackend struct {
	KeyDeriver

	docs         document.Manager
	observer     observability.Observer
	logger       *slog.Logger
	keyCacheSize int
	keyCache     *lru.Cache[string, map[string]struct{}]
}

var _ Backend = (*DocumentBackend)(nil)

// BackendOption configures a DocumentBackend
type BackendOption func(*DocumentBackend)

// WithReaderObserver sets the observer that receives reader events
func WithReaderObserver(o observability.Observer) BackendOption {
	return func(b *DocumentBackend) {
		if o != nil {
			b.observer = o
		}
	}
}

// WithBackendLogger sets the backend logger
func WithBackendLogger(l *slog.Logger) BackendOption {
	return func(b *DocumentBackend) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithKeyCacheSize sets how many indexes keep their keys cached; 0 disables the cache
func WithKeyCacheSize(n int) BackendOption {
	return func(b *DocumentBackend) {
		b.keyCacheSize = n
	}
}

func NewDocumentBackend(docs document.Manager, keys KeyDeriver, opts ...BackendOption) (*DocumentBackend, error) {
	if docs == nil || keys == nil {
		return nil, fmt.Errorf("%w: document manager and key deriver are required", ErrInvalidArgument)
	}
	b := &DocumentBackend{
		KeyDeriver: keys,
		docs:       docs,
		observer:   observability.NoOpObserver{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	b.keyCacheSize = DefaultKeyCacheSize
	for _, opt := range opts {
		opt(b)
	}
	if b.keyCacheSize < 0 {
		return nil, fmt.Errorf("%w: key cache size %d", ErrInvalidArgument, b.keyCacheSize)
	}
	if b.keyCacheSize > 0 {
		cache, err := lru.New[string, map[string]struct{}](b.keyCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create key cache: %w", err)
		}
		b.keyCache = cache
	}
	return b, nil
}

// AddToIndex appends the triples not yet in the index
func (b *DocumentBackend) AddToIndex(ctx context.Context, ts []rdf.Triple, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := b.docs.GetDocument(name)
	if err != nil {
		return err
	}
	defer b.docs.ReleaseDocument(name)

	present, err := b.indexKeys(name, doc)
	if err != nil {
		return err
	}

	w, err := doc.BeginWrite(true)
	if err != nil {
		return fmt.Errorf("begin write of index %s: %w", name, err)
	}
	enc := rdf.NewEncoder(w)

	added := 0
	for _, t := range ts {
		key := t.String()
		if _, ok := present[key]; ok {
			continue
		}
		present[key] = struct{}{}
		if err := enc.Encode(t); err != nil {
			_ = w.Close()
			b.forgetKeys(name)
			return fmt.Errorf("encode triple for index %s: %w", name, err)
		}
		added++
	}

	if err := errors.Join(enc.Flush(), w.Close()); err != nil {
		b.forgetKeys(name)
		return fmt.Errorf("write index %s: %w", name, err)
	}

	b.logger.Debug("index updated", "index", name, "op", OpAdd, "requested", len(ts), "written", added)
	return nil
}

// RemoveFromIndex rewrites the index without the given triples. An index
// left empty is deleted.
func (b *DocumentBackend) RemoveFromIndex(ctx context.Context, ts []rdf.Triple, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := b.docs.GetDocument(name)
	if err != nil {
		return err
	}
	defer b.docs.ReleaseDocument(name)

	// rebuilt below once the rewrite has succeeded
	b.forgetKeys(name)

	removed := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		removed[t.String()] = struct{}{}
	}

	current, err := readTriples(doc)
	if err != nil {
		return err
	}
	kept := current[:0]
	for _, t := range current {
		if _, ok := removed[t.String()]; !ok {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(current) {
		b.rememberKeys(name, kept)
		return nil
	}

	if len(kept) == 0 {
		if err := b.docs.DeleteDocument(name); err != nil {
			return fmt.Errorf("delete index %s: %w", name, err)
		}
		b.rememberKeys(name, nil)
		b.logger.Debug("index emptied", "index", name)
		return nil
	}

	w, err := doc.BeginWrite(false)
	if err != nil {
		return fmt.Errorf("begin write of index %s: %w", name, err)
	}
	enc := rdf.NewEncoder(w)
	for _, t := range kept {
		if err := enc.Encode(t); err != nil {
			_ = w.Close()
			return fmt.Errorf("encode triple for index %s: %w", name, err)
		}
	}
	if err := errors.Join(enc.Flush(), w.Close()); err != nil {
		return fmt.Errorf("write index %s: %w", name, err)
	}

	b.rememberKeys(name, kept)
	b.logger.Debug("index updated", "index", name, "op", OpRemove, "removed", len(current)-len(kept))
	return nil
}

// Triples opens a reader over the named index. A missing index reads as empty.
func (b *DocumentBackend) Triples(name string) (Iterator, error) {
	doc, err := b.docs.GetDocument(name)
	if err != nil {
		return nil, err
	}
	return NewReader(doc, b.observer), nil
}

// Indexes lists the names of all non-empty indexes
func (b *DocumentBackend) Indexes() ([]string, error) {
	return b.docs.Documents()
}

// indexKeys returns the keys of the triples in the index, from the cache
// when possible. The returned set may be the cached one: callers that fail
// after changing it must call forgetKeys.
func (b *DocumentBackend) indexKeys(name string, doc document.Document) (map[string]struct{}, error) {
	if b.keyCache != nil {
		if keys, ok := b.keyCache.Get(name); ok {
			return keys, nil
		}
	}
	keys, err := readKeys(doc)
	if err != nil {
		return nil, err
	}
	if b.keyCache != nil {
		b.keyCache.Add(name, keys)
	}
	return keys, nil
}

func (b *DocumentBackend) rememberKeys(name string, ts []rdf.Triple) {
	if b.keyCache == nil {
		return
	}
	keys := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		keys[t.String()] = struct{}{}
	}
	b.keyCache.Add(name, keys)
}

func (b *DocumentBackend) forgetKeys(name string) {
	if b.keyCache != nil {
		b.keyCache.Remove(name)
	}
}

func readTriples(doc document.Document) ([]rdf.Triple, error) {
	r, err := doc.BeginRead()
	if err != nil {
		return nil, fmt.Errorf("begin read of index %s: %w", doc.Name(), err)
	}
	defer r.Close()

	var out []rdf.Triple
	dec := rdf.NewDecoder(r)
	for {
		t, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read index %s: %w", doc.Name(), err)
		}
		out = append(out, t)
	}
}

func readKeys(doc document.Document) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	r, err := doc.BeginRead()
	if err != nil {
		return nil, fmt.Errorf("begin read of index %s: %w", doc.Name(), err)
	}
	defer r.Close()

	dec := rdf.NewDecoder(r)
	for {
		t, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read index %s: %w", doc.Name(), err)
		}
		keys[t.String()] = struct{}{}
	}
}
