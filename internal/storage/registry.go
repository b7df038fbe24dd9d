package storage

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aleksaelezovic/trindex/pkg/document"
)

// DefaultCacheSize is the number of released documents kept for reuse
const DefaultCacheSize = 256

// registry tracks document handles by name.
// Acquired handles stay pinned until their last release, then move to a
// bounded LRU so hot documents are not rebuilt on every lookup. Handles
// carry the per-document write lock, so a name never maps to two live
// handles at once.
type registry[D any] struct {
	mu     sync.Mutex
	active map[string]*handle[D]
	idle   *lru.Cache[string, D]
	open   func(name string) (D, error)
	closed bool
}

type handle[D any] struct {
	doc  D
	refs int
}

func newRegistry[D any](size int, open func(name string) (D, error)) (*registry[D], error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	idle, err := lru.New[string, D](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create document cache: %w", err)
	}
	return &registry[D]{
		active: make(map[string]*handle[D]),
		idle:   idle,
		open:   open,
	}, nil
}

// acquire pins the named handle, creating it if needed
func (r *registry[D]) acquire(name string) (D, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero D
	if r.closed {
		return zero, document.ErrClosed
	}

	if h, ok := r.active[name]; ok {
		h.refs++
		return h.doc, nil
	}

	doc, ok := r.idle.Get(name)
	if ok {
		r.idle.Remove(name)
	} else {
		var err error
		if doc, err = r.open(name); err != nil {
			return zero, err
		}
	}

	r.active[name] = &handle[D]{doc: doc, refs: 1}
	return doc, nil
}

// release unpins one acquisition. Releasing an unknown name is a no-op.
func (r *registry[D]) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.active[name]
	if !ok {
		return
	}
	h.refs--
	if h.refs > 0 {
		return
	}
	delete(r.active, name)
	if !r.closed {
		r.idle.Add(name, h.doc)
	}
}

// refs returns the number of outstanding acquisitions of name
func (r *registry[D]) refs(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.active[name]; ok {
		return h.refs
	}
	return 0
}

func (r *registry[D]) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.idle.Purge()
}
