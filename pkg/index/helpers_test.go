package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trindex/pkg/document"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

func iri(local string) *rdf.NamedNode {
	return rdf.NewNamedNode("http://example.org/" + local)
}

func triple(s, p, o string) rdf.Triple {
	return rdf.NewTriple(iri(s), iri(p), iri(o))
}

func mustDeriver(t *testing.T, patterns ...Pattern) *HashKeyDeriver {
	t.Helper()
	d, err := NewHashKeyDeriver(patterns...)
	require.NoError(t, err)
	return d
}

func drain(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Drain(ctx))
}

func collect(t *testing.T, it Iterator, err error) []string {
	t.Helper()
	require.NoError(t, err)
	ts, err := Collect(it)
	require.NoError(t, err)
	out := make([]string, len(ts))
	for i, tr := range ts {
		out[i] = tr.String()
	}
	slices.Sort(out)
	return out
}

func strs(ts ...rdf.Triple) []string {
	out := make([]string, len(ts))
	for i, tr := range ts {
		out[i] = tr.String()
	}
	slices.Sort(out)
	return out
}

// singleIndex puts every triple into one index, or none when the
// predicate is filtered
type singleIndex struct {
	HashKeyDeriver
	filtered string
}

func (d *singleIndex) IndexNames(t rdf.Triple) []string {
	if d.filtered != "" && t.Predicate.Equals(iri(d.filtered)) {
		return nil
	}
	return []string{"all"}
}

type call struct {
	op    Op
	name  string
	count int
}

// memoryBackend keeps indexes as in-memory sets and records every call.
// When gate is set the first write blocks until the gate is closed, after
// signalling entered.
type memoryBackend struct {
	KeyDeriver

	mu      sync.Mutex
	indexes map[string][]rdf.Triple
	calls   []call
	lookups []string
	fail    map[string]error

	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newMemoryBackend(keys KeyDeriver) *memoryBackend {
	return &memoryBackend{
		KeyDeriver: keys,
		indexes:    make(map[string][]rdf.Triple),
		fail:       make(map[string]error),
	}
}

func (b *memoryBackend) withGate() *memoryBackend {
	b.gate = make(chan struct{})
	b.entered = make(chan struct{})
	return b
}

func (b *memoryBackend) wait() {
	if b.gate == nil {
		return
	}
	b.once.Do(func() {
		close(b.entered)
		<-b.gate
	})
}

func (b *memoryBackend) AddToIndex(ctx context.Context, ts []rdf.Triple, name string) error {
	b.wait()
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, call{op: OpAdd, name: name, count: len(ts)})
	if err := b.fail[name]; err != nil {
		return err
	}
	for _, t := range ts {
		if !slices.ContainsFunc(b.indexes[name], t.Equals) {
			b.indexes[name] = append(b.indexes[name], t)
		}
	}
	return nil
}

func (b *memoryBackend) RemoveFromIndex(ctx context.Context, ts []rdf.Triple, name string) error {
	b.wait()
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, call{op: OpRemove, name: name, count: len(ts)})
	if err := b.fail[name]; err != nil {
		return err
	}
	b.indexes[name] = slices.DeleteFunc(b.indexes[name], func(existing rdf.Triple) bool {
		return slices.ContainsFunc(ts, existing.Equals)
	})
	return nil
}

func (b *memoryBackend) Triples(name string) (Iterator, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookups = append(b.lookups, name)
	return &sliceIterator{ts: slices.Clone(b.indexes[name])}, nil
}

func (b *memoryBackend) recordedCalls() []call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

func (b *memoryBackend) size(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.indexes[name])
}

type sliceIterator struct {
	ts  []rdf.Triple
	pos int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.ts) {
		it.pos = len(it.ts) + 1
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Triple() (rdf.Triple, error) {
	if it.pos == 0 || it.pos > len(it.ts) {
		return rdf.Triple{}, ErrInvalidState
	}
	return it.ts[it.pos-1], nil
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Reset() error { return errors.ErrUnsupported }
func (it *sliceIterator) Close() error { return nil }

// fakeDocument serves fixed content and counts session ends
type fakeDocument struct {
	name     string
	content  string
	readErr  error
	mgr      *fakeDocManager
	begins   int
	sessions int // raw Close calls on read sessions
}

func (d *fakeDocument) Name() string              { return d.name }
func (d *fakeDocument) Exists() (bool, error)     { return d.content != "", nil }
func (d *fakeDocument) Manager() document.Manager { return d.mgr }
func (d *fakeDocument) BeginWrite(bool) (io.WriteCloser, error) {
	return nil, errors.ErrUnsupported
}

func (d *fakeDocument) BeginRead() (io.ReadCloser, error) {
	if d.readErr != nil {
		return nil, d.readErr
	}
	d.begins++
	return &countingSession{Reader: strings.NewReader(d.content), doc: d}, nil
}

type countingSession struct {
	io.Reader
	doc *fakeDocument
}

func (s *countingSession) Close() error {
	s.doc.sessions++
	return nil
}

type fakeDocManager struct {
	releases map[string]int
}

func newFakeDocument(name, content string) *fakeDocument {
	return &fakeDocument{
		name:    name,
		content: content,
		mgr:     &fakeDocManager{releases: make(map[string]int)},
	}
}

func (m *fakeDocManager) GetDocument(name string) (document.Document, error) {
	return nil, fmt.Errorf("not supported: %s", name)
}
func (m *fakeDocManager) ReleaseDocument(name string)      { m.releases[name]++ }
func (m *fakeDocManager) HasDocument(string) (bool, error) { return false, nil }
func (m *fakeDocManager) DeleteDocument(string) error      { return nil }
func (m *fakeDocManager) Documents() ([]string, error)     { return nil, nil }
func (m *fakeDocManager) Close() error                     { return nil }
