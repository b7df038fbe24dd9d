// Package storage provides the document managers that back the indexes: one
// file per document in a data directory, or chunked documents inside BadgerDB.
package storage

import (
	"errors"
	"io"
	"log/slog"
	"sync"
)

var ErrLocked = errors.New("data directory is locked by another process")

// Options configures a document manager
type Options struct {
	// CacheSize is the number of released document handles kept for reuse
	CacheSize int

	// Logger receives storage diagnostics; nil discards them
	Logger *slog.Logger

	// InMemory keeps all data in memory (badger only, for tests and tools)
	InMemory bool

	// SyncWrites fsyncs every badger commit
	SyncWrites bool
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// emptySession is the read session of a document that does not exist yet
type emptySession struct{}

func (emptySession) Read([]byte) (int, error) { return 0, io.EOF }
func (emptySession) Close() error             { return nil }

// onceCloser runs fn on the first Close only
type onceCloser struct {
	once sync.Once
	fn   func() error
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() { c.err = c.fn() })
	return c.err
}
