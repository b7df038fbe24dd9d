package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/aleksaelezovic/trindex/pkg/document"
)

// Table represents a logical key space inside the badger database
type Table byte

const (
	// Document chunks: name 0x00 seq -> bytes
	TableChunks Table = iota + 1

	// Document metadata: name -> next chunk sequence
	TableDocuments
)

// ChunkSize bounds the value size of a single document chunk
const ChunkSize = 1 << 20

// TablePrefix returns a byte prefix for a table to namespace keys
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey adds a table prefix to a key
func PrefixKey(table Table, key []byte) []byte {
	result := make([]byte, 1+len(key))
	result[0] = byte(table)
	copy(result[1:], key)
	return result
}

func chunkPrefix(name string) []byte {
	key := PrefixKey(TableChunks, []byte(name))
	return append(key, 0)
}

func chunkKey(name string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(chunkPrefix(name), seq)
}

func documentKey(name string) []byte {
	return PrefixKey(TableDocuments, []byte(name))
}

// BadgerManager stores documents as ordered chunks in BadgerDB.
// Appending adds chunks after the last one; replacing deletes the old
// chunks and writes new ones. Read sessions run in a read-only transaction
// and so see a consistent snapshot of the document.
type BadgerManager struct {
	db     *badger.DB
	docs   *registry[*badgerDocument]
	logger *slog.Logger
}

// NewBadgerManager opens a BadgerDB-backed document manager
func NewBadgerManager(path string, opts Options) (*BadgerManager, error) {
	logger := opts.logger()

	bopts := badger.DefaultOptions(path).
		WithLogger(&badgerLogger{logger: logger}).
		WithSyncWrites(opts.SyncWrites)
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	m := &BadgerManager{db: db, logger: logger}
	m.docs, err = newRegistry(opts.CacheSize, func(name string) (*badgerDocument, error) {
		return &badgerDocument{name: name, mgr: m}, nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("badger document manager opened", "path", path, "in_memory", opts.InMemory)
	return m, nil
}

// GetDocument acquires the named document
func (m *BadgerManager) GetDocument(name string) (document.Document, error) {
	if err := document.ValidateName(name); err != nil {
		return nil, err
	}
	doc, err := m.docs.acquire(name)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ReleaseDocument ends one acquisition of the named document
func (m *BadgerManager) ReleaseDocument(name string) {
	m.docs.release(name)
}

// InUse returns the number of outstanding acquisitions of name
func (m *BadgerManager) InUse(name string) int {
	return m.docs.refs(name)
}

// HasDocument reports whether the named document exists
func (m *BadgerManager) HasDocument(name string) (bool, error) {
	if err := document.ValidateName(name); err != nil {
		return false, err
	}
	var exists bool
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(documentKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		exists = err == nil
		return err
	})
	return exists, err
}

// DeleteDocument removes the named document and all of its chunks
func (m *BadgerManager) DeleteDocument(name string) error {
	doc, err := m.GetDocument(name)
	if err != nil {
		return err
	}
	defer m.ReleaseDocument(name)

	bd := doc.(*badgerDocument)
	bd.mu.Lock()
	defer bd.mu.Unlock()

	keys, err := m.chunkKeys(name)
	if err != nil {
		return err
	}
	return m.write(func(w kvWriter) error {
		for _, key := range keys {
			if err := w.Delete(key); err != nil {
				return err
			}
		}
		return w.Delete(documentKey(name))
	})
}

// Documents lists all existing documents in key order
func (m *BadgerManager) Documents() ([]string, error) {
	var names []string
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = TablePrefix(TableDocuments)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, string(it.Item().Key()[1:]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return names, nil
}

// Sync flushes writes to disk
func (m *BadgerManager) Sync() error {
	return m.db.Sync()
}

// Close closes the database
func (m *BadgerManager) Close() error {
	m.docs.close()
	return m.db.Close()
}

// chunkKeys returns the keys of every chunk of a document
func (m *BadgerManager) chunkKeys(name string) ([][]byte, error) {
	var keys [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = chunkPrefix(name)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// nextSequence returns the sequence number of the next chunk of a document
func (m *BadgerManager) nextSequence(name string) (uint64, error) {
	var seq uint64
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(documentKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt metadata for document %s", name)
			}
			seq = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	return seq, err
}

// kvWriter is the write surface shared by badger.Txn and badger.WriteBatch
type kvWriter interface {
	Set(key, value []byte) error
	Delete(key []byte) error
}

// write applies ops in a single transaction, falling back to a write batch
// when the change is too large for one transaction
func (m *BadgerManager) write(ops func(w kvWriter) error) error {
	err := m.db.Update(func(txn *badger.Txn) error {
		return ops(txn)
	})
	if !errors.Is(err, badger.ErrTxnTooBig) {
		return err
	}

	m.logger.Warn("document write too large for one transaction, using write batch")
	wb := m.db.NewWriteBatch()
	defer wb.Cancel()
	if err := ops(wb); err != nil {
		return err
	}
	return wb.Flush()
}

// badgerDocument is a document stored as a run of chunk keys.
// mu serializes write sessions on the document.
type badgerDocument struct {
	name string
	mgr  *BadgerManager
	mu   sync.Mutex
}

func (d *badgerDocument) Name() string {
	return d.name
}

func (d *badgerDocument) Manager() document.Manager {
	return d.mgr
}

func (d *badgerDocument) Exists() (bool, error) {
	return d.mgr.HasDocument(d.name)
}

// BeginRead opens a read-only transaction and streams the chunks in order
func (d *badgerDocument) BeginRead() (io.ReadCloser, error) {
	txn := d.mgr.db.NewTransaction(false)

	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = chunkPrefix(d.name)
	it := txn.NewIterator(opts)
	it.Rewind()

	session := &badgerReadSession{it: it}
	session.onceCloser.fn = func() error {
		it.Close()
		txn.Discard()
		return nil
	}
	return session, nil
}

// badgerReadSession concatenates chunk values into one byte stream
type badgerReadSession struct {
	it  *badger.Iterator
	buf []byte
	onceCloser
}

func (s *badgerReadSession) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		if !s.it.Valid() {
			return 0, io.EOF
		}
		val, err := s.it.Item().ValueCopy(nil)
		if err != nil {
			return 0, fmt.Errorf("failed to read chunk: %w", err)
		}
		s.buf = val
		s.it.Next()
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// BeginWrite locks the document until the session is closed
func (d *badgerDocument) BeginWrite(appending bool) (io.WriteCloser, error) {
	d.mu.Lock()
	return &badgerWriteSession{doc: d, appending: appending}, nil
}

// badgerWriteSession buffers the session and commits it on Close
type badgerWriteSession struct {
	doc       *badgerDocument
	appending bool
	buf       []byte
	closed    bool
}

func (s *badgerWriteSession) Write(p []byte) (int, error) {
	if s.closed {
		return 0, errors.New("write session is closed")
	}
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *badgerWriteSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.doc.mu.Unlock()

	m := s.doc.mgr
	name := s.doc.name

	var stale [][]byte
	var seq uint64
	if s.appending {
		if len(s.buf) == 0 {
			return nil
		}
		next, err := m.nextSequence(name)
		if err != nil {
			return fmt.Errorf("failed to read document %s: %w", name, err)
		}
		seq = next
	} else {
		keys, err := m.chunkKeys(name)
		if err != nil {
			return fmt.Errorf("failed to read document %s: %w", name, err)
		}
		stale = keys
	}

	err := m.write(func(w kvWriter) error {
		for _, key := range stale {
			if err := w.Delete(key); err != nil {
				return err
			}
		}
		next := seq
		for rest := s.buf; len(rest) > 0; next++ {
			n := min(len(rest), ChunkSize)
			if err := w.Set(chunkKey(name, next), rest[:n]); err != nil {
				return err
			}
			rest = rest[n:]
		}
		return w.Set(documentKey(name), binary.BigEndian.AppendUint64(nil, next))
	})
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", name, err)
	}
	return nil
}

// badgerLogger routes badger's own logging into slog
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log(slog.LevelError, format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log(slog.LevelWarn, format, args...)
}

// Infof logs at debug level
func (l *badgerLogger) Infof(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *badgerLogger) log(level slog.Level, format string, args ...any) {
	if !l.logger.Enabled(context.Background(), level) {
		return
	}
	l.logger.Log(context.Background(), level, fmt.Sprintf(format, args...), "component", "badger")
}
