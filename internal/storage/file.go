package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/aleksaelezovic/trindex/pkg/document"
)

const (
	fileExtension = ".nt"
	lockFileName  = ".lock"
)

// FileManager stores each document as one file in a data directory.
// The directory is locked for the lifetime of the manager so that two
// processes never write the same index files.
type FileManager struct {
	dir    string
	lock   *flock.Flock
	docs   *registry[*fileDocument]
	logger *slog.Logger
}

// NewFileManager opens (creating if needed) a file-backed document manager
func NewFileManager(dir string, opts Options) (*FileManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}

	m := &FileManager{
		dir:    dir,
		lock:   lock,
		logger: opts.logger(),
	}
	m.docs, err = newRegistry(opts.CacheSize, func(name string) (*fileDocument, error) {
		return &fileDocument{
			name: name,
			path: filepath.Join(dir, name+fileExtension),
			mgr:  m,
		}, nil
	})
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	m.logger.Debug("file document manager opened", "dir", dir)
	return m, nil
}

// GetDocument acquires the named document
func (m *FileManager) GetDocument(name string) (document.Document, error) {
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
func (m *FileManager) ReleaseDocument(name string) {
	m.docs.release(name)
}

// InUse returns the number of outstanding acquisitions of name
func (m *FileManager) InUse(name string) int {
	return m.docs.refs(name)
}

// HasDocument reports whether the named document exists
func (m *FileManager) HasDocument(name string) (bool, error) {
	if err := document.ValidateName(name); err != nil {
		return false, err
	}
	return fileExists(filepath.Join(m.dir, name+fileExtension))
}

// DeleteDocument removes the named document
func (m *FileManager) DeleteDocument(name string) error {
	doc, err := m.GetDocument(name)
	if err != nil {
		return err
	}
	defer m.ReleaseDocument(name)

	fd := doc.(*fileDocument)
	fd.mu.Lock()
	defer fd.mu.Unlock()

	if err := os.Remove(fd.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete document %s: %w", name, err)
	}
	return nil
}

// Documents lists all existing documents in name order
func (m *FileManager) Documents() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExtension) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, fileExtension))
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the directory lock
func (m *FileManager) Close() error {
	m.docs.close()
	if err := m.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock data directory: %w", err)
	}
	return nil
}

// fileDocument is one index file.
// mu is held for the whole of a write session and while a reader captures
// the file size, so readers always see whole write sessions.
type fileDocument struct {
	name string
	path string
	mgr  *FileManager
	mu   sync.Mutex
}

func (d *fileDocument) Name() string {
	return d.name
}

func (d *fileDocument) Manager() document.Manager {
	return d.mgr
}

func (d *fileDocument) Exists() (bool, error) {
	return fileExists(d.path)
}

// BeginRead opens the file and limits the session to its current size.
// A rewrite replaces the file by rename, so an open session keeps reading
// the contents it started with.
func (d *fileDocument) BeginRead() (io.ReadCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, err := os.Open(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return emptySession{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open document %s: %w", d.name, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat document %s: %w", d.name, err)
	}

	return &fileReadSession{
		Reader:     io.LimitReader(f, info.Size()),
		onceCloser: onceCloser{fn: f.Close},
	}, nil
}

type fileReadSession struct {
	io.Reader
	onceCloser
}

// BeginWrite locks the document until the session is closed
func (d *fileDocument) BeginWrite(appending bool) (io.WriteCloser, error) {
	d.mu.Lock()

	if appending {
		return &fileAppendSession{doc: d}, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), "."+d.name+".tmp-*")
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to create temp file for %s: %w", d.name, err)
	}
	return &fileReplaceSession{doc: d, tmp: tmp}, nil
}

// fileAppendSession buffers the session and appends it in one write on Close
type fileAppendSession struct {
	doc    *fileDocument
	buf    bytes.Buffer
	closed bool
}

func (s *fileAppendSession) Write(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	return s.buf.Write(p)
}

func (s *fileAppendSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.doc.mu.Unlock()

	if s.buf.Len() == 0 {
		return nil
	}

	f, err := os.OpenFile(s.doc.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open document %s for append: %w", s.doc.name, err)
	}
	if _, err := f.Write(s.buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to document %s: %w", s.doc.name, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync document %s: %w", s.doc.name, err)
	}
	return f.Close()
}

// fileReplaceSession writes a temp file and renames it over the document on Close
type fileReplaceSession struct {
	doc    *fileDocument
	tmp    *os.File
	err    error
	closed bool
}

func (s *fileReplaceSession) Write(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	n, err := s.tmp.Write(p)
	if err != nil && s.err == nil {
		s.err = err
	}
	return n, err
}

func (s *fileReplaceSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.doc.mu.Unlock()

	tmpPath := s.tmp.Name()
	err := s.err
	if err == nil {
		err = s.tmp.Sync()
	}
	if cerr := s.tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpPath, s.doc.path)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace document %s: %w", s.doc.name, err)
	}
	return nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
