// Package document defines the named storage segments that back the indexes.
//
// A Document is a byte stream with scoped read and write sessions. A Manager
// hands out documents by name and tracks which of them are in use: every
// GetDocument must be paired with a ReleaseDocument once the caller is done.
package document

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrInvalidName = errors.New("invalid document name")
	ErrClosed      = errors.New("document manager is closed")
)

// Document is a named, append-capable byte stream
type Document interface {
	// Name returns the document name
	Name() string

	// Exists reports whether anything has been written to the document
	Exists() (bool, error)

	// BeginRead opens a read session. Closing the returned stream ends the
	// session; closing it more than once is a no-op.
	// A document that does not exist reads as an empty stream.
	BeginRead() (io.ReadCloser, error)

	// BeginWrite opens a write session that either appends to the document or
	// replaces its contents. Nothing is visible to readers until Close returns.
	BeginWrite(appending bool) (io.WriteCloser, error)

	// Manager returns the manager that handed out this document
	Manager() Manager
}

// Manager hands out reference-counted documents
type Manager interface {
	// GetDocument acquires the named document
	GetDocument(name string) (Document, error)

	// ReleaseDocument ends one acquisition of the named document
	ReleaseDocument(name string)

	// HasDocument reports whether the named document exists
	HasDocument(name string) (bool, error)

	// DeleteDocument removes the named document and its contents
	DeleteDocument(name string) error

	// Documents lists the names of all existing documents
	Documents() ([]string, error)

	// Close releases the manager's resources
	Close() error
}

// ValidateName checks that name can be used as a document name on any backend
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "/\\\x00") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
