package index

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrShuttingDown    = errors.New("index manager is shutting down")
	ErrQueueFull       = errors.New("index queue is full")
)

// FlushError reports the indexes of one batch that the backend failed to
// update. The batch is not retried.
type FlushError struct {
	Indexes []string
	Op      Op
	Count   int // triples in the batch
	Err     error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("failed to %s %d triple(s) on index(es) %s: %v",
		e.Op, e.Count, strings.Join(e.Indexes, ", "), e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}
