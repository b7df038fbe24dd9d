package observability

import (
	"log/slog"
	"maps"
	"slices"
	"time"
)

// Attribute keys used in index events
const (
	AttrIndex    = "index"
	AttrIndexes  = "indexes"
	AttrOp       = "op"
	AttrTriples  = "triples"
	AttrReader   = "reader"
	AttrError    = "error"
	AttrDuration = "duration"
)

// NewEvent stamps an event with the current time
func NewEvent(typ EventType, level Level, source string, data map[string]any) Event {
	return Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}
}

// Err returns the error attached under AttrError, or nil
func (e Event) Err() error {
	err, _ := e.Data[AttrError].(error)
	return err
}

// Index returns the index name attached under AttrIndex
func (e Event) Index() string {
	name, _ := e.Data[AttrIndex].(string)
	return name
}

// Attrs returns the event data as slog attributes in key order.
// Errors are rendered as their message.
func (e Event) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(e.Data)+1)
	if e.Source != "" {
		attrs = append(attrs, slog.String("source", e.Source))
	}
	for _, k := range slices.Sorted(maps.Keys(e.Data)) {
		switch v := e.Data[k].(type) {
		case error:
			attrs = append(attrs, slog.String(k, v.Error()))
		case time.Duration:
			attrs = append(attrs, slog.Duration(k, v))
		default:
			attrs = append(attrs, slog.Any(k, v))
		}
	}
	return attrs
}
