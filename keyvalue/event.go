// Package keyvalue adapts decoded change events to key/value store writes.
//
// Each ChangeEvent becomes an Event naming the target dataset, the row key and
// the encoded value. Dataset naming, key computation and value encoding are
// separate strategies chosen when the Adapter is built.
package keyvalue

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

// ErrUnknownDataset is returned when an event has to be keyed by primary key
// column indices and the resolver has none for its table.
var ErrUnknownDataset = errors.New("unknown dataset")

// DefaultDelimiter joins schema and table into a dataset name and key values into a key.
const DefaultDelimiter = "_"

// Event is one write against a key/value store. Deletes carry an empty Value.
type Event struct {
	Kind    wal2json.Kind `json:"kind"`
	Schema  string        `json:"schema"`
	Table   string        `json:"table"`
	Dataset string        `json:"dataset"`
	Key     string        `json:"key"`
	Value   any           `json:"value"`

	// Xid and Timestamp are copied from the enclosing transaction by HandleChange.
	Xid       uint32 `json:"xid,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// IsDelete reports whether the sink should remove Key from Dataset.
func (e *Event) IsDelete() bool {
	return e.Kind == wal2json.Delete
}

// ValueBytes returns the encoded value as bytes for sinks that store raw payloads.
func (e *Event) ValueBytes() []byte {
	switch v := e.Value.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(fmt.Sprint(v))
	}
}

// EventError ties an adapter failure to the change event that caused it.
type EventError struct {
	Kind   wal2json.Kind
	Schema string
	Table  string
	Err    error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("%s on %s.%s: %v", e.Kind, e.Schema, e.Table, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }
