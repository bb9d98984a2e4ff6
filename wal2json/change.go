// Package wal2json holds the transaction-scoped change model emitted by the
// log line decoder. Its JSON form follows the wal2json output plugin schema.
package wal2json

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

type Kind string

const (
	Insert Kind = "insert"
	Update Kind = "update"
	Delete Kind = "delete"
)

func (k Kind) Valid() bool {
	switch k {
	case Insert, Update, Delete:
		return true
	}
	return false
}

// Change is one decoded transaction.
type Change struct {
	Xid       uint32         `json:"xid"`
	NextLSN   string         `json:"nextlsn,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Events    []*ChangeEvent `json:"change"`
}

// CommitTime parses Timestamp. It returns the zero time when no timestamp was recorded.
func (c *Change) CommitTime() (time.Time, error) {
	if c.Timestamp == "" {
		return time.Time{}, nil
	}
	return ParseCommitTime(c.Timestamp)
}

// OldKeys holds the identifying columns of a row as they were before an update or delete.
type OldKeys struct {
	KeyNames  []string `json:"keynames"`
	KeyTypes  []string `json:"keytypes"`
	KeyValues []any    `json:"keyvalues"`
}

func (o *OldKeys) append(name, typ string, value any) {
	o.KeyNames = append(o.KeyNames, name)
	o.KeyTypes = append(o.KeyTypes, typ)
	o.KeyValues = append(o.KeyValues, value)
}

// ChangeEvent is a single DML operation. Inserts carry only columns, deletes
// only OldKeys, updates both.
type ChangeEvent struct {
	Kind         Kind     `json:"kind"`
	Schema       string   `json:"schema"`
	Table        string   `json:"table"`
	ColumnNames  []string `json:"columnnames,omitempty"`
	ColumnTypes  []string `json:"columntypes,omitempty"`
	ColumnValues []any    `json:"columnvalues,omitempty"`
	OldKeys      *OldKeys `json:"oldkeys,omitempty"`
}

// MarshalJSON encodes the event in the wal2json schema.
func (e ChangeEvent) MarshalJSON() ([]byte, error) {
	type plain ChangeEvent
	p := plain(e)
	p.ColumnValues = jsonValues(e.ColumnValues)
	if e.OldKeys != nil {
		keys := *e.OldKeys
		keys.KeyValues = jsonValues(keys.KeyValues)
		p.OldKeys = &keys
	}
	return marshalValue(p)
}

// AppendColumn adds a column triple to the new tuple.
func (e *ChangeEvent) AppendColumn(name, typ string, value any) {
	e.ColumnNames = append(e.ColumnNames, name)
	e.ColumnTypes = append(e.ColumnTypes, typ)
	e.ColumnValues = append(e.ColumnValues, value)
}

// AppendOldKey adds a column triple to the old key record, creating it on first use.
func (e *ChangeEvent) AppendOldKey(name, typ string, value any) {
	if e.OldKeys == nil {
		e.OldKeys = &OldKeys{}
	}
	e.OldKeys.append(name, typ, value)
}

// Validate checks the per-kind shape of the event and the alignment of its triples.
func (e *ChangeEvent) Validate() error {
	if !e.Kind.Valid() {
		return errors.Newf("unknown change kind %q", e.Kind)
	}
	if len(e.ColumnNames) != len(e.ColumnTypes) || len(e.ColumnNames) != len(e.ColumnValues) {
		return errors.Newf("%s.%s: misaligned columns: %d names, %d types, %d values",
			e.Schema, e.Table, len(e.ColumnNames), len(e.ColumnTypes), len(e.ColumnValues))
	}
	if o := e.OldKeys; o != nil {
		if len(o.KeyNames) != len(o.KeyTypes) || len(o.KeyNames) != len(o.KeyValues) {
			return errors.Newf("%s.%s: misaligned old keys: %d names, %d types, %d values",
				e.Schema, e.Table, len(o.KeyNames), len(o.KeyTypes), len(o.KeyValues))
		}
	}
	switch e.Kind {
	case Insert:
		if e.OldKeys != nil {
			return errors.Newf("%s.%s: insert with old keys", e.Schema, e.Table)
		}
	case Delete:
		if len(e.ColumnNames) > 0 {
			return errors.Newf("%s.%s: delete with column values", e.Schema, e.Table)
		}
	}
	return nil
}

// Field is one column of a Row.
type Field struct {
	Name  string
	Value any
}

// Row is the new tuple of an insert or update as ordered name/value pairs.
type Row []Field

// Row returns the columns of an insert or update event in column order.
func (e *ChangeEvent) Row() (Row, error) {
	if e.Kind != Insert && e.Kind != Update {
		return nil, errors.Newf("%s events carry no row values", e.Kind)
	}
	row := make(Row, len(e.ColumnNames))
	for i, name := range e.ColumnNames {
		row[i] = Field{Name: name, Value: e.ColumnValues[i]}
	}
	return row, nil
}

// Map returns the row as a map. Column order is lost.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, f := range r {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON encodes the row as a flat object with fields in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := marshalValue(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := marshalValue(jsonValue(f.Value))
		if err != nil {
			return nil, errors.Wrapf(err, "encode column %s", f.Name)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalValue is json.Marshal without HTML escaping, so text columns keep
// their bytes as stored.
func marshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// jsonValue replaces a non-finite float by its PostgreSQL text form, which the
// column type coerces back on decode.
func jsonValue(v any) any {
	var f float64
	switch t := v.(type) {
	case float32:
		f = float64(t)
	case float64:
		f = t
	default:
		return v
	}
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return v
}

func jsonValues(values []any) []any {
	if values == nil {
		return nil
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = jsonValue(v)
	}
	return out
}
