package wal2json

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/web3tea/pgcdc-sentinel/sqltype"
)

type rawOldKeys struct {
	KeyNames  []string          `json:"keynames"`
	KeyTypes  []string          `json:"keytypes"`
	KeyValues []json.RawMessage `json:"keyvalues"`
}

type rawChangeEvent struct {
	Kind         Kind              `json:"kind"`
	Schema       string            `json:"schema"`
	Table        string            `json:"table"`
	ColumnNames  []string          `json:"columnnames"`
	ColumnTypes  []string          `json:"columntypes"`
	ColumnValues []json.RawMessage `json:"columnvalues"`
	OldKeys      *rawOldKeys       `json:"oldkeys"`
}

// UnmarshalJSON decodes a wal2json change entry and coerces every value by its
// column type, so a decoded event holds the same Go types the decoder produces.
func (e *ChangeEvent) UnmarshalJSON(b []byte) error {
	var raw rawChangeEvent
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.ColumnTypes) != len(raw.ColumnValues) {
		return errors.Newf("%s.%s: %d column types for %d values",
			raw.Schema, raw.Table, len(raw.ColumnTypes), len(raw.ColumnValues))
	}

	values, err := decodeValues(raw.ColumnTypes, raw.ColumnValues)
	if err != nil {
		return errors.Wrapf(err, "%s.%s columns", raw.Schema, raw.Table)
	}

	*e = ChangeEvent{
		Kind:         raw.Kind,
		Schema:       raw.Schema,
		Table:        raw.Table,
		ColumnNames:  raw.ColumnNames,
		ColumnTypes:  raw.ColumnTypes,
		ColumnValues: values,
	}

	if raw.OldKeys != nil {
		if len(raw.OldKeys.KeyTypes) != len(raw.OldKeys.KeyValues) {
			return errors.Newf("%s.%s: %d key types for %d key values",
				raw.Schema, raw.Table, len(raw.OldKeys.KeyTypes), len(raw.OldKeys.KeyValues))
		}
		keyValues, err := decodeValues(raw.OldKeys.KeyTypes, raw.OldKeys.KeyValues)
		if err != nil {
			return errors.Wrapf(err, "%s.%s old keys", raw.Schema, raw.Table)
		}
		e.OldKeys = &OldKeys{
			KeyNames:  raw.OldKeys.KeyNames,
			KeyTypes:  raw.OldKeys.KeyTypes,
			KeyValues: keyValues,
		}
	}
	return nil
}

func decodeValues(types []string, raws []json.RawMessage) ([]any, error) {
	if raws == nil {
		return nil, nil
	}
	values := make([]any, len(raws))
	for i, raw := range raws {
		v, err := decodeValue(types[i], raw)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func decodeValue(typ string, raw json.RawMessage) (any, error) {
	tag := sqltype.NormalizeType(stripTypmod(typ))
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
		return sqltype.Null, nil
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if s == "" {
			return sqltype.Null, nil
		}
		return sqltype.CoerceText(tag, s)
	default:
		// numbers, booleans, and inline json documents
		return sqltype.CoerceText(tag, string(raw))
	}
}

// stripTypmod drops a type modifier such as the (255) in "character varying(255)".
func stripTypmod(typ string) string {
	open := strings.IndexByte(typ, '(')
	if open < 0 {
		return typ
	}
	end := strings.IndexByte(typ[open:], ')')
	if end < 0 {
		return typ
	}
	return typ[:open] + typ[open+end+1:]
}

// Marshal encodes a Change in the wal2json format.
func Marshal(c *Change) ([]byte, error) {
	return marshalValue(c)
}

// Unmarshal decodes a Change in the wal2json format.
func Unmarshal(data []byte) (*Change, error) {
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(err, "decode wal2json change")
	}
	return &c, nil
}

var commitTimeLayouts = []string{
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05-07:00:00",
}

// ParseCommitTime parses a commit timestamp as printed by the decoding plugins,
// e.g. "2016-07-08 19:58:13.532396+02". Fractional seconds may have 1 to 9 digits.
func ParseCommitTime(s string) (time.Time, error) {
	for _, layout := range commitTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognized commit timestamp %q", s)
}
