package keyvalue

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/web3tea/pgcdc-sentinel/sqltype"
	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

// DatasetNamer computes the target dataset of an event.
type DatasetNamer interface {
	DatasetName(ev *wal2json.ChangeEvent) string
}

// KeyStrategy computes the row key of an event.
type KeyStrategy interface {
	Key(ctx context.Context, ev *wal2json.ChangeEvent, resolver PrimaryKeyResolver) (string, error)
}

// ValueEncoder computes the value payload of an event.
type ValueEncoder interface {
	Value(ev *wal2json.ChangeEvent) (any, error)
}

type DatasetNamerFunc func(ev *wal2json.ChangeEvent) string

func (f DatasetNamerFunc) DatasetName(ev *wal2json.ChangeEvent) string { return f(ev) }

type ValueEncoderFunc func(ev *wal2json.ChangeEvent) (any, error)

func (f ValueEncoderFunc) Value(ev *wal2json.ChangeEvent) (any, error) { return f(ev) }

// SchemaTableDataset names datasets schema + delimiter + table.
type SchemaTableDataset struct {
	Delimiter string
}

func (n SchemaTableDataset) DatasetName(ev *wal2json.ChangeEvent) string {
	return ev.Schema + n.Delimiter + ev.Table
}

// JoinedKey joins the string form of the identifying column values with Delimiter.
//
// Updates and deletes are keyed by their old key values. Inserts, and updates
// that did not touch the key and therefore carry no old keys, are keyed by the
// column values at the indices the resolver returns for the table.
type JoinedKey struct {
	Delimiter string
}

func (k JoinedKey) Key(ctx context.Context, ev *wal2json.ChangeEvent, resolver PrimaryKeyResolver) (string, error) {
	switch ev.Kind {
	case wal2json.Update, wal2json.Delete:
		if ev.OldKeys != nil && len(ev.OldKeys.KeyValues) > 0 {
			return k.join(ev.OldKeys.KeyValues), nil
		}
		if ev.Kind == wal2json.Delete {
			return "", errors.New("delete without old keys")
		}
		return k.fromIndices(ctx, ev, resolver)
	case wal2json.Insert:
		return k.fromIndices(ctx, ev, resolver)
	default:
		return "", errors.Newf("unknown change kind %q", ev.Kind)
	}
}

func (k JoinedKey) fromIndices(ctx context.Context, ev *wal2json.ChangeEvent, resolver PrimaryKeyResolver) (string, error) {
	if resolver == nil {
		return "", errors.Wrap(ErrUnknownDataset, "no primary key resolver")
	}
	indices, err := resolver.PrimaryKeyIndices(ctx, ev.Schema, ev.Table)
	if err != nil {
		return "", errors.Wrapf(err, "resolve primary key of %s.%s", ev.Schema, ev.Table)
	}
	if indices == nil {
		return "", errors.Wrapf(ErrUnknownDataset, "%s%s%s", ev.Schema, k.Delimiter, ev.Table)
	}

	values := make([]any, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(ev.ColumnValues) {
			return "", errors.Newf("primary key column index %d out of range for %d columns", idx, len(ev.ColumnValues))
		}
		values[i] = ev.ColumnValues[idx]
	}
	return k.join(values), nil
}

func (k JoinedKey) join(values []any) string {
	return strings.Join(lo.Map(values, func(v any, _ int) string {
		return sqltype.Format(v)
	}), k.Delimiter)
}

// JSONValue encodes the row as a flat JSON object with fields in column order.
type JSONValue struct{}

func (JSONValue) Value(ev *wal2json.ChangeEvent) (any, error) {
	row, err := ev.Row()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(row)
	if err != nil {
		return nil, errors.Wrap(err, "encode row as json")
	}
	return string(b), nil
}

// MsgpackValue encodes the row as a msgpack map with fields in column order,
// for sinks that store binary objects.
type MsgpackValue struct{}

func (MsgpackValue) Value(ev *wal2json.ChangeEvent) (any, error) {
	row, err := ev.Row()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeMapLen(len(row)); err != nil {
		return nil, err
	}
	for _, f := range row {
		if err := enc.EncodeString(f.Name); err != nil {
			return nil, err
		}
		if err := enc.Encode(f.Value); err != nil {
			return nil, errors.Wrapf(err, "encode column %s as msgpack", f.Name)
		}
	}
	return buf.Bytes(), nil
}

// DeleteAwareValue returns the empty string for deletes and defers to Encoder otherwise.
type DeleteAwareValue struct {
	Encoder ValueEncoder
}

func (d DeleteAwareValue) Value(ev *wal2json.ChangeEvent) (any, error) {
	if ev.Kind == wal2json.Delete {
		return "", nil
	}
	return d.Encoder.Value(ev)
}

var (
	_ DatasetNamer = SchemaTableDataset{}
	_ KeyStrategy  = JoinedKey{}
	_ ValueEncoder = JSONValue{}
	_ ValueEncoder = MsgpackValue{}
	_ ValueEncoder = DeleteAwareValue{}
)
