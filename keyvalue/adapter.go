package keyvalue

import (
	"context"

	"github.com/web3tea/pgcdc-sentinel/wal2json"
)

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (l *noopLogger) Debugf(format string, args ...any) {}
func (l *noopLogger) Infof(format string, args ...any)  {}
func (l *noopLogger) Warnf(format string, args ...any)  {}
func (l *noopLogger) Errorf(format string, args ...any) {}

// Adapter turns change events into key/value events. It keeps no state of its
// own, so Handle may be called concurrently when the resolver allows it.
type Adapter struct {
	resolver  PrimaryKeyResolver
	delimiter string
	namer     DatasetNamer
	keys      KeyStrategy
	values    ValueEncoder
	logger    Logger
}

type Option func(*Adapter)

// WithDelimiter sets the delimiter of the default dataset and key strategies.
func WithDelimiter(d string) Option {
	return func(a *Adapter) {
		a.delimiter = d
	}
}

func WithDatasetNamer(n DatasetNamer) Option {
	return func(a *Adapter) {
		a.namer = n
	}
}

func WithKeyStrategy(k KeyStrategy) Option {
	return func(a *Adapter) {
		a.keys = k
	}
}

// WithValueEncoder replaces the value strategy. The encoder is wrapped in
// DeleteAwareValue, so it only ever sees inserts and updates.
func WithValueEncoder(v ValueEncoder) Option {
	return func(a *Adapter) {
		a.values = DeleteAwareValue{Encoder: v}
	}
}

func WithLogger(l Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAdapter(resolver PrimaryKeyResolver, opts ...Option) *Adapter {
	a := &Adapter{
		resolver:  resolver,
		delimiter: DefaultDelimiter,
		values:    DeleteAwareValue{Encoder: JSONValue{}},
		logger:    &noopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.namer == nil {
		a.namer = SchemaTableDataset{Delimiter: a.delimiter}
	}
	if a.keys == nil {
		a.keys = JoinedKey{Delimiter: a.delimiter}
	}
	return a
}

// Handle computes the dataset, key and value of one change event.
func (a *Adapter) Handle(ctx context.Context, ev *wal2json.ChangeEvent) (*Event, error) {
	fail := func(err error) (*Event, error) {
		return nil, &EventError{Kind: ev.Kind, Schema: ev.Schema, Table: ev.Table, Err: err}
	}

	key, err := a.keys.Key(ctx, ev, a.resolver)
	if err != nil {
		return fail(err)
	}
	value, err := a.values.Value(ev)
	if err != nil {
		return fail(err)
	}

	out := &Event{
		Kind:    ev.Kind,
		Schema:  ev.Schema,
		Table:   ev.Table,
		Dataset: a.namer.DatasetName(ev),
		Key:     key,
		Value:   value,
	}
	a.logger.Debugf("%s %s key=%s", out.Kind, out.Dataset, out.Key)
	return out, nil
}

// HandleChange adapts every event of a transaction in order. It stops at the
// first failing event.
func (a *Adapter) HandleChange(ctx context.Context, c *wal2json.Change) ([]*Event, error) {
	events := make([]*Event, 0, len(c.Events))
	for _, ev := range c.Events {
		out, err := a.Handle(ctx, ev)
		if err != nil {
			return nil, err
		}
		out.Xid = c.Xid
		out.Timestamp = c.Timestamp
		events = append(events, out)
	}
	return events, nil
}
