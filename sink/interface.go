package sink

import (
	"context"

	"github.com/web3tea/pgcdc-sentinel/keyvalue"
)

// Sink applies key/value events to a target store: a delete removes Key from
// Dataset, an insert or update puts Value under Key in Dataset. Events of one
// Write call are applied in order.
type Sink interface {
	Init(ctx context.Context) error
	Write(ctx context.Context, events []*keyvalue.Event) error
	Flush(ctx context.Context) error
	Close() error
	Type() string
}
