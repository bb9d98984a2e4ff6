package sink

import (
	"context"

	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
)

// DebugSink only logs what it is given.
type DebugSink struct{}

func NewDebugSink() *DebugSink {
	return &DebugSink{}
}

func (s *DebugSink) Init(ctx context.Context) error {
	log.Debugf("DebugSink Init")
	return nil
}

// Close implements Sink.
func (s *DebugSink) Close() error {
	log.Debugf("DebugSink Close")
	return nil
}

// Flush implements Sink.
func (s *DebugSink) Flush(ctx context.Context) error {
	log.Debugf("DebugSink Flush")
	return nil
}

// Type implements Sink.
func (s *DebugSink) Type() string {
	return "debug"
}

// Write implements Sink.
func (s *DebugSink) Write(ctx context.Context, events []*keyvalue.Event) error {
	for _, e := range events {
		log.Debugf("DebugSink Write %s %s key=%s", e.Kind, e.Dataset, e.Key)
	}
	return nil
}

var _ Sink = (*DebugSink)(nil)
