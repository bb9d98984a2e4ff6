package filter

import (
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
	"github.com/web3tea/pgcdc-sentinel/processor"
)

type DebugFilter struct{}

func NewDebugFilter() *DebugFilter {
	return &DebugFilter{}
}

func (f *DebugFilter) Process(event *keyvalue.Event) (*keyvalue.Event, error) {
	log.Debugf("Filter event: %s %s.%s key=%s", event.Kind, event.Schema, event.Table, event.Key)
	return event, nil
}

var _ processor.EventProcessor = (*DebugFilter)(nil)
