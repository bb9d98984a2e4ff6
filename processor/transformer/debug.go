package transformer

import (
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
	"github.com/web3tea/pgcdc-sentinel/processor"
)

type DebugTransformer struct{}

func NewDebugTransformer() *DebugTransformer {
	return &DebugTransformer{}
}

// Process implements processor.EventProcessor.
func (d *DebugTransformer) Process(event *keyvalue.Event) (*keyvalue.Event, error) {
	log.Debugf("Transform event: %s %s key=%s", event.Kind, event.Dataset, event.Key)
	return event, nil
}

var _ processor.EventProcessor = (*DebugTransformer)(nil)
