package processor

import (
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
)

// EventProcessor inspects or rewrites one event. Returning a nil event drops it.
type EventProcessor interface {
	Process(event *keyvalue.Event) (*keyvalue.Event, error)
}

type ProcessorComposite interface {
	AddFilter(processor EventProcessor)
	AddTransformer(processor EventProcessor)
}

type Processor interface {
	EventProcessor
	ProcessorComposite
}
