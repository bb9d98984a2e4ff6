package processor

import (
	"sync"

	"github.com/web3tea/pgcdc-sentinel/keyvalue"
)

// ProcessorChain runs every filter and then every transformer. The chain stops
// as soon as one of them drops the event.
type ProcessorChain struct {
	filterProcessor      []EventProcessor
	transformerProcessor []EventProcessor
	lk                   sync.RWMutex
}

func NewProcessorChain() Processor {
	return &ProcessorChain{
		filterProcessor:      make([]EventProcessor, 0),
		transformerProcessor: make([]EventProcessor, 0),
	}
}

func (pc *ProcessorChain) Process(event *keyvalue.Event) (*keyvalue.Event, error) {
	pc.lk.RLock()
	defer pc.lk.RUnlock()

	currentEvent := event
	for _, stage := range [][]EventProcessor{pc.filterProcessor, pc.transformerProcessor} {
		for _, p := range stage {
			processed, err := p.Process(currentEvent)
			if err != nil {
				return currentEvent, err
			}
			if processed == nil {
				return nil, nil
			}
			currentEvent = processed
		}
	}
	return currentEvent, nil
}

func (pc *ProcessorChain) AddFilter(processor EventProcessor) {
	pc.lk.Lock()
	defer pc.lk.Unlock()

	pc.filterProcessor = append(pc.filterProcessor, processor)
}

func (pc *ProcessorChain) AddTransformer(processor EventProcessor) {
	pc.lk.Lock()
	defer pc.lk.Unlock()

	pc.transformerProcessor = append(pc.transformerProcessor, processor)
}
