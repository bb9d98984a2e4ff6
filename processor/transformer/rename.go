package transformer

import (
	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/processor"
)

// RenameTransformer maps dataset names onto target store namespaces, e.g.
// "public_orders" to "orders". Datasets without an entry keep their name.
type RenameTransformer struct {
	names map[string]string
}

func NewRenameTransformer(names map[string]string) *RenameTransformer {
	m := make(map[string]string, len(names))
	for from, to := range names {
		m[from] = to
	}
	return &RenameTransformer{names: m}
}

// Process implements processor.EventProcessor. The input event is not modified.
func (r *RenameTransformer) Process(event *keyvalue.Event) (*keyvalue.Event, error) {
	to, ok := r.names[event.Dataset]
	if !ok || to == event.Dataset {
		return event, nil
	}
	renamed := *event
	renamed.Dataset = to
	return &renamed, nil
}

var _ processor.EventProcessor = (*RenameTransformer)(nil)
