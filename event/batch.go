package event

import "github.com/bytedance/sonic"

// Batch is a drained snapshot of buffered events delivered as one unit.
type Batch []Event

type envelope struct {
	Events []wireEvent `json:"events"`
}

// Encode renders the batch as the collection endpoint payload
// {"events": [...]}.
func (b Batch) Encode() ([]byte, error) {
	env := envelope{Events: make([]wireEvent, 0, len(b))}
	for _, e := range b {
		env.Events = append(env.Events, e.wire())
	}
	return sonic.ConfigStd.Marshal(env)
}

// Names lists event names in batch order.
func (b Batch) Names() []string {
	names := make([]string, len(b))
	for i, e := range b {
		names[i] = e.name
	}
	return names
}
