package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventOperation is the mutation carried by a change event.
type EventOperation int

const (
	EventUnknown EventOperation = iota
	EventAdd
	EventDelete
	EventUpdate
)

var eventOperationNames = map[EventOperation]string{
	EventAdd:    "ADD",
	EventDelete: "DELETE",
	EventUpdate: "UPDATE",
}

func (o EventOperation) String() string {
	if name, ok := eventOperationNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseEventOperation maps a wire operation name onto the closed set,
// returning EventUnknown for anything unrecognised.
func ParseEventOperation(name string) EventOperation {
	for op, n := range eventOperationNames {
		if n == name {
			return op
		}
	}
	return EventUnknown
}

// ChangeEvent is one server-pushed mutation for a track.
type ChangeEvent struct {
	Operation          EventOperation
	RawOperation       string
	SequenceAlteration bool
	Features           []FeatureData
}

type changeEventWire struct {
	Operation          string        `json:"operation"`
	SequenceAlteration bool          `json:"sequenceAlterationEvent,omitempty"`
	Features           []FeatureData `json:"features"`
}

// MarshalJSON implements json.Marshaler.
func (e ChangeEvent) MarshalJSON() ([]byte, error) {
	name := e.RawOperation
	if e.Operation != EventUnknown {
		name = e.Operation.String()
	}
	return json.Marshal(changeEventWire{
		Operation:          name,
		SequenceAlteration: e.SequenceAlteration,
		Features:           e.Features,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ChangeEvent) UnmarshalJSON(data []byte) error {
	var wire changeEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = ChangeEvent{
		Operation:          ParseEventOperation(wire.Operation),
		RawOperation:       wire.Operation,
		SequenceAlteration: wire.SequenceAlteration,
		Features:           wire.Features,
	}
	return nil
}

// DecodeChangeEvents parses a change feed response body. A null or empty body
// is a heartbeat and yields no events.
func DecodeChangeEvents(body []byte) ([]ChangeEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var events []ChangeEvent
	if err := json.Unmarshal(trimmed, &events); err != nil {
		return nil, fmt.Errorf("decode change events: %w", err)
	}
	return events, nil
}
