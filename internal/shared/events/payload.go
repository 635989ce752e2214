package events

import (
	"encoding/json"
	"fmt"
)

// DecodePayload converts an event payload (a map after transport
// deserialization) into the typed payload struct for its event type.
func DecodePayload(e Event, v interface{}) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("payload encode error: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("payload decode error (%s): %v", e.EventType, err)
	}
	return nil
}
