package domain

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes e with its type tag for queue transport.
func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type(), err)
	}
	return json.Marshal(envelope{Type: e.Type(), Payload: payload})
}

// Decode restores an event produced by Encode.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	var (
		event Event
		err   error
	)
	switch env.Type {
	case EventFunnelStageChanged:
		event, err = decodeAs[StageChanged](env.Payload)
	case EventDealWon:
		event, err = decodeAs[DealWon](env.Payload)
	case EventDealLost:
		event, err = decodeAs[DealLost](env.Payload)
	case EventSequenceCompleted:
		event, err = decodeAs[SequenceCompleted](env.Payload)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", env.Type, err)
	}
	return event, nil
}

func decodeAs[T Event](payload json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(payload, &v)
	return v, err
}
