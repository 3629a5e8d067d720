package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-statestore/internal/statestore"
)

// StateMessage is published retained for every accepted change.
// Topic: graylogic/statestore/{room}/state/{key}
type StateMessage struct {
	// Key is the raw state key; the topic level may have been sanitised.
	Key string `json:"key"`

	// Value is the canonical string form.
	Value string `json:"value"`

	// Timestamp is when the table stored the value (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// SetMessage asks the bridge to update one key.
// Topic: graylogic/statestore/{room}/set
type SetMessage struct {
	// ID is optional. When set, a SetResult is published on the response topic.
	ID string `json:"id,omitempty"`

	Key string `json:"key"`

	// Value may be a JSON string, bool, or number. Numbers keep their
	// literal form: 60 is stored as "60", 60.5 as "60.5".
	Value any `json:"value"`

	// Source indicates where the write originated (e.g., "panel", "scheduler").
	Source string `json:"source,omitempty"`
}

// SetResult reports the outcome of a SetMessage that carried an ID.
type SetResult struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Success   bool           `json:"success"`
	Changed   bool           `json:"changed"`
	Error     *ResponseError `json:"error,omitempty"`
}

// QueryMessage requests a read of the table.
// Topic: graylogic/statestore/{room}/query
type QueryMessage struct {
	// ID correlates the response and names its topic.
	ID string `json:"id"`

	// Filter is a case-insensitive regular expression; empty matches all.
	Filter string `json:"filter,omitempty"`

	// Match, when non-empty, selects FindByAllSubstrings instead of Filter.
	Match []string `json:"match,omitempty"`
}

// QueryResponse answers a QueryMessage.
// Topic: graylogic/statestore/{room}/response/{id}
type QueryResponse struct {
	ID        string                     `json:"id"`
	Timestamp time.Time                  `json:"timestamp"`
	Success   bool                       `json:"success"`
	Result    *statestore.StatesDocument `json:"result,omitempty"`
	Match     *statestore.StateDocument  `json:"match,omitempty"`
	Error     *ResponseError             `json:"error,omitempty"`
}

// ResponseError describes a failed set or query.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeSet parses a SetMessage, keeping numbers as json.Number so their
// literal form survives into the table.
func decodeSet(payload []byte) (SetMessage, error) {
	var msg SetMessage
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		return SetMessage{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return msg, nil
}

func decodeQuery(payload []byte) (QueryMessage, error) {
	var msg QueryMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return QueryMessage{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if msg.ID == "" {
		return QueryMessage{}, fmt.Errorf("%w: query id is required", ErrInvalidMessage)
	}
	return msg, nil
}
