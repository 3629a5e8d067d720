package statestore

import (
	"encoding/json"
	"fmt"
)

// Entry is a stored key/value pair.
type Entry struct {
	Key   string
	Value string
}

// StateRecord is one entry in a StatesDocument. The key is published as
// "guid" because panels and remote stores use it as the state's identifier.
type StateRecord struct {
	GUID  string `json:"guid"`
	Value string `json:"value"`
}

// StatesDocument is the serialised result of ListFiltered:
//
//	{"states":[{"guid":"RoomController:room:SourceLevel:laptop","value":"60"}]}
type StatesDocument struct {
	States []StateRecord `json:"states"`
}

// MarshalJSON always emits an array for "states", even when empty.
func (d StatesDocument) MarshalJSON() ([]byte, error) {
	type plain StatesDocument
	if d.States == nil {
		d.States = []StateRecord{}
	}
	return json.Marshal(plain(d))
}

// JSON returns the document as a JSON string.
func (d StatesDocument) JSON() string {
	b, _ := json.Marshal(d) //nolint:errcheck,errchkjson // strings only; cannot fail
	return string(b)
}

// Len returns the number of records.
func (d StatesDocument) Len() int {
	return len(d.States)
}

// StateDocument is the serialised result of FindByAllSubstrings: a single
// JSON object member mapping the key to its value.
//
//	{"RoomController:room:SourceMute:laptop":"False"}
type StateDocument struct {
	Key   string
	Value string
}

// MarshalJSON encodes the document as {"<key>":"<value>"}.
func (d StateDocument) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{d.Key: d.Value})
}

// UnmarshalJSON decodes a single-member object. Extra members are an error.
func (d *StateDocument) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return fmt.Errorf("statestore: state document must have exactly one member, got %d", len(m))
	}
	for k, v := range m {
		d.Key, d.Value = k, v
	}
	return nil
}

// JSON returns the document as a JSON string.
func (d StateDocument) JSON() string {
	b, _ := d.MarshalJSON() //nolint:errcheck,errchkjson // strings only; cannot fail
	return string(b)
}
