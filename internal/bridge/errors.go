package bridge

import "errors"

var (
	// ErrMissingTable is returned by New when no table is supplied.
	ErrMissingTable = errors.New("bridge: state table is required")

	// ErrMissingClient is returned by New when no MQTT client is supplied.
	ErrMissingClient = errors.New("bridge: MQTT client is required")

	// ErrMissingRoom is returned by New when the room ID is empty.
	ErrMissingRoom = errors.New("bridge: room ID is required")

	// ErrInvalidMessage is returned by handlers for payloads that cannot be parsed.
	ErrInvalidMessage = errors.New("bridge: invalid message")
)

// Error codes carried in ResponseError.Code.
const (
	ErrCodeInvalidMessage   = "invalid_message"
	ErrCodeInvalidKey       = "invalid_key"
	ErrCodeUnsupportedValue = "unsupported_value"
	ErrCodeInvalidPattern   = "invalid_pattern"
	ErrCodeNotFound         = "not_found"
)
