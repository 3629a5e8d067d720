package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base for all State Store topics.
//
// Every topic is scoped to one room:
//
//	graylogic/statestore/{room}/state/{key}      retained state per key
//	graylogic/statestore/{room}/set              state write commands
//	graylogic/statestore/{room}/query            ListFiltered requests
//	graylogic/statestore/{room}/response/{id}    query responses
//	graylogic/statestore/{room}/status           online/offline (LWT)
const TopicPrefix = "graylogic/statestore"

// keySanitiser percent-escapes the topic separator, both wildcards, and the
// escape character itself.
var keySanitiser = strings.NewReplacer("%", "%25", "/", "%2F", "+", "%2B", "#", "%23")

// Topics provides builders for one room's State Store topics.
//
//	topics := mqtt.Topics{Room: "boardroom-2"}
//	topics.State("RoomController:room:RoomMode")
//	// Returns: "graylogic/statestore/boardroom-2/state/RoomController:room:RoomMode"
type Topics struct {
	Room string
}

// SanitiseKey maps a state key onto a single topic level.
//
// "/", "+", "#" and "%" are percent-escaped, so distinct keys always get
// distinct topics ("a/b" becomes "a%2Fb", while "a_b" is unchanged). The
// raw key also travels in the payload.
func SanitiseKey(key string) string {
	return keySanitiser.Replace(key)
}

func (t Topics) base() string {
	return fmt.Sprintf("%s/%s", TopicPrefix, t.Room)
}

// State returns the retained state topic for a key.
func (t Topics) State(key string) string {
	return t.base() + "/state/" + SanitiseKey(key)
}

// Set returns the topic on which state write commands are received.
func (t Topics) Set() string {
	return t.base() + "/set"
}

// Query returns the topic on which ListFiltered requests are received.
func (t Topics) Query() string {
	return t.base() + "/query"
}

// Response returns the reply topic for a query request.
//
// Example: graylogic/statestore/boardroom-2/response/req-abc123
func (t Topics) Response(requestID string) string {
	return t.base() + "/response/" + SanitiseKey(requestID)
}

// Status returns the room's online/offline status topic.
func (t Topics) Status() string {
	return t.base() + "/status"
}
