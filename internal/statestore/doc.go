// Package statestore provides the in-memory State Table for Gray Logic rooms.
//
// The State Table holds the current value of every named piece of control
// state in a room (source levels, mutes, selected inputs, room mode) and
// tells observers when one of those values genuinely changes.
//
// # Keys and Values
//
// Keys are opaque strings. By convention they are colon-delimited paths:
//
//	RoomController:room:SourceLevel:laptop
//	RoomController:room:SourceMute:zoom.pc
//
// The table attaches no meaning to the segments. All queries match on
// substrings or regular expressions, never on path structure.
//
// Values are accepted as a small closed set of kinds (string, bool, integer,
// float) and stored as their canonical string form. Two writes that produce
// the same string are the same value:
//
//	table.Update("RoomController:room:SourceMute:laptop", statestore.Bool(false)) // true
//	table.Update("RoomController:room:SourceMute:laptop", statestore.String("False")) // false, no change
//
// # Queries
//
//   - ListFiltered: every entry whose key matches a case-insensitive regular
//     expression, sorted by key. Serialises as {"states":[{"guid":..,"value":..}]}.
//   - FindByAllSubstrings: the first key (in sorted order) containing every
//     given substring. Serialises as {"<key>":"<value>"}.
//
// # Change Notifications
//
// Observers registered with Subscribe receive a Change for every Update that
// returned true, and for nothing else.
//
// Synchronous observers (the default) run on the goroutine that called
// Update, in registration order, after the table lock is released, so they
// may call Update from inside the callback. Observers registered WithAsync
// get their own bounded queue and goroutine. Changes are queued before the
// lock is released, so each async observer sees a key's changes in the order
// they were stored. A full queue drops the change for that observer rather
// than blocking the writer.
//
// # Thread Safety
//
// All methods are safe for concurrent use. A single read-write mutex guards
// the key space: Update takes the write lock, queries take the read lock.
package statestore
