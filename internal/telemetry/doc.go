// Package telemetry records State Table changes as time-series points.
//
// A Recorder subscribes to the table as an asynchronous observer and writes
// one point per accepted change to the "state_changes" measurement, tagged
// with the room and key. Every point carries the canonical string in the
// "value" field; values that read as numbers or booleans ("True"/"False")
// also get a float "numeric" field so they can be graphed.
//
// The table itself keeps no history; this is where history lives.
package telemetry
