// Package bridge mirrors a State Table onto MQTT.
//
// Outbound, every accepted change is published retained on the room's
// state topic, so any subscriber (panel, logger, another core) sees the
// current value of every key as soon as it subscribes.
//
// Inbound, the bridge serves two topics:
//
//	graylogic/statestore/{room}/set    {"id":"opt","key":"...","value":...}
//	graylogic/statestore/{room}/query  {"id":"req-1","filter":"(?i)level"}
//	                                   {"id":"req-2","match":["Source","laptop"]}
//
// A set applies Update; when it carries an id, the outcome is published on
// graylogic/statestore/{room}/response/{id}. A query always answers on the
// response topic with the ListFiltered document, or the FindByAllSubstrings
// document when "match" is given.
//
// The bridge only publishes on state topics and only listens on set and
// query, so a change it publishes never comes back as a write.
package bridge
