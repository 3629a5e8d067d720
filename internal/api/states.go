package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-statestore/internal/statestore"
)

// setStateRequest is the request body for PUT /states/{key}.
type setStateRequest struct {
	Value any `json:"value"`
}

// setStateResponse reports whether the write changed the stored value.
type setStateResponse struct {
	Key     string `json:"key"`
	Changed bool   `json:"changed"`
}

// handleListStates reads the table without naming a key, so no stored key
// can collide with a route segment.
//
// With one or more ?part= values it returns the first key (in ascending
// order) containing every part, or 404. Otherwise it returns every entry
// whose key matches the optional case-insensitive regular expression in
// ?filter=.
func (s *Server) handleListStates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if parts, ok := query["part"]; ok {
		if query.Has("filter") {
			writeBadRequest(w, "filter and part cannot be combined")
			return
		}
		s.matchState(w, parts)
		return
	}

	doc, err := s.table.ListFiltered(query.Get("filter"))
	if err != nil {
		if errors.Is(err, statestore.ErrInvalidPattern) {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidPattern, err.Error())
			return
		}
		writeInternalError(w, "failed to list states")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) matchState(w http.ResponseWriter, parts []string) {
	doc, ok := s.table.FindByAllSubstrings(parts)
	if !ok {
		writeNotFound(w, "no state key contains all parts")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleGetState returns a single entry as {"<key>":"<value>"}.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	key, ok := stateKey(w, r)
	if !ok {
		return
	}

	value, found := s.table.Get(key)
	if !found {
		writeNotFound(w, "state not found")
		return
	}
	writeJSON(w, http.StatusOK, statestore.StateDocument{Key: key, Value: value})
}

// handleSetState applies {"value": ...} to the key via Table.Update.
// Unchanged values succeed with changed=false.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	key, ok := stateKey(w, r)
	if !ok {
		return
	}

	var req setStateRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	changed, err := s.table.UpdateAny(key, req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if changed {
		s.logger.Debug("state updated via api", "key", key, "request_id", requestID(r.Context()))
	}
	writeJSON(w, http.StatusOK, setStateResponse{Key: key, Changed: changed})
}

// stateKey extracts the {key} URL parameter. Keys containing "/" arrive
// percent-encoded, in which case chi matches on the raw path.
func stateKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "key")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(key)
		if err != nil {
			writeBadRequest(w, "invalid key encoding")
			return "", false
		}
		key = unescaped
	}
	if key == "" {
		writeBadRequest(w, "key is required")
		return "", false
	}
	return key, true
}
