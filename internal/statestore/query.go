package statestore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// caseInsensitiveFlag makes a pattern ignore case on both sides of the match.
const caseInsensitiveFlag = "(?i)"

// CompileFilter compiles pattern with the matching rules of ListFiltered.
// An empty pattern returns a nil Regexp, which callers treat as match-all.
func CompileFilter(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(caseInsensitiveFlag + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidPattern, pattern, err)
	}
	return re, nil
}

// ListFiltered returns every entry whose key matches pattern, sorted by key.
//
// The pattern is a regular expression (RE2 syntax) matched case-insensitively
// anywhere in the key. An empty pattern matches every entry. A pattern that
// does not compile returns ErrInvalidPattern; no matches is an empty document
// and a nil error.
func (t *Table) ListFiltered(pattern string) (StatesDocument, error) {
	re, err := CompileFilter(pattern)
	if err != nil {
		return StatesDocument{}, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	doc := StatesDocument{States: make([]StateRecord, 0)}
	for _, key := range t.sortedKeysLocked() {
		if re != nil && !re.MatchString(key) {
			continue
		}
		doc.States = append(doc.States, StateRecord{GUID: key, Value: t.states[key]})
	}
	return doc, nil
}

// FindByAllSubstrings returns the first entry whose key contains every one of
// substrings, in any order and position. Matching is literal and
// case-sensitive.
//
// Keys are scanned in ascending order, so when several keys qualify the
// lowest one is returned. An empty substring list matches nothing.
func (t *Table) FindByAllSubstrings(substrings []string) (StateDocument, bool) {
	if len(substrings) == 0 {
		return StateDocument{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, key := range t.sortedKeysLocked() {
		if containsAll(key, substrings) {
			return StateDocument{Key: key, Value: t.states[key]}, true
		}
	}
	return StateDocument{}, false
}

// containsAll reports whether target contains every string in parts.
func containsAll(target string, parts []string) bool {
	for _, p := range parts {
		if !strings.Contains(target, p) {
			return false
		}
	}
	return true
}

// sortedKeysLocked returns the keys in ascending order.
// The caller must hold t.mu.
func (t *Table) sortedKeysLocked() []string {
	keys := make([]string, 0, len(t.states))
	for k := range t.states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
