package statestore

import (
	"sync"
	"time"
)

// Logger defines the logging interface used by the Table.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger used for observer failures and dropped changes.
func WithLogger(logger Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Table is the room State Table: a lock-guarded map from key to canonical
// string value, plus the observers that receive change notifications.
//
// The table only grows. Entries are created by the first successful Update
// of a key and replaced in place afterwards.
type Table struct {
	states map[string]string
	mu     sync.RWMutex // Protects states

	observers []*observer
	closed    bool
	obsMu     sync.RWMutex // Protects observers and closed

	logger Logger
}

// New creates an empty State Table.
func New(opts ...Option) *Table {
	t := &Table{
		states: make(map[string]string),
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Initialize exists for parity with remote-backed stores, which authenticate
// the room against a service before use. The in-memory table has nothing to
// connect to, so it always succeeds.
func (t *Table) Initialize(_, _ string) bool {
	return true
}

// Update stores value under key if it differs from what is already stored.
//
// It returns true, and notifies observers exactly once, when the key is new
// or its canonical string changed. It returns false without touching the
// table when the key is empty, the value is invalid, or the value is
// unchanged.
func (t *Table) Update(key string, value Value) bool {
	if key == "" || !value.IsValid() {
		return false
	}
	text := value.String()

	t.mu.Lock()
	if current, ok := t.states[key]; ok && current == text {
		t.mu.Unlock()
		return false
	}
	t.states[key] = text
	c := Change{Key: key, Value: text, At: time.Now()}
	// Queueing under the write lock keeps async delivery in commit order.
	direct := t.enqueue(c)
	t.mu.Unlock()

	// Sync observers run outside the lock so they can read or write the table.
	for _, o := range direct {
		t.call(o, c)
	}
	return true
}

// UpdateAny converts v with ValueOf and applies Update.
//
// A nil v is rejected like an invalid Value: (false, nil). Types without a
// canonical string form return ErrUnsupportedValue.
func (t *Table) UpdateAny(key string, v any) (bool, error) {
	value, err := ValueOf(v)
	if err != nil {
		return false, err
	}
	return t.Update(key, value), nil
}

// Get returns the stored string for an exact key.
func (t *Table) Get(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.states[key]
	return v, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}

// Keys returns every key in ascending order.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sortedKeysLocked()
}

// Entries returns every entry in ascending key order.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := t.sortedKeysLocked()
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: k, Value: t.states[k]})
	}
	return entries
}
