package statestore

import (
	"time"

	"github.com/google/uuid"
)

// Change is the payload delivered to observers after an effective Update.
// At is when the value was stored, so async observers see the write time
// rather than the delivery time.
type Change struct {
	Key   string    `json:"key"`
	Value string    `json:"value"`
	At    time.Time `json:"timestamp"`
}

// Observer receives change notifications.
//
// Synchronous observers run on the updating goroutine and should return
// quickly. They may call back into the table, including Update.
type Observer func(Change)

// SubscriptionID identifies a registered observer.
type SubscriptionID string

// SubscribeOption configures a subscription.
type SubscribeOption func(*observer)

// WithAsync delivers changes on a dedicated goroutine through a queue of the
// given size. When the queue is full the change is dropped for this observer
// and a warning is logged; Update never blocks on it.
func WithAsync(buffer int) SubscribeOption {
	return func(o *observer) {
		if buffer < 1 {
			buffer = 1
		}
		o.queue = make(chan Change, buffer)
	}
}

// observer is a registered callback. queue is nil for synchronous observers.
type observer struct {
	id    SubscriptionID
	fn    Observer
	queue chan Change
	done  chan struct{}
}

// Subscribe registers an observer for change notifications.
func (t *Table) Subscribe(fn Observer, opts ...SubscribeOption) (SubscriptionID, error) {
	if fn == nil {
		return "", ErrNilObserver
	}

	o := &observer{
		id: SubscriptionID(uuid.NewString()),
		fn: fn,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.queue != nil {
		o.done = make(chan struct{})
	}

	t.obsMu.Lock()
	if t.closed {
		t.obsMu.Unlock()
		return "", ErrClosed
	}
	t.observers = append(t.observers, o)
	t.obsMu.Unlock()

	if o.queue != nil {
		go t.drain(o)
	}

	t.logger.Debug("state observer subscribed", "subscription", o.id, "async", o.queue != nil)
	return o.id, nil
}

// Unsubscribe removes an observer. It returns false if id is unknown.
// Changes already queued for an async observer are still delivered.
func (t *Table) Unsubscribe(id SubscriptionID) bool {
	t.obsMu.Lock()
	var removed *observer
	for i, o := range t.observers {
		if o.id == id {
			removed = o
			t.observers = append(t.observers[:i:i], t.observers[i+1:]...)
			break
		}
	}
	if removed != nil && removed.queue != nil {
		close(removed.queue)
	}
	t.obsMu.Unlock()

	if removed == nil {
		return false
	}
	t.logger.Debug("state observer unsubscribed", "subscription", id)
	return true
}

// ObserverCount returns the number of registered observers.
func (t *Table) ObserverCount() int {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	return len(t.observers)
}

// Close unregisters every observer and waits for async observers to finish
// their queued changes. The table remains usable for reads and writes, but
// no further notifications are delivered and Subscribe returns ErrClosed.
//
// Close must not be called from an async observer: it would wait for that
// observer's own queue to finish. An observer that wants to stop itself
// calls Unsubscribe, which does not wait.
func (t *Table) Close() {
	t.obsMu.Lock()
	if t.closed {
		t.obsMu.Unlock()
		return
	}
	t.closed = true
	observers := t.observers
	t.observers = nil
	for _, o := range observers {
		if o.queue != nil {
			close(o.queue)
		}
	}
	t.obsMu.Unlock()

	for _, o := range observers {
		if o.done != nil {
			<-o.done
		}
	}
}

// enqueue hands c to every async observer without blocking and returns the
// synchronous observers for the caller to invoke. Update calls it while
// holding the table write lock. The observer read lock stops Unsubscribe
// from closing a queue mid-send.
func (t *Table) enqueue(c Change) []*observer {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()

	var direct []*observer
	for _, o := range t.observers {
		if o.queue == nil {
			direct = append(direct, o)
			continue
		}
		select {
		case o.queue <- c:
		default:
			t.logger.Warn("state observer queue full, change dropped",
				"subscription", o.id,
				"key", c.Key,
			)
		}
	}
	return direct
}

// drain runs an async observer until its queue is closed.
func (t *Table) drain(o *observer) {
	defer close(o.done)
	for c := range o.queue {
		t.call(o, c)
	}
}

// call invokes an observer, recovering from panics so one faulty observer
// cannot break the writer or the others.
func (t *Table) call(o *observer, c Change) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("state observer panic recovered",
				"subscription", o.id,
				"key", c.Key,
				"panic", r,
			)
		}
	}()
	o.fn(c)
}
