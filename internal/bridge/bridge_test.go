package bridge

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-statestore/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-statestore/internal/statestore"
)

const testRoom = "boardroom-2"

// =============================================================================
// Test doubles
// =============================================================================

type fakeMQTT struct {
	mu           sync.Mutex
	handlers     map[string]mqtt.MessageHandler
	last         map[string]string
	retained     map[string]bool
	unsubscribed []string
	subscribeErr map[string]error
}

func newFakeMQTT() *fakeMQTT {
	return &fakeMQTT{
		handlers:     make(map[string]mqtt.MessageHandler),
		last:         make(map[string]string),
		retained:     make(map[string]bool),
		subscribeErr: make(map[string]error),
	}
}

func (f *fakeMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last[topic] = string(payload)
	f.retained[topic] = retained
	return nil
}

func (f *fakeMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.subscribeErr[topic]; err != nil {
		return err
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeMQTT) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	f.unsubscribed = append(f.unsubscribed, topic)
	return nil
}

func (f *fakeMQTT) deliver(t *testing.T, topic, payload string) error {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no handler subscribed to %s", topic)
	}
	return handler(topic, []byte(payload))
}

func (f *fakeMQTT) message(topic string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.last[topic]
	return msg, ok
}

func (f *fakeMQTT) isRetained(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retained[topic]
}

func (f *fakeMQTT) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

var topics = mqtt.Topics{Room: testRoom}

func newStartedBridge(t *testing.T) (*Bridge, *statestore.Table, *fakeMQTT) {
	t.Helper()
	table := statestore.New()
	client := newFakeMQTT()
	b, err := New(Options{Table: table, MQTT: client, Room: testRoom, QoS: 1, Buffer: 64})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		b.Stop()
		table.Close()
	})
	return b, table, client
}

// waitForMessage polls until topic carries a payload containing want.
func waitForMessage(t *testing.T, client *fakeMQTT, topic, want string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		msg, ok := client.message(topic)
		if ok && strings.Contains(msg, want) {
			return msg
		}
		if time.Now().After(deadline) {
			t.Fatalf("topic %s: got %q, want payload containing %q", topic, msg, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// =============================================================================
// Construction and lifecycle
// =============================================================================

func TestNew_Validation(t *testing.T) {
	table := statestore.New()
	client := newFakeMQTT()

	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{"missing table", Options{MQTT: client, Room: testRoom}, ErrMissingTable},
		{"missing client", Options{Table: table, Room: testRoom}, ErrMissingClient},
		{"missing room", Options{Table: table, MQTT: client}, ErrMissingRoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.opts); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	b, err := New(Options{Table: table, MQTT: client, Room: testRoom})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.buffer != defaultBuffer {
		t.Errorf("buffer = %d, want default %d", b.buffer, defaultBuffer)
	}
}

func TestStart_PublishesExistingState(t *testing.T) {
	table := statestore.New()
	defer table.Close()
	table.Update("RoomController:room:RoomMode", statestore.String("SinglePresentation"))
	table.Update("RoomController:room:Volume", statestore.Int(60))

	client := newFakeMQTT()
	b, _ := New(Options{Table: table, MQTT: client, Room: testRoom})
	if err := b.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	msg, ok := client.message(topics.State("RoomController:room:Volume"))
	if !ok {
		t.Fatal("existing state not published on Start")
	}
	var state StateMessage
	if err := json.Unmarshal([]byte(msg), &state); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if state.Key != "RoomController:room:Volume" || state.Value != "60" || state.Timestamp.IsZero() {
		t.Errorf("state = %+v", state)
	}
	if !client.isRetained(topics.State("RoomController:room:Volume")) {
		t.Error("state message not retained")
	}
}

func TestStart_Idempotent(t *testing.T) {
	b, table, _ := newStartedBridge(t)
	if err := b.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if n := table.ObserverCount(); n != 1 {
		t.Errorf("ObserverCount() = %d, want 1", n)
	}
}

func TestStart_SubscribeFailureRollsBack(t *testing.T) {
	table := statestore.New()
	defer table.Close()
	client := newFakeMQTT()
	client.subscribeErr[topics.Query()] = errors.New("not authorised")

	b, _ := New(Options{Table: table, MQTT: client, Room: testRoom})
	if err := b.Start(); err == nil {
		t.Fatal("Start() expected error")
	}

	if n := table.ObserverCount(); n != 0 {
		t.Errorf("ObserverCount() = %d after failed Start, want 0", n)
	}
	if client.handlerCount() != 0 {
		t.Errorf("%d MQTT handlers left after failed Start", client.handlerCount())
	}
}

func TestStop(t *testing.T) {
	b, table, client := newStartedBridge(t)

	b.Stop()
	b.Stop()

	if client.handlerCount() != 0 {
		t.Errorf("%d MQTT handlers after Stop, want 0", client.handlerCount())
	}
	if n := table.ObserverCount(); n != 0 {
		t.Errorf("ObserverCount() = %d after Stop, want 0", n)
	}
}

func (f *fakeMQTT) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = make(map[string]string)
}

func TestResync_RepublishesSnapshot(t *testing.T) {
	b, table, client := newStartedBridge(t)
	table.Update("RoomController:room:RoomMode", statestore.String("SinglePresentation"))
	waitForMessage(t, client, topics.State("RoomController:room:RoomMode"), "SinglePresentation")

	client.reset()
	b.Resync()

	if _, ok := client.message(topics.State("RoomController:room:RoomMode")); !ok {
		t.Error("Resync() did not republish RoomMode")
	}
}

func TestResync_ConcurrentUpdatesLeaveLatestRetained(t *testing.T) {
	const (
		key       = "RoomController:room:Volume"
		writers   = 4
		perWriter = 10
	)
	b, table, client := newStartedBridge(t)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				table.Update(key, statestore.Int(int64(w*perWriter+i)))
			}
		}(w)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			b.Resync()
		}
	}()
	wg.Wait()
	<-done

	// Close drains the observer queue.
	table.Close()

	stored, _ := table.Get(key)
	raw, ok := client.message(topics.State(key))
	if !ok {
		t.Fatal("no retained message for key")
	}
	var msg StateMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal retained message: %v", err)
	}
	if msg.Value != stored {
		t.Errorf("retained value = %q, stored = %q", msg.Value, stored)
	}
}

func TestResync_NotStarted(t *testing.T) {
	table := statestore.New()
	defer table.Close()
	table.Update("RoomController:room:RoomMode", statestore.String("SinglePresentation"))

	client := newFakeMQTT()
	b, _ := New(Options{Table: table, MQTT: client, Room: testRoom})
	b.Resync()

	if _, ok := client.message(topics.State("RoomController:room:RoomMode")); ok {
		t.Error("Resync() published before Start")
	}
}

// =============================================================================
// Outbound state
// =============================================================================

func TestChange_PublishedRetained(t *testing.T) {
	_, table, client := newStartedBridge(t)

	table.Update("RoomController:room:SourceLevel:zoom.pc", statestore.Int(80))

	msg := waitForMessage(t, client, topics.State("RoomController:room:SourceLevel:zoom.pc"), `"value":"80"`)
	if !strings.Contains(msg, `"key":"RoomController:room:SourceLevel:zoom.pc"`) {
		t.Errorf("payload = %s", msg)
	}
}

func TestChange_KeyWithSlashKeepsRawKeyInPayload(t *testing.T) {
	_, table, client := newStartedBridge(t)

	table.Update("Display/Left:Power", statestore.Bool(true))

	msg := waitForMessage(t, client, topics.State("Display/Left:Power"), `"value":"True"`)
	if !strings.Contains(msg, `"key":"Display/Left:Power"`) {
		t.Errorf("payload = %s, want raw key", msg)
	}
	if !strings.HasSuffix(topics.State("Display/Left:Power"), "/state/Display%2FLeft:Power") {
		t.Errorf("topic = %s", topics.State("Display/Left:Power"))
	}
}

// =============================================================================
// Set commands
// =============================================================================

func TestHandleSet_ValueKinds(t *testing.T) {
	tests := []struct {
		payload string
		key     string
		want    string
	}{
		{`{"key":"RoomController:room:RoomMode","value":"Dual"}`, "RoomController:room:RoomMode", "Dual"},
		{`{"key":"RoomController:room:Volume","value":60}`, "RoomController:room:Volume", "60"},
		{`{"key":"RoomController:room:Gain","value":-2.5}`, "RoomController:room:Gain", "-2.5"},
		{`{"key":"RoomController:room:Mute","value":false}`, "RoomController:room:Mute", "False"},
	}

	_, table, client := newStartedBridge(t)
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if err := client.deliver(t, topics.Set(), tt.payload); err != nil {
				t.Fatalf("handleSet() error = %v", err)
			}
			if got, _ := table.Get(tt.key); got != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestHandleSet_WithIDPublishesResult(t *testing.T) {
	b, _, client := newStartedBridge(t)
	payload := `{"id":"set-1","key":"RoomController:room:RoomMode","value":"Dual","source":"panel"}`

	if err := client.deliver(t, topics.Set(), payload); err != nil {
		t.Fatalf("handleSet() error = %v", err)
	}
	msg, _ := client.message(topics.Response("set-1"))
	var result SetResult
	if err := json.Unmarshal([]byte(msg), &result); err != nil {
		t.Fatalf("unmarshal result %q: %v", msg, err)
	}
	if !result.Success || !result.Changed || result.ID != "set-1" {
		t.Errorf("result = %+v, want success and changed", result)
	}

	// Same value again: success, not changed.
	_ = client.deliver(t, topics.Set(), payload)
	msg, _ = client.message(topics.Response("set-1"))
	result = SetResult{}
	_ = json.Unmarshal([]byte(msg), &result)
	if !result.Success || result.Changed {
		t.Errorf("repeat result = %+v, want success without change", result)
	}

	if got := b.Stats().Applied; got != 1 {
		t.Errorf("Stats().Applied = %d, want 1", got)
	}
}

func TestHandleSet_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCode string
	}{
		{"missing key", `{"id":"r","value":"x"}`, ErrCodeInvalidKey},
		{"null value", `{"id":"r","key":"k","value":null}`, ErrCodeInvalidKey},
		{"object value", `{"id":"r","key":"k","value":{"nested":true}}`, ErrCodeUnsupportedValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, table, client := newStartedBridge(t)
			if err := client.deliver(t, topics.Set(), tt.payload); err == nil {
				t.Error("handleSet() expected error")
			}
			msg, _ := client.message(topics.Response("r"))
			if !strings.Contains(msg, `"code":"`+tt.wantCode+`"`) {
				t.Errorf("response = %s, want code %s", msg, tt.wantCode)
			}
			if table.Len() != 0 {
				t.Errorf("table has %d keys after rejected set", table.Len())
			}
		})
	}
}

func TestHandleSet_MalformedJSON(t *testing.T) {
	b, _, client := newStartedBridge(t)

	err := client.deliver(t, topics.Set(), `{not json`)
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("handleSet() error = %v, want ErrInvalidMessage", err)
	}
	if b.Stats().Failures == 0 {
		t.Error("Stats().Failures = 0 after malformed set")
	}
}

// =============================================================================
// Queries
// =============================================================================

func seedRoom(table *statestore.Table) {
	table.Update("RoomController:room:RoomMode", statestore.String("SinglePresentation"))
	table.Update("RoomController:room:SourceLevel:laptop", statestore.Int(60))
	table.Update("RoomController:room:SourceLevel:zoom.pc", statestore.Int(80))
}

func TestHandleQuery_Filter(t *testing.T) {
	_, table, client := newStartedBridge(t)
	seedRoom(table)

	if err := client.deliver(t, topics.Query(), `{"id":"q1","filter":"sourcelevel"}`); err != nil {
		t.Fatalf("handleQuery() error = %v", err)
	}

	msg, _ := client.message(topics.Response("q1"))
	want := `"result":{"states":[` +
		`{"guid":"RoomController:room:SourceLevel:laptop","value":"60"},` +
		`{"guid":"RoomController:room:SourceLevel:zoom.pc","value":"80"}]}`
	if !strings.Contains(msg, want) {
		t.Errorf("response = %s, want %s", msg, want)
	}
	if client.isRetained(topics.Response("q1")) {
		t.Error("query response should not be retained")
	}
}

func TestHandleQuery_EmptyResultIsArray(t *testing.T) {
	_, _, client := newStartedBridge(t)

	_ = client.deliver(t, topics.Query(), `{"id":"q2","filter":"nothing-matches"}`)

	msg, _ := client.message(topics.Response("q2"))
	if !strings.Contains(msg, `"result":{"states":[]}`) || !strings.Contains(msg, `"success":true`) {
		t.Errorf("response = %s", msg)
	}
}

func TestHandleQuery_InvalidPattern(t *testing.T) {
	_, _, client := newStartedBridge(t)

	_ = client.deliver(t, topics.Query(), `{"id":"q3","filter":"("}`)

	msg, _ := client.message(topics.Response("q3"))
	if !strings.Contains(msg, `"code":"invalid_pattern"`) || !strings.Contains(msg, `"success":false`) {
		t.Errorf("response = %s", msg)
	}
}

func TestHandleQuery_Match(t *testing.T) {
	_, table, client := newStartedBridge(t)
	seedRoom(table)

	_ = client.deliver(t, topics.Query(), `{"id":"m1","match":["SourceLevel","zoom"]}`)
	msg, _ := client.message(topics.Response("m1"))
	if !strings.Contains(msg, `"match":{"RoomController:room:SourceLevel:zoom.pc":"80"}`) {
		t.Errorf("response = %s", msg)
	}

	_ = client.deliver(t, topics.Query(), `{"id":"m2","match":["Projector"]}`)
	msg, _ = client.message(topics.Response("m2"))
	if !strings.Contains(msg, `"code":"not_found"`) {
		t.Errorf("response = %s, want not_found", msg)
	}
}

func TestHandleQuery_MissingID(t *testing.T) {
	_, _, client := newStartedBridge(t)

	if err := client.deliver(t, topics.Query(), `{"filter":"x"}`); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("handleQuery() error = %v, want ErrInvalidMessage", err)
	}
}
