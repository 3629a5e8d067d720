package telemetry

import (
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-statestore/internal/statestore"
)

// Measurement is the InfluxDB measurement state changes are written to.
const Measurement = "state_changes"

// PointWriter queues time-series points. Satisfied by *influxdb.Client.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
}

// Recorder writes state changes for one room to a PointWriter.
type Recorder struct {
	writer  PointWriter
	room    string
	written atomic.Uint64
}

// NewRecorder creates a Recorder tagging every point with room.
func NewRecorder(writer PointWriter, room string) *Recorder {
	return &Recorder{writer: writer, room: room}
}

// Attach subscribes the recorder to table with an async queue of buffer
// changes, so slow writes never hold up Update.
func (r *Recorder) Attach(table *statestore.Table, buffer int) (statestore.SubscriptionID, error) {
	return table.Subscribe(r.Observe, statestore.WithAsync(buffer))
}

// Observe writes one point for c. It is a statestore.Observer.
func (r *Recorder) Observe(c statestore.Change) {
	fields := map[string]interface{}{
		"value": c.Value,
	}
	if n, ok := numericValue(c.Value); ok {
		fields["numeric"] = n
	}

	at := c.At
	if at.IsZero() {
		at = time.Now()
	}

	r.writer.WritePointWithTime(Measurement,
		map[string]string{
			"room": r.room,
			"key":  c.Key,
		},
		fields,
		at,
	)
	r.written.Add(1)
}

// Written returns the number of points handed to the writer.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// WriteErrors returns the writer's count of failed batch writes, or zero
// when the writer does not track them.
func (r *Recorder) WriteErrors() uint64 {
	if ec, ok := r.writer.(interface{ WriteErrors() uint64 }); ok {
		return ec.WriteErrors()
	}
	return 0
}

// numericValue interprets a canonical value string as a float.
// Booleans map to 1 and 0. NaN and infinities are rejected because
// InfluxDB cannot store them.
func numericValue(s string) (float64, bool) {
	switch s {
	case "True":
		return 1, true
	case "False":
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
