package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePointWithTime queues a point with an explicit timestamp.
//
// The write is non-blocking: points are batched and flushed in the
// background according to batch_size and flush_interval. Points written
// while disconnected are dropped.
//
// Parameters:
//   - measurement: The measurement name (e.g., "state_changes")
//   - tags: Indexed, low-cardinality labels (room, key)
//   - fields: The recorded data
//   - timestamp: When the change happened
//
// Example:
//
//	client.WritePointWithTime("state_changes",
//	    map[string]string{"room": "boardroom-2", "key": "RoomController:room:Volume"},
//	    map[string]interface{}{"value": "60", "numeric": 60.0},
//	    time.Now())
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

// WritePoint queues a point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}
