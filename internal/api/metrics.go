package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-statestore/internal/bridge"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Room          string            `json:"room"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	WebSocket     WSMetrics         `json:"websocket"`
	Table         TableMetrics      `json:"table"`
	Bridge        *bridge.Stats     `json:"bridge,omitempty"`
	Telemetry     *TelemetryMetrics `json:"telemetry,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// TableMetrics contains state table statistics.
type TableMetrics struct {
	States    int `json:"states"`
	Observers int `json:"observers"`
}

// TelemetryMetrics contains InfluxDB recorder statistics.
type TelemetryMetrics struct {
	PointsWritten uint64 `json:"points_written"`
	WriteErrors   uint64 `json:"write_errors"`
}

// handleMetrics returns runtime, table, and integration counters.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		Room:          s.roomID,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		Table: TableMetrics{
			States:    s.table.Len(),
			Observers: s.table.ObserverCount(),
		},
	}

	if s.bridge != nil {
		stats := s.bridge.Stats()
		metrics.Bridge = &stats
	}

	if s.telemetry != nil {
		metrics.Telemetry = &TelemetryMetrics{
			PointsWritten: s.telemetry.Written(),
			WriteErrors:   s.telemetry.WriteErrors(),
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
