package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemInfo represents the complete system status response.
type SystemInfo struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	MQTT          *MQTTMetrics   `json:"mqtt,omitempty"`
	Session       sessionStats   `json:"session"`
	Devices       DeviceMetrics  `json:"devices"`
	Journal       *JournalInfo   `json:"journal,omitempty"`
	Schedules     int            `json:"schedules"`
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

// MQTTMetrics contains Home Assistant bridge statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
	Entities  int  `json:"entities"`
}

// DeviceMetrics counts the transmitters and sensors heard this session.
type DeviceMetrics struct {
	Seen    int            `json:"seen"`
	ByClass map[string]int `json:"by_class"`
}

// JournalInfo describes the capture journal.
type JournalInfo struct {
	Packets int64  `json:"packets"`
	Error   string `json:"error,omitempty"`
}

// handleSystem returns runtime and component statistics.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := SystemInfo{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
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
		Session: newSessionStats(s.session.MAC(), s.session.Stats()),
	}

	seen := s.session.Devices()
	info.Devices = DeviceMetrics{
		Seen:    len(seen),
		ByClass: make(map[string]int),
	}
	for _, ev := range seen {
		info.Devices.ByClass[string(ev.Class)]++
	}

	if s.bridge != nil {
		info.MQTT = &MQTTMetrics{
			Connected: s.bridge.Connected(),
			Entities:  len(s.bridge.Entities()),
		}
	}

	if s.journal != nil {
		info.Journal = &JournalInfo{}
		count, err := s.journal.Count(r.Context())
		if err != nil {
			info.Journal.Error = err.Error()
		}
		info.Journal.Packets = count
	}

	if s.schedules != nil {
		info.Schedules = len(s.schedules.Jobs())
	}

	writeJSON(w, http.StatusOK, info)
}
