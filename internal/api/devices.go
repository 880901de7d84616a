package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tellstick/internal/bridges/hass"
)

// handleListDevices returns the configured Home Assistant entities and
// their last known state.
//
// Query parameters:
//   - class: filter by entity class (command, sensor)
//   - protocol: filter by protocol (arctech, fineoffset, etc.)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "home assistant bridge is not enabled")
		return
	}

	class := r.URL.Query().Get("class")
	proto := r.URL.Query().Get("protocol")

	entities := s.bridge.Entities()
	out := make([]hass.EntitySnapshot, 0, len(entities))
	for _, e := range entities {
		if class != "" && e.Class != class {
			continue
		}
		if proto != "" && e.Protocol != proto {
			continue
		}
		out = append(out, e)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": out, "count": len(out)})
}

// handleListSeen returns the latest event of every transmitter and sensor
// heard since the session started.
func (s *Server) handleListSeen(w http.ResponseWriter, _ *http.Request) {
	seen := s.session.Devices()
	writeJSON(w, http.StatusOK, map[string]any{"devices": seen, "count": len(seen)})
}

// handleGetDevice returns a single entity by unique id or name.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	if s.bridge == nil {
		writeUnavailable(w, "home assistant bridge is not enabled")
		return
	}

	ref := chi.URLParam(r, "ref")
	if e, ok := s.bridge.Lookup(ref); ok {
		writeJSON(w, http.StatusOK, e)
		return
	}

	// Lookup only resolves command entities; sensor quantities are matched
	// by unique id.
	for _, e := range s.bridge.Entities() {
		if e.UniqueID == ref {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeNotFound(w, "device not found")
}
