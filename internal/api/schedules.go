package api

import "net/http"

// handleListSchedules returns the scheduled commands with their next and
// previous run times.
func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	if s.schedules == nil {
		writeUnavailable(w, "scheduler is not enabled")
		return
	}
	jobs := s.schedules.Jobs()
	writeJSON(w, http.StatusOK, map[string]any{"schedules": jobs, "count": len(jobs)})
}
