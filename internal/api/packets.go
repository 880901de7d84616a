package api

import (
	"net/http"
	"strconv"
)

// Packet listing limits.
const (
	defaultPacketLimit = 50
	maxPacketLimit     = 1000
)

// handleListPackets returns the most recent journal entries, newest first.
//
// Query parameters:
//   - limit: number of packets (default 50, max 1000)
func (s *Server) handleListPackets(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeUnavailable(w, "capture journal is not enabled")
		return
	}

	limit := defaultPacketLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPacketLimit)
	}

	ctx := r.Context()
	packets, err := s.journal.Recent(ctx, limit)
	if err != nil {
		s.logger.Error("listing packets failed", "error", err)
		writeInternalError(w, "failed to list packets")
		return
	}
	total, err := s.journal.Count(ctx)
	if err != nil {
		s.logger.Error("counting packets failed", "error", err)
		writeInternalError(w, "failed to count packets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"packets": packets,
		"count":   len(packets),
		"total":   total,
	})
}
