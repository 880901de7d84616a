package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
)

// corsMaxAge is the preflight cache lifetime in seconds.
const corsMaxAge = 300

// defaultWSPath is used when websocket.path is empty.
const defaultWSPath = "/ws"


// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(cors.Handler(s.corsOptions()))
	r.Use(s.bodySizeLimitMiddleware)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/seen", s.handleListSeen)
			r.Get("/{ref}", s.handleGetDevice)
		})

		r.Get("/packets", s.handleListPackets)
		r.Get("/schedules", s.handleListSchedules)

		// WebSocket (auth via ticket, validated in handler)
		r.Get(s.wsPath(), s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/commands", s.handleCommand)
			r.Post("/auth/ws-ticket", s.handleWSTicket)
		})
	})

	return r
}

// wsPath returns the WebSocket route below /api/v1.
func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return defaultWSPath
	}
	if !strings.HasPrefix(s.wsCfg.Path, "/") {
		return "/" + s.wsCfg.Path
	}
	return s.wsCfg.Path
}

// corsOptions maps the CORS configuration onto go-chi/cors. An empty
// origin list allows all origins.
func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: s.cfg.CORS.AllowedMethods,
		AllowedHeaders: s.cfg.CORS.AllowedHeaders,
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         corsMaxAge,
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if len(opts.AllowedMethods) == 0 {
		opts.AllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	if len(opts.AllowedHeaders) == 0 {
		opts.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	return opts
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Session       sessionStats `json:"session"`
	MQTTConnected *bool        `json:"mqtt_connected,omitempty"`
}

type sessionStats struct {
	State              string    `json:"state"`
	MAC                string    `json:"mac"`
	PacketsRx          uint64    `json:"packets_rx"`
	PacketsDropped     uint64    `json:"packets_dropped"`
	DecodeErrors       uint64    `json:"decode_errors"`
	Registrations      uint64    `json:"registrations"`
	RegistrationErrors uint64    `json:"registration_errors"`
	CommandsTx         uint64    `json:"commands_tx"`
	SendErrors         uint64    `json:"send_errors"`
	Superseded         uint64    `json:"superseded"`
	LastActivity       time.Time `json:"last_activity,omitzero"`
	LastRegistration   time.Time `json:"last_registration,omitzero"`
}

func newSessionStats(mac string, s controller.Stats) sessionStats {
	return sessionStats{
		State:              s.State.String(),
		MAC:                mac,
		PacketsRx:          s.PacketsRx,
		PacketsDropped:     s.PacketsDropped,
		DecodeErrors:       s.DecodeErrors,
		Registrations:      s.Registrations,
		RegistrationErrors: s.RegistrationErrors,
		CommandsTx:         s.CommandsTx,
		SendErrors:         s.SendErrors,
		Superseded:         s.Superseded,
		LastActivity:       s.LastActivity,
		LastRegistration:   s.LastRegistration,
	}
}

// handleHealth returns the session state. The status is "degraded" when
// the session is not listening or the MQTT bridge is disconnected.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Session:       newSessionStats(s.session.MAC(), s.session.Stats()),
	}
	if s.session.State() != controller.StateListening {
		resp.Status = "degraded"
	}
	if s.bridge != nil {
		connected := s.bridge.Connected()
		resp.MQTTConnected = &connected
		if !connected {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
