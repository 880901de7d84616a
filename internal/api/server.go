package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tellstick/internal/bridges/hass"
	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-tellstick/internal/scheduler"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/capture"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// WebSocket channels.
const (
	ChannelEventReceived = "event.received"
	ChannelPacketError   = "packet.error"
	ChannelCommandSent   = "command.sent"
)

// Session is the controller surface used by the API.
// Satisfied by *controller.Session.
type Session interface {
	State() controller.State
	Stats() controller.Stats
	MAC() string
	Devices() []protocol.Event
	Execute(ctx context.Context, req controller.CommandRequest) error
}

// Bridge is the Home Assistant bridge surface used by the API.
// Satisfied by *hass.Bridge.
type Bridge interface {
	Entities() []hass.EntitySnapshot
	Lookup(ref string) (hass.EntitySnapshot, bool)
	Command(ctx context.Context, ref string, method protocol.Method, param int) error
	Connected() bool
}

// PacketStore reads the capture journal. Satisfied by *capture.Journal.
type PacketStore interface {
	Recent(ctx context.Context, limit int) ([]capture.Packet, error)
	Count(ctx context.Context) (int64, error)
}

// ScheduleLister lists scheduled commands. Satisfied by *scheduler.Scheduler.
type ScheduleLister interface {
	Jobs() []scheduler.JobInfo
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Session  Session

	// Optional components. Endpoints backed by a missing component answer
	// 503.
	Bridge    Bridge
	Journal   PacketStore
	Schedules ScheduleLister

	// Metrics is created when nil.
	Metrics *Metrics

	Version string
}

// Server is the HTTP API server of the gateway.
//
// It manages the HTTP listener, routes, middleware, the WebSocket hub and
// the Prometheus registry. The server is created with New() and started
// with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	session   Session
	bridge    Bridge
	journal   PacketStore
	schedules ScheduleLister
	metrics   *Metrics
	version   string
	startTime time.Time

	hub     *Hub
	tickets *ticketStore

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		session:   deps.Session,
		bridge:    deps.Bridge,
		journal:   deps.Journal,
		schedules: deps.Schedules,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
		tickets:   newTicketStore(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)

	if s.metrics == nil {
		s.metrics = NewMetrics(deps.Session, s.hub)
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and ticket cleanup, binds the listener and
// serves in a background goroutine. The server can be stopped with Close().
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		s.server = nil
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	srv := s.server
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = srv.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Metrics returns the Prometheus metrics of the server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Observe records a session result in the metrics and relays it to
// WebSocket subscribers. NoEvent markers are ignored.
func (s *Server) Observe(r controller.Result) {
	if r.IsNoEvent() {
		return
	}
	s.metrics.Observe(r)

	switch {
	case r.Event != nil:
		s.hub.Broadcast(ChannelEventReceived, r.Event)
	case r.Err != nil:
		s.hub.Broadcast(ChannelPacketError, map[string]any{
			"raw":   string(r.Raw),
			"error": r.Err.Error(),
		})
	}
}
