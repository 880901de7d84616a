package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

const (
	defaultPrefix = "tellstick"

	reconnectWait  = 2 * time.Second
	maxReconnects  = -1
	commandTimeout = 10 * time.Second

	statusOK    = "ok"
	statusError = "error"
)

// Sentinel errors.
var (
	ErrNoConn         = errors.New("sink: nats connection is required")
	ErrInvalidRequest = errors.New("sink: invalid command request")
)

// Conn is the subset of *nats.Conn the sink uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Executor sends switch commands. Satisfied by *controller.Session.
type Executor interface {
	Execute(ctx context.Context, req controller.CommandRequest) error
}

// Logger is the structured logging interface used by the sink.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// CommandMessage is the JSON body of a command request.
type CommandMessage struct {
	Protocol string `json:"protocol"`
	Model    string `json:"model,omitempty"`
	House    string `json:"house"`
	Unit     int    `json:"unit,omitempty"`
	Method   string `json:"method"`
	Param    int    `json:"param,omitempty"`
}

// Request converts the message into a session command.
func (m CommandMessage) Request() (controller.CommandRequest, error) {
	if m.Protocol == "" || m.House == "" {
		return controller.CommandRequest{}, fmt.Errorf("%w: protocol and house are required", ErrInvalidRequest)
	}
	method, err := protocol.ParseMethod(m.Method)
	if err != nil {
		return controller.CommandRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return controller.CommandRequest{
		Protocol: m.Protocol,
		Model:    m.Model,
		House:    m.House,
		Unit:     m.Unit,
		Method:   method,
		Param:    m.Param,
	}, nil
}

// Reply is the answer to a command request.
type Reply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Stats are the sink counters.
type Stats struct {
	Published     uint64 `json:"published"`
	PublishErrors uint64 `json:"publish_errors"`
	Commands      uint64 `json:"commands"`
	CommandErrors uint64 `json:"command_errors"`
}

// Sink publishes events to NATS and serves command requests.
//
// Thread Safety: All methods are safe for concurrent use.
type Sink struct {
	conn   Conn
	prefix string
	exec   Executor

	mu  sync.Mutex
	sub *nats.Subscription

	published     atomic.Uint64
	publishErrors atomic.Uint64
	commands      atomic.Uint64
	commandErrors atomic.Uint64

	logger Logger
}

// New returns a sink publishing under prefix. An empty prefix uses
// "tellstick".
func New(conn Conn, prefix string, logger Logger) (*Sink, error) {
	if conn == nil {
		return nil, ErrNoConn
	}
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Sink{conn: conn, prefix: prefix, logger: logger}, nil
}

// Connect dials the NATS server in cfg. The connection reconnects
// indefinitely; handlers log disconnects and asynchronous errors.
func Connect(cfg config.NATSConfig, logger Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("tellstick-gateway"),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if logger != nil && err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if logger != nil {
				logger.Info("nats reconnected", "url", nc.ConnectedUrl())
			}
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			if logger != nil {
				logger.Error("nats error", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats %s: %w", cfg.URL, err)
	}
	return nc, nil
}

// EventSubject returns the subject ev is published on.
func (s *Sink) EventSubject(ev protocol.Event) string {
	return s.prefix + ".event." + subjectToken(string(ev.Class)) + "." + subjectToken(ev.Protocol)
}

// CommandSubject returns the subject command requests arrive on.
func (s *Sink) CommandSubject() string {
	return s.prefix + ".command"
}

// Publish sends ev as JSON on its event subject.
func (s *Sink) Publish(ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	subject := s.EventSubject(ev)
	if err := s.conn.Publish(subject, data); err != nil {
		s.publishErrors.Add(1)
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	s.published.Add(1)
	return nil
}

// Serve subscribes to the command subject and executes requests with exec
// until Close.
func (s *Sink) Serve(exec Executor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		return nil
	}
	s.exec = exec
	sub, err := s.conn.Subscribe(s.CommandSubject(), s.handleCommand)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.CommandSubject(), err)
	}
	s.sub = sub
	s.logInfo("nats command subscription active", "subject", s.CommandSubject())
	return nil
}

// Close removes the command subscription. The connection is left open.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		_ = s.sub.Unsubscribe() //nolint:errcheck // Best effort on shutdown
		s.sub = nil
	}
}

// Stats returns the current counters.
func (s *Sink) Stats() Stats {
	return Stats{
		Published:     s.published.Load(),
		PublishErrors: s.publishErrors.Load(),
		Commands:      s.commands.Load(),
		CommandErrors: s.commandErrors.Load(),
	}
}

func (s *Sink) handleCommand(msg *nats.Msg) {
	s.mu.Lock()
	exec := s.exec
	s.mu.Unlock()

	err := s.execute(exec, msg.Data)
	if err != nil {
		s.commandErrors.Add(1)
		s.logWarn("nats command rejected", "error", err)
	} else {
		s.commands.Add(1)
	}

	if msg.Reply == "" {
		return
	}
	reply := Reply{Status: statusOK}
	if err != nil {
		reply = Reply{Status: statusError, Error: err.Error()}
	}
	data, _ := json.Marshal(reply) //nolint:errcheck // Reply always encodes
	if err := s.conn.Publish(msg.Reply, data); err != nil {
		s.logWarn("nats reply failed", "subject", msg.Reply, "error", err)
	}
}

func (s *Sink) execute(exec Executor, data []byte) error {
	if exec == nil {
		return errors.New("sink: no executor")
	}
	var m CommandMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req, err := m.Request()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := exec.Execute(ctx, req); err != nil {
		return fmt.Errorf("executing %s %s: %w", req.Key(), req.Method, err)
	}
	s.logDebug("nats command executed", "device", req.Key(), "method", req.Method.String())
	return nil
}

// subjectToken makes s safe as a single subject token.
func subjectToken(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}

func (s *Sink) logInfo(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Info(msg, keysAndValues...)
	}
}

func (s *Sink) logWarn(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, keysAndValues...)
	}
}

func (s *Sink) logDebug(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, keysAndValues...)
	}
}
