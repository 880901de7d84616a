package controller

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/discovery"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/wire"
)

// Default session settings.
const (
	// DefaultCommandPort is the appliance's command and event port.
	DefaultCommandPort = 42314

	// DefaultRegistrationInterval is the reglistener keep-alive period.
	DefaultRegistrationInterval = 10 * time.Minute

	// DefaultReceiveTimeout is the idle period that yields a NoEvent result.
	DefaultReceiveTimeout = 5 * time.Second

	// DefaultRepeatCount is how many times Execute sends a command.
	DefaultRepeatCount = 2

	// DefaultRepeatDelay is the pause between repeated sends.
	DefaultRepeatDelay = time.Second

	// CommandRegister asks the appliance to forward events to the sender.
	CommandRegister = "reglistener"

	// CommandRawData carries a received RF payload.
	CommandRawData = "RawData"

	// CommandZWaveInfo is a diagnostic packet from Znet appliances.
	CommandZWaveInfo = "zwaveinfo"

	readBufferSize  = 2048
	resultQueueSize = 64
)

// State is the session lifecycle state.
type State int32

// Session states.
const (
	StateIdle State = iota
	StateListening
	StateStopped
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Config holds session configuration.
type Config struct {
	// Host is the appliance IP address. Required.
	Host string

	// MAC identifies the appliance. Informational.
	MAC string

	// Port is the appliance command port. Default: 42314.
	Port int

	// ListenAddr is the local bind address. Default: ":42314".
	ListenAddr string

	// RegistrationInterval is the reglistener period. Default: 10 minutes.
	RegistrationInterval time.Duration

	// ReceiveTimeout is the idle period that produces a NoEvent result.
	// Default: 5 seconds.
	ReceiveTimeout time.Duration

	// RepeatCount and RepeatDelay are the Execute defaults.
	// Defaults: 2 and 1 second.
	RepeatCount int
	RepeatDelay time.Duration

	// Registry decodes and encodes RF payloads. Default: protocol.NewRegistry().
	Registry *protocol.Registry

	// Clock drives the registration ticker and repeat delays.
	// Default: the time package.
	Clock Clock

	// Logger is optional.
	Logger Logger
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = DefaultCommandPort
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":" + strconv.Itoa(DefaultCommandPort)
	}
	if c.RegistrationInterval <= 0 {
		c.RegistrationInterval = DefaultRegistrationInterval
	}
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = DefaultReceiveTimeout
	}
	if c.RepeatCount <= 0 {
		c.RepeatCount = DefaultRepeatCount
	}
	if c.RepeatDelay < 0 {
		c.RepeatDelay = 0
	} else if c.RepeatDelay == 0 {
		c.RepeatDelay = DefaultRepeatDelay
	}
	if c.Registry == nil {
		c.Registry = protocol.NewRegistry()
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
}

// Result is one item of the event stream.
//
// The zero Result is the NoEvent marker: nothing arrived within
// ReceiveTimeout. Otherwise Raw holds the datagram, and either Event or Err
// is set, or neither for diagnostic packets such as zwaveinfo.
type Result struct {
	Event    *protocol.Event
	Command  string
	Raw      []byte
	Received time.Time
	Err      error
}

// IsNoEvent reports whether r is the idle marker.
func (r Result) IsNoEvent() bool {
	return r.Event == nil && r.Err == nil && r.Raw == nil
}

// Stats holds operational statistics.
type Stats struct {
	State              State
	PacketsRx          uint64
	PacketsDropped     uint64 // from addresses other than the appliance
	DecodeErrors       uint64
	Registrations      uint64
	RegistrationErrors uint64
	CommandsTx         uint64 // individual datagrams, repeats included
	SendErrors         uint64
	Superseded         uint64
	LastActivity       time.Time
	LastRegistration   time.Time
}

// Session is a listener session with one appliance.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Results are delivered to one consumer; Events and Results share the
//     same channel.
type Session struct {
	cfg    Config
	remote *net.UDPAddr
	logger Logger
	clock  Clock

	state atomic.Int32
	conn  *net.UDPConn

	// Receive side, owned by the receive loop.
	results chan Result
	decoder *protocol.DecoderState

	// Devices seen so far, keyed by protocol.Event.DeviceKey.
	devicesMu sync.RWMutex
	devices   map[string]protocol.Event

	// sendMu serialises datagram writes.
	sendMu sync.Mutex

	// In-flight Execute sequences, keyed by CommandRequest.Key.
	inflightMu sync.Mutex
	inflight   map[string]*dispatch
	closing    bool

	done       chan struct{}
	closeOnce  sync.Once
	loops      sync.WaitGroup
	dispatches sync.WaitGroup

	packetsRx          atomic.Uint64
	packetsDropped     atomic.Uint64
	decodeErrors       atomic.Uint64
	registrations      atomic.Uint64
	registrationErrors atomic.Uint64
	commandsTx         atomic.Uint64
	sendErrors         atomic.Uint64
	superseded         atomic.Uint64
	lastActivity       atomic.Int64 // Unix nanoseconds
	lastRegistration   atomic.Int64 // Unix nanoseconds
}

// New creates an idle session for the appliance at cfg.Host.
func New(cfg Config) (*Session, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	cfg.applyDefaults()

	ip := net.ParseIP(cfg.Host)
	if ip == nil {
		addrs, err := net.LookupIP(cfg.Host)
		if err != nil || len(addrs) == 0 {
			return nil, fmt.Errorf("%w: resolving host %q: %w", ErrInvalidConfig, cfg.Host, err)
		}
		ip = addrs[0]
	}

	return &Session{
		cfg:      cfg,
		remote:   &net.UDPAddr{IP: ip, Port: cfg.Port},
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		results:  make(chan Result, resultQueueSize),
		decoder:  protocol.NewDecoderState(),
		devices:  make(map[string]protocol.Event),
		inflight: make(map[string]*dispatch),
		done:     make(chan struct{}),
	}, nil
}

// NewForDevice creates a session for a discovered appliance.
func NewForDevice(d discovery.Device, cfg Config) (*Session, error) {
	cfg.Host = d.IP.String()
	if cfg.MAC == "" {
		cfg.MAC = d.MAC
	}
	return New(cfg)
}

// Start binds the socket and starts the registration and receive loops.
// The session closes itself when ctx ends.
//
// Returns:
//   - error: ErrAlreadyStarted, ErrSessionClosed, or a bind failure
func (s *Session) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateListening)) {
		if s.State() == StateStopped {
			return ErrSessionClosed
		}
		return ErrAlreadyStarted
	}

	laddr, err := net.ResolveUDPAddr("udp4", s.cfg.ListenAddr)
	if err != nil {
		s.abortStart()
		return fmt.Errorf("resolving listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		s.abortStart()
		return fmt.Errorf("binding %s: %w", s.cfg.ListenAddr, err)
	}

	// Close may have run since the state change. Under sendMu either it
	// sees the socket and releases it, or Start sees done and does.
	s.sendMu.Lock()
	if s.isClosed() {
		s.sendMu.Unlock()
		_ = conn.Close()
		close(s.results)
		return ErrSessionClosed
	}
	s.conn = conn
	s.loops.Add(3) //nolint:mnd // registration, receive, context watch
	s.sendMu.Unlock()

	s.logDebug("listening for signals", "appliance", s.remote.String(), "local", conn.LocalAddr().String())

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })

	go s.registrationLoop()
	go s.receiveLoop()
	go func() {
		defer s.loops.Done()
		<-s.done
		stop()
	}()
	return nil
}

// abortStart returns a failed Start to Idle. If Close ran meanwhile it
// left the result channel to the receive loop, which never started.
func (s *Session) abortStart() {
	if !s.state.CompareAndSwap(int32(StateListening), int32(StateIdle)) {
		close(s.results)
	}
}

// Close stops the session and releases the socket. Pending Execute repeats
// are cancelled between sends. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		wasListening := State(s.state.Swap(int32(StateStopped))) == StateListening

		s.inflightMu.Lock()
		s.closing = true
		for _, d := range s.inflight {
			d.cancel()
		}
		s.inflightMu.Unlock()

		close(s.done)

		// Taking sendMu means no write is in progress.
		s.sendMu.Lock()
		if s.conn != nil {
			err = s.conn.Close()
		}
		s.sendMu.Unlock()

		s.loops.Wait()
		s.dispatches.Wait()

		if !wasListening {
			close(s.results)
		}
		s.logInfo("session closed", "appliance", s.remote.String())
	})
	return err
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// RemoteAddr returns the appliance address.
func (s *Session) RemoteAddr() *net.UDPAddr {
	return s.remote
}

// LocalAddr returns the bound address, or nil before Start.
func (s *Session) LocalAddr() net.Addr {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// MAC returns the configured appliance MAC.
func (s *Session) MAC() string {
	return s.cfg.MAC
}

// Results returns the result channel. It is closed when the session stops.
func (s *Session) Results() <-chan Result {
	return s.results
}

// Events returns the result stream as an iterator. Iteration ends when ctx
// ends, the session stops, or the loop body breaks.
func (s *Session) Events(ctx context.Context) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-s.results:
				if !ok || !yield(r) {
					return
				}
			}
		}
	}
}

// Devices returns the latest event of every transmitter and sensor seen,
// ordered by device key.
func (s *Session) Devices() []protocol.Event {
	s.devicesMu.RLock()
	defer s.devicesMu.RUnlock()

	keys := make([]string, 0, len(s.devices))
	for k := range s.devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]protocol.Event, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.devices[k])
	}
	return out
}

// Stats returns a snapshot of the counters.
func (s *Session) Stats() Stats {
	st := Stats{
		State:              s.State(),
		PacketsRx:          s.packetsRx.Load(),
		PacketsDropped:     s.packetsDropped.Load(),
		DecodeErrors:       s.decodeErrors.Load(),
		Registrations:      s.registrations.Load(),
		RegistrationErrors: s.registrationErrors.Load(),
		CommandsTx:         s.commandsTx.Load(),
		SendErrors:         s.sendErrors.Load(),
		Superseded:         s.superseded.Load(),
	}
	if ns := s.lastActivity.Load(); ns != 0 {
		st.LastActivity = time.Unix(0, ns)
	}
	if ns := s.lastRegistration.Load(); ns != 0 {
		st.LastRegistration = time.Unix(0, ns)
	}
	return st
}

// registrationLoop sends reglistener immediately and then on every tick.
func (s *Session) registrationLoop() {
	defer s.loops.Done()

	s.register()

	ticker := s.clock.NewTicker(s.cfg.RegistrationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C():
			s.register()
		}
	}
}

func (s *Session) register() {
	packet, err := wire.Encode(CommandRegister, nil)
	if err != nil {
		s.logError("encoding reglistener", err)
		return
	}

	s.logInfo("registering as listener", "appliance", s.remote.String())
	if err := s.send(packet); err != nil {
		// Transient; the next tick retries.
		s.registrationErrors.Add(1)
		if !s.isClosed() {
			s.logWarn("registration failed", "error", err)
		}
		return
	}
	s.registrations.Add(1)
	s.lastRegistration.Store(s.clock.Now().UnixNano())
}

// send writes one datagram to the appliance.
func (s *Session) send(packet []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.isClosed() {
		return ErrSessionClosed
	}
	s.logDebug("sending packet", "appliance", s.remote.String(), "packet", string(packet))
	if _, err := s.conn.WriteToUDP(packet, s.remote); err != nil {
		return fmt.Errorf("writing to %s: %w", s.remote, err)
	}
	return nil
}

// receiveLoop is the only reader of the socket.
func (s *Session) receiveLoop() {
	defer s.loops.Done()
	defer close(s.results)

	buf := make([]byte, readBufferSize)
	for {
		if s.isClosed() {
			return
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReceiveTimeout)); err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logError("set read deadline failed", err)
		}

		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.emit(Result{})
				continue
			}
			s.logWarn("receive failed", "error", err)
			continue
		}

		if !from.IP.Equal(s.remote.IP) {
			s.packetsDropped.Add(1)
			s.logDebug("dropping packet from unexpected source", "from", from.String())
			continue
		}

		s.packetsRx.Add(1)
		now := s.clock.Now()
		s.lastActivity.Store(now.UnixNano())

		raw := make([]byte, n)
		copy(raw, buf[:n])
		s.emit(s.handlePacket(raw, now))
	}
}

// handlePacket decodes one datagram from the appliance.
func (s *Session) handlePacket(raw []byte, now time.Time) Result {
	res := Result{Raw: raw, Received: now}

	command, args, err := wire.Decode(raw)
	if err != nil {
		s.decodeErrors.Add(1)
		s.logWarn("undecodable packet", "packet", string(raw), "error", err)
		res.Err = err
		return res
	}
	res.Command = command

	switch command {
	case CommandRawData:
		ev, err := s.cfg.Registry.Decode(s.decoder, args)
		if err != nil {
			s.decodeErrors.Add(1)
			s.logWarn("undecodable RF payload", "packet", string(raw), "error", err)
			res.Err = err
			return res
		}
		ev = ev.Stamp(now)
		s.track(ev)
		res.Event = &ev
	case CommandZWaveInfo:
		s.logInfo("zwaveinfo", "args", args.Native())
	default:
		s.decodeErrors.Add(1)
		res.Err = fmt.Errorf("%w: %q", ErrUnsupportedCommand, command)
		s.logWarn("unsupported command", "command", command, "packet", string(raw))
	}
	return res
}

// track records the latest event per device and logs first sightings.
func (s *Session) track(ev protocol.Event) {
	key := ev.DeviceKey()

	s.devicesMu.Lock()
	_, known := s.devices[key]
	s.devices[key] = ev
	s.devicesMu.Unlock()

	switch {
	case known:
		s.logDebug("updated state", "device", key)
	case ev.IsSensor():
		s.logInfo("discovered new sensor", "device", key)
	default:
		s.logInfo("discovered new controller", "device", key)
	}
}

// emit delivers r unless the session is stopping.
func (s *Session) emit(r Result) {
	select {
	case s.results <- r:
	case <-s.done:
	}
}

func (s *Session) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) logDebug(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logInfo(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Info(msg, keysAndValues...)
	}
}

func (s *Session) logWarn(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, keysAndValues...)
	}
}

func (s *Session) logError(msg string, err error) {
	if s.logger != nil {
		s.logger.Error(msg, "error", err)
	}
}
