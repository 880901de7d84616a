package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// Bridge publishes decoded Tellstick traffic as Home Assistant entities
// and forwards Home Assistant commands to the session.
// It handles:
//   - Discovery configs for command entities at start, and for sensor
//     quantities on their first reading
//   - State and availability updates for received events
//   - Commands on set topics, with acknowledgements
//   - Health reporting and availability timeouts
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg     *Config
	mqtt    MQTTClient
	session Executor
	health  *HealthReporter
	topics  mqtt.Topics
	device  DeviceInfo

	// Configured entities, in file order. Immutable after NewBridge.
	entities []*entity
	commands map[string]*entity // uid -> command entity

	// Spawned sensor quantities and per-entity state.
	mu     sync.RWMutex
	items  map[string]*entity
	states map[string]*entityState

	// Shutdown coordination
	done      chan struct{}
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	now func() time.Time

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the structured logging interface used by the bridge.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and is satisfied by *mqtt.Client.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Executor runs commands on the appliance. Satisfied by *controller.Session.
type Executor interface {
	Execute(ctx context.Context, req controller.CommandRequest) error
	Stats() controller.Stats
}

// entityState is what the bridge last published for an entity.
type entityState struct {
	state     string
	available bool
	lastSeen  time.Time
}

// EntitySnapshot is the externally visible view of one entity.
type EntitySnapshot struct {
	UniqueID  string    `json:"unique_id"`
	Name      string    `json:"name"`
	Class     string    `json:"class"`
	Component string    `json:"component"`
	Protocol  string    `json:"protocol"`
	Model     string    `json:"model,omitempty"`
	State     string    `json:"state,omitempty"`
	Available bool      `json:"available"`
	LastSeen  time.Time `json:"last_seen,omitzero"`
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration.
	Config *Config

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// Session executes commands and provides statistics.
	Session Executor

	// MAC is the appliance MAC address, used in every topic.
	MAC string

	// Version is reported in health messages and discovery device info.
	Version string

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if opts.MAC == "" {
		return nil, fmt.Errorf("appliance MAC is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	topics := opts.Config.Topics(opts.MAC)

	b := &Bridge{
		cfg:     opts.Config,
		mqtt:    opts.MQTTClient,
		session: opts.Session,
		topics:  topics,
		device: DeviceInfo{
			Identifiers:  []string{topics.NodeID()},
			Name:         "Tellstick Net " + opts.MAC,
			Manufacturer: "Telldus",
			Model:        "Tellstick Net",
			SWVersion:    opts.Version,
		},
		commands:  make(map[string]*entity),
		items:     make(map[string]*entity),
		states:    make(map[string]*entityState),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		now:       time.Now,
		logger:    opts.Logger,
	}

	for _, ec := range opts.Config.Entities {
		e := newEntity(ec, "")
		b.entities = append(b.entities, e)
		if e.isCommand() {
			b.commands[e.UniqueID()] = e
		}
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   opts.Version,
		Topic:     topics.Health(),
		Interval:  opts.Config.GetHealthInterval(),
		Publisher: opts.MQTTClient,
		Session:   opts.Session,
		OnTick:    b.expireStale,
	})
	b.health.SetEntityCount(len(b.commands))
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start announces command entities, subscribes to their set topics and
// starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	// Commands are visible directly, sensors when data is available.
	for _, e := range b.entities {
		if e.isCommand() {
			b.publishDiscovery(e)
		}
	}

	setTopic := b.topics.AllSets()
	if err := b.mqtt.Subscribe(setTopic, 1, b.handleSet); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", setTopic)

	b.health.Start(ctx)
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish healthy status", err)
	}

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"entities", len(b.entities))

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()

		// Publishes "stopping" status
		b.health.Stop()

		b.logInfo("bridge stopped")
	})
}

// HandleEvent publishes ev to every entity it addresses and reports
// whether there was any.
func (b *Bridge) HandleEvent(ev protocol.Event) bool {
	matched := false
	for _, e := range b.entities {
		if !e.IsRecipient(ev) {
			continue
		}
		matched = true
		b.logDebug("entity receives event", "entity", e.UniqueID(), "device", ev.DeviceKey())

		if e.isCommand() {
			b.publishAvailability(e, true)
			b.publishState(e, e.fromRadio(ev.Method).String())
			continue
		}
		for _, v := range ev.Data {
			item, created := b.sensorItem(e, v.Name)
			if created {
				b.publishDiscovery(item)
			}
			b.publishAvailability(item, true)
			b.publishState(item, strconv.FormatFloat(v.Value, 'f', -1, 64))
		}
	}

	if !matched {
		b.logInfo("skipped packet", "class", string(ev.Class), "device", ev.DeviceKey())
	}
	return matched
}

// Command sends method to the command entity named by ref, its unique id
// or its configured name. The new state is republished to every command
// entity addressing the same device.
func (b *Bridge) Command(ctx context.Context, ref string, method protocol.Method, param int) error {
	e, err := b.lookupCommand(ref)
	if err != nil {
		return err
	}

	req := e.request(method, param)
	if err := b.session.Execute(ctx, req); err != nil {
		return fmt.Errorf("executing %s on %s: %w", method, e.UniqueID(), err)
	}

	key := e.deviceKey()
	for _, sib := range b.entities {
		if sib.isCommand() && sib.deviceKey() == key {
			b.publishState(sib, sib.fromRadio(req.Method).String())
		}
	}
	return nil
}

// Entities returns a snapshot of the command entities and spawned sensor
// quantities, sorted by unique id.
func (b *Bridge) Entities() []EntitySnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]EntitySnapshot, 0, len(b.commands)+len(b.items))
	for _, e := range b.commands {
		out = append(out, b.snapshotLocked(e))
	}
	for _, e := range b.items {
		out = append(out, b.snapshotLocked(e))
	}
	slices.SortFunc(out, func(a, c EntitySnapshot) int {
		return strings.Compare(a.UniqueID, c.UniqueID)
	})
	return out
}

// Lookup finds a command entity by unique id or name.
func (b *Bridge) Lookup(ref string) (EntitySnapshot, bool) {
	e, err := b.lookupCommand(ref)
	if err != nil {
		return EntitySnapshot{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked(e), true
}

// Connected reports whether the MQTT client is connected.
func (b *Bridge) Connected() bool {
	return b.mqtt.IsConnected()
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

// handleSet processes a payload published on an entity's set topic.
func (b *Bridge) handleSet(topic string, payload []byte) error {
	uid, ok := b.topics.UIDFromSet(topic)
	if !ok {
		return fmt.Errorf("unexpected command topic %q", topic)
	}

	b.logInfo("got message", "topic", topic, "payload", string(payload))

	cmd, err := ParseCommandMessage(payload)
	if err != nil {
		b.logWarn("unparseable command", "entity", uid, "error", err)
		b.publishAck(uid, NewAckError(cmd, uid, ErrCodeInvalidCommand, err.Error()))
		return nil
	}

	method, err := protocol.ParseMethod(cmd.Method)
	if err != nil {
		b.logWarn("unknown method", "entity", uid, "method", cmd.Method)
		b.publishAck(uid, NewAckError(cmd, uid, ErrCodeInvalidCommand, err.Error()))
		return nil
	}

	if err := b.Command(b.ctx, uid, method, cmd.Param); err != nil {
		code := ErrCodeSessionError
		if errors.Is(err, ErrUnknownEntity) || errors.Is(err, ErrNotCommandEntity) {
			code = ErrCodeNotConfigured
		}
		b.logWarn("command failed", "entity", uid, "error", err)
		b.publishAck(uid, NewAckError(cmd, uid, code, err.Error()))
		return nil
	}

	b.publishAck(uid, NewAckMessage(cmd, uid, AckAccepted))
	return nil
}

// lookupCommand resolves a unique id or entity name to a command entity.
func (b *Bridge) lookupCommand(ref string) (*entity, error) {
	if e, ok := b.commands[ref]; ok {
		return e, nil
	}
	for _, e := range b.entities {
		if e.cfg.Name != ref && e.UniqueID() != ref {
			continue
		}
		if !e.isCommand() {
			return nil, fmt.Errorf("%w: %s", ErrNotCommandEntity, ref)
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, ref)
}

// sensorItem returns the entity for one quantity of a sensor entity,
// creating it on first use.
func (b *Bridge) sensorItem(parent *entity, name string) (*entity, bool) {
	item := newEntity(parent.cfg, name)
	uid := item.UniqueID()

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.items[uid]; ok {
		return existing, false
	}
	b.items[uid] = item
	b.health.SetEntityCount(len(b.commands) + len(b.items))
	return item, true
}

// expireStale marks sensor quantities offline when their entity has an
// availability timeout and nothing was heard within it.
func (b *Bridge) expireStale(now time.Time) {
	var stale []*entity

	b.mu.RLock()
	for uid, item := range b.items {
		timeout := time.Duration(item.cfg.AvailabilityTimeout) * time.Second
		st, ok := b.states[uid]
		if timeout <= 0 || !ok || !st.available {
			continue
		}
		if now.Sub(st.lastSeen) > timeout {
			stale = append(stale, item)
		}
	}
	b.mu.RUnlock()

	for _, item := range stale {
		b.logInfo("marking entity unavailable", "entity", item.UniqueID())
		b.publishAvailability(item, false)
	}
}

func (b *Bridge) publishDiscovery(e *entity) {
	payload, err := json.Marshal(e.discoveryConfig(b.topics, b.device))
	if err != nil {
		b.logError("failed to marshal discovery config", err)
		return
	}
	b.publish(b.topics.Discovery(e.cfg.Component, e.UniqueID()), payload, true)
	b.publishAvailability(e, true)
}

// publishAvailability is retained for command entities only.
func (b *Bridge) publishAvailability(e *entity, online bool) {
	uid := e.UniqueID()
	payload := mqtt.PayloadOffline
	if online {
		payload = mqtt.PayloadOnline
	}

	b.mu.Lock()
	b.stateLocked(uid).available = online
	b.mu.Unlock()

	b.publish(b.topics.Avail(uid), []byte(payload), e.isCommand())
}

func (b *Bridge) publishState(e *entity, state string) {
	uid := e.UniqueID()

	b.mu.Lock()
	st := b.stateLocked(uid)
	st.state = state
	st.lastSeen = b.now()
	b.mu.Unlock()

	b.logDebug("state", "entity", uid, "state", state)
	b.publish(b.topics.State(uid), []byte(state), false)
}

func (b *Bridge) publishAck(uid string, ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	b.publish(b.topics.Ack(uid), payload, false)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if err := b.mqtt.Publish(topic, payload, 1, retained); err != nil {
		b.logWarn("failure to publish", "topic", topic, "error", err)
	}
}

// stateLocked returns the state record for uid. b.mu must be held.
func (b *Bridge) stateLocked(uid string) *entityState {
	st, ok := b.states[uid]
	if !ok {
		st = &entityState{}
		b.states[uid] = st
	}
	return st
}

// snapshotLocked builds the view of e. b.mu must be held.
func (b *Bridge) snapshotLocked(e *entity) EntitySnapshot {
	uid := e.UniqueID()
	snap := EntitySnapshot{
		UniqueID:  uid,
		Name:      e.Name(),
		Class:     e.cfg.Class,
		Component: e.cfg.Component,
		Protocol:  e.cfg.Protocol,
		Model:     e.cfg.Model,
	}
	if st, ok := b.states[uid]; ok {
		snap.State = st.state
		snap.Available = st.available
		snap.LastSeen = st.lastSeen
	}
	return snap
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}
