package hass

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the MQTT surface the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatsSource provides session statistics.
type StatsSource interface {
	Stats() controller.Stats
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string
	Topic    string

	// Interval between reports; zero means 30 s.
	Interval time.Duration

	Publisher HealthPublisher
	Session   StatsSource

	// OnTick runs before each periodic report. Optional.
	OnTick func(now time.Time)
}

// HealthReporter publishes a retained HealthMessage on the bridge's health
// topic: "starting" at startup, then periodically, then "stopping".
//
// A report is degraded when MQTT is down, the session is not listening, or
// the session's send error count grew since the previous report.
type HealthReporter struct {
	cfg     HealthReporterConfig
	started time.Time

	entities   atomic.Int64
	sendErrors atomic.Uint64

	mu     sync.Mutex
	logger Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// NewHealthReporter returns a reporter; Start begins the periodic reports.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	return &HealthReporter{cfg: cfg, started: time.Now()}
}

// Start reports every interval until ctx ends or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if h.cfg.OnTick != nil {
					h.cfg.OnTick(now)
				}
				if err := h.PublishNow(); err != nil {
					h.logError("publishing health", err)
				}
			}
		}
	}()
}

// Stop ends the periodic reports and publishes "stopping". Later calls do
// nothing.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		cancel := h.cancel
		h.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		h.wg.Wait()

		if err := h.publish(HealthStopping, ""); err != nil {
			h.logError("publishing stopping status", err)
		}
	})
}

// SetEntityCount records how many entities the bridge manages.
func (h *HealthReporter) SetEntityCount(n int) {
	h.entities.Store(int64(n))
}

// SetLogger sets where publish failures are reported.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.mu.Lock()
	h.logger = logger
	h.mu.Unlock()
}

// PublishStarting reports "starting".
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow reports the current status.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.assess()
	return h.publish(status, reason)
}

func (h *HealthReporter) assess() (HealthStatus, string) {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.cfg.Session == nil {
		return HealthDegraded, "no session"
	}

	stats := h.cfg.Session.Stats()
	if stats.State != controller.StateListening {
		return HealthDegraded, "session " + stats.State.String()
	}
	if prev := h.sendErrors.Swap(stats.SendErrors); stats.SendErrors > prev {
		return HealthDegraded, "command send errors"
	}
	return HealthHealthy, ""
}

// publish sends one retained report at QoS 1. Without a publisher it does
// nothing.
func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	var stats controller.Stats
	if h.cfg.Session != nil {
		stats = h.cfg.Session.Stats()
	}
	msg := NewHealthMessage(h.cfg.BridgeID, h.cfg.Version, status, stats, int(h.entities.Load()), h.started)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.mu.Lock()
	logger := h.logger
	h.mu.Unlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
