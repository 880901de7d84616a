package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// fakeInflux answers /ping and records line protocol posted to
// /api/v2/write.
type fakeInflux struct {
	*httptest.Server

	mu        sync.Mutex
	lines     []string
	queries   []string
	rejectAll bool
	unhealthy bool
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeInflux) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/ping":
		if f.unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		if f.rejectAll {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":"invalid","message":"rejected by test"}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		f.queries = append(f.queries, r.URL.RawQuery)
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.URL,
		Token:         "tellstick-test-token",
		Org:           "home",
		Bucket:        "rf",
		BatchSize:     100,
		FlushInterval: 60,
	}
}

func connect(t *testing.T, f *fakeInflux, opts ...influxdb.Option) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(f.config(), opts...)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func intp(v int) *int { return &v }

func sensorEvent() protocol.Event {
	return protocol.Event{
		Class:    protocol.ClassSensor,
		Protocol: "fineoffset",
		Model:    "temperaturehumidity",
		SensorID: intp(135),
		Data: []protocol.SensorValue{
			{Name: "temp", Value: 21.5},
			{Name: "humidity", Value: 48},
		},
	}
}

func commandEvent() protocol.Event {
	return protocol.Event{
		Class:    protocol.ClassCommand,
		Protocol: "arctech",
		Model:    "selflearning",
		House:    "1234",
		Unit:     intp(1),
		Method:   protocol.MethodTurnOn,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Failures(t *testing.T) {
	f := newFakeInflux(t)

	tests := []struct {
		name    string
		mutate  func(*config.InfluxDBConfig)
		wantErr error
	}{
		{"disabled", func(c *config.InfluxDBConfig) { c.Enabled = false }, influxdb.ErrDisabled},
		{"unreachable", func(c *config.InfluxDBConfig) { c.URL = "http://127.0.0.1:1" }, influxdb.ErrConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := f.config()
			tt.mutate(&cfg)
			_, err := influxdb.Connect(cfg, influxdb.WithConnectTimeout(2*time.Second))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Connect() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f := newFakeInflux(t)
	f.mu.Lock()
	f.unhealthy = true
	f.mu.Unlock()

	if _, err := influxdb.Connect(f.config()); err == nil {
		t.Error("Connect() error = nil for unhealthy server")
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteEvent(sensorEvent())
	client.Flush()
	if got := len(f.written()); got != 1 {
		t.Errorf("written %d lines, want 1", got)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteEvent(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteEvent(sensorEvent())
	client.WriteEvent(commandEvent())
	client.WriteEvent(protocol.Event{Class: protocol.ClassSensor, Protocol: "oregon"}) // no sensor id
	client.Flush()

	lines := f.written()
	if len(lines) != 2 {
		t.Fatalf("written %d lines, want 2: %q", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "tellstick_sensor,") || !strings.Contains(lines[0], "temp=21.5") {
		t.Errorf("sensor line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "tellstick_command,") || !strings.Contains(lines[1], `method="turnon"`) {
		t.Errorf("command line = %q", lines[1])
	}

	if got := client.Stats(); got.Points != 2 || got.WriteErrors != 0 {
		t.Errorf("Stats() = %+v, want 2 points and no errors", got)
	}

	f.mu.Lock()
	query := f.queries[0]
	f.mu.Unlock()
	if !strings.Contains(query, "bucket=rf") || !strings.Contains(query, "org=home") {
		t.Errorf("write query = %q, want org and bucket", query)
	}
}

func TestWriteEvent_GatewayTag(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f, influxdb.WithGateway("acca54000001"))

	client.WriteSensorReading(sensorEvent())
	client.Flush()

	lines := f.written()
	if len(lines) != 1 || !strings.Contains(lines[0], "gateway=ACCA54000001") {
		t.Errorf("lines = %q, want gateway tag", lines)
	}
}

func TestWriteErrors(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	f.mu.Lock()
	f.rejectAll = true
	f.mu.Unlock()

	errCh := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})

	client.WriteCommand(commandEvent())
	client.Flush()

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("callback got nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error callback not called")
	}
	if got := client.Stats().WriteErrors; got != 1 {
		t.Errorf("WriteErrors = %d, want 1", got)
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteEvent(sensorEvent())

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if got := len(f.written()); got != 1 {
		t.Errorf("Close() flushed %d lines, want 1", got)
	}

	client.WriteEvent(sensorEvent())
	if got := client.Stats().Points; got != 1 {
		t.Errorf("Points = %d after write on closed client, want 1", got)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Point Builder Tests
// =============================================================================

func TestSensorPoint(t *testing.T) {
	received := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	ev := protocol.Event{
		Class:    protocol.ClassSensor,
		Protocol: "mandolyn",
		Model:    "temperaturehumidity",
		SensorID: intp(11),
		Data: []protocol.SensorValue{
			{Name: "temp", Value: -3.5},
			{Name: "humidity", Value: 81},
		},
	}.Stamp(received)

	point := influxdb.SensorPoint(ev)
	if point == nil {
		t.Fatal("SensorPoint() = nil")
	}

	line := write.PointToLineProtocol(point, time.Second)
	for _, want := range []string{
		"tellstick_sensor,",
		"model=temperaturehumidity",
		"protocol=mandolyn",
		"sensor_id=11",
		"temp=-3.5",
		"humidity=81",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if !point.Time().Equal(received) {
		t.Errorf("Time() = %v, want %v", point.Time(), received)
	}
}

func TestSensorPoint_Skips(t *testing.T) {
	tests := []struct {
		name string
		ev   protocol.Event
	}{
		{"command", protocol.Event{Class: protocol.ClassCommand, Protocol: "arctech"}},
		{"no sensor id", protocol.Event{Class: protocol.ClassSensor, Data: []protocol.SensorValue{{Name: "temp", Value: 1}}}},
		{"no data", protocol.Event{Class: protocol.ClassSensor, SensorID: intp(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if p := influxdb.SensorPoint(tt.ev); p != nil {
				t.Errorf("SensorPoint() = %v, want nil", write.PointToLineProtocol(p, time.Second))
			}
		})
	}
}

func TestCommandPoint(t *testing.T) {
	ev := protocol.Event{
		Class:    protocol.ClassCommand,
		Protocol: "arctech",
		Model:    "codeswitch",
		House:    "A",
		Unit:     intp(3),
		Method:   protocol.MethodTurnOff,
	}

	point := influxdb.CommandPoint(ev)
	if point == nil {
		t.Fatal("CommandPoint() = nil")
	}
	line := write.PointToLineProtocol(point, time.Second)
	for _, want := range []string{
		"tellstick_command,",
		"house=A",
		"unit=3",
		`method="turnoff"`,
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}

	if p := influxdb.CommandPoint(protocol.Event{Class: protocol.ClassSensor}); p != nil {
		t.Error("CommandPoint() should ignore sensor events")
	}
}
