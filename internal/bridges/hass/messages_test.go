package hass

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
)

func TestParseCommandMessage(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantMethod string
		wantParam  int
		wantID     string
		wantSource string
	}{
		{"bare method", "turnon", "turnon", 0, "", "mqtt"},
		{"bare with space", "  turnoff\n", "turnoff", 0, "", "mqtt"},
		{"json", `{"method":"dim","param":200}`, "dim", 200, "", "mqtt"},
		{"json with id", `{"id":"abc","method":"bell","source":"api"}`, "bell", 0, "abc", "api"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommandMessage([]byte(tt.payload))
			if err != nil {
				t.Fatalf("ParseCommandMessage() error = %v", err)
			}
			if cmd.Method != tt.wantMethod || cmd.Param != tt.wantParam {
				t.Errorf("method/param = %q/%d", cmd.Method, cmd.Param)
			}
			if tt.wantID != "" && cmd.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", cmd.ID, tt.wantID)
			}
			if cmd.ID == "" {
				t.Error("ID should be generated")
			}
			if cmd.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", cmd.Source, tt.wantSource)
			}
		})
	}

	if _, err := ParseCommandMessage([]byte(`{"method":`)); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("malformed JSON error = %v, want ErrInvalidCommand", err)
	}
}

func TestNewAckMessage(t *testing.T) {
	cmd := CommandMessage{ID: "cmd-1", Method: "turnon"}

	ack := NewAckMessage(cmd, "command_arctech_selflearning_1_1", AckAccepted)
	if ack.CommandID != "cmd-1" || ack.Method != "turnon" || ack.Status != AckAccepted {
		t.Errorf("ack = %+v", ack)
	}
	if ack.Error != nil {
		t.Error("accepted ack should have no error")
	}
	if time.Since(ack.Timestamp) > time.Minute {
		t.Errorf("Timestamp = %v", ack.Timestamp)
	}

	failed := NewAckError(cmd, "x", ErrCodeSessionError, "session closed")
	if failed.Status != AckFailed || failed.Error.Code != ErrCodeSessionError {
		t.Errorf("failed ack = %+v", failed)
	}

	data, err := json.Marshal(failed)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if raw["status"] != "failed" || raw["command_id"] != "cmd-1" {
		t.Errorf("JSON = %s", data)
	}
}

func TestNewHealthMessage(t *testing.T) {
	start := time.Now().Add(-90 * time.Second)
	stats := controller.Stats{
		State:        controller.StateListening,
		PacketsRx:    10,
		DecodeErrors: 1,
		LastActivity: time.Now(),
	}

	msg := NewHealthMessage("b1", "1.2.3", HealthHealthy, stats, 4, start)

	if msg.UptimeSeconds < 89 || msg.UptimeSeconds > 91 {
		t.Errorf("UptimeSeconds = %d, want ~90", msg.UptimeSeconds)
	}
	if msg.Session.State != "listening" {
		t.Errorf("Session.State = %q", msg.Session.State)
	}
	if msg.Session.LastActivity == nil || msg.Session.LastRegistration != nil {
		t.Errorf("Session = %+v", msg.Session)
	}
	if msg.Statistics.DecodeErrors != 1 || msg.EntitiesManaged != 4 {
		t.Errorf("message = %+v", msg)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if _, ok := raw["reason"]; ok {
		t.Error("empty reason should be omitted")
	}
	session, _ := raw["session"].(map[string]any)
	if _, ok := session["last_registration"]; ok {
		t.Error("zero last_registration should be omitted")
	}
}
