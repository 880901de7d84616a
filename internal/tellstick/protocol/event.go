package protocol

import (
	"strconv"
	"time"
)

// Class distinguishes switch commands from sensor readings.
type Class string

// Event classes.
const (
	ClassCommand Class = "command"
	ClassSensor  Class = "sensor"
)

// Sensor value names as reported by the decoders.
const (
	SensorTemperature = "temp"
	SensorHumidity    = "humidity"
)

// SensorValue is one named reading of a sensor event.
type SensorValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Event is a decoded RF payload.
//
// Command events carry Protocol, Model, House, Method and, depending on the
// family, Unit, Group or Code. Sensor events carry Protocol, Model,
// SensorID and Data. Decoders return either a complete Event or an error.
type Event struct {
	Class    Class         `json:"class"`
	Protocol string        `json:"protocol"`
	Model    string        `json:"model,omitempty"`
	House    string        `json:"house,omitempty"`
	Unit     *int          `json:"unit,omitempty"`
	Group    *int          `json:"group,omitempty"`
	Code     string        `json:"code,omitempty"`
	Method   Method        `json:"method,omitempty"`
	SensorID *int          `json:"sensorId,omitempty"`
	Data     []SensorValue `json:"data,omitempty"`

	// LastUpdated is the receive time in Unix seconds.
	LastUpdated int64 `json:"lastUpdated,omitempty"`
}

// IsCommand reports whether the event is a switch command.
func (e Event) IsCommand() bool {
	return e.Class == ClassCommand
}

// IsSensor reports whether the event is a sensor reading.
func (e Event) IsSensor() bool {
	return e.Class == ClassSensor
}

// Value returns the sensor value with the given name.
func (e Event) Value(name string) (float64, bool) {
	for _, v := range e.Data {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// Stamp returns a copy of the event with LastUpdated set from t.
func (e Event) Stamp(t time.Time) Event {
	e.LastUpdated = t.Unix()
	return e
}

// UpdatedAt returns LastUpdated as a time.
func (e Event) UpdatedAt() time.Time {
	return time.Unix(e.LastUpdated, 0)
}

// DeviceKey identifies the physical transmitter or sensor behind the
// event: protocol/model/house/unit for commands, protocol/model/sensorId
// for sensors.
func (e Event) DeviceKey() string {
	if e.IsSensor() && e.SensorID != nil {
		return e.Protocol + "/" + e.Model + "/" + strconv.Itoa(*e.SensorID)
	}
	key := e.Protocol + "/" + e.Model + "/" + e.House
	if e.Code != "" {
		key += "/" + e.Code
	}
	if e.Unit != nil {
		key += "/" + strconv.Itoa(*e.Unit)
	}
	return key
}

// Measurement is a single sensor reading flattened out of an Event.
type Measurement struct {
	Protocol    string  `json:"protocol"`
	Model       string  `json:"model"`
	SensorID    int     `json:"sensorId"`
	Name        string  `json:"measurement"`
	Value       float64 `json:"value"`
	LastUpdated int64   `json:"lastUpdated,omitempty"`
}

// Measurements flattens a sensor event into one Measurement per value.
// Command events yield nil.
func (e Event) Measurements() []Measurement {
	if !e.IsSensor() || e.SensorID == nil {
		return nil
	}
	out := make([]Measurement, 0, len(e.Data))
	for _, v := range e.Data {
		out = append(out, Measurement{
			Protocol:    e.Protocol,
			Model:       e.Model,
			SensorID:    *e.SensorID,
			Name:        v.Name,
			Value:       v.Value,
			LastUpdated: e.LastUpdated,
		})
	}
	return out
}

func intPtr(v int) *int {
	return &v
}
