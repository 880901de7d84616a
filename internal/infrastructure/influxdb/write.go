package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// Measurement names.
const (
	MeasurementSensor  = "tellstick_sensor"
	MeasurementCommand = "tellstick_command"
)

// WriteEvent records a decoded event, dispatching on its class.
func (c *Client) WriteEvent(ev protocol.Event) {
	if ev.IsSensor() {
		c.WriteSensorReading(ev)
		return
	}
	c.WriteCommand(ev)
}

// WriteSensorReading queues one point per sensor event, with one field per
// reported value.
//
//	tellstick_sensor,protocol=fineoffset,model=temperaturehumidity,sensor_id=135 temp=21.5,humidity=48
func (c *Client) WriteSensorReading(ev protocol.Event) {
	c.write(SensorPoint(ev))
}

// WriteCommand queues a received switch command.
//
//	tellstick_command,protocol=arctech,model=selflearning,house=1234,unit=1 method="turnon"
func (c *Client) WriteCommand(ev protocol.Event) {
	c.write(CommandPoint(ev))
}

// SensorPoint builds the point for a sensor event, or nil when the event
// carries no sensor id or no values.
func SensorPoint(ev protocol.Event) *write.Point {
	if !ev.IsSensor() || ev.SensorID == nil || len(ev.Data) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(ev.Data))
	for _, v := range ev.Data {
		fields[v.Name] = v.Value
	}

	return write.NewPoint(
		MeasurementSensor,
		map[string]string{
			"protocol":  ev.Protocol,
			"model":     ev.Model,
			"sensor_id": strconv.Itoa(*ev.SensorID),
		},
		fields,
		eventTime(ev),
	)
}

// CommandPoint builds the point for a command event, or nil for other
// classes.
func CommandPoint(ev protocol.Event) *write.Point {
	if !ev.IsCommand() {
		return nil
	}

	tags := map[string]string{
		"protocol": ev.Protocol,
		"model":    ev.Model,
		"house":    ev.House,
	}
	if ev.Unit != nil {
		tags["unit"] = strconv.Itoa(*ev.Unit)
	}
	if ev.Group != nil {
		tags["group"] = strconv.Itoa(*ev.Group)
	}

	return write.NewPoint(
		MeasurementCommand,
		tags,
		map[string]interface{}{
			"method": ev.Method.String(),
		},
		eventTime(ev),
	)
}

func eventTime(ev protocol.Event) time.Time {
	if ev.LastUpdated == 0 {
		return time.Now()
	}
	return ev.UpdatedAt()
}
