package hass

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-tellstick/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/controller"
	"github.com/nerrad567/gray-logic-tellstick/internal/tellstick/protocol"
)

// entity is a configured entity, or one quantity of a sensor entity when
// sensor is set.
type entity struct {
	cfg    EntityConfig
	sensor string
}

func newEntity(cfg EntityConfig, sensor string) *entity {
	return &entity{cfg: cfg, sensor: sensor}
}

func (e *entity) isCommand() bool {
	return e.cfg.IsCommand()
}

// isSensorItem reports whether e presents a single sensor quantity.
func (e *entity) isSensorItem() bool {
	return !e.isCommand() && e.sensor != ""
}

// UniqueID is {class}_{protocol}_{model}_{house}_{unit} for commands and
// {class}_{protocol}_{model}_{sensorId}_{sensor} for sensors.
func (e *entity) UniqueID() string {
	parts := []string{e.cfg.Class, e.cfg.Protocol, e.cfg.Model}
	if e.isCommand() {
		parts = append(parts, e.cfg.House, optInt(e.cfg.Unit))
	} else {
		parts = append(parts, optInt(e.cfg.SensorID), e.sensor)
	}
	return strings.Join(parts, "_")
}

// Name is the display name. Sensor items append the quantity.
func (e *entity) Name() string {
	name := e.cfg.Name
	if name == "" {
		return e.UniqueID()
	}
	if e.isSensorItem() {
		return name + " " + lookupSensor(e.sensor).Quantity
	}
	return name
}

// deviceKey identifies the physical device a command entity addresses.
func (e *entity) deviceKey() string {
	return e.request(protocol.MethodNone, 0).Key()
}

// IsRecipient reports whether ev addresses this entity. Class, protocol,
// model, house, unit and sensorId must all be equal; absent on both sides
// counts as equal.
func (e *entity) IsRecipient(ev protocol.Event) bool {
	return e.cfg.Class == string(ev.Class) &&
		e.cfg.Protocol == ev.Protocol &&
		e.cfg.Model == ev.Model &&
		e.cfg.House == ev.House &&
		equalOpt(e.cfg.Unit, ev.Unit) &&
		equalOpt(e.cfg.SensorID, ev.SensorID)
}

// toRadio maps a Home Assistant method to the method sent over RF.
func (e *entity) toRadio(m protocol.Method) protocol.Method {
	if e.cfg.Invert {
		return m.Invert()
	}
	return m
}

// fromRadio maps a received RF method to the state shown in Home Assistant.
func (e *entity) fromRadio(m protocol.Method) protocol.Method {
	// Invert is its own inverse.
	return e.toRadio(m)
}

// request builds the session command for a Home Assistant method.
func (e *entity) request(m protocol.Method, param int) controller.CommandRequest {
	unit := 0
	if e.cfg.Unit != nil {
		unit = *e.cfg.Unit
	}
	return controller.CommandRequest{
		Protocol: e.cfg.Protocol,
		Model:    e.cfg.Model,
		House:    e.cfg.House,
		Unit:     unit,
		Method:   e.toRadio(m),
		Param:    param,
	}
}

// Request builds the session command for the command entity named ref,
// by name or unique id. It resolves entities without a running bridge.
func (c *Config) Request(ref string, m protocol.Method, param int) (controller.CommandRequest, error) {
	for _, ec := range c.Entities {
		e := newEntity(ec, "")
		if ec.Name != ref && e.UniqueID() != ref {
			continue
		}
		if !e.isCommand() {
			return controller.CommandRequest{}, fmt.Errorf("%w: %s", ErrNotCommandEntity, ref)
		}
		return e.request(m, param), nil
	}
	return controller.CommandRequest{}, fmt.Errorf("%w: %s", ErrUnknownEntity, ref)
}

// discoveryConfig builds the retained discovery payload.
func (e *entity) discoveryConfig(topics mqtt.Topics, device DeviceInfo) DiscoveryConfig {
	uid := e.UniqueID()
	dc := DiscoveryConfig{
		Name:                e.Name(),
		UniqueID:            uid,
		StateTopic:          topics.State(uid),
		AvailabilityTopic:   topics.Avail(uid),
		PayloadAvailable:    mqtt.PayloadOnline,
		PayloadNotAvailable: mqtt.PayloadOffline,
		Optimistic:          e.cfg.Optimistic,
		DeviceClass:         e.cfg.DeviceClass,
		Icon:                e.cfg.Icon,
		Device:              device,
	}
	if e.isCommand() {
		dc.CommandTopic = topics.Set(uid)
	}
	if e.isSensorItem() {
		info := lookupSensor(e.sensor)
		dc.UnitOfMeasurement = info.Unit
		if dc.Icon == "" {
			dc.Icon = info.Icon
		}
	}
	switch e.cfg.Component {
	case ComponentBinarySensor, ComponentSwitch, ComponentLight:
		dc.PayloadOn = protocol.MethodTurnOn.String()
		dc.PayloadOff = protocol.MethodTurnOff.String()
	}
	return dc
}

func optInt(p *int) string {
	if p == nil {
		return "none"
	}
	return strconv.Itoa(*p)
}

func equalOpt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
