// Package hass publishes Tellstick traffic to Home Assistant over MQTT.
//
// Each configured entity becomes a Home Assistant entity through MQTT
// discovery. Received RF commands update the state of matching command
// entities; sensor readings spawn one entity per reported quantity.
// Commands published on an entity's set topic are sent through the
// controller session.
//
// # Architecture
//
//	┌──────────────┐   UDP   ┌──────────────┐   MQTT   ┌────────────────┐
//	│ Tellstick Net│◄───────►│  hass bridge │◄────────►│ Home Assistant │
//	└──────────────┘         └──────────────┘          └────────────────┘
//
// # Topics
//
// With state prefix "tellstick" and appliance MAC "ACCA54000000":
//
//	tellstick/ACCA54000000/{uid}/state   entity state (not retained)
//	tellstick/ACCA54000000/{uid}/avail   "online" / "offline"
//	tellstick/ACCA54000000/{uid}/set     commands from Home Assistant
//	tellstick/ACCA54000000/{uid}/ack     command acknowledgements
//	tellstick/ACCA54000000/health        bridge health (retained JSON)
//	homeassistant/{component}/tellstick_ACCA54000000/{uid}/config
//
// # Entities
//
// Entities are loaded from YAML:
//
//	entities:
//	  - name: Hall
//	    class: command
//	    component: light
//	    protocol: arctech
//	    model: selflearning
//	    house: "1234567"
//	    unit: 1
//	  - name: Outdoor
//	    class: sensor
//	    protocol: fineoffset
//	    model: temperaturehumidity
//	    sensorId: 135
//	    availability_timeout: 3600
package hass
