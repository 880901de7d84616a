// Package sink fans decoded Tellstick events out to a NATS server and
// accepts switch commands from it.
//
// Subjects, for the default prefix "tellstick":
//
//	tellstick.event.sensor.fineoffset    sensor reading (JSON event)
//	tellstick.event.command.arctech      received switch command
//	tellstick.command                    command requests (JSON)
//
// A command request names the device address directly:
//
//	{"protocol":"arctech","model":"selflearning","house":"1234","unit":1,"method":"turnon"}
//
// When the request carries a reply subject the sink answers with
// {"status":"ok"} or {"status":"error","error":"..."}.
package sink
