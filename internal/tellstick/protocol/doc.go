// Package protocol decodes and encodes the 433 MHz RF payloads carried
// inside Tellstick Net "RawData" packets.
//
// The appliance reports the raw integer it captured together with the
// protocol family it guessed (arctech, everflourish, fineoffset, mandolyn,
// oregon). A Registry maps that family name to a decoder. Decoders turn the
// integer into an Event, either a switch command (house, unit, method) or a
// sensor reading (sensor id plus named values).
//
// The arctech family covers several manufacturers the appliance cannot
// tell apart, so its decoder tries nexa, waveman and sartano in that order
// and keeps the first structurally valid result.
//
// Some remotes emit a spurious code after a codeswitch turnoff. The nexa
// and waveman decoders suppress it using flags held in a DecoderState.
// Each listening session owns its own DecoderState.
package protocol
