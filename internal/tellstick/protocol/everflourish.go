package protocol

import "strconv"

// Everflourish method codes.
const (
	everflourishTurnOff = 0
	everflourishTurnOn  = 15
	everflourishLearn   = 10

	maxEverflourishHouse = 16383
	maxEverflourishUnit  = 4
)

// decodeEverflourish decodes the 24-bit everflourish frame:
//
//	bits 23..10  house
//	bits 9..8    unit - 1
//	bits 3..0    method code
func decodeEverflourish(_ *DecoderState, p Packet) (Event, error) {
	house := (p.Data & 0xFFFC00) >> 10 //nolint:mnd // frame layout
	unit := int((p.Data&0x300)>>8) + 1
	code := p.Data & 0xF

	if house > maxEverflourishHouse || unit < 1 || unit > maxEverflourishUnit {
		return Event{}, ErrNoMatch
	}

	var method Method
	switch code {
	case everflourishTurnOff:
		method = MethodTurnOff
	case everflourishTurnOn:
		method = MethodTurnOn
	case everflourishLearn:
		method = MethodLearn
	default:
		return Event{}, ErrNoMatch
	}

	return Event{
		Class:    ClassCommand,
		Protocol: p.Protocol,
		Model:    ModelSelflearning,
		House:    strconv.FormatUint(house, 10),
		Unit:     intPtr(unit),
		Method:   method,
	}, nil
}
