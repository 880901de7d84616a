package protocol

import "strconv"

// Nexa models.
const (
	ModelSelflearning       = "selflearning"
	ModelSelflearningSwitch = "selflearning-switch"
	ModelSelflearningDimmer = "selflearning-dimmer"
	ModelCodeswitch         = "codeswitch"
)

// Selflearning address limits.
const (
	maxSelflearningHouse = 67108863 // 26 bits
	maxUnit              = 16
)

// Codeswitch method codes.
const (
	codeswitchTurnOff = 6
	codeswitchTurnOn  = 14
	codeswitchBell    = 15
)

// decodeNexa dispatches on the model the appliance reported.
func decodeNexa(st *DecoderState, p Packet) (Event, error) {
	switch p.Model {
	case ModelSelflearning:
		return decodeNexaSelflearning(p)
	case ModelCodeswitch:
		return decodeNexaCodeswitch(st, p)
	default:
		return Event{}, ErrNoMatch
	}
}

// decodeNexaSelflearning decodes the 32-bit selflearning frame:
//
//	bits 31..6  house (26 bits)
//	bit  5      group
//	bit  4      method (1 on, 0 off)
//	bits 3..0   unit - 1
func decodeNexaSelflearning(p Packet) (Event, error) {
	data := p.Data
	house := data >> 6 //nolint:mnd // frame layout
	group := int((data >> 5) & 1)
	methodBit := (data >> 4) & 1
	unit := int(data&0xF) + 1

	if house < 1 || house > maxSelflearningHouse || unit < 1 || unit > maxUnit {
		return Event{}, ErrNoMatch
	}

	method := MethodTurnOff
	if methodBit == 1 {
		method = MethodTurnOn
	}

	return Event{
		Class:    ClassCommand,
		Protocol: p.Protocol,
		Model:    ModelSelflearning,
		House:    strconv.FormatUint(house, 10),
		Unit:     intPtr(unit),
		Group:    intPtr(group),
		Method:   method,
	}, nil
}

// decodeNexaCodeswitch decodes the 12-bit codeswitch frame:
//
//	bits 11..8  method code
//	bits 7..4   unit - 1
//	bits 3..0   house (letter A..P)
func decodeNexaCodeswitch(st *DecoderState, p Packet) (Event, error) {
	method, unit, house, ok := splitCodeswitch(p.Data)
	if !ok {
		return Event{}, ErrNoMatch
	}

	if method != codeswitchTurnOff && st.nexaLastWasTurnOff {
		st.nexaLastWasTurnOff = false
		return Event{}, ErrNoMatch
	}
	if method == codeswitchTurnOff {
		st.nexaLastWasTurnOff = true
	}

	ev := Event{
		Class:    ClassCommand,
		Protocol: "arctech",
		Model:    ModelCodeswitch,
		House:    house,
	}
	switch method {
	case codeswitchTurnOff:
		ev.Unit = intPtr(unit)
		ev.Method = MethodTurnOff
	case codeswitchTurnOn:
		ev.Unit = intPtr(unit)
		ev.Method = MethodTurnOn
	case codeswitchBell:
		ev.Method = MethodBell
	default:
		return Event{}, ErrNoMatch
	}
	return ev, nil
}

// splitCodeswitch extracts method, unit and house letter from a codeswitch
// frame. ok is false when the address is out of range.
func splitCodeswitch(data uint64) (method uint64, unit int, house string, ok bool) {
	method = (data >> 8) & 0xF //nolint:mnd // frame layout
	unit = int((data>>4)&0xF) + 1
	h := data & 0xF
	if h > maxUnit || unit < 1 || unit > maxUnit {
		return 0, 0, "", false
	}
	return method, unit, string(rune('A' + h)), true
}
