package protocol

import "strings"

const sartanoCodeBits = 10

// decodeSartano decodes a 12-bit sartano frame. The frame is sent inverted
// and least significant bit first, so it is reversed and complemented
// before the fields are read:
//
//	bits 11..2  code (rendered MSB first as ten '0'/'1' characters)
//	bits 1..0   method: 01 off, 10 on
func decodeSartano(_ *DecoderState, p Packet) (Event, error) {
	var data uint64
	for i := range 12 {
		if p.Data&(1<<(11-i)) == 0 {
			data |= 1 << i
		}
	}

	code := (data & 0xFFC) >> 2 //nolint:mnd // frame layout
	m1 := (data >> 1) & 1
	m2 := data & 1

	var method Method
	switch {
	case m1 == 0 && m2 == 1:
		method = MethodTurnOff
	case m1 == 1 && m2 == 0:
		method = MethodTurnOn
	default:
		return Event{}, ErrNoMatch
	}
	if code > 1023 {
		return Event{}, ErrNoMatch
	}

	var sb strings.Builder
	for i := sartanoCodeBits - 1; i >= 0; i-- {
		if code&(1<<i) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return Event{
		Class:    ClassCommand,
		Protocol: "sartano",
		Model:    ModelCodeswitch,
		Code:     sb.String(),
		Method:   method,
	}, nil
}
