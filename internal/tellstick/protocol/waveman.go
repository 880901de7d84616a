package protocol

// Waveman codeswitch method codes. The frame layout is the nexa one.
const (
	wavemanTurnOff = 0
	wavemanTurnOn  = 14
)

func decodeWaveman(st *DecoderState, p Packet) (Event, error) {
	method, unit, house, ok := splitCodeswitch(p.Data)
	if !ok {
		return Event{}, ErrNoMatch
	}

	if method != codeswitchTurnOff && st.wavemanLastWasTurnOff {
		st.wavemanLastWasTurnOff = false
		return Event{}, ErrNoMatch
	}
	if method == codeswitchTurnOff {
		st.wavemanLastWasTurnOff = true
	}

	ev := Event{
		Class:    ClassCommand,
		Protocol: "waveman",
		Model:    ModelCodeswitch,
		House:    house,
		Unit:     intPtr(unit),
	}
	switch method {
	case wavemanTurnOff:
		ev.Method = MethodTurnOff
	case wavemanTurnOn:
		ev.Method = MethodTurnOn
	default:
		return Event{}, ErrNoMatch
	}
	return ev, nil
}
