package protocol

import (
	"fmt"
	"strings"
)

// Method is a device command. Values follow the Telldus bit flags so they
// can be sent to the appliance unchanged.
type Method int

// Device methods.
const (
	MethodNone    Method = 0
	MethodTurnOn  Method = 1
	MethodTurnOff Method = 2
	MethodBell    Method = 4
	MethodToggle  Method = 8
	MethodDim     Method = 16
	MethodLearn   Method = 32
	MethodUp      Method = 128
	MethodDown    Method = 256
	MethodStop    Method = 512
)

var methodNames = map[Method]string{
	MethodTurnOn:  "turnon",
	MethodTurnOff: "turnoff",
	MethodBell:    "bell",
	MethodToggle:  "toggle",
	MethodDim:     "dim",
	MethodLearn:   "learn",
	MethodUp:      "up",
	MethodDown:    "down",
	MethodStop:    "stop",
}

// String returns the wire name of the method ("turnon", "dim", ...).
func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseMethod converts a method name to a Method. Matching ignores case
// and surrounding space.
func ParseMethod(s string) (Method, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range methodNames {
		if name == s {
			return m, nil
		}
	}
	return MethodNone, fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
}

// Invert swaps turnon and turnoff and leaves other methods unchanged.
func (m Method) Invert() Method {
	switch m {
	case MethodTurnOn:
		return MethodTurnOff
	case MethodTurnOff:
		return MethodTurnOn
	default:
		return m
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
