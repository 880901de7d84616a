package wire

import (
	"bytes"
	"fmt"
	"strconv"
)

// Repeat directive added to every "send" command. The appliance firmware
// retransmits the RF frame itself using these values.
const (
	// KeyRepeatDelay is the argument key for the delay between RF frames.
	KeyRepeatDelay = "P"

	// KeyRepeatCount is the argument key for the number of RF frames.
	KeyRepeatCount = "R"

	// DefaultRepeatDelay is the delay between RF frames in milliseconds.
	DefaultRepeatDelay = 10

	// DefaultRepeatCount is the number of RF frames the appliance sends.
	DefaultRepeatCount = 4

	// CommandSend is the command name for RF transmissions.
	CommandSend = "send"
)

// Encode builds a packet from a command name and its arguments.
//
// The command is written as Text, followed by the arguments as a Map when
// args is non-empty. For CommandSend the repeat directive (KeyRepeatDelay,
// KeyRepeatCount) is added to the arguments unless the caller set it.
//
// Parameters:
//   - command: Command name, e.g. "reglistener" or "send"
//   - args: Command arguments, may be nil
//
// Returns:
//   - []byte: Encoded packet
//   - error: ErrMalformedPacket wrapping ErrUnsupported if args contain a List
func Encode(command string, args Map) ([]byte, error) {
	if command == CommandSend {
		args = args.Clone()
		if _, ok := args[KeyRepeatDelay]; !ok {
			args[KeyRepeatDelay] = Int(DefaultRepeatDelay)
		}
		if _, ok := args[KeyRepeatCount]; !ok {
			args[KeyRepeatCount] = Int(DefaultRepeatCount)
		}
	}

	var buf bytes.Buffer
	writeText(&buf, command)
	if len(args) > 0 {
		if err := writeMap(&buf, args); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// EncodeValue encodes a single token.
func EncodeValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch t := v.(type) {
	case Int:
		writeInt(buf, int64(t))
	case Text:
		writeText(buf, string(t))
	case Map:
		return writeMap(buf, t)
	case List:
		return fmt.Errorf("%w: encoding list: %w", ErrMalformedPacket, ErrUnsupported)
	default:
		return fmt.Errorf("%w: cannot encode %T", ErrMalformedPacket, v)
	}
	return nil
}

// writeText writes <HEX length>:<bytes>. Lengths use upper case digits.
func writeText(buf *bytes.Buffer, s string) {
	buf.WriteString(fmt.Sprintf("%X", len(s)))
	buf.WriteByte(tagSep)
	buf.WriteString(s)
}

// writeInt writes i<hex>s. Digits are lower case; negatives carry a '-'.
func writeInt(buf *bytes.Buffer, n int64) {
	buf.WriteByte(tagInteger)
	buf.WriteString(strconv.FormatInt(n, 16))
	buf.WriteByte(tagEnd)
}

func writeMap(buf *bytes.Buffer, m Map) error {
	buf.WriteByte(tagMap)
	for _, k := range m.Keys() {
		writeText(buf, k)
		if err := writeValue(buf, m[k]); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
	}
	buf.WriteByte(tagEnd)
	return nil
}
