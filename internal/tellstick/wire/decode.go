package wire

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// decoder walks a packet. pos is the offset of the next unread byte and is
// reported in errors.
type decoder struct {
	buf []byte
	pos int
}

// Decode parses a packet into its command name and arguments.
//
// A packet is exactly one Text token followed by exactly one Map token;
// anything else, including trailing bytes, is rejected.
//
// Parameters:
//   - packet: Raw datagram payload
//
// Returns:
//   - string: Command name, e.g. "RawData"
//   - Map: Command arguments
//   - error: ErrMalformedPacket (wrapped) on any grammar violation
func Decode(packet []byte) (string, Map, error) {
	d := &decoder{buf: packet}

	cmd, err := d.value()
	if err != nil {
		return "", nil, err
	}
	command, ok := cmd.(Text)
	if !ok {
		return "", nil, d.errorf("command is %T, want text", cmd)
	}
	if d.done() {
		return "", nil, d.errorf("missing arguments after command %q", string(command))
	}

	v, err := d.value()
	if err != nil {
		return "", nil, err
	}
	args, ok := v.(Map)
	if !ok {
		return "", nil, d.errorf("arguments are %T, want map", v)
	}
	if !d.done() {
		return "", nil, d.errorf("%d trailing bytes", len(d.buf)-d.pos)
	}
	return string(command), args, nil
}

// DecodeValue parses a single token from the start of b and returns it
// together with the unconsumed remainder.
func DecodeValue(b []byte) (Value, []byte, error) {
	d := &decoder{buf: b}
	v, err := d.value()
	if err != nil {
		return nil, nil, err
	}
	return v, b[d.pos:], nil
}

func (d *decoder) done() bool {
	return d.pos >= len(d.buf)
}

func (d *decoder) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", ErrMalformedPacket, d.pos, fmt.Sprintf(format, args...))
}

func (d *decoder) value() (Value, error) {
	if d.done() {
		return nil, d.errorf("unexpected end of packet")
	}
	switch d.buf[d.pos] {
	case tagInteger:
		return d.integer()
	case tagMap:
		return d.dict()
	case tagList:
		return nil, fmt.Errorf("%w: offset %d: decoding list: %w", ErrMalformedPacket, d.pos, ErrUnsupported)
	default:
		return d.text()
	}
}

// text parses <HEX length>:<bytes>.
func (d *decoder) text() (Value, error) {
	rest := d.buf[d.pos:]
	sep := bytes.IndexByte(rest, tagSep)
	if sep <= 0 {
		return nil, d.errorf("missing length separator")
	}
	length, err := strconv.ParseUint(string(rest[:sep]), 16, 31)
	if err != nil {
		return nil, d.errorf("invalid length %q", rest[:sep])
	}
	start := sep + 1
	end := start + int(length)
	if end > len(rest) {
		return nil, d.errorf("text length %d exceeds remaining %d bytes", length, len(rest)-start)
	}
	s := string(rest[start:end])
	d.pos += end
	return Text(s), nil
}

// integer parses i<hex>s. Leading zeros are tolerated; "-0" is not.
// Non-negative values up to 64 bits keep their bit pattern, so RF payloads
// with the top bit set come back as negative Ints.
func (d *decoder) integer() (Value, error) {
	rest := d.buf[d.pos+1:]
	end := bytes.IndexByte(rest, tagEnd)
	if end <= 0 {
		return nil, d.errorf("unterminated or empty integer")
	}
	digits := string(rest[:end])

	negative := false
	if digits[0] == '-' {
		negative = true
		digits = digits[1:]
		if digits == "" {
			return nil, d.errorf("integer has sign but no digits")
		}
		if digits[0] == '0' {
			return nil, d.errorf("negative integer with leading zero")
		}
	}

	magnitude, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return nil, d.errorf("invalid integer %q", rest[:end])
	}

	var n int64
	switch {
	case negative && magnitude == uint64(math.MaxInt64)+1:
		n = math.MinInt64
	case negative && magnitude > math.MaxInt64:
		return nil, d.errorf("integer %q overflows", rest[:end])
	case negative:
		n = -int64(magnitude)
	default:
		n = int64(magnitude) //nolint:gosec // raw bit pattern
	}

	d.pos += 1 + end + 1
	return Int(n), nil
}

// dict parses h<key><value>...s. Keys must be unique Text.
func (d *decoder) dict() (Value, error) {
	d.pos++ // tag
	m := make(Map)
	for {
		if d.done() {
			return nil, d.errorf("unterminated map")
		}
		if d.buf[d.pos] == tagEnd {
			d.pos++
			return m, nil
		}

		k, err := d.value()
		if err != nil {
			return nil, err
		}
		key, ok := k.(Text)
		if !ok {
			return nil, d.errorf("map key is %T, want text", k)
		}
		if _, dup := m[string(key)]; dup {
			return nil, d.errorf("duplicate key %q", string(key))
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		m[string(key)] = v
	}
}
