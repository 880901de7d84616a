package wire

import "errors"

// Domain errors for the wire package.
var (
	// ErrMalformedPacket is returned when a packet violates the token grammar:
	// bad length prefix, truncated payload, invalid integer digits,
	// unterminated aggregate, wrong top-level token types or trailing bytes.
	ErrMalformedPacket = errors.New("tellstick: malformed packet")

	// ErrUnsupported is returned for the list token, which the appliance
	// format declares but this codec does not implement.
	ErrUnsupported = errors.New("tellstick: unsupported wire type")
)
