package protocol

import "errors"

// Domain errors for the protocol package.
var (
	// ErrUnknownProtocol is returned when a packet names a protocol with no
	// registered decoder or encoder.
	ErrUnknownProtocol = errors.New("tellstick: unknown protocol")

	// ErrUnsupportedModel is returned when a known protocol is asked to
	// handle a model it does not implement.
	ErrUnsupportedModel = errors.New("tellstick: unsupported model")

	// ErrUnsupportedMethod is returned when a command method cannot be
	// encoded for the target protocol.
	ErrUnsupportedMethod = errors.New("tellstick: unsupported method")

	// ErrChecksumMismatch is returned when a payload's embedded checksum
	// does not match the computed one.
	ErrChecksumMismatch = errors.New("tellstick: checksum mismatch")

	// ErrUnrecognizedPayload is returned when no decoder of a family
	// accepted the payload.
	ErrUnrecognizedPayload = errors.New("tellstick: unrecognised payload")

	// ErrInvalidAddress is returned when a house or unit is out of range
	// for encoding.
	ErrInvalidAddress = errors.New("tellstick: invalid address")

	// ErrNoMatch is the control value a family decoder returns when the
	// payload is not structurally valid for it. The Registry never returns
	// it; it is converted to ErrUnrecognizedPayload.
	ErrNoMatch = errors.New("tellstick: no match")
)
