package discovery

import "errors"

// Domain errors for the discovery package.
var (
	// ErrNoDeviceFound is returned by Discover when no supported appliance
	// answered within the timeout.
	ErrNoDeviceFound = errors.New("tellstick: no device found")

	// ErrMalformedReply is returned by ParseReply for records that do not
	// have four or five fields.
	ErrMalformedReply = errors.New("tellstick: malformed discovery reply")

	// ErrUnsupportedProduct is returned by ParseReply for products that are
	// not on the allow-list.
	ErrUnsupportedProduct = errors.New("tellstick: unsupported product")

	// ErrUnsupportedFirmware is returned by ParseReply for a TellStickNet
	// whose firmware predates the listener protocol.
	ErrUnsupportedFirmware = errors.New("tellstick: unsupported firmware")
)
