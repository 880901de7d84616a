// Package discovery finds Tellstick Net and Znet appliances on the local
// network.
//
// A single "D" probe is sent by UDP to port 30303, either broadcast or to a
// known address. Every appliance answers with one ASCII record:
//
//	product:mac:code:firmware[:extra]
//
// Replies are accepted when the product is on the allow-list and, for the
// original TellStickNet, the firmware is new enough to speak the listener
// protocol. Anything else on the port is logged and skipped.
//
// Example:
//
//	devices, err := discovery.Discover(ctx, discovery.Config{Timeout: 3 * time.Second})
//	if errors.Is(err, discovery.ErrNoDeviceFound) {
//	    // nothing answered
//	}
//
// The package also contains Responder, a fake appliance that answers probes.
// It backs the "mock" command and the tests.
package discovery
