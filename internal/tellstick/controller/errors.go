package controller

import "errors"

// Domain errors for the controller package.
var (
	// ErrSessionClosed is returned when an operation needs a running
	// session but Close has been called.
	ErrSessionClosed = errors.New("tellstick: session closed")

	// ErrNotStarted is returned by Execute before Start.
	ErrNotStarted = errors.New("tellstick: session not started")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("tellstick: session already started")

	// ErrUnsupportedCommand is the Result error for a packet whose command
	// is neither RawData nor zwaveinfo.
	ErrUnsupportedCommand = errors.New("tellstick: unsupported command")

	// ErrInvalidConfig is returned by New when the configuration is
	// incomplete.
	ErrInvalidConfig = errors.New("tellstick: invalid session config")
)
