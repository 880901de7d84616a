package hass

import "errors"

// Domain errors for the Home Assistant bridge package.
var (
	// ErrUnknownEntity is returned when a command names no configured
	// command entity.
	ErrUnknownEntity = errors.New("hass: unknown entity")

	// ErrInvalidCommand is returned when a set payload cannot be parsed
	// into a method.
	ErrInvalidCommand = errors.New("hass: invalid command")

	// ErrNotCommandEntity is returned when a command targets a sensor.
	ErrNotCommandEntity = errors.New("hass: entity does not accept commands")
)
