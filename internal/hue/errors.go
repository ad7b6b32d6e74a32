package hue

import "errors"

var (
	// ErrBackend indicates a transport failure, a non-2xx response, or an
	// error envelope returned by the bridge.
	ErrBackend = errors.New("bridge request failed")

	// ErrProtocol indicates the bridge answered with a payload we could not
	// make sense of.
	ErrProtocol = errors.New("unexpected bridge response")
)
