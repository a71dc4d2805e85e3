package e24

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter is returned before anything is sent when a channel,
	// gain, calibration, frequency or mode is outside its documented set.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrMalformedReadback is returned when the parameter echo has the wrong
	// length or marker.
	ErrMalformedReadback = errors.New("malformed parameter read-back")
	// ErrShortRead means fewer bytes arrived than a frame needs.
	ErrShortRead = errors.New("short read")
	// ErrChannelInactive is returned when parameters are written to a channel
	// that has not been activated.
	ErrChannelInactive = errors.New("channel is not active")
	// ErrClosed is returned by operations on a closed driver.
	ErrClosed = errors.New("driver is closed")
)

// TransportError wraps a failure of the serial line.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ChannelError is a read-back decode failure of a single channel slot.
type ChannelError struct {
	Channel Channel
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("Error in ADC_channel %d : %v", e.Channel, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// SelfTestError reports a mismatch between the configured and the stored
// device parameters.
type SelfTestError struct {
	Expected string
	Actual   string
}

func (e *SelfTestError) Error() string {
	return "self test failed\nexpected:\n" + e.Expected + "\nactual:\n" + e.Actual
}
