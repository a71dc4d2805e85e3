package e24

import (
	"io"

	"go.bug.st/serial"
)

// Transport is the serial line the driver talks over. Read returns 0 bytes
// and no error when the line's read timeout expires.
type Transport interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Ensure a serial port can be used as a Transport.
var _ Transport = (serial.Port)(nil)

// Ensure Mock implements Transport.
var _ Transport = (*Mock)(nil)
