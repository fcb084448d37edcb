package modbus

import "errors"

// Sentinel errors for configuration and connection-lifecycle failures.
// These never cross the wire — unlike Exception, they are Go-internal and
// are reported to the caller of Server/Client methods, not encoded into a
// response PDU.
var (
	// ErrInvalidParameter signals a malformed Config or Option.
	ErrInvalidParameter = errors.New("modbus: given parameter violates restriction")
	// ErrDataSizeExceeded indicates that the given data length exceeds the
	// limits of a Modbus PDU payload.
	ErrDataSizeExceeded = errors.New("modbus: data size exceeds limit")
	// ErrAlreadyStarted signals a start request on a server that is already
	// accepting connections. No function in this package returns it:
	// Server.Serve does not check for a second call.
	ErrAlreadyStarted = errors.New("modbus: already started")
	// ErrNotStarted signals a stop request on a server that was never
	// started. No function in this package returns it; Server has no Stop
	// method.
	ErrNotStarted = errors.New("modbus: not started")
	// ErrMismatchedTransactionId indicates a TCP response's transaction id
	// did not match the outstanding request. Client.Request returns it to
	// the caller.
	ErrMismatchedTransactionId = errors.New("modbus: mismatch of transaction id")
	// ErrMismatchedUnitId signals a mismatch of the unit identifier field
	// between request and response.
	ErrMismatchedUnitId = errors.New("modbus: mismatch of unit id")
	// ErrShortFrame indicates the transport was unable to read as many
	// bytes as the frame header declared.
	ErrShortFrame = errors.New("modbus: short frame")
	// ErrBadCRC indicates an RTU frame failed its CRC16 check.
	ErrBadCRC = errors.New("modbus: bad crc")
	// ErrBufferExhausted is returned when a FrameBuffer write would exceed
	// its fixed capacity. The function-code processors and writeException
	// do not check the write methods' results, so it does not reach the
	// transport from Dispatch.
	ErrBufferExhausted = errors.New("modbus: frame buffer exhausted")
	// ErrNotReady is returned by Dispatch when called on a FrameBuffer that
	// has no length set.
	ErrNotReady = errors.New("modbus: frame buffer not ready")
	// errRTUResync is internal to readRTURequest: it signals a function
	// code outside the supported set was seen on the wire, so the frame
	// cannot be bounded and must be discarded rather than treated as a
	// fatal transport error.
	errRTUResync = errors.New("modbus: rtu frame resync")
)
