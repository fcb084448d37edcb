// Package modbus implements the server-side Modbus application layer: PDU
// decoding, the function-code dispatch table, register-window bounds
// checking and the exception responses defined by the Modbus Application
// Protocol v1.1b3. The package is transport-agnostic; see transport_tcp.go
// and transport_rtu.go for the concrete framing adapters that feed it.
package modbus

import "fmt"

// Function codes supported by the dispatcher (see dispatcher.go).
const (
	FuncReadCoils                  byte = 0x01
	FuncReadDiscreteInputs         byte = 0x02
	FuncReadHoldingRegisters       byte = 0x03
	FuncReadInputRegisters         byte = 0x04
	FuncWriteSingleCoil            byte = 0x05
	FuncWriteSingleRegister        byte = 0x06
	FuncWriteMultipleRegisters     byte = 0x10
	FuncReadWriteMultipleRegisters byte = 0x17
)

// exceptionFlag marks a response PDU's function code byte as an exception.
const exceptionFlag byte = 0x80

// Exception represents a one-byte Modbus exception code. It satisfies the
// error interface so processors can return it directly, but it is never
// wrapped or annotated: whatever Exception a processor returns is the exact
// byte written to the wire.
type Exception byte

// Exception codes defined by the Modbus Application Protocol, plus any
// application-specific code a RequestValidator hook chooses to return.
const (
	// IllegalFunction indicates the function code is not supported by this
	// server, or the server is not presently able to service it.
	IllegalFunction Exception = 0x01
	// IllegalDataAddress indicates the combination of starting address and
	// quantity addresses at least one register the server does not have.
	IllegalDataAddress Exception = 0x02
	// IllegalDataValue indicates a value in the request's data field is not
	// an allowable value, e.g. a malformed byte count or an out-of-range
	// quantity.
	IllegalDataValue Exception = 0x03
	// ServerDeviceFailure indicates an unrecoverable error occurred while
	// the server attempted to perform the requested action. The dispatcher
	// produces this whenever a processor faults unexpectedly.
	ServerDeviceFailure Exception = 0x04
)

// Error implements the builtin error interface.
func (e Exception) Error() string {
	switch e {
	case IllegalFunction:
		return "modbus: illegal function"
	case IllegalDataAddress:
		return "modbus: illegal data address"
	case IllegalDataValue:
		return "modbus: illegal data value"
	case ServerDeviceFailure:
		return "modbus: server device failure"
	}
	return fmt.Sprintf("modbus: exception 0x%02x", byte(e))
}

// OK is the zero value of Exception, used by RequestValidator hooks to
// signal that a request is permitted.
const OK Exception = 0

// Broadcast is the unit identifier reserved by the protocol for requests
// that expect no response.
const Broadcast byte = 0
