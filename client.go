package modbus

import (
	"net"
	"sync"

	"github.com/GoAethereal/cancel"
)

// Client is a minimal Modbus/TCP master used to exercise a Server
// end-to-end in tests, and usable as-is against any Modbus/TCP slave.
// Requests are serialized: Client does not pipeline multiple in-flight
// requests over one connection.
//
//	c := &modbus.Client{Config: modbus.NewConfig("tcp", "tcp", "localhost:502")}
//	defer c.Disconnect()
//	values, err := c.ReadHoldingRegisters(ctx, 1, 0, 2)
type Client struct {
	Config *Config

	mtx   sync.Mutex
	reqMu sync.Mutex
	conn  connection
	codec tcpClientCodec
}

// Ready reports whether the client currently holds a live connection.
func (c *Client) Ready() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.conn != nil && c.conn.ready()
}

// Disconnect closes the underlying connection. Any request in flight is
// aborted.
func (c *Client) Disconnect() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.conn != nil {
		c.conn.close()
	}
}

func (c *Client) dial(ctx cancel.Context) (connection, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.conn != nil && c.conn.ready() {
		return c.conn, nil
	}
	ctx, cancelFn := cancel.Promote(ctx)
	defer cancelFn()
	raw, err := new(net.Dialer).DialContext(ctx, c.Config.Kind, c.Config.Endpoint)
	if err != nil {
		return nil, err
	}
	c.conn = newNetwork(raw)
	return c.conn, nil
}

// Request sends a single PDU (function code plus payload, no framing) to
// unit and returns the response PDU's payload (the function code byte
// stripped). Only function codes below 0x80 are accepted.
func (c *Client) Request(ctx cancel.Context, unit, function byte, payload []byte) ([]byte, error) {
	if function == 0 || function >= exceptionFlag {
		return nil, IllegalFunction
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	req := c.codec.encode(unit, function, payload)

	ctx, cancelFn := cancel.Promote(ctx)
	defer cancelFn()
	if c.Config.Timeout > 0 {
		go deadlineTimeout(ctx, cancelFn, c.Config.Timeout)
	}

	if err := conn.write(ctx, req); err != nil {
		return nil, err
	}

	res, err := c.codec.readResponse(ctx, conn, req)
	if err != nil {
		return nil, err
	}

	if res[0] == function|exceptionFlag {
		if len(res) < 2 {
			return nil, ServerDeviceFailure
		}
		return nil, Exception(res[1])
	}
	if res[0] != function {
		return nil, ServerDeviceFailure
	}
	return res[1:], nil
}

// ReadCoils requests 1 to 2000 (quantity) contiguous coil states, starting
// from address. On success returns a bool slice of length quantity where
// false=OFF and true=ON.
func (c *Client) ReadCoils(ctx cancel.Context, unit byte, address, quantity uint16) ([]bool, error) {
	res, err := c.Request(ctx, unit, FuncReadCoils, encodeU16Pair(address, quantity))
	if err != nil {
		return nil, err
	}
	if len(res) < 1 || int(res[0]) != len(res)-1 {
		return nil, ServerDeviceFailure
	}
	return unpackResponseBits(quantity, res[1:]), nil
}

// ReadDiscreteInputs requests 1 to 2000 (quantity) contiguous discrete
// inputs, starting from address.
func (c *Client) ReadDiscreteInputs(ctx cancel.Context, unit byte, address, quantity uint16) ([]bool, error) {
	res, err := c.Request(ctx, unit, FuncReadDiscreteInputs, encodeU16Pair(address, quantity))
	if err != nil {
		return nil, err
	}
	if len(res) < 1 || int(res[0]) != len(res)-1 {
		return nil, ServerDeviceFailure
	}
	return unpackResponseBits(quantity, res[1:]), nil
}

// ReadHoldingRegisters reads 1 to 125 (quantity) contiguous holding
// registers starting at address, returning the raw 2*quantity response
// bytes in wire order.
func (c *Client) ReadHoldingRegisters(ctx cancel.Context, unit byte, address, quantity uint16) ([]byte, error) {
	res, err := c.Request(ctx, unit, FuncReadHoldingRegisters, encodeU16Pair(address, quantity))
	if err != nil {
		return nil, err
	}
	if len(res) < 1 || int(res[0]) != len(res)-1 {
		return nil, ServerDeviceFailure
	}
	return res[1:], nil
}

// ReadInputRegisters reads 1 to 125 (quantity) contiguous input registers
// starting at address.
func (c *Client) ReadInputRegisters(ctx cancel.Context, unit byte, address, quantity uint16) ([]byte, error) {
	res, err := c.Request(ctx, unit, FuncReadInputRegisters, encodeU16Pair(address, quantity))
	if err != nil {
		return nil, err
	}
	if len(res) < 1 || int(res[0]) != len(res)-1 {
		return nil, ServerDeviceFailure
	}
	return res[1:], nil
}

// WriteSingleCoil sets the coil at address to ON (status=true) or OFF.
func (c *Client) WriteSingleCoil(ctx cancel.Context, unit byte, address uint16, status bool) error {
	value := uint16(0x0000)
	if status {
		value = 0xFF00
	}
	res, err := c.Request(ctx, unit, FuncWriteSingleCoil, encodeU16Pair(address, value))
	if err != nil {
		return err
	}
	if len(res) != 4 {
		return ServerDeviceFailure
	}
	return nil
}

// WriteSingleRegister writes value to the holding register at address.
func (c *Client) WriteSingleRegister(ctx cancel.Context, unit byte, address, value uint16) error {
	res, err := c.Request(ctx, unit, FuncWriteSingleRegister, encodeU16Pair(address, value))
	if err != nil {
		return err
	}
	if len(res) != 4 {
		return ServerDeviceFailure
	}
	return nil
}

// WriteMultipleRegisters writes values (a multiple of 2 bytes, in wire
// order) to the holding registers starting at address.
func (c *Client) WriteMultipleRegisters(ctx cancel.Context, unit byte, address uint16, values []byte) error {
	if len(values)%2 != 0 {
		return IllegalDataValue
	}
	quantity := uint16(len(values) / 2)
	payload := make([]byte, 5+len(values))
	putU16(payload[0:], address)
	putU16(payload[2:], quantity)
	payload[4] = byte(len(values))
	copy(payload[5:], values)

	res, err := c.Request(ctx, unit, FuncWriteMultipleRegisters, payload)
	if err != nil {
		return err
	}
	if len(res) != 4 {
		return ServerDeviceFailure
	}
	return nil
}

// ReadWriteMultipleRegisters writes values to the holding registers
// starting at writeAddress, then reads back readQuantity registers
// starting at readAddress, in a single round trip.
func (c *Client) ReadWriteMultipleRegisters(ctx cancel.Context, unit byte, readAddress, readQuantity, writeAddress uint16, values []byte) ([]byte, error) {
	if len(values)%2 != 0 {
		return nil, IllegalDataValue
	}
	writeQuantity := uint16(len(values) / 2)
	payload := make([]byte, 9+len(values))
	putU16(payload[0:], readAddress)
	putU16(payload[2:], readQuantity)
	putU16(payload[4:], writeAddress)
	putU16(payload[6:], writeQuantity)
	payload[8] = byte(len(values))
	copy(payload[9:], values)

	res, err := c.Request(ctx, unit, FuncReadWriteMultipleRegisters, payload)
	if err != nil {
		return nil, err
	}
	if len(res) < 1 || int(res[0]) != len(res)-1 {
		return nil, ServerDeviceFailure
	}
	return res[1:], nil
}
