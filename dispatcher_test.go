package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatch(t *testing.T, store RegisterStore, req []byte, opts ...func(*dispatchCase)) []byte {
	t.Helper()
	dc := &dispatchCase{}
	for _, o := range opts {
		o(dc)
	}

	fb := NewFrameBuffer(260)
	fb.SetLength(len(req))
	copy(fb.Bytes(), req)

	n, err := Dispatch(fb, 1, store, dc.validator, dc.events, dc.onCoils, dc.onRegs)
	require.NoError(t, err)
	return fb.Response()[:n]
}

type dispatchCase struct {
	validator RequestValidator
	events    bool
	onCoils   ChangeEventFunc
	onRegs    ChangeEventFunc
}

func withValidator(v RequestValidator) func(*dispatchCase) {
	return func(dc *dispatchCase) { dc.validator = v }
}

func withEvents(onCoils, onRegs ChangeEventFunc) func(*dispatchCase) {
	return func(dc *dispatchCase) {
		dc.events = true
		dc.onCoils = onCoils
		dc.onRegs = onRegs
	}
}

func TestDispatchReadCoils(t *testing.T) {
	store := NewMemoryStore(32, 32, 8, 8)
	buf, _ := store.CoilBuffer(1)
	setBit(buf, 0, true)
	setBit(buf, 7, true)

	res := dispatch(t, store, []byte{FuncReadCoils, 0x00, 0x00, 0x00, 0x08})
	assert.Equal(t, []byte{FuncReadCoils, 0x01, 0x81}, res)
}

func TestDispatchReadCoilsIllegalAddress(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	res := dispatch(t, store, []byte{FuncReadCoils, 0x00, 0x00, 0x00, 0x09})
	assert.Equal(t, []byte{FuncReadCoils | exceptionFlag, byte(IllegalDataAddress)}, res)
}

func TestDispatchReadCoilsIllegalQuantityZero(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	res := dispatch(t, store, []byte{FuncReadCoils, 0x00, 0x00, 0x00, 0x00})
	assert.Equal(t, []byte{FuncReadCoils | exceptionFlag, byte(IllegalDataValue)}, res)
}

func TestDispatchReadHoldingRegisters(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	buf, _ := store.HoldingRegisterBuffer(1)
	buf[0], buf[1] = 0x01, 0x02
	buf[2], buf[3] = 0x03, 0x04

	res := dispatch(t, store, []byte{FuncReadHoldingRegisters, 0x00, 0x00, 0x00, 0x02})
	assert.Equal(t, []byte{FuncReadHoldingRegisters, 0x04, 0x01, 0x02, 0x03, 0x04}, res)
}

func TestDispatchWriteSingleCoilFiresEvent(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	var firedUnit byte
	var firedAddrs []uint16

	res := dispatch(t, store, []byte{FuncWriteSingleCoil, 0x00, 0x03, 0xFF, 0x00},
		withEvents(func(unit byte, addrs []uint16) {
			firedUnit = unit
			firedAddrs = addrs
		}, nil))

	assert.Equal(t, []byte{FuncWriteSingleCoil, 0x00, 0x03, 0xFF, 0x00}, res)
	assert.Equal(t, byte(1), firedUnit)
	assert.Equal(t, []uint16{3}, firedAddrs)

	buf, _ := store.CoilBuffer(1)
	assert.True(t, getBit(buf, 3))
}

func TestDispatchWriteSingleCoilNoEventWhenUnchanged(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	buf, _ := store.CoilBuffer(1)
	setBit(buf, 3, true)

	fired := false
	dispatch(t, store, []byte{FuncWriteSingleCoil, 0x00, 0x03, 0xFF, 0x00},
		withEvents(func(byte, []uint16) { fired = true }, nil))
	assert.False(t, fired)
}

func TestDispatchWriteSingleCoilIllegalValue(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	res := dispatch(t, store, []byte{FuncWriteSingleCoil, 0x00, 0x03, 0x12, 0x34})
	assert.Equal(t, []byte{FuncWriteSingleCoil | exceptionFlag, byte(IllegalDataValue)}, res)
}

func TestDispatchWriteMultipleRegistersByteCountMismatch(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	req := []byte{FuncWriteMultipleRegisters, 0x00, 0x00, 0x00, 0x02, 0x02, 0x00, 0x01}
	res := dispatch(t, store, req)
	assert.Equal(t, []byte{FuncWriteMultipleRegisters | exceptionFlag, byte(IllegalDataValue)}, res)
}

func TestDispatchWriteMultipleRegisters(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	req := []byte{FuncWriteMultipleRegisters, 0x00, 0x00, 0x00, 0x02, 0x04, 0x00, 0x01, 0x00, 0x02}
	res := dispatch(t, store, req)
	assert.Equal(t, []byte{FuncWriteMultipleRegisters, 0x00, 0x00, 0x00, 0x02}, res)

	buf, _ := store.HoldingRegisterBuffer(1)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02}, buf[0:4])
}

func TestDispatchReadWriteMultipleRegisters(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	buf, _ := store.HoldingRegisterBuffer(1)
	buf[0], buf[1] = 0xAA, 0xBB

	// write [0x00,0x01] at address 2 while reading back register 0.
	req := []byte{
		FuncReadWriteMultipleRegisters,
		0x00, 0x00, // read address
		0x00, 0x01, // read quantity
		0x00, 0x02, // write address
		0x00, 0x01, // write quantity
		0x02, 0x00, 0x01, // byte count + data
	}
	res := dispatch(t, store, req)
	assert.Equal(t, []byte{FuncReadWriteMultipleRegisters, 0x02, 0xAA, 0xBB}, res)

	assert.Equal(t, []byte{0x00, 0x01}, buf[4:6])
}

func TestDispatchReadWriteMultipleRegistersOverlappingWindow(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	buf, _ := store.HoldingRegisterBuffer(1)
	buf[0], buf[1] = 0xAA, 0xBB // reg 0
	buf[2], buf[3] = 0xCC, 0xDD // reg 1
	buf[4], buf[5] = 0xEE, 0xFF // reg 2

	// write [0x1122,0x3344] at address 0 while reading back address 1..2,
	// so the read window (regs 1,2) overlaps the write window (regs 0,1):
	// the response for reg 1 must reflect the value just written, not the
	// value the register held before this request.
	req := []byte{
		FuncReadWriteMultipleRegisters,
		0x00, 0x01, // read address
		0x00, 0x02, // read quantity
		0x00, 0x00, // write address
		0x00, 0x02, // write quantity
		0x04, 0x11, 0x22, 0x33, 0x44, // byte count + data
	}
	res := dispatch(t, store, req)
	assert.Equal(t, []byte{FuncReadWriteMultipleRegisters, 0x04, 0x33, 0x44, 0xEE, 0xFF}, res)

	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, buf[0:4])
}

func TestDispatchReadWriteMultipleRegistersNoMutationOnInvalidReadWindow(t *testing.T) {
	store := NewMemoryStore(8, 8, 4, 4)
	req := []byte{
		FuncReadWriteMultipleRegisters,
		0x00, 0x00, // read address
		0x00, 0xFF, // read quantity: out of bounds
		0x00, 0x00, // write address
		0x00, 0x01, // write quantity
		0x02, 0xFF, 0xFF,
	}
	res := dispatch(t, store, req)
	assert.Equal(t, []byte{FuncReadWriteMultipleRegisters | exceptionFlag, byte(IllegalDataAddress)}, res)

	buf, _ := store.HoldingRegisterBuffer(1)
	assert.Equal(t, byte(0x00), buf[0])
}

func TestDispatchBroadcastProducesNoResponse(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)

	fb := NewFrameBuffer(260)
	req := []byte{FuncWriteSingleRegister, 0x00, 0x00, 0x00, 0x05}
	fb.SetLength(len(req))
	copy(fb.Bytes(), req)

	n, err := Dispatch(fb, Broadcast, store, nil, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, fb.Response()[:n])
}

func TestDispatchUnknownFunctionCode(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	res := dispatch(t, store, []byte{0x2B})
	assert.Equal(t, []byte{0x2B | exceptionFlag, byte(IllegalFunction)}, res)
}

func TestDispatchWriteMultipleCoilsUnsupported(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	res := dispatch(t, store, []byte{0x0F, 0x00, 0x00, 0x00, 0x08, 0x01, 0xFF})
	assert.Equal(t, []byte{0x0F | exceptionFlag, byte(IllegalFunction)}, res)
}

func TestDispatchValidatorRejectsBeforeMutation(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	validator := func(unit, fc byte, address, quantity uint16) Exception {
		return IllegalDataAddress
	}
	res := dispatch(t, store, []byte{FuncWriteSingleRegister, 0x00, 0x00, 0x00, 0x05},
		withValidator(validator))
	assert.Equal(t, []byte{FuncWriteSingleRegister | exceptionFlag, byte(IllegalDataAddress)}, res)

	buf, _ := store.HoldingRegisterBuffer(1)
	assert.Equal(t, byte(0), buf[0])
	assert.Equal(t, byte(0), buf[1])
}

func TestDispatchPanicBecomesServerDeviceFailure(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	// a coil read that passes bound checks against panicStore's reported
	// size indexes past its empty coil buffer and panics inside the
	// processor; runProcessor must convert it rather than letting it escape
	// Dispatch.
	fb := NewFrameBuffer(260)
	req := []byte{FuncReadCoils, 0x00, 0x00, 0x00, 0x08}
	fb.SetLength(len(req))
	copy(fb.Bytes(), req)

	n, err := Dispatch(fb, 1, panicStore{}, nil, false, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{FuncReadCoils | exceptionFlag, byte(ServerDeviceFailure)}, fb.Response()[:n])
}

// panicStore is a RegisterStore whose buffers are always empty, forcing any
// processor that indexes into them beyond length zero to panic.
type panicStore struct{}

func (panicStore) CoilBuffer(byte) ([]byte, uint16)            { return nil, 100 }
func (panicStore) DiscreteInputBuffer(byte) ([]byte, uint16)   { return nil, 100 }
func (panicStore) HoldingRegisterBuffer(byte) ([]byte, uint16) { return nil, 100 }
func (panicStore) InputRegisterBuffer(byte) ([]byte, uint16)   { return nil, 100 }
