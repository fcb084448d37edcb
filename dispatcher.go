package modbus

// Per-function maxQuantity limits from the Modbus Application Protocol.
const (
	maxReadBitQuantity        = 0x07D0 // 2000, Read Coils / Read Discrete Inputs
	maxReadRegisterQuantity   = 0x007D // 125, Read Holding / Input Registers
	maxWriteRegisterQuantity  = 0x007B // 123, Write Multiple Registers
	maxReadWriteReadQuantity  = 0x007D // 125, Read/Write Multiple Registers (read side)
	maxReadWriteWriteQuantity = 0x007B // 123, Read/Write Multiple Registers (write side)
	maxSingleQuantity         = 1
)

// deps bundles the collaborators a processor needs: the register store,
// the optional validator and event emitter, and whether change events are
// currently enabled. Dispatch builds one per call; it never outlives the
// call.
type deps struct {
	unit      byte
	store     RegisterStore
	validator RequestValidator
	onCoils   ChangeEventFunc
	onRegs    ChangeEventFunc
	events    bool
}

// processor is the shape every function-code handler takes: read the
// request from fb's reader, validate, mutate the store via d, and write
// the response through fb's writer. Returning a non-zero Exception aborts
// with that exception; a panic inside the processor (a fault, as opposed to
// a protocol-level Exception) is recovered by runProcessor and converted to
// ServerDeviceFailure.
type processor func(fb *FrameBuffer, d deps) Exception

var processors = map[byte]processor{
	FuncReadCoils:                  processReadCoils,
	FuncReadDiscreteInputs:         processReadDiscreteInputs,
	FuncReadHoldingRegisters:       processReadHoldingRegisters,
	FuncReadInputRegisters:         processReadInputRegisters,
	FuncWriteSingleCoil:            processWriteSingleCoil,
	FuncWriteSingleRegister:        processWriteSingleRegister,
	FuncWriteMultipleRegisters:     processWriteMultipleRegisters,
	FuncReadWriteMultipleRegisters: processReadWriteMultipleRegisters,
}

// Dispatch implements §4.2: given a FrameBuffer positioned on the function
// code byte and a unit id, it produces either a success PDU or an
// exception PDU into fb's writer and returns the writer's final byte
// count. Dispatch never panics to its caller — any fault raised by a
// processor is caught and converted to a ServerDeviceFailure exception for
// the original function code.
//
// A request addressed to Broadcast expects no response: Dispatch returns
// immediately with a zero-length frame and never invokes a processor.
func Dispatch(fb *FrameBuffer, unit byte, store RegisterStore, validator RequestValidator, eventsEnabled bool, onCoils, onRegs ChangeEventFunc) (int, error) {
	if !fb.IsReady() {
		return 0, ErrNotReady
	}

	if unit == Broadcast {
		return 0, nil
	}

	fc, err := fb.ReadU8()
	if err != nil {
		return 0, err
	}

	fb.SeekWriter(0)

	d := deps{
		unit:      unit,
		store:     store,
		validator: validator,
		onCoils:   onCoils,
		onRegs:    onRegs,
		events:    eventsEnabled,
	}

	proc, ok := processors[fc]
	if !ok {
		writeException(fb, fc, IllegalFunction)
		return fb.WriterLen(), nil
	}

	ex := runProcessor(proc, fb, d, fc)
	if ex != 0 {
		fb.SeekWriter(0)
		writeException(fb, fc, ex)
	}
	return fb.WriterLen(), nil
}

// runProcessor invokes proc and converts any panic raised inside it (an
// internal fault — indexing, arithmetic, accessor failure) into
// ServerDeviceFailure, per §7. Protocol-level exceptions returned normally
// by proc pass through unchanged.
func runProcessor(proc processor, fb *FrameBuffer, d deps, fc byte) (ex Exception) {
	defer func() {
		if r := recover(); r != nil {
			ex = ServerDeviceFailure
		}
	}()
	return proc(fb, d)
}

func writeException(fb *FrameBuffer, fc byte, ex Exception) {
	fb.WriteU8(fc | exceptionFlag)
	fb.WriteU8(byte(ex))
}

// checkRegisterBounds implements §4.3: the validator hook runs first (if
// installed); then the address+quantity window is checked against
// maxAddress; then the quantity is checked against maxQuantity. It never
// mutates the store.
func checkRegisterBounds(d deps, fc byte, address, maxAddress, quantity, maxQuantity uint16) Exception {
	if d.validator != nil {
		if ex := d.validator(d.unit, fc, address, quantity); ex != OK {
			return ex
		}
	}
	if uint32(address)+uint32(quantity) > uint32(maxAddress) {
		return IllegalDataAddress
	}
	if quantity == 0 || quantity > maxQuantity {
		return IllegalDataValue
	}
	return OK
}
