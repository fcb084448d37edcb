package modbus

// processReadCoils implements Read Coils (0x01): §4.4 bit reads.
func processReadCoils(fb *FrameBuffer, d deps) Exception {
	address, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	quantity, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}

	buf, maxAddress := d.store.CoilBuffer(d.unit)
	if ex := checkRegisterBounds(d, FuncReadCoils, address, maxAddress, quantity, maxReadBitQuantity); ex != OK {
		return ex
	}

	out := packBits(buf, address, quantity)
	fb.WriteU8(FuncReadCoils)
	fb.WriteU8(byte(len(out)))
	fb.WriteBytes(out)
	return OK
}

// processReadDiscreteInputs implements Read Discrete Inputs (0x02).
func processReadDiscreteInputs(fb *FrameBuffer, d deps) Exception {
	address, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	quantity, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}

	buf, maxAddress := d.store.DiscreteInputBuffer(d.unit)
	if ex := checkRegisterBounds(d, FuncReadDiscreteInputs, address, maxAddress, quantity, maxReadBitQuantity); ex != OK {
		return ex
	}

	out := packBits(buf, address, quantity)
	fb.WriteU8(FuncReadDiscreteInputs)
	fb.WriteU8(byte(len(out)))
	fb.WriteBytes(out)
	return OK
}

// processReadHoldingRegisters implements Read Holding Registers (0x03):
// §4.4 register reads, a bulk copy straight out of the wire-order store.
func processReadHoldingRegisters(fb *FrameBuffer, d deps) Exception {
	address, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	quantity, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}

	buf, maxAddress := d.store.HoldingRegisterBuffer(d.unit)
	if ex := checkRegisterBounds(d, FuncReadHoldingRegisters, address, maxAddress, quantity, maxReadRegisterQuantity); ex != OK {
		return ex
	}

	data := buf[2*int(address) : 2*int(address)+2*int(quantity)]
	fb.WriteU8(FuncReadHoldingRegisters)
	fb.WriteU8(byte(2 * quantity))
	fb.WriteBytes(data)
	return OK
}

// processReadInputRegisters implements Read Input Registers (0x04).
func processReadInputRegisters(fb *FrameBuffer, d deps) Exception {
	address, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	quantity, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}

	buf, maxAddress := d.store.InputRegisterBuffer(d.unit)
	if ex := checkRegisterBounds(d, FuncReadInputRegisters, address, maxAddress, quantity, maxReadRegisterQuantity); ex != OK {
		return ex
	}

	data := buf[2*int(address) : 2*int(address)+2*int(quantity)]
	fb.WriteU8(FuncReadInputRegisters)
	fb.WriteU8(byte(2 * quantity))
	fb.WriteBytes(data)
	return OK
}

// processWriteSingleCoil implements Write Single Coil (0x05): §4.5.
func processWriteSingleCoil(fb *FrameBuffer, d deps) Exception {
	address, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	value, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	if value != 0x0000 && value != 0xFF00 {
		return IllegalDataValue
	}

	buf, maxAddress := d.store.CoilBuffer(d.unit)
	if ex := checkRegisterBounds(d, FuncWriteSingleCoil, address, maxAddress, maxSingleQuantity, maxSingleQuantity); ex != OK {
		return ex
	}

	changed := setBit(buf, address, value == 0xFF00)
	if changed && d.events && d.onCoils != nil {
		d.onCoils(d.unit, []uint16{address})
	}

	fb.WriteU8(FuncWriteSingleCoil)
	fb.WriteU16BE(address)
	fb.WriteU16BE(value)
	return OK
}

// processWriteSingleRegister implements Write Single Register (0x06).
func processWriteSingleRegister(fb *FrameBuffer, d deps) Exception {
	address, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	value, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}

	buf, maxAddress := d.store.HoldingRegisterBuffer(d.unit)
	if ex := checkRegisterBounds(d, FuncWriteSingleRegister, address, maxAddress, maxSingleQuantity, maxSingleQuantity); ex != OK {
		return ex
	}

	off := 2 * int(address)
	old0, old1 := buf[off], buf[off+1]
	buf[off] = byte(value >> 8)
	buf[off+1] = byte(value)
	if (old0 != buf[off] || old1 != buf[off+1]) && d.events && d.onRegs != nil {
		d.onRegs(d.unit, []uint16{address})
	}

	fb.WriteU8(FuncWriteSingleRegister)
	fb.WriteU16BE(address)
	fb.WriteU16BE(value)
	return OK
}

// processWriteMultipleRegisters implements Write Multiple Registers (0x10).
func processWriteMultipleRegisters(fb *FrameBuffer, d deps) Exception {
	address, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	quantity, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	byteCnt, err := fb.ReadU8()
	if err != nil {
		return IllegalDataValue
	}
	if uint16(byteCnt) != 2*quantity {
		return IllegalDataValue
	}
	data, err := fb.ReadBytes(int(byteCnt))
	if err != nil {
		return IllegalDataValue
	}

	buf, maxAddress := d.store.HoldingRegisterBuffer(d.unit)
	if ex := checkRegisterBounds(d, FuncWriteMultipleRegisters, address, maxAddress, quantity, maxWriteRegisterQuantity); ex != OK {
		return ex
	}

	changes := writeRegisterWindow(buf, address, data)

	if d.events && d.onRegs != nil {
		if addrs := changes.addressesOrNil(); addrs != nil {
			d.onRegs(d.unit, addrs)
		}
	}

	fb.WriteU8(FuncWriteMultipleRegisters)
	fb.WriteU16BE(address)
	fb.WriteU16BE(quantity)
	return OK
}

// processReadWriteMultipleRegisters implements Read/Write Multiple
// Registers (0x17). Per §4.5 and the Open Question in §9, both the read
// and write windows are validated before any mutation; the write is then
// applied before the read, so a response may reflect just-written values
// on overlapping windows.
func processReadWriteMultipleRegisters(fb *FrameBuffer, d deps) Exception {
	readAddress, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	readQuantity, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	writeAddress, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	writeQuantity, err := fb.ReadU16BE()
	if err != nil {
		return IllegalDataValue
	}
	byteCnt, err := fb.ReadU8()
	if err != nil {
		return IllegalDataValue
	}
	if uint16(byteCnt) != 2*writeQuantity {
		return IllegalDataValue
	}
	writeData, err := fb.ReadBytes(int(byteCnt))
	if err != nil {
		return IllegalDataValue
	}

	buf, maxAddress := d.store.HoldingRegisterBuffer(d.unit)

	if ex := checkRegisterBounds(d, FuncReadWriteMultipleRegisters, readAddress, maxAddress, readQuantity, maxReadWriteReadQuantity); ex != OK {
		return ex
	}
	if ex := checkRegisterBounds(d, FuncReadWriteMultipleRegisters, writeAddress, maxAddress, writeQuantity, maxReadWriteWriteQuantity); ex != OK {
		return ex
	}

	changes := writeRegisterWindow(buf, writeAddress, writeData)

	if d.events && d.onRegs != nil {
		if addrs := changes.addressesOrNil(); addrs != nil {
			d.onRegs(d.unit, addrs)
		}
	}

	readData := buf[2*int(readAddress) : 2*int(readAddress)+2*int(readQuantity)]
	fb.WriteU8(FuncReadWriteMultipleRegisters)
	fb.WriteU8(byte(2 * readQuantity))
	fb.WriteBytes(readData)
	return OK
}

// writeRegisterWindow overwrites buf's register window starting at address
// with data (2 bytes per register, wire order) and returns the set of
// addresses whose value actually changed.
func writeRegisterWindow(buf []byte, address uint16, data []byte) changeSet {
	quantity := uint16(len(data) / 2)
	changes := newChangeSet(quantity)
	off := 2 * int(address)
	for i := uint16(0); i < quantity; i++ {
		o := off + 2*int(i)
		if buf[o] != data[2*i] || buf[o+1] != data[2*i+1] {
			buf[o], buf[o+1] = data[2*i], data[2*i+1]
			changes.add(address + i)
		}
	}
	return changes
}
