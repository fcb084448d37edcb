package modbus

import "encoding/binary"

// putU16 writes v into buf[0:2] in wire (big-endian) byte order.
func putU16(buf []byte, v uint16) {
	binary.BigEndian.PutUint16(buf, v)
}

// encodeU16Pair returns the 4-byte wire encoding of a and b, as used by the
// address+quantity and address+value fields of most request PDUs.
func encodeU16Pair(a, b uint16) []byte {
	buf := make([]byte, 4)
	putU16(buf[0:], a)
	putU16(buf[2:], b)
	return buf
}

// unpackResponseBits unpacks a Read Coils / Read Discrete Inputs response
// payload (packed, bit 0 is address 0) into a bool slice of length
// quantity.
func unpackResponseBits(quantity uint16, packed []byte) []bool {
	out := make([]bool, quantity)
	for i := uint16(0); i < quantity; i++ {
		out[i] = (packed[i/8]>>(i%8))&1 == 1
	}
	return out
}

// byteCount returns the number of bytes needed to hold bitCount bits,
// i.e. ⌈bitCount/8⌉.
func byteCount(bitCount uint16) int {
	return int((bitCount + 7) / 8)
}

// getBit returns bit i of address a within buf, using the little-endian
// bit order within each byte specified by the data model: bit i of coil
// address a is (buf[a/8] >> (a%8)) & 1.
func getBit(buf []byte, a uint16) bool {
	return (buf[a/8]>>(a%8))&1 == 1
}

// setBit sets or clears bit i of address a within buf and reports whether
// the stored value actually changed.
func setBit(buf []byte, a uint16, v bool) (changed bool) {
	byteIdx, bit := a/8, a%8
	old := (buf[byteIdx]>>bit)&1 == 1
	if old == v {
		return false
	}
	if v {
		buf[byteIdx] |= 1 << bit
	} else {
		buf[byteIdx] &^= 1 << bit
	}
	return true
}

// packBits copies quantity bits starting at startAddress out of src into a
// freshly allocated, packed output buffer (bit 0 of out is startAddress),
// as required by the Read Coils / Read Discrete Inputs response payload.
func packBits(src []byte, startAddress, quantity uint16) []byte {
	out := make([]byte, byteCount(quantity))
	for i := uint16(0); i < quantity; i++ {
		if getBit(src, startAddress+i) {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}
