package modbus

import "encoding/binary"

// minFrameBufferCapacity is the smallest capacity a Modbus/TCP transport
// should hand the handler: 253 bytes of PDU plus the 7-byte MBAP header.
const minFrameBufferCapacity = 260

// FrameBuffer is a fixed-capacity byte buffer with independent, seekable
// reader and writer cursors. A transport adapter fills it with an inbound
// PDU and sets Length; the dispatcher reads the function code and payload
// through the reader, and writes the response through the writer. It is
// reused across requests on a single connection — Reset rewinds both
// cursors to 0 without reallocating.
type FrameBuffer struct {
	buf    []byte
	rpos   int
	wpos   int
	length int
}

// NewFrameBuffer allocates a FrameBuffer with the given fixed capacity.
// capacity should be at least minFrameBufferCapacity for Modbus/TCP.
func NewFrameBuffer(capacity int) *FrameBuffer {
	return &FrameBuffer{buf: make([]byte, capacity)}
}

// Cap returns the buffer's fixed capacity.
func (f *FrameBuffer) Cap() int { return len(f.buf) }

// Length reports how many bytes of buf hold a valid frame, as set by the
// most recent call to SetLength.
func (f *FrameBuffer) Length() int { return f.length }

// SetLength marks n bytes of the buffer as holding a valid inbound frame
// and rewinds the reader to the start of it. A transport calls this once
// it has finished filling the buffer from the wire.
func (f *FrameBuffer) SetLength(n int) {
	f.length = n
	f.rpos = 0
}

// IsReady reports whether the buffer holds a non-empty frame, per the
// dispatch precondition IsReady ∧ Length > 0.
func (f *FrameBuffer) IsReady() bool {
	return f.length > 0
}

// Bytes returns the raw backing slice truncated to capacity; transports use
// this to obtain a destination for the next read.
func (f *FrameBuffer) Bytes() []byte { return f.buf }

// Reset rewinds both cursors and clears the recorded length, preparing the
// buffer for the next receive cycle (state transition Processing → Idle).
func (f *FrameBuffer) Reset() {
	f.rpos, f.wpos, f.length = 0, 0, 0
}

// SeekWriter repositions the writer cursor. The dispatcher calls
// SeekWriter(0) at the start of every dispatch per the invariant that the
// response buffer always begins at writer position 0.
func (f *FrameBuffer) SeekWriter(pos int) { f.wpos = pos }

// WriterLen returns the number of bytes written to the buffer via the
// writer cursor so far — the total response frame length.
func (f *FrameBuffer) WriterLen() int { return f.wpos }

// ReadU8 reads one byte and advances the reader cursor.
func (f *FrameBuffer) ReadU8() (byte, error) {
	if f.rpos >= f.length {
		return 0, ErrShortFrame
	}
	b := f.buf[f.rpos]
	f.rpos++
	return b, nil
}

// ReadU16BE reads a big-endian 16-bit value and advances the reader cursor.
func (f *FrameBuffer) ReadU16BE() (uint16, error) {
	if f.rpos+2 > f.length {
		return 0, ErrShortFrame
	}
	v := binary.BigEndian.Uint16(f.buf[f.rpos:])
	f.rpos += 2
	return v, nil
}

// ReadI16 reads a big-endian 16-bit value as a signed integer and advances
// the reader cursor. No host-order conversion is applied.
func (f *FrameBuffer) ReadI16() (int16, error) {
	v, err := f.ReadU16BE()
	return int16(v), err
}

// ReadBytes reads n raw bytes and advances the reader cursor.
func (f *FrameBuffer) ReadBytes(n int) ([]byte, error) {
	if f.rpos+n > f.length {
		return nil, ErrShortFrame
	}
	b := f.buf[f.rpos : f.rpos+n]
	f.rpos += n
	return b, nil
}

// Remaining returns the number of unread bytes left in the current frame.
func (f *FrameBuffer) Remaining() int {
	if f.rpos >= f.length {
		return 0
	}
	return f.length - f.rpos
}

// WriteU8 appends one byte through the writer cursor.
func (f *FrameBuffer) WriteU8(b byte) error {
	if f.wpos+1 > len(f.buf) {
		return ErrBufferExhausted
	}
	f.buf[f.wpos] = b
	f.wpos++
	return nil
}

// WriteU16BE appends a big-endian 16-bit value through the writer cursor.
func (f *FrameBuffer) WriteU16BE(v uint16) error {
	if f.wpos+2 > len(f.buf) {
		return ErrBufferExhausted
	}
	binary.BigEndian.PutUint16(f.buf[f.wpos:], v)
	f.wpos += 2
	return nil
}

// WriteI16 appends a signed 16-bit value through the writer cursor in
// big-endian order, the same convention as ReadI16.
func (f *FrameBuffer) WriteI16(v int16) error {
	return f.WriteU16BE(uint16(v))
}

// WriteBytes appends raw bytes through the writer cursor.
func (f *FrameBuffer) WriteBytes(b []byte) error {
	if f.wpos+len(b) > len(f.buf) {
		return ErrBufferExhausted
	}
	f.wpos += copy(f.buf[f.wpos:], b)
	return nil
}

// Response returns the bytes written through the writer cursor, i.e. the
// finished PDU (normal or exception).
func (f *FrameBuffer) Response() []byte {
	return f.buf[:f.wpos]
}
