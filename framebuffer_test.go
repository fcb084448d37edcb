package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBufferReadWriteRoundTrip(t *testing.T) {
	fb := NewFrameBuffer(16)
	assert.False(t, fb.IsReady())

	fb.SetLength(4)
	copy(fb.Bytes(), []byte{0x03, 0x00, 0x02, 0x05})
	assert.True(t, fb.IsReady())

	fc, err := fb.ReadU8()
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), fc)

	v, err := fb.ReadU16BE()
	require.NoError(t, err)
	assert.Equal(t, uint16(2), v)

	assert.Equal(t, 1, fb.Remaining())

	_, err = fb.ReadU16BE()
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestFrameBufferWriteExhaustsCapacity(t *testing.T) {
	fb := NewFrameBuffer(2)
	require.NoError(t, fb.WriteU8(1))
	require.NoError(t, fb.WriteU8(2))
	assert.ErrorIs(t, fb.WriteU8(3), ErrBufferExhausted)
}

func TestFrameBufferResponseReflectsWriterCursor(t *testing.T) {
	fb := NewFrameBuffer(8)
	fb.WriteU8(0x03)
	fb.WriteU16BE(0x0102)
	assert.Equal(t, []byte{0x03, 0x01, 0x02}, fb.Response())
	assert.Equal(t, 3, fb.WriterLen())
}

func TestFrameBufferResetClearsState(t *testing.T) {
	fb := NewFrameBuffer(8)
	fb.SetLength(4)
	fb.WriteU8(1)
	fb.Reset()
	assert.False(t, fb.IsReady())
	assert.Equal(t, 0, fb.WriterLen())
	assert.Equal(t, 0, fb.Remaining())
}

func TestFrameBufferSeekWriter(t *testing.T) {
	fb := NewFrameBuffer(8)
	fb.WriteBytes([]byte{1, 2, 3})
	fb.SeekWriter(0)
	fb.WriteU8(9)
	assert.Equal(t, []byte{9}, fb.Response())
}
