package modbus

import (
	"context"
	"testing"

	"github.com/GoAethereal/cancel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerDispatchDrivesStateThroughCycle(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	srv := NewServer(store)

	rx := func(ctx cancel.Context, fb *FrameBuffer) (byte, error) {
		req := []byte{FuncReadHoldingRegisters, 0x00, 0x00, 0x00, 0x01}
		fb.SetLength(len(req))
		copy(fb.Bytes(), req)
		return 1, nil
	}
	var gotFrameLength int
	onWrit := func(ctx cancel.Context, fb *FrameBuffer, unit byte, frameLength int) error {
		gotFrameLength = frameLength
		return nil
	}

	h := NewHandler(srv, 1, 260, rx, onWrit)
	assert.Equal(t, stateIdle, h.State())

	// Dispatch works on an already-filled buffer; it does not call rx.
	rx(context.Background(), h.fb)
	require.NoError(t, h.Dispatch(context.Background()))
	assert.Equal(t, stateIdle, h.State())
	assert.Equal(t, 4, gotFrameLength) // fc, byteCount, 2 data bytes
}

func TestHandlerDispatchUnitBroadcastSkipsResponseTransmit(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	srv := NewServer(store)

	onWritCalled := false
	onWrit := func(ctx cancel.Context, fb *FrameBuffer, unit byte, frameLength int) error {
		onWritCalled = true
		return nil
	}

	h := NewHandler(srv, 1, 260, nil, onWrit)
	req := []byte{FuncWriteSingleRegister, 0x00, 0x00, 0x00, 0x05}
	h.fb.SetLength(len(req))
	copy(h.fb.Bytes(), req)

	require.NoError(t, h.DispatchUnit(context.Background(), Broadcast))
	assert.False(t, onWritCalled, "broadcast request must not produce a transmitted response")
	assert.Equal(t, stateIdle, h.State())
}

func TestHandlerStartStopsOnContextCancel(t *testing.T) {
	store := NewMemoryStore(8, 8, 8, 8)
	srv := NewServer(store)

	calls := make(chan struct{}, 8)
	rx := func(ctx cancel.Context, fb *FrameBuffer) (byte, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		req := []byte{FuncReadHoldingRegisters, 0x00, 0x00, 0x00, 0x01}
		fb.SetLength(len(req))
		copy(fb.Bytes(), req)
		return 1, nil
	}
	onWrit := func(ctx cancel.Context, fb *FrameBuffer, unit byte, frameLength int) error {
		return nil
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	h := NewHandler(srv, 1, 260, rx, onWrit)
	h.Start(ctx)

	<-calls
	cancelFn()
	require.NoError(t, h.Close())
}
