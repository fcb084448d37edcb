package modbus

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/GoAethereal/cancel"
)

// mbapHeaderLen is the fixed size of the Modbus Application Protocol
// header: transaction id (2), protocol id (2), length (2), unit id (1).
const mbapHeaderLen = 7

// newTCPServerCodec builds the ReceiveFunc/ResponseReadyFunc pair a Handler
// uses to speak Modbus/TCP over conn: rx strips the MBAP header and hands
// the dispatcher a bare PDU; onWrit rewraps the response PDU with an MBAP
// header echoing the request's transaction id.
func newTCPServerCodec(conn connection, timeout time.Duration) (ReceiveFunc, ResponseReadyFunc) {
	var lastTransID uint32

	rx := func(ctx cancel.Context, fb *FrameBuffer) (byte, error) {
		ctx, cancelFn := cancel.Promote(ctx)
		defer cancelFn()
		go deadlineTimeout(ctx, cancelFn, timeout)

		var header [mbapHeaderLen]byte
		if _, err := conn.read(ctx, header[:]); err != nil {
			return 0, err
		}

		length := binary.BigEndian.Uint16(header[4:6])
		if length == 0 || int(length)-1 > fb.Cap()-mbapHeaderLen {
			return 0, ErrShortFrame
		}
		pduLen := int(length) - 1

		dst := fb.Bytes()[:pduLen]
		if _, err := conn.read(ctx, dst); err != nil {
			return 0, err
		}
		atomic.StoreUint32(&lastTransID, uint32(binary.BigEndian.Uint16(header[0:2])))
		fb.SetLength(pduLen)
		return header[6], nil
	}

	onWrit := func(ctx cancel.Context, fb *FrameBuffer, unit byte, frameLength int) error {
		pdu := fb.Response()[:frameLength]
		adu := make([]byte, mbapHeaderLen+len(pdu))
		binary.BigEndian.PutUint16(adu[0:], uint16(atomic.LoadUint32(&lastTransID)))
		binary.BigEndian.PutUint16(adu[2:], 0)
		binary.BigEndian.PutUint16(adu[4:], uint16(1+len(pdu)))
		adu[6] = unit
		copy(adu[7:], pdu)

		ctx, cancelFn := cancel.Promote(ctx)
		defer cancelFn()
		go deadlineTimeout(ctx, cancelFn, timeout)
		return conn.write(ctx, adu)
	}

	return rx, onWrit
}

// deadlineTimeout cancels cancelFn after d, unless ctx is already done.
// Transport read/write calls translate a cancelled ctx into an expired I/O
// deadline on the underlying connection.
func deadlineTimeout(ctx cancel.Context, cancelFn cancel.CancelFunc, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
		cancelFn()
	}
}

// tcpClientCodec implements MBAP framing for Client: one request/response
// round trip per call, transaction ids incrementing monotonically.
type tcpClientCodec struct {
	transID uint32
}

func (c *tcpClientCodec) encode(unit, function byte, pdu []byte) []byte {
	adu := make([]byte, mbapHeaderLen+1+len(pdu))
	binary.BigEndian.PutUint16(adu[0:], uint16(atomic.AddUint32(&c.transID, 1)))
	binary.BigEndian.PutUint16(adu[2:], 0)
	binary.BigEndian.PutUint16(adu[4:], uint16(2+len(pdu)))
	adu[6] = unit
	adu[7] = function
	copy(adu[8:], pdu)
	return adu
}

// readResponse reads one MBAP-framed ADU off conn and returns its PDU
// (function code plus payload), verifying the transaction id matches req.
func (c *tcpClientCodec) readResponse(ctx cancel.Context, conn connection, req []byte) ([]byte, error) {
	var header [mbapHeaderLen]byte
	if _, err := conn.read(ctx, header[:]); err != nil {
		return nil, err
	}
	if header[0] != req[0] || header[1] != req[1] {
		return nil, ErrMismatchedTransactionId
	}
	if header[6] != req[6] {
		return nil, ErrMismatchedUnitId
	}
	length := binary.BigEndian.Uint16(header[4:6])
	if length == 0 || length > 254 {
		return nil, ErrShortFrame
	}
	pdu := make([]byte, length-1)
	if _, err := conn.read(ctx, pdu); err != nil {
		return nil, err
	}
	return pdu, nil
}
