package modbus

import (
	"time"

	"github.com/GoAethereal/cancel"
	"go.bug.st/serial"
)

// maxRTUFrameLength bounds a single RTU ADU: unit id + PDU + 2-byte CRC.
const maxRTUFrameLength = 256

// serialPortWrapper adapts a go.bug.st/serial.Port — which exposes
// SetReadTimeout instead of net.Conn-style deadlines — to deadlineConn, so
// it can be driven by the same network type as a TCP socket.
type serialPortWrapper struct {
	port         serial.Port
	readDeadline time.Time
}

func newSerialPortWrapper(port serial.Port) *serialPortWrapper {
	return &serialPortWrapper{port: port}
}

func (w *serialPortWrapper) Read(buf []byte) (int, error) {
	if !w.readDeadline.IsZero() && time.Now().After(w.readDeadline) {
		return 0, ErrShortFrame
	}
	return w.port.Read(buf)
}

func (w *serialPortWrapper) Write(buf []byte) (int, error) {
	return w.port.Write(buf)
}

func (w *serialPortWrapper) Close() error {
	return w.port.Close()
}

func (w *serialPortWrapper) SetReadDeadline(t time.Time) error {
	w.readDeadline = t
	if t.IsZero() {
		return w.port.SetReadTimeout(serial.NoTimeout)
	}
	d := time.Until(t)
	if d <= 0 {
		d = time.Millisecond
	}
	return w.port.SetReadTimeout(d)
}

func (w *serialPortWrapper) SetWriteDeadline(time.Time) error {
	return nil
}

var _ deadlineConn = (*serialPortWrapper)(nil)

// openSerialPort opens the serial device named by cfg.Endpoint with
// cfg.Serial's line parameters.
func openSerialPort(cfg *Config) (*serialPortWrapper, error) {
	port, err := serial.Open(cfg.Endpoint, &serial.Mode{
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
		Parity:   cfg.Serial.Parity,
		StopBits: cfg.Serial.StopBits,
	})
	if err != nil {
		return nil, err
	}
	return newSerialPortWrapper(port), nil
}

// newRTUServerCodec builds the ReceiveFunc/ResponseReadyFunc pair a Handler
// uses to speak Modbus RTU over conn for the fixed slave address unit. A
// request frame carries no explicit length field, so rx reads it
// progressively: a fixed header long enough to identify the function code
// and its address field, then however many further bytes that function
// code's payload shape demands, before validating the trailing CRC16.
func newRTUServerCodec(conn connection, unit byte, timeout time.Duration) (ReceiveFunc, ResponseReadyFunc) {
	rx := func(ctx cancel.Context, fb *FrameBuffer) (byte, error) {
		ctx, cancelFn := cancel.Promote(ctx)
		defer cancelFn()
		go deadlineTimeout(ctx, cancelFn, timeout)

		raw := make([]byte, maxRTUFrameLength)
		for {
			n, err := readRTURequest(ctx, conn, raw)
			if err != nil {
				if err == errRTUResync {
					continue
				}
				return 0, err
			}

			frame, crcBytes := raw[:n-2], raw[n-2:n]
			if !crc16Equal(frame, crcBytes) {
				return 0, ErrBadCRC
			}

			reqUnit := frame[0]
			if reqUnit != unit && reqUnit != Broadcast {
				return 0, ErrMismatchedUnitId
			}

			pdu := frame[1:]
			copy(fb.Bytes(), pdu)
			fb.SetLength(len(pdu))
			return reqUnit, nil
		}
	}

	onWrit := func(ctx cancel.Context, fb *FrameBuffer, respUnit byte, frameLength int) error {
		pdu := fb.Response()[:frameLength]
		frame := make([]byte, 1+len(pdu)+2)
		frame[0] = respUnit
		copy(frame[1:], pdu)
		crc := crc16(frame[:1+len(pdu)])
		frame[1+len(pdu)] = byte(crc)
		frame[1+len(pdu)+1] = byte(crc >> 8)

		ctx, cancelFn := cancel.Promote(ctx)
		defer cancelFn()
		go deadlineTimeout(ctx, cancelFn, timeout)
		return conn.write(ctx, frame)
	}

	return rx, onWrit
}

// readRTURequest reads one RTU request ADU (unit id, PDU, CRC16) into buf
// and returns its length. It reads the unit id, function code and address
// field first (4 bytes, common to every supported function code), then
// reads whatever further bytes that function code's payload requires,
// ending with the 2-byte CRC.
func readRTURequest(ctx cancel.Context, conn connection, buf []byte) (int, error) {
	if _, err := conn.read(ctx, buf[:4]); err != nil {
		return 0, err
	}

	switch buf[1] {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters,
		FuncWriteSingleCoil, FuncWriteSingleRegister:
		// fc + address(2) already read; quantity/value(2) + CRC16(2)
		// remain.
		if _, err := conn.read(ctx, buf[4:8]); err != nil {
			return 0, err
		}
		return 8, nil

	case FuncWriteMultipleRegisters:
		// fc + address(2) read; quantity(2) + byteCount(1) next.
		if _, err := conn.read(ctx, buf[4:7]); err != nil {
			return 0, err
		}
		byteCnt := int(buf[6])
		end := 7 + byteCnt + 2
		if end > len(buf) {
			return 0, ErrShortFrame
		}
		if _, err := conn.read(ctx, buf[7:end]); err != nil {
			return 0, err
		}
		return end, nil

	case FuncReadWriteMultipleRegisters:
		// fc + readAddress(2) read; readQuantity(2) + writeAddress(2) +
		// writeQuantity(2) + byteCount(1) next.
		if _, err := conn.read(ctx, buf[4:11]); err != nil {
			return 0, err
		}
		byteCnt := int(buf[10])
		end := 11 + byteCnt + 2
		if end > len(buf) {
			return 0, ErrShortFrame
		}
		if _, err := conn.read(ctx, buf[11:end]); err != nil {
			return 0, err
		}
		return end, nil

	default:
		// A function code outside the supported set carries no length
		// this server can infer, so the frame cannot be bounded or CRC
		// checked. Discard what was read and let the caller resync
		// against the following bytes rather than tearing the
		// connection down, matching how a real RS-485 slave ignores a
		// frame it cannot parse instead of going offline.
		return 0, errRTUResync
	}
}

// crc16 computes the Modbus CRC16 (polynomial 0xA001, init 0xFFFF) over
// data.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// crc16Equal reports whether the two trailer bytes (low byte first, as
// Modbus RTU transmits CRC16) match the CRC16 computed over data.
func crc16Equal(data []byte, trailer []byte) bool {
	want := crc16(data)
	return trailer[0] == byte(want) && trailer[1] == byte(want>>8)
}
