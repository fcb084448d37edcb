package modbus

import (
	"sync"

	"github.com/GoAethereal/cancel"
)

// ReceiveFunc is transport-supplied: it fills fb with the next inbound PDU,
// calls fb.SetLength, and reports which unit it was addressed to (the MBAP
// unit id for TCP, or the fixed slave address for RTU). It returns once a
// frame is ready or ctx is cancelled.
type ReceiveFunc func(ctx cancel.Context, fb *FrameBuffer) (unit byte, err error)

// ResponseReadyFunc is transport-supplied: given the finished response
// frame and the unit it answers, it transmits the response (wrapping it in
// whatever framing the transport owns).
type ResponseReadyFunc func(ctx cancel.Context, fb *FrameBuffer, unit byte, frameLength int) error

// handlerState names the points in the per-request lifecycle: Idle,
// Receiving, Ready, Processing, back to Idle. It exists for observability —
// DispatchUnit does not branch on it.
type handlerState int

const (
	stateIdle handlerState = iota
	stateReceiving
	stateReady
	stateProcessing
)

// Handler drives one connection's worth of request/response cycles against
// a Server. Start spawns the receive loop that feeds it; Close tears the
// loop down.
//
// A Handler owns its FrameBuffer exclusively; the register store it reads
// from is shared with every other Handler on the same Server and is
// serialized by the Server's coarse lock whenever the Server is
// asynchronous.
type Handler struct {
	srv    *Server
	unit   byte
	fb     *FrameBuffer
	rx     ReceiveFunc
	onWrit ResponseReadyFunc
	logger Logger

	mu    sync.Mutex
	state handlerState

	cancel cancel.CancelFunc
	done   chan struct{}
}

// NewHandler constructs a Handler bound to srv, with the given transport
// collaborators and a FrameBuffer of capacity bufCap. unit is the default
// unit used by Dispatch for direct/embedded callers that don't carry a
// per-request unit id of their own; the receive loop uses the unit that rx
// reports instead.
func NewHandler(srv *Server, unit byte, bufCap int, rx ReceiveFunc, onWrit ResponseReadyFunc) *Handler {
	return &Handler{
		srv:    srv,
		unit:   unit,
		fb:     NewFrameBuffer(bufCap),
		rx:     rx,
		onWrit: onWrit,
		logger: srv.logger,
	}
}

// State reports the Handler's current position in the request lifecycle.
func (h *Handler) State() handlerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handler) setState(s handlerState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Start begins the handler's receive loop: while not cancelled, it
// repeatedly receives one PDU and dispatches it. Every connection, whether
// the Server is synchronous or asynchronous, is driven this way; the mode
// only decides whether DispatchUnit takes the Server's coarse lock around
// the store access (asynchronous) or not (synchronous). In synchronous mode
// Handlers that run at the same time, such as one per TCP connection, are
// not serialized against each other.
func (h *Handler) Start(ctx cancel.Context) {
	ctx, cancelFn := cancel.Promote(ctx)
	h.cancel = cancelFn
	h.done = make(chan struct{})

	go func() {
		defer close(h.done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := h.receiveAndDispatch(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				h.logger.Errorw("receive loop fault, closing handler", "unit", h.unit, "error", err)
				return
			}
		}
	}()
}

// Close signals cancellation, awaits the receive task (if any), and
// releases the FrameBuffer. Safe to call from any state, including Idle.
func (h *Handler) Close() error {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}
	h.fb.Reset()
	return nil
}

// receiveAndDispatch runs one Receiving → Ready → Processing → Idle cycle.
func (h *Handler) receiveAndDispatch(ctx cancel.Context) error {
	h.setState(stateReceiving)
	unit, err := h.rx(ctx, h.fb)
	if err != nil {
		return err
	}
	return h.DispatchUnit(ctx, unit)
}

// Dispatch runs a single Ready → Processing → Idle cycle for the Handler's
// default unit, against a FrameBuffer a synchronous caller has already
// filled directly (used by embedded/direct callers and tests).
func (h *Handler) Dispatch(ctx cancel.Context) error {
	return h.DispatchUnit(ctx, h.unit)
}

// DispatchUnit is the same cycle as Dispatch but against an explicit unit,
// for transports (TCP) that carry the unit id per request rather than
// fixing it for the whole connection. It engages the Server's coarse lock
// for the full duration of processor execution and frame finalization when
// the Server is asynchronous; the lock is never held across h.rx, which is
// the only suspension point.
func (h *Handler) DispatchUnit(ctx cancel.Context, unit byte) error {
	h.setState(stateReady)
	h.setState(stateProcessing)

	if h.srv.asynchronous {
		h.srv.lock.Lock()
		defer h.srv.lock.Unlock()
	}

	n, err := Dispatch(h.fb, unit, h.srv.store, h.srv.validator, h.srv.enableRaisingEvents, h.srv.onCoilsChanged, h.srv.onRegistersChanged)
	if err != nil {
		h.setState(stateIdle)
		h.fb.Reset()
		return err
	}

	// A broadcast request (unit 0) carries no response: Dispatch returns an
	// empty frame and the transport must not transmit anything back onto
	// the bus.
	if unit == Broadcast {
		h.setState(stateIdle)
		h.fb.Reset()
		return nil
	}

	if err := h.onWrit(ctx, h.fb, unit, n); err != nil {
		h.setState(stateIdle)
		h.fb.Reset()
		return err
	}

	h.setState(stateIdle)
	h.fb.Reset()
	return nil
}
