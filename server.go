package modbus

import (
	"context"
	"net"
	"sync"
)

// Server is the Go implementation of a Modbus slave: it listens for
// incoming requests over TCP or RTU and dispatches them against a shared
// RegisterStore. The intended use is:
//
//	store := modbus.NewMemoryStore(10000, 10000, 10000, 10000)
//	cfg := modbus.NewConfig("tcp", "tcp", "localhost:502")
//	srv := modbus.NewServer(store, modbus.WithLogger(logger))
//	log.Fatal(srv.Serve(ctx, cfg))
type Server struct {
	store  RegisterStore
	logger Logger

	validator          RequestValidator
	onCoilsChanged     ChangeEventFunc
	onRegistersChanged ChangeEventFunc

	enableRaisingEvents bool
	asynchronous        bool

	lock sync.Mutex

	mu       sync.Mutex
	handlers map[*Handler]struct{}
}

// NewServer constructs a Server backed by store, applying opts.
func NewServer(store RegisterStore, opts ...Option) *Server {
	cfg := &Config{Logger: NewNopLogger()}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Server{
		store:               store,
		logger:              cfg.Logger,
		validator:           cfg.Validator,
		onCoilsChanged:      cfg.OnCoilsChanged,
		onRegistersChanged:  cfg.OnRegistersChanged,
		enableRaisingEvents: cfg.EnableRaisingEvents,
		asynchronous:        cfg.Asynchronous,
		handlers:            make(map[*Handler]struct{}),
	}
}

// Serve starts the server for cfg and blocks until ctx is cancelled or an
// unrecoverable error occurs listening.
func (s *Server) Serve(ctx context.Context, cfg *Config) error {
	if err := cfg.Verify(); err != nil {
		return err
	}
	switch cfg.Mode {
	case "tcp":
		return s.serveTCP(ctx, cfg)
	case "rtu":
		return s.serveRTU(ctx, cfg)
	}
	return ErrInvalidParameter
}

func (s *Server) serveTCP(ctx context.Context, cfg *Config) error {
	l, err := net.Listen(cfg.Kind, cfg.Endpoint)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		l.Close()
	}()

	var active sync.WaitGroup
	var sem chan struct{}
	if cfg.MaxClients > 0 {
		sem = make(chan struct{}, cfg.MaxClients)
	}

	for {
		select {
		case <-ctx.Done():
			active.Wait()
			wg.Wait()
			return ctx.Err()
		default:
		}

		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				active.Wait()
				wg.Wait()
				return ctx.Err()
			default:
				s.logger.Warnw("accept failed", "error", err)
				continue
			}
		}

		if sem != nil {
			select {
			case sem <- struct{}{}:
			default:
				s.logger.Warnw("max clients reached, rejecting connection", "remote", conn.RemoteAddr())
				conn.Close()
				continue
			}
		}

		active.Add(1)
		go func(conn net.Conn) {
			defer active.Done()
			if sem != nil {
				defer func() { <-sem }()
			}
			s.runTCPConnection(ctx, conn, cfg)
		}(conn)
	}
}

func (s *Server) runTCPConnection(ctx context.Context, conn net.Conn, cfg *Config) {
	nc := newNetwork(conn)
	defer nc.close()

	rx, onWrit := newTCPServerCodec(nc, cfg.Timeout)
	h := NewHandler(s, cfg.UnitID, minFrameBufferCapacity, rx, onWrit)

	s.trackHandler(h)
	defer s.untrackHandler(h)

	h.Start(ctx)
	<-ctx.Done()
	h.Close()
}

func (s *Server) serveRTU(ctx context.Context, cfg *Config) error {
	port, err := openSerialPort(cfg)
	if err != nil {
		return err
	}
	defer port.Close()

	nc := newNetwork(port)
	defer nc.close()

	rx, onWrit := newRTUServerCodec(nc, cfg.UnitID, cfg.Timeout)
	h := NewHandler(s, cfg.UnitID, maxRTUFrameLength, rx, onWrit)

	s.trackHandler(h)
	defer s.untrackHandler(h)

	h.Start(ctx)
	<-ctx.Done()
	h.Close()
	return ctx.Err()
}

func (s *Server) trackHandler(h *Handler) {
	s.mu.Lock()
	s.handlers[h] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackHandler(h *Handler) {
	s.mu.Lock()
	delete(s.handlers, h)
	s.mu.Unlock()
}
