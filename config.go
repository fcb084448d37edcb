package modbus

import (
	"time"

	"go.bug.st/serial"
)

// Config configures a Server or Client. Zero value is not usable; build one
// with NewConfig and Options.
//
// Server.Serve reads only the transport fields (Mode, Kind, Endpoint,
// UnitID, Serial, Timeout, MaxClients) from the Config it is given. The
// dispatch fields (EnableRaisingEvents, Asynchronous, Validator, the change
// callbacks and Logger) take effect through the Options passed to
// NewServer.
type Config struct {
	// Mode selects the wire framing: "tcp" (MBAP) or "rtu" (serial, CRC16).
	Mode string
	// Kind selects the transport: "tcp" or "serial". For Mode "rtu", Kind
	// must be "serial"; for Mode "tcp", Kind must be "tcp".
	Kind string
	// Endpoint is a "host:port" for Kind "tcp", or a device path
	// (e.g. "/dev/ttyUSB0") for Kind "serial".
	Endpoint string
	// UnitID is the unit identifier a Client addresses requests to, and
	// the identifier a single-unit Server answers for over RTU (TCP
	// unit ids are carried per-request in the MBAP header instead).
	UnitID byte

	// Serial carries the line parameters used when Kind is "serial".
	Serial SerialConfig

	// Timeout bounds a single request/response round trip.
	Timeout time.Duration
	// MaxClients caps concurrently accepted TCP connections; 0 means
	// unlimited. Ignored for Kind "serial", which is inherently single-link.
	MaxClients int

	// EnableRaisingEvents gates whether OnCoilsChanged/OnRegistersChanged
	// fire after a successful write.
	EnableRaisingEvents bool
	// Asynchronous selects whether Dispatch takes the Server's coarse lock
	// around store access. See Handler.Start.
	Asynchronous bool

	Validator          RequestValidator
	OnCoilsChanged     ChangeEventFunc
	OnRegistersChanged ChangeEventFunc

	Logger Logger
}

// SerialConfig carries the line parameters for an RTU transport.
type SerialConfig struct {
	BaudRate int
	DataBits int
	Parity   serial.Parity
	StopBits serial.StopBits
}

// Option mutates a Config being built by NewConfig.
type Option func(*Config)

// NewConfig builds a Config for mode/kind/endpoint with sensible defaults,
// applying opts in order.
func NewConfig(mode, kind, endpoint string, opts ...Option) *Config {
	cfg := &Config{
		Mode:     mode,
		Kind:     kind,
		Endpoint: endpoint,
		Timeout:  1 * time.Second,
		Serial: SerialConfig{
			BaudRate: 19200,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		},
		Logger: NewNopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func WithUnitID(id byte) Option { return func(c *Config) { c.UnitID = id } }

func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

func WithMaxClients(n int) Option { return func(c *Config) { c.MaxClients = n } }

func WithEnableRaisingEvents(v bool) Option { return func(c *Config) { c.EnableRaisingEvents = v } }

func WithAsynchronous(v bool) Option { return func(c *Config) { c.Asynchronous = v } }

func WithValidator(v RequestValidator) Option { return func(c *Config) { c.Validator = v } }

func WithOnCoilsChanged(f ChangeEventFunc) Option {
	return func(c *Config) { c.OnCoilsChanged = f }
}

func WithOnRegistersChanged(f ChangeEventFunc) Option {
	return func(c *Config) { c.OnRegistersChanged = f }
}

func WithSerial(s SerialConfig) Option { return func(c *Config) { c.Serial = s } }

func WithLogger(l Logger) Option { return func(c *Config) { c.Logger = l } }

// Verify validates Config, returning ErrInvalidParameter if anything is
// malformed.
func (cfg *Config) Verify() error {
	switch cfg.Mode {
	case "tcp":
		if cfg.Kind != "tcp" {
			return ErrInvalidParameter
		}
	case "rtu":
		if cfg.Kind != "serial" {
			return ErrInvalidParameter
		}
	default:
		return ErrInvalidParameter
	}
	if cfg.Endpoint == "" {
		return ErrInvalidParameter
	}
	return nil
}
