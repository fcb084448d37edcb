package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigVerify(t *testing.T) {
	cases := []struct {
		name    string
		cfg     *Config
		wantErr error
	}{
		{"tcp ok", NewConfig("tcp", "tcp", "localhost:502"), nil},
		{"rtu ok", NewConfig("rtu", "serial", "/dev/ttyUSB0"), nil},
		{"tcp wrong kind", NewConfig("tcp", "serial", "localhost:502"), ErrInvalidParameter},
		{"rtu wrong kind", NewConfig("rtu", "tcp", "/dev/ttyUSB0"), ErrInvalidParameter},
		{"unknown mode", NewConfig("foo", "tcp", "localhost:502"), ErrInvalidParameter},
		{"empty endpoint", NewConfig("tcp", "tcp", ""), ErrInvalidParameter},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Verify()
			if c.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, c.wantErr)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig("tcp", "tcp", "localhost:502")
	assert.Equal(t, byte(0), cfg.UnitID)
	assert.NotZero(t, cfg.Timeout)
	assert.NotNil(t, cfg.Logger)
}

func TestConfigOptionsApply(t *testing.T) {
	cfg := NewConfig("tcp", "tcp", "localhost:502",
		WithUnitID(7),
		WithMaxClients(4),
		WithAsynchronous(true),
		WithEnableRaisingEvents(true),
	)
	assert.Equal(t, byte(7), cfg.UnitID)
	assert.Equal(t, 4, cfg.MaxClients)
	assert.True(t, cfg.Asynchronous)
	assert.True(t, cfg.EnableRaisingEvents)
}
