package modbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusmb/modbus"
)

// startTestServer boots a TCP server on addr against a fresh MemoryStore and
// returns the store plus a cancel func that tears the server down.
func startTestServer(t *testing.T, addr string, opts ...modbus.Option) (*modbus.MemoryStore, context.CancelFunc) {
	t.Helper()
	store := modbus.NewMemoryStore(1000, 1000, 1000, 1000)
	srv := modbus.NewServer(store, opts...)
	cfg := modbus.NewConfig("tcp", "tcp", addr, modbus.WithTimeout(2*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	go func() {
		close(ready)
		srv.Serve(ctx, cfg)
	}()
	<-ready
	time.Sleep(50 * time.Millisecond) // let the listener come up
	return store, cancel
}

func TestClientServerReadWriteRoundTrip(t *testing.T) {
	_, stop := startTestServer(t, "127.0.0.1:15502")
	defer stop()

	c := &modbus.Client{Config: modbus.NewConfig("tcp", "tcp", "127.0.0.1:15502", modbus.WithTimeout(2*time.Second))}
	defer c.Disconnect()

	ctx := context.Background()

	require.NoError(t, c.WriteSingleRegister(ctx, 1, 10, 0x1234))
	values, err := c.ReadHoldingRegisters(ctx, 1, 10, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, values)

	require.NoError(t, c.WriteSingleCoil(ctx, 1, 3, true))
	coils, err := c.ReadCoils(ctx, 1, 0, 8)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, false, false, true, false, false, false, false}, coils)
}

func TestClientServerIllegalDataValueException(t *testing.T) {
	_, stop := startTestServer(t, "127.0.0.1:15503")
	defer stop()

	c := &modbus.Client{Config: modbus.NewConfig("tcp", "tcp", "127.0.0.1:15503", modbus.WithTimeout(2*time.Second))}
	defer c.Disconnect()

	_, err := c.ReadHoldingRegisters(context.Background(), 1, 0, 200)
	var ex modbus.Exception
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, modbus.IllegalDataValue, ex)
}

func TestClientServerWriteMultipleRegistersAndReadBack(t *testing.T) {
	_, stop := startTestServer(t, "127.0.0.1:15504")
	defer stop()

	c := &modbus.Client{Config: modbus.NewConfig("tcp", "tcp", "127.0.0.1:15504", modbus.WithTimeout(2*time.Second))}
	defer c.Disconnect()

	ctx := context.Background()
	require.NoError(t, c.WriteMultipleRegisters(ctx, 1, 0, []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03}))

	values, err := c.ReadHoldingRegisters(ctx, 1, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03}, values)
}
