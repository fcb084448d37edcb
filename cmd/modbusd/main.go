// Command modbusd runs a standalone Modbus server backed by an in-memory
// register store.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nexusmb/modbus"
)

func main() {
	var (
		mode     = flag.String("mode", "tcp", "transport mode: tcp or rtu")
		endpoint = flag.String("endpoint", "localhost:5020", "\"host:port\" for tcp, device path for rtu")
		unit     = flag.Uint("unit", 1, "unit id")
		async    = flag.Bool("async", true, "serialize request handling across connections")
	)
	flag.Parse()

	zl, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	kind := "tcp"
	if *mode == "rtu" {
		kind = "serial"
	}

	cfg := modbus.NewConfig(*mode, kind, *endpoint,
		modbus.WithUnitID(byte(*unit)),
		modbus.WithAsynchronous(*async),
		modbus.WithEnableRaisingEvents(true),
		modbus.WithLogger(logger),
		modbus.WithOnCoilsChanged(func(unit byte, addresses []uint16) {
			logger.Infow("coils changed", "unit", unit, "addresses", addresses)
		}),
		modbus.WithOnRegistersChanged(func(unit byte, addresses []uint16) {
			logger.Infow("registers changed", "unit", unit, "addresses", addresses)
		}),
	)

	store := modbus.NewMemoryStore(10000, 10000, 10000, 10000)
	srv := modbus.NewServer(store, modbus.WithLogger(logger), modbus.WithAsynchronous(*async),
		modbus.WithEnableRaisingEvents(true),
		modbus.WithOnCoilsChanged(cfg.OnCoilsChanged),
		modbus.WithOnRegistersChanged(cfg.OnRegistersChanged))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infow("starting modbus server", "mode", *mode, "endpoint", *endpoint, "unit", *unit)
	if err := srv.Serve(ctx, cfg); err != nil && ctx.Err() == nil {
		logger.Errorw("server exited", "error", err)
		os.Exit(1)
	}
	logger.Infow("server stopped")
}
