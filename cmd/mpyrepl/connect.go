package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"mpyrepl/device"
)

// connectFlags are the connection options shared by every subcommand
// that needs a live device: either -port (serial) or -host (WebREPL).
type connectFlags struct {
	port     string
	baud     int
	host     string
	password string
}

func bindConnectFlags(fs *flag.FlagSet, cfg *config) *connectFlags {
	cf := &connectFlags{}
	fs.StringVar(&cf.port, "port", cfg.get("port", ""), "serial port (e.g. /dev/ttyUSB0)")
	fs.IntVar(&cf.baud, "baud", cfg.getInt("baud", 115200), "serial baud rate")
	fs.StringVar(&cf.host, "host", cfg.get("host", ""), "WebREPL host (e.g. 192.168.1.50)")
	fs.StringVar(&cf.password, "password", cfg.get("password", ""), "WebREPL password")
	return cf
}

func connectDevice(ctx context.Context, log *slog.Logger, cf *connectFlags) (*device.Device, error) {
	d := device.New(log)
	switch {
	case cf.port != "":
		if err := d.ConnectSerial(ctx, cf.port, cf.baud); err != nil {
			return nil, fmt.Errorf("connect %s: %w", cf.port, err)
		}
	case cf.host != "":
		if err := d.ConnectNetwork(ctx, cf.host, cf.password); err != nil {
			return nil, fmt.Errorf("connect %s: %w", cf.host, err)
		}
	default:
		return nil, fmt.Errorf("specify -port or -host")
	}
	return d, nil
}
