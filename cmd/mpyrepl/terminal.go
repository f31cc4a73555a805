package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"

	"mpyrepl/device"
)

// rawTerminal puts stdin into raw mode for the duration of the repl
// command, the way ssh/screen do, so Ctrl-C and friends reach the
// device instead of the local shell.
type rawTerminal struct {
	fd       int
	original unix.Termios
}

func enterRawMode(fd int) (*rawTerminal, error) {
	orig, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return nil, fmt.Errorf("terminal: get termios: %w", err)
	}
	raw := *orig
	raw.Iflag &^= unix.IXON | unix.ICRNL | unix.BRKINT | unix.ISTRIP | unix.INPCK
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.ISIG | unix.IEXTEN
	raw.Oflag &^= unix.OPOST
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &raw); err != nil {
		return nil, fmt.Errorf("terminal: set termios: %w", err)
	}
	return &rawTerminal{fd: fd, original: *orig}, nil
}

func (t *rawTerminal) restore() {
	unix.IoctlSetTermios(t.fd, ioctlSetTermios, &t.original)
}

func cmdRepl(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("repl", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	fset.Parse(args)

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("repl: stdin is not a terminal")
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	d.OnTerminalData = func(chunk []byte) { os.Stdout.Write(chunk) }
	d.OnClose = func(err error) { fmt.Fprintln(os.Stderr, "\r\nmpyrepl: disconnected:", err) }
	if err := d.EnterTerminal(ctx); err != nil {
		return err
	}

	term, err := enterRawMode(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	defer term.restore()

	fmt.Fprintln(os.Stderr, "\r\nentering terminal mode, press Ctrl-] to exit\r")
	return runTerminalInput(ctx, d)
}

// escapeChar exits the terminal and returns to the shell, the way ssh
// uses '~' and screen uses Ctrl-A.
const escapeChar = 0x1d // Ctrl-]

func runTerminalInput(ctx context.Context, d *device.Device) error {
	buf := make([]byte, 1024)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}
		if idx := bytes.IndexByte(buf[:n], escapeChar); idx != -1 {
			if idx > 0 {
				d.SendData(buf[:idx])
			}
			return d.ExitTerminal(ctx)
		}
		if err := d.SendData(buf[:n]); err != nil {
			return err
		}
	}
}
