// Command mpyrepl is a CLI front end for the mpyrepl library: connect to
// a MicroPython board over USB serial or WebREPL, run scripts, browse
// and transfer files, or drop into an interactive terminal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

type subcommand struct {
	name string
	help string
	run  func(ctx context.Context, log *slog.Logger, cfg *config, args []string) error
}

var subcommands = []subcommand{
	{"connect", "check that a device is reachable and print its state", cmdConnect},
	{"ls", "list files on the device", cmdLs},
	{"cat", "print a remote file to stdout", cmdCat},
	{"get", "download a remote file or directory", cmdGet},
	{"put", "upload a local file or directory", cmdPut},
	{"rm", "remove a remote file or directory", cmdRm},
	{"mkdir", "create a remote directory", cmdMkdir},
	{"mv", "rename a remote path", cmdMv},
	{"stat", "show metadata for a remote path", cmdStat},
	{"hash", "print the sha256 of a remote file", cmdHash},
	{"reset", "reboot the device", cmdReset},
	{"repl", "open an interactive terminal", cmdRepl},
	{"run", "execute a local .py file and stream its output", cmdRun},
	{"watch", "re-upload a local file whenever it changes", cmdWatch},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	for _, sc := range subcommands {
		if sc.name != name {
			continue
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
		cfg := loadConfig()
		if err := sc.run(context.Background(), log, cfg, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, "mpyrepl:", err)
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "mpyrepl: unknown command %q\n", name)
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mpyrepl <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands:")
	for _, sc := range subcommands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", sc.name, sc.help)
	}
}
