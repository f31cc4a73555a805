package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"mpyrepl/fs"
	"mpyrepl/proto"
)

func cmdConnect(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("connect", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	fset.Parse(args)

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)
	fmt.Println("connected")
	return nil
}

func cmdLs(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("ls", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	recursive := fset.Bool("r", false, "recurse into directories")
	fset.Parse(args)
	path := "/"
	if fset.NArg() > 0 {
		path = fset.Arg(0)
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	entries, err := fs.New(d).ListFiles(ctx, path, *recursive)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "f"
		if e.Dir {
			kind = "d"
		}
		fmt.Printf("%s %8d %s\n", kind, e.Size, e.Name)
	}
	return nil
}

func cmdCat(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("cat", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	fset.Parse(args)
	if fset.NArg() < 1 {
		return fmt.Errorf("usage: mpyrepl cat <remote-path>")
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	data, err := fs.New(d).GetFile(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func cmdGet(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("get", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	recursive := fset.Bool("r", false, "recurse into directories")
	fset.Parse(args)
	if fset.NArg() < 2 {
		return fmt.Errorf("usage: mpyrepl get [-r] <remote-path> <local-path>")
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	client := fs.New(d)
	if *recursive {
		return client.GetTree(ctx, fset.Arg(0), fset.Arg(1))
	}
	data, err := client.GetFile(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	return os.WriteFile(fset.Arg(1), data, 0o644)
}

func cmdPut(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("put", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	recursive := fset.Bool("r", false, "recurse into directories")
	fset.Parse(args)
	if fset.NArg() < 2 {
		return fmt.Errorf("usage: mpyrepl put [-r] <local-path> <remote-path>")
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	client := fs.New(d)
	if *recursive {
		return client.PutTree(ctx, fset.Arg(0), fset.Arg(1))
	}
	data, err := os.ReadFile(fset.Arg(0))
	if err != nil {
		return err
	}
	return client.PutFile(ctx, fset.Arg(1), data)
}

func cmdRm(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("rm", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	recursive := fset.Bool("r", false, "remove directories and their contents")
	fset.Parse(args)
	if fset.NArg() < 1 {
		return fmt.Errorf("usage: mpyrepl rm [-r] <remote-path>")
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	return fs.New(d).Remove(ctx, fset.Arg(0), *recursive)
}

func cmdMkdir(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("mkdir", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	fset.Parse(args)
	if fset.NArg() < 1 {
		return fmt.Errorf("usage: mpyrepl mkdir <remote-path>")
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	return fs.New(d).Mkdir(ctx, fset.Arg(0))
}

func cmdMv(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("mv", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	fset.Parse(args)
	if fset.NArg() < 2 {
		return fmt.Errorf("usage: mpyrepl mv <remote-old> <remote-new>")
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	return fs.New(d).Rename(ctx, fset.Arg(0), fset.Arg(1))
}

func cmdStat(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("stat", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	fset.Parse(args)
	if fset.NArg() < 1 {
		return fmt.Errorf("usage: mpyrepl stat <remote-path>")
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	st, err := fs.New(d).StatPath(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("exists=%v dir=%v size=%d atime=%d mtime=%d\n", st.Exists, st.Dir, st.Size, st.Atime, st.MTime)
	return nil
}

func cmdHash(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("hash", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	fset.Parse(args)
	if fset.NArg() < 1 {
		return fmt.Errorf("usage: mpyrepl hash <remote-path>")
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	sum, err := fs.New(d).GetFileHash(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	fmt.Println(sum)
	return nil
}

func cmdReset(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("reset", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	hard := fset.Bool("hard", false, "close the serial port (dropping DTR) instead of a soft CtrlD reboot")
	fset.Parse(args)

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	return d.Reset(ctx, *hard)
}

func cmdRun(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("run", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	fset.Parse(args)
	if fset.NArg() < 1 {
		return fmt.Errorf("usage: mpyrepl run <local-script.py>")
	}

	source, err := os.ReadFile(fset.Arg(0))
	if err != nil {
		return err
	}

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)

	resp, err := d.RunScript(ctx, string(source), proto.RunOptions{
		StreamingCallback: func(chunk []byte) { os.Stdout.Write(chunk) },
	})
	if resp != nil && resp.Stderr != "" {
		os.Stderr.WriteString(resp.Stderr)
	}
	return err
}
