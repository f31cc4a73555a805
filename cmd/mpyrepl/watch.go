package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"mpyrepl/fs"
)

// cmdWatch re-uploads localPath to remotePath every time the local file
// is written, for a fast edit/save/reboot loop during development.
func cmdWatch(ctx context.Context, log *slog.Logger, cfg *config, args []string) error {
	fset := flag.NewFlagSet("watch", flag.ExitOnError)
	cf := bindConnectFlags(fset, cfg)
	fset.Parse(args)
	if fset.NArg() < 2 {
		return fmt.Errorf("usage: mpyrepl watch <local-file> <remote-path>")
	}
	localPath, remotePath := fset.Arg(0), fset.Arg(1)

	d, err := connectDevice(ctx, log, cf)
	if err != nil {
		return err
	}
	defer d.Disconnect(ctx)
	client := fs.New(d)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(localPath); err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	upload := func() {
		data, err := os.ReadFile(localPath)
		if err != nil {
			log.Error("watch: read failed", "path", localPath, "error", err)
			return
		}
		if err := client.PutFile(ctx, remotePath, data); err != nil {
			log.Error("watch: upload failed", "path", remotePath, "error", err)
			return
		}
		log.Info("watch: uploaded", "local", localPath, "remote", remotePath, "bytes", len(data))
	}

	upload()
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				upload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watch: watcher error", "error", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
