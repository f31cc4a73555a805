package fs

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"mpyrepl/errs"
)

// ListFiles lists the entries of dir, or a single-entry slice describing
// dir itself if it names a plain file. Entries carry full paths, per
// spec.md's FileEntry{filename: path} data model. When recursive is
// true, every directory under dir is walked too and the whole tree is
// returned flattened and sorted by path, satisfying the invariant that
// a recursive listing of "/" is a superset of a recursive listing of
// any directory beneath it.
func (c *Client) ListFiles(ctx context.Context, dir string, recursive bool) ([]FileEntry, error) {
	entries, err := c.listOneLevel(ctx, dir)
	if err != nil {
		return nil, err
	}
	if !recursive {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		return entries, nil
	}
	all := append([]FileEntry(nil), entries...)
	for _, e := range entries {
		if !e.Dir {
			continue
		}
		children, err := c.ListFiles(ctx, e.Name, true)
		if err != nil {
			return nil, err
		}
		all = append(all, children...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

// listOneLevel runs listSnippet against dir and rewrites each returned
// name into a full path. The snippet itself reports bare basenames for
// a directory's children (and the full path unchanged when dir names a
// plain file), so the host is the one place that needs to know dir's
// prefix.
func (c *Client) listOneLevel(ctx context.Context, dir string) ([]FileEntry, error) {
	out, err := c.run(ctx, listSnippet(dir))
	if err != nil {
		return nil, classify("ls", dir, err)
	}
	var probe struct {
		Error string `json:"error"`
	}
	if err := decodeJSON(out, &probe); err == nil && probe.Error != "" {
		return nil, &errs.RemoteOSError{Op: "ls", Path: dir, Errno: probe.Error}
	}
	var entries []FileEntry
	if err := decodeJSON(out, &entries); err != nil {
		return nil, fmt.Errorf("fs: ls %s: parse response: %w", dir, err)
	}
	base := strings.TrimRight(dir, "/")
	for i := range entries {
		if entries[i].Name == dir {
			continue // single-file target: listSnippet already reported the full path
		}
		entries[i].Name = base + "/" + entries[i].Name
	}
	return entries, nil
}

// StatPath reports whether path exists and, if so, its size/kind/mtime.
func (c *Client) StatPath(ctx context.Context, path string) (*StatResult, error) {
	out, err := c.run(ctx, statSnippet(path))
	if err != nil {
		return nil, classify("stat", path, err)
	}
	var st StatResult
	if err := decodeJSON(out, &st); err != nil {
		return nil, fmt.Errorf("fs: stat %s: parse response: %w", path, err)
	}
	return &st, nil
}

// GetFile reads path's full contents from the device.
func (c *Client) GetFile(ctx context.Context, path string) ([]byte, error) {
	out, err := c.run(ctx, getSnippet(path))
	if err != nil {
		return nil, classify("get", path, err)
	}
	var result []byte
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "--MPYREPL-EOF--" {
			return result, nil
		}
		chunk, derr := base64.StdEncoding.DecodeString(line)
		if derr != nil {
			return nil, fmt.Errorf("fs: get %s: decode chunk: %w", path, derr)
		}
		result = append(result, chunk...)
	}
	return nil, fmt.Errorf("fs: get %s: response missing terminator", path)
}

// PutFile writes data to path on the device, creating or truncating it.
func (c *Client) PutFile(ctx context.Context, path string, data []byte) error {
	_, err := c.run(ctx, putSnippet(path, data))
	if err != nil {
		return classify("put", path, err)
	}
	return nil
}

// Mkdir creates a single directory. The parent must already exist.
func (c *Client) Mkdir(ctx context.Context, path string) error {
	_, err := c.run(ctx, mkdirSnippet(path))
	if err != nil {
		return classify("mkdir", path, err)
	}
	return nil
}

// Remove deletes path. If recursive, directories are removed along with
// their contents; otherwise a non-empty directory fails.
func (c *Client) Remove(ctx context.Context, path string, recursive bool) error {
	_, err := c.run(ctx, removeSnippet(path, recursive))
	if err != nil {
		return classify("rm", path, err)
	}
	return nil
}

// Rename moves oldPath to newPath.
func (c *Client) Rename(ctx context.Context, oldPath, newPath string) error {
	_, err := c.run(ctx, renameSnippet(oldPath, newPath))
	if err != nil {
		return classify("mv", oldPath, err)
	}
	return nil
}

// GetFileHash returns the hex-encoded sha256 digest of path's contents,
// computed on the device so the whole file never has to cross the wire
// just to verify a transfer.
func (c *Client) GetFileHash(ctx context.Context, path string) (string, error) {
	out, err := c.run(ctx, hashSnippet(path))
	if err != nil {
		return "", classify("hash", path, err)
	}
	return strings.TrimSpace(out), nil
}

func classify(op, path string, err error) error {
	if serr, ok := err.(*errs.ScriptExecutionError); ok {
		return errs.ClassifyOSError(op, path, serr)
	}
	return err
}
