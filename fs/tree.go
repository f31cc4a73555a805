package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetTree recursively downloads remotePath (a directory or a single file)
// into localPath, creating directories as needed. This is a supplemental
// operation beyond a single GetFile — the CLI's "get -r" and a
// convenience for scripted backups.
func (c *Client) GetTree(ctx context.Context, remotePath, localPath string) error {
	st, err := c.StatPath(ctx, remotePath)
	if err != nil {
		return err
	}
	if !st.Exists {
		return fmt.Errorf("fs: get -r %s: not found", remotePath)
	}
	if !st.Dir {
		data, err := c.GetFile(ctx, remotePath)
		if err != nil {
			return err
		}
		return os.WriteFile(localPath, data, 0o644)
	}
	return c.getDir(ctx, remotePath, localPath)
}

func (c *Client) getDir(ctx context.Context, remotePath, localPath string) error {
	if err := os.MkdirAll(localPath, 0o755); err != nil {
		return err
	}
	entries, err := c.ListFiles(ctx, remotePath, false)
	if err != nil {
		return err
	}
	for _, e := range entries {
		localChild := filepath.Join(localPath, filepath.Base(e.Name))
		if e.Dir {
			if err := c.getDir(ctx, e.Name, localChild); err != nil {
				return err
			}
			continue
		}
		data, err := c.GetFile(ctx, e.Name)
		if err != nil {
			return err
		}
		if err := os.WriteFile(localChild, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// PutTree recursively uploads a local directory (or single file) to
// remotePath, creating remote directories as needed.
func (c *Client) PutTree(ctx context.Context, localPath, remotePath string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(localPath)
		if err != nil {
			return err
		}
		return c.PutFile(ctx, remotePath, data)
	}

	if err := c.ensureDir(ctx, remotePath); err != nil {
		return err
	}
	entries, err := os.ReadDir(localPath)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		localChild := filepath.Join(localPath, entry.Name())
		remoteChild := strings.TrimRight(remotePath, "/") + "/" + entry.Name()
		if entry.IsDir() {
			if err := c.PutTree(ctx, localChild, remoteChild); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(localChild)
		if err != nil {
			return err
		}
		if err := c.PutFile(ctx, remoteChild, data); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) ensureDir(ctx context.Context, remotePath string) error {
	st, err := c.StatPath(ctx, remotePath)
	if err != nil {
		return err
	}
	if st.Exists {
		return nil
	}
	return c.Mkdir(ctx, remotePath)
}
