// Package fs implements the filesystem operations (spec.md §4.6) by
// generating small MicroPython snippets, running them through a Runner's
// raw REPL, and parsing their JSON output. Every call is its own
// independent script — there is no persistent remote-side state between
// operations beyond the filesystem itself.
package fs

import (
	"context"
	"encoding/json"
	"fmt"

	"mpyrepl/device"
	"mpyrepl/errs"
	"mpyrepl/proto"
)

// Runner executes a script on a connected device and returns its result.
// *device.Device satisfies this; tests can substitute a fake.
type Runner interface {
	RunScript(ctx context.Context, source string, opts proto.RunOptions) (*device.ScriptResponse, error)
}

// Client is the filesystem layer over a Runner.
type Client struct {
	r Runner
}

// New returns a filesystem Client driving r.
func New(r Runner) *Client {
	return &Client{r: r}
}

// FileEntry describes one directory entry, per spec.md's data model.
type FileEntry struct {
	Name string `json:"name"`
	Dir  bool   `json:"dir"`
	Size int64  `json:"size"`
}

// StatResult is the outcome of StatPath.
type StatResult struct {
	Exists bool  `json:"exists"`
	Dir    bool  `json:"dir"`
	Size   int64 `json:"size"`
	Atime  int64 `json:"atime"`
	MTime  int64 `json:"mtime"`
}

func (c *Client) run(ctx context.Context, source string) (string, error) {
	resp, err := c.r.RunScript(ctx, source, proto.RunOptions{})
	if err != nil {
		if serr, ok := asScriptError(err); ok {
			return "", serr
		}
		return "", err
	}
	if resp.Exception != "" {
		return "", fmt.Errorf("fs: unexpected script output with no error: %s", resp.Exception)
	}
	return resp.Stdout, nil
}

func asScriptError(err error) (*errs.ScriptExecutionError, bool) {
	serr, ok := err.(*errs.ScriptExecutionError)
	return serr, ok
}

func decodeJSON(stdout string, v any) error {
	if stdout == "" {
		return fmt.Errorf("fs: empty response")
	}
	return json.Unmarshal([]byte(stdout), v)
}
