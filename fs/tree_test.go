package fs

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"mpyrepl/device"
	"mpyrepl/proto"
)

// scriptedRunner answers RunScript by inspecting the generated snippet,
// rather than a fixed call sequence — tree operations issue a
// data-dependent number of calls, so a fakeRunner with a linear response
// list doesn't fit here.
type scriptedRunner struct {
	files map[string][]byte // remote path -> contents
	dirs  map[string]bool   // remote path -> is a directory
}

func (r *scriptedRunner) RunScript(ctx context.Context, source string, opts proto.RunOptions) (*device.ScriptResponse, error) {
	path := extractQuotedPath(source)
	switch {
	case strings.Contains(source, `"exists"`):
		if r.dirs[path] {
			return &device.ScriptResponse{Stdout: `{"exists":true,"dir":true,"size":0,"atime":0,"mtime":0}` + "\n"}, nil
		}
		if data, ok := r.files[path]; ok {
			return &device.ScriptResponse{Stdout: `{"exists":true,"dir":false,"size":` + strconv.Itoa(len(data)) + `,"atime":0,"mtime":0}` + "\n"}, nil
		}
		return &device.ScriptResponse{Stdout: `{"exists":false,"dir":false,"size":0,"atime":0,"mtime":0}` + "\n"}, nil
	case strings.Contains(source, "dumps(_out)"):
		var sb strings.Builder
		sb.WriteByte('[')
		first := true
		prefix := strings.TrimRight(path, "/") + "/"
		writeEntry := func(name string, dir bool, size int) {
			if !first {
				sb.WriteByte(',')
			}
			first = false
			sb.WriteString(`{"name":"` + name + `","dir":` + strconv.FormatBool(dir) + `,"size":` + strconv.Itoa(size) + `}`)
		}
		for p, data := range r.files {
			if rel := strings.TrimPrefix(p, prefix); rel != p && !strings.Contains(rel, "/") {
				writeEntry(rel, false, len(data))
			}
		}
		for p := range r.dirs {
			if rel := strings.TrimPrefix(p, prefix); rel != p && !strings.Contains(rel, "/") {
				writeEntry(rel, true, 0)
			}
		}
		sb.WriteByte(']')
		return &device.ScriptResponse{Stdout: sb.String() + "\n"}, nil
	case strings.Contains(source, "a2b_base64"):
		if r.files == nil {
			r.files = map[string][]byte{}
		}
		r.files[path] = []byte("written")
		return &device.ScriptResponse{}, nil
	case strings.Contains(source, "uos.mkdir"):
		if r.dirs == nil {
			r.dirs = map[string]bool{}
		}
		r.dirs[path] = true
		return &device.ScriptResponse{}, nil
	case strings.Contains(source, "b2a_base64"):
		data := r.files[path]
		var sb strings.Builder
		for i := 0; i < len(data); i += 512 {
			end := i + 512
			if end > len(data) {
				end = len(data)
			}
			sb.WriteString(base64.StdEncoding.EncodeToString(data[i:end]))
			sb.WriteByte('\n')
		}
		sb.WriteString("--MPYREPL-EOF--\n")
		return &device.ScriptResponse{Stdout: sb.String()}, nil
	default:
		return &device.ScriptResponse{}, nil
	}
}

// extractQuotedPath returns the contents of the first single-quoted string
// literal in source — every generated snippet interpolates its target path
// as the first such literal.
func extractQuotedPath(source string) string {
	start := strings.IndexByte(source, '\'')
	if start == -1 {
		return ""
	}
	end := strings.IndexByte(source[start+1:], '\'')
	if end == -1 {
		return ""
	}
	return source[start+1 : start+1+end]
}

func TestGetTree(t *testing.T) {
	r := &scriptedRunner{
		files: map[string][]byte{
			"/lib/a.py": []byte("print(1)"),
		},
		dirs: map[string]bool{
			"/lib": true,
		},
	}
	dir := t.TempDir()
	c := New(r)
	if err := c.GetTree(context.Background(), "/lib", filepath.Join(dir, "lib")); err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "lib", "a.py"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "print(1)" {
		t.Fatalf("contents = %q", got)
	}
}

func TestPutTree(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pkg", "b.py"), []byte("x = 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &scriptedRunner{files: map[string][]byte{}, dirs: map[string]bool{}}
	c := New(r)
	if err := c.PutTree(context.Background(), filepath.Join(dir, "pkg"), "/pkg"); err != nil {
		t.Fatalf("PutTree: %v", err)
	}
	if !r.dirs["/pkg"] {
		t.Fatal("expected /pkg to have been created remotely")
	}
	if _, ok := r.files["/pkg/b.py"]; !ok {
		t.Fatal("expected /pkg/b.py to have been written remotely")
	}
}
