package fs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"mpyrepl/device"
	"mpyrepl/errs"
	"mpyrepl/proto"
)

// fakeRunner returns a scripted sequence of responses, one per RunScript
// call, so fs operations can be tested without a real device.Device.
type fakeRunner struct {
	calls     []string
	responses []*device.ScriptResponse
	scriptErr []error
	i         int
}

func (f *fakeRunner) RunScript(ctx context.Context, source string, opts proto.RunOptions) (*device.ScriptResponse, error) {
	f.calls = append(f.calls, source)
	idx := f.i
	f.i++
	if idx >= len(f.responses) {
		return &device.ScriptResponse{}, nil
	}
	return f.responses[idx], f.scriptErr[idx]
}

func TestListFiles(t *testing.T) {
	r := &fakeRunner{
		responses: []*device.ScriptResponse{{Stdout: `[{"name":"a.py","dir":false,"size":12}]` + "\n"}},
		scriptErr: []error{nil},
	}
	entries, err := New(r).ListFiles(context.Background(), "/", false)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "/a.py" || entries[0].Size != 12 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestListFiles_Recursive(t *testing.T) {
	r := &fakeRunner{
		responses: []*device.ScriptResponse{
			{Stdout: `[{"name":"a.py","dir":false,"size":1},{"name":"d","dir":true,"size":0}]` + "\n"}, // "/"
			{Stdout: `[{"name":"b.py","dir":false,"size":2},{"name":"e","dir":true,"size":0}]` + "\n"}, // "/d"
			{Stdout: `[{"name":"c.py","dir":false,"size":3}]` + "\n"},                                 // "/d/e"
		},
		scriptErr: []error{nil, nil, nil},
	}
	entries, err := New(r).ListFiles(context.Background(), "/", true)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := []string{"/a.py", "/d", "/d/b.py", "/d/e", "/d/e/c.py"}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v, want %d entries", entries, len(want))
	}
	for i, name := range want {
		if entries[i].Name != name {
			t.Fatalf("entries[%d].Name = %q, want %q (full: %+v)", i, entries[i].Name, name, entries)
		}
	}
}

func TestStatPath(t *testing.T) {
	r := &fakeRunner{
		responses: []*device.ScriptResponse{{Stdout: `{"exists":true,"dir":true,"size":0,"atime":50,"mtime":100}` + "\n"}},
		scriptErr: []error{nil},
	}
	st, err := New(r).StatPath(context.Background(), "/lib")
	if err != nil {
		t.Fatalf("StatPath: %v", err)
	}
	if !st.Exists || !st.Dir || st.Atime != 50 || st.MTime != 100 {
		t.Fatalf("stat = %+v", st)
	}
}

func TestGetFile(t *testing.T) {
	payload := []byte("hello world, this is a test payload")
	enc := base64.StdEncoding.EncodeToString(payload)
	r := &fakeRunner{
		responses: []*device.ScriptResponse{{Stdout: enc + "\n--MPYREPL-EOF--\n"}},
		scriptErr: []error{nil},
	}
	data, err := New(r).GetFile(context.Background(), "/main.py")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("data = %q, want %q", data, payload)
	}
}

func TestGetFile_NotFound(t *testing.T) {
	r := &fakeRunner{
		responses: []*device.ScriptResponse{nil},
		scriptErr: []error{&errs.ScriptExecutionError{
			Exception: "OSError: 2",
			Traceback: "Traceback (most recent call last):\n  File \"<stdin>\", line 1\nOSError: [Errno 2] ENOENT\n",
		}},
	}
	_, err := New(r).GetFile(context.Background(), "/missing.py")
	if err == nil {
		t.Fatal("expected an error")
	}
	var oserr *errs.RemoteOSError
	if rerr, ok := err.(*errs.RemoteOSError); ok {
		oserr = rerr
	} else {
		t.Fatalf("error type = %T, want *errs.RemoteOSError", err)
	}
	if oserr.Errno != errs.ENOENT {
		t.Fatalf("errno = %q", oserr.Errno)
	}
}

func TestPutFile(t *testing.T) {
	r := &fakeRunner{
		responses: []*device.ScriptResponse{{}},
		scriptErr: []error{nil},
	}
	err := New(r).PutFile(context.Background(), "/cfg.json", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("expected one RunScript call, got %d", len(r.calls))
	}
}

func TestPutFile_GetFile_BinaryRoundTrip(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	enc := base64.StdEncoding.EncodeToString(data)

	r := &fakeRunner{
		responses: []*device.ScriptResponse{
			{},                                 // PutFile
			{Stdout: enc + "\n--MPYREPL-EOF--\n"}, // GetFile
		},
		scriptErr: []error{nil, nil},
	}
	c := New(r)
	if err := c.PutFile(context.Background(), "/t.bin", data); err != nil {
		t.Fatalf("PutFile: %v", err)
	}
	got, err := c.GetFile(context.Background(), "/t.bin")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], data[i])
		}
	}
}

func TestGetFileHash_BinaryVector(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	want := "40aff2e9d2d8922e47afd4648e6967497158785fbd1da870e7110266bf944880"
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != want {
		t.Fatalf("local sha256 = %x, want %s", sum, want)
	}

	r := &fakeRunner{
		responses: []*device.ScriptResponse{{Stdout: want + "\n"}},
		scriptErr: []error{nil},
	}
	got, err := New(r).GetFileHash(context.Background(), "/t.bin")
	if err != nil {
		t.Fatalf("GetFileHash: %v", err)
	}
	if got != want {
		t.Fatalf("GetFileHash() = %q, want %q", got, want)
	}
}

func TestGetFileHash(t *testing.T) {
	r := &fakeRunner{
		responses: []*device.ScriptResponse{{Stdout: "deadbeef\n"}},
		scriptErr: []error{nil},
	}
	sum, err := New(r).GetFileHash(context.Background(), "/main.py")
	if err != nil {
		t.Fatalf("GetFileHash: %v", err)
	}
	if sum != "deadbeef" {
		t.Fatalf("sum = %q", sum)
	}
}
