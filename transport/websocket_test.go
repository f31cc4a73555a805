package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// newWebReplTestServer starts a WebSocket server on a loopback listener and
// returns its port, the way the teacher's own integration tests stand up a
// mock relay endpoint with nhooyr.io/websocket on both sides.
func newWebReplTestServer(t *testing.T, handle func(conn *websocket.Conn)) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handle(conn)
	})
	srv := httptest.NewUnstartedServer(mux)
	srv.Listener.Close()
	srv.Listener = lis
	srv.Start()
	t.Cleanup(srv.Close)

	_, portStr, _ := net.SplitHostPort(lis.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return port
}

func TestWebSocket_SendReceive(t *testing.T) {
	var received [][]byte
	var mu sync.Mutex
	done := make(chan struct{})

	port := newWebReplTestServer(t, func(conn *websocket.Conn) {
		conn.Write(context.Background(), websocket.MessageBinary, []byte("Password:"))
		for {
			typ, data, err := conn.Read(context.Background())
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary {
				continue
			}
			mu.Lock()
			received = append(received, append([]byte(nil), data...))
			mu.Unlock()
			close(done)
			return
		}
	})

	w := NewWebSocket("127.0.0.1")
	w.Port = port

	var gotMu sync.Mutex
	var got []byte
	w.OnReceive(func(chunk []byte) {
		gotMu.Lock()
		got = append(got, chunk...)
		gotMu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	deadline := time.After(time.Second)
	for {
		gotMu.Lock()
		n := len(got)
		gotMu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for Password: prompt")
		case <-time.After(5 * time.Millisecond):
		}
	}
	gotMu.Lock()
	if string(got) != "Password:" {
		t.Fatalf("received = %q, want %q", got, "Password:")
	}
	gotMu.Unlock()

	if err := w.Send([]byte("secret\r")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server to receive the send")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || string(received[0]) != "secret\r" {
		t.Fatalf("server received = %v", received)
	}
}

func TestWebSocket_CloseTriggersOnClose(t *testing.T) {
	port := newWebReplTestServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.Read(context.Background()); err != nil {
				return
			}
		}
	})

	w := NewWebSocket("127.0.0.1")
	w.Port = port

	closed := make(chan error, 1)
	w.OnClose(func(err error) { closed <- err })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
}
