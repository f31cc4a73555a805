package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// DefaultWebReplPort is the port MicroPython's WebREPL listens on.
const DefaultWebReplPort = 8266

// WebSocket is a Transport backed by a WebREPL connection: a WebSocket
// using binary frames at ws://<host>:8266/.
//
// Unlike the reconnect-forever client this package's design borrows its
// read loop from, WebSocket does not reconnect on its own: a dropped
// connection here fails the device's single in-flight request with
// ErrConnectionLost, and recovering requires a fresh Device per spec.md's
// non-goal on cross-device orchestration.
type WebSocket struct {
	Host string
	// Port overrides DefaultWebReplPort when non-zero. Real boards always
	// listen on 8266; this exists so tests can point at a local listener.
	Port int

	mu      sync.Mutex
	conn    *websocket.Conn
	onRecv  func([]byte)
	onClose func(error)
	closed  bool

	readCtx    context.Context
	readCancel context.CancelFunc
}

// NewWebSocket constructs a WebREPL transport targeting host (no scheme,
// no port — e.g. "192.168.1.50").
func NewWebSocket(host string) *WebSocket {
	return &WebSocket{Host: host}
}

func (w *WebSocket) OnReceive(fn func([]byte)) { w.onRecv = fn }
func (w *WebSocket) OnClose(fn func(error))    { w.onClose = fn }

func (w *WebSocket) Open(ctx context.Context) error {
	port := w.Port
	if port == 0 {
		port = DefaultWebReplPort
	}
	url := fmt.Sprintf("ws://%s:%d/", w.Host, port)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", url, err)
	}
	conn.SetReadLimit(-1) // device output is unbounded (spec.md §1: "arbitrary user scripts that can emit unlimited output")

	w.mu.Lock()
	w.conn = conn
	w.readCtx, w.readCancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	go w.readLoop()
	return nil
}

func (w *WebSocket) readLoop() {
	w.mu.Lock()
	conn := w.conn
	ctx := w.readCtx
	w.mu.Unlock()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			w.fail(err)
			return
		}
		if len(data) > 0 && w.onRecv != nil {
			w.onRecv(data)
		}
	}
}

func (w *WebSocket) fail(err error) {
	w.mu.Lock()
	already := w.closed
	w.closed = true
	w.mu.Unlock()
	if already {
		return
	}
	if w.onClose != nil {
		w.onClose(err)
	}
}

func (w *WebSocket) Send(data []byte) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport: websocket not open")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageBinary, data)
}

func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	conn := w.conn
	cancel := w.readCancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "closing")
	}
	if w.onClose != nil {
		w.onClose(nil)
	}
	return err
}
