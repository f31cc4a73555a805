package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tarm/serial"
)

// DefaultBaud is used when a caller passes 0.
const DefaultBaud = 115200

// Serial is a Transport backed by a local USB serial port, opened at the
// given baud rate, 8 data bits, no parity, 1 stop bit, no flow control,
// with DTR asserted.
type Serial struct {
	Path string
	Baud int

	mu       sync.Mutex
	port     *serial.Port
	onRecv   func([]byte)
	onClose  func(error)
	closeSig chan struct{}
	closed   bool
}

// NewSerial constructs a Serial transport. If baud is 0, DefaultBaud is used.
func NewSerial(path string, baud int) *Serial {
	if baud == 0 {
		baud = DefaultBaud
	}
	return &Serial{Path: path, Baud: baud, closeSig: make(chan struct{})}
}

func (s *Serial) OnReceive(fn func([]byte)) { s.onRecv = fn }
func (s *Serial) OnClose(fn func(error))    { s.onClose = fn }

func (s *Serial) Open(ctx context.Context) error {
	cfg := &serial.Config{
		Name:     s.Path,
		Baud:     s.Baud,
		Size:     8,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1,
		// ReadTimeout left at zero: reads block until data arrives, which
		// is what the single dedicated readLoop goroutine wants. DTR is
		// asserted by tarm/serial on open (termios HUPCL/CLOCAL left
		// clear), matching the 115200 8N1 no-flow-control requirement.
	}
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return fmt.Errorf("transport: open serial %s: %w", s.Path, err)
	}
	s.port = p

	go s.readLoop()
	return nil
}

func (s *Serial) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.port.Read(buf)
		if n > 0 && s.onRecv != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.onRecv(chunk)
		}
		if err != nil {
			if err == io.EOF {
				s.fail(nil)
			} else {
				s.fail(err)
			}
			return
		}
	}
}

func (s *Serial) fail(err error) {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()
	if already {
		return
	}
	if s.onClose != nil {
		s.onClose(err)
	}
}

func (s *Serial) Send(data []byte) error {
	if s.port == nil {
		return fmt.Errorf("transport: serial not open")
	}
	_, err := s.port.Write(data)
	return err
}

func (s *Serial) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var err error
	if s.port != nil {
		err = s.port.Close()
	}
	if s.onClose != nil {
		s.onClose(nil)
	}
	return err
}
