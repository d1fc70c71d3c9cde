package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-linkwatch/linkwatch"
)

// SerialConfig is the line setting of a serial port.
type SerialConfig struct {
	// BaudRate defaults to 9600.
	BaudRate int
	// DataBits defaults to 8.
	DataBits int
	// Parity is one of "N", "E", "O", "M", "S". It defaults to "N".
	Parity string
	// StopBits is 1 or 2. It defaults to 1.
	StopBits int
}

func (cfg SerialConfig) mode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate <= 0 {
		mode.BaudRate = 9600
	}
	if mode.DataBits <= 0 {
		mode.DataBits = 8
	}

	switch strings.ToUpper(cfg.Parity) {
	case "", "N", "NONE":
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	case "M", "MARK":
		mode.Parity = serial.MarkParity
	case "S", "SPACE":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("invalid parity %q", cfg.Parity)
	}

	switch cfg.StopBits {
	case 0, 1:
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d", cfg.StopBits)
	}

	return mode, nil
}

// serialReadTimeout bounds a blocking read so the read loop notices Close.
const serialReadTimeout = 200 * time.Millisecond

type serialOpener func(name string, mode *serial.Mode) (io.ReadWriteCloser, error)

func openSerial(name string, mode *serial.Mode) (io.ReadWriteCloser, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}

	return port, nil
}

// SerialPort is a serial line transport. A serial line has no disconnect concept: the port
// reports Connected once opened and never Disconnected. When the device goes away the port
// is released and the next Send reopens it.
type SerialPort struct {
	hooks

	name string
	cfg  SerialConfig
	opts options
	open serialOpener

	mu     sync.Mutex
	port   io.ReadWriteCloser
	gen    uint64
	closed bool
}

var _ linkwatch.ClientTransport = (*SerialPort)(nil)

// NewSerialPort creates a serial port transport for the device name, e.g. "/dev/ttyUSB0" or "COM3".
func NewSerialPort(name string, cfg SerialConfig, opts ...Option) *SerialPort {
	return &SerialPort{
		name: name,
		cfg:  cfg,
		opts: newOptions(opts),
		open: openSerial,
	}
}

// Name returns the device name.
func (s *SerialPort) Name() string { return s.name }

// Connect opens the port, replacing the current handle if any. The timeout is not used;
// opening a local device doesn't block.
func (s *SerialPort) Connect(ctx context.Context, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mode, err := s.cfg.mode()
	if err != nil {
		return err
	}

	if err := s.reopen(mode); err != nil {
		return err
	}

	s.opts.logger.Debug("serial port opened", "port", s.name, "baud_rate", mode.BaudRate, "method", "Connect")
	s.notifyState(linkwatch.StateConnected)

	return nil
}

func (s *SerialPort) reopen(mode *serial.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
	}

	port, err := s.open(s.name, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.name, err)
	}

	s.gen++
	s.port = port
	go s.readLoop(port, s.gen)

	return nil
}

// Send writes p to the port, reopening it first if it was released.
func (s *SerialPort) Send(p []byte) error {
	s.mu.Lock()
	port, closed := s.port, s.closed
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if port == nil {
		if err := s.Connect(context.Background(), s.opts.dialTimeout); err != nil {
			return err
		}

		s.mu.Lock()
		port = s.port
		s.mu.Unlock()
		if port == nil {
			return ErrNotConnected
		}
	}

	_, err := port.Write(p)

	return err
}

func (s *SerialPort) readLoop(port io.ReadWriteCloser, gen uint64) {
	buf := make([]byte, s.opts.readBufferSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			s.deliver(append([]byte(nil), buf[:n]...))
		}
		if err == nil {
			continue
		}

		s.mu.Lock()
		current := s.gen == gen && !s.closed
		if current {
			s.port = nil
		}
		s.mu.Unlock()

		if current {
			_ = port.Close()
			if !errors.Is(err, io.EOF) {
				s.opts.logger.Warn("serial port released", "port", s.name, "error", err)
			}
		}

		return
	}
}

// Close closes the port. The transport can't be opened again.
func (s *SerialPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.gen++

	if s.port != nil {
		err := s.port.Close()
		s.port = nil

		return err
	}

	return nil
}
