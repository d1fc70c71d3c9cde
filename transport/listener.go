package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/go-linkwatch/linkwatch"
)

type session struct {
	id      linkwatch.SessionID
	conn    net.Conn
	writeMu sync.Mutex
}

// TCPListener is a stream listener transport. Every accepted connection is a session
// identified by a random UUID.
//
// It reports Connected when listening starts and Disconnected when the listening socket fails.
type TCPListener struct {
	hooks

	addr string
	opts options

	mu       sync.Mutex
	ln       net.Listener
	sessions map[linkwatch.SessionID]*session
	closed   bool
}

var _ linkwatch.ListenerTransport = (*TCPListener)(nil)

// NewTCPListener creates a listener for addr in host:port form. Port 0 selects a free port, see Addr.
func NewTCPListener(addr string, opts ...Option) *TCPListener {
	return &TCPListener{
		addr:     addr,
		opts:     newOptions(opts),
		sessions: make(map[linkwatch.SessionID]*session),
	}
}

// StartListen binds the address and starts accepting sessions. It is a no-op while listening.
func (l *TCPListener) StartListen() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.ln != nil {
		l.mu.Unlock()
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", l.addr)
	if err != nil {
		l.mu.Unlock()
		l.opts.logger.Debug("failed to listen", "address", l.addr, "error", err)

		return err
	}
	l.ln = ln
	l.mu.Unlock()

	l.opts.logger.Debug("listen success", "address", ln.Addr().String())

	go l.acceptLoop(ln)
	l.notifyState(linkwatch.StateConnected)

	return nil
}

// Addr returns the bound address, nil when not listening.
func (l *TCPListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln == nil {
		return nil
	}

	return l.ln.Addr()
}

func (l *TCPListener) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			l.mu.Lock()
			current := l.ln == ln && !l.closed
			l.mu.Unlock()

			if !current || errors.Is(err, net.ErrClosed) {
				return
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			l.opts.logger.Error("failed to accept connection", "address", l.addr, "error", err)
			l.mu.Lock()
			if l.ln == ln {
				l.ln = nil
			}
			l.mu.Unlock()
			_ = ln.Close()
			l.notifyState(linkwatch.StateDisconnected)

			return
		}

		s := &session{id: linkwatch.SessionID(uuid.NewString()), conn: conn}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			_ = conn.Close()

			return
		}
		l.sessions[s.id] = s
		l.mu.Unlock()

		l.opts.logger.Debug("session accepted", "session", string(s.id), "remote_addr", conn.RemoteAddr().String())

		if h := l.sessionHandler(); h.Opened != nil {
			h.Opened(s.id)
		}

		go l.serve(s)
	}
}

func (l *TCPListener) serve(s *session) {
	buf := make([]byte, l.opts.readBufferSize)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			p := append([]byte(nil), buf[:n]...)
			if h := l.sessionHandler(); h.Data != nil {
				h.Data(s.id, p)
			}
			l.deliver(p)
		}
		if err != nil {
			l.removeSession(s.id)
			return
		}
	}
}

// removeSession closes and forgets the session, firing its Closed hook once.
func (l *TCPListener) removeSession(id linkwatch.SessionID) bool {
	l.mu.Lock()
	s, ok := l.sessions[id]
	if ok {
		delete(l.sessions, id)
	}
	l.mu.Unlock()

	if !ok {
		return false
	}

	_ = s.conn.Close()
	if h := l.sessionHandler(); h.Closed != nil {
		h.Closed(id)
	}

	return true
}

// SessionHandler returns the installed session hooks.
func (l *TCPListener) SessionHandler() linkwatch.SessionHandler {
	return l.sessionHandler()
}

// SetSessionHandler replaces the session hooks.
func (l *TCPListener) SetSessionHandler(h linkwatch.SessionHandler) {
	l.setSessionHandler(h)
}

// Sessions returns the IDs of the live sessions.
func (l *TCPListener) Sessions() []linkwatch.SessionID {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]linkwatch.SessionID, 0, len(l.sessions))
	for id := range l.sessions {
		ids = append(ids, id)
	}

	return ids
}

// SendTo writes p to one session.
func (l *TCPListener) SendTo(id linkwatch.SessionID, p []byte) error {
	l.mu.Lock()
	s, ok := l.sessions[id]
	l.mu.Unlock()

	if !ok {
		return ErrUnknownSession
	}

	return l.write(s, p)
}

// Send writes p to every live session.
func (l *TCPListener) Send(p []byte) error {
	l.mu.Lock()
	targets := make([]*session, 0, len(l.sessions))
	for _, s := range l.sessions {
		targets = append(targets, s)
	}
	l.mu.Unlock()

	var errs []error
	for _, s := range targets {
		if err := l.write(s, p); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (l *TCPListener) write(s *session, p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if l.opts.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(l.opts.writeTimeout))
	}
	_, err := s.conn.Write(p)

	return err
}

// CloseSession closes one session. Its Closed hook fires before CloseSession returns.
func (l *TCPListener) CloseSession(id linkwatch.SessionID) error {
	if !l.removeSession(id) {
		return ErrUnknownSession
	}

	return nil
}

// Close stops listening and closes every session. The listener can't be started again.
func (l *TCPListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	ln := l.ln
	l.ln = nil
	ids := make([]linkwatch.SessionID, 0, len(l.sessions))
	for id := range l.sessions {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, id := range ids {
		l.removeSession(id)
	}

	return err
}
