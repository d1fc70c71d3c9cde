package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/arloliu/go-linkwatch/linkwatch"
)

// netClient is the dial-based client shared by TCPClient and UDPClient.
type netClient struct {
	hooks

	network string
	addr    string
	opts    options

	mu     sync.Mutex
	conn   net.Conn
	gen    uint64
	closed bool
}

func (c *netClient) init(network, addr string, opts []Option) {
	c.network = network
	c.addr = addr
	c.opts = newOptions(opts)
}

func (c *netClient) stream() bool {
	return c.network == "tcp" || c.network == "tcp4" || c.network == "tcp6"
}

// Addr returns the remote address.
func (c *netClient) Addr() string { return c.addr }

// Connect dials the remote address, replacing the current connection if any.
// For UDP the dial is local-only and succeeds without the remote side.
func (c *netClient) Connect(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	old := c.conn
	c.conn = nil
	c.gen++
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	dialer := &net.Dialer{KeepAlive: c.opts.keepAlive}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dialer.DialContext(dialCtx, c.network, c.addr)
	if err != nil {
		c.opts.logger.Debug("failed to dial", "network", c.network, "address", c.addr, "error", err)
		return fmt.Errorf("dial %s %s: %w", c.network, c.addr, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()

		return ErrClosed
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.mu.Unlock()

	c.opts.logger.Debug("connected to the remote",
		"network", c.network,
		"local_addr", conn.LocalAddr().String(),
		"remote_addr", conn.RemoteAddr().String(),
		"method", "Connect",
	)

	go c.readLoop(conn, gen)
	c.notifyState(linkwatch.StateConnected)

	return nil
}

// Send writes p to the current connection. A datagram client without a connection dials first.
func (c *netClient) Send(p []byte) error {
	conn, err := c.current()
	if err != nil {
		return err
	}

	if c.opts.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	}
	_, err = conn.Write(p)

	return err
}

func (c *netClient) current() (net.Conn, error) {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	switch {
	case closed:
		return nil, ErrClosed
	case conn != nil:
		return conn, nil
	case c.stream():
		return nil, ErrNotConnected
	}

	if err := c.Connect(context.Background(), c.opts.dialTimeout); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	return c.conn, nil
}

func (c *netClient) readLoop(conn net.Conn, gen uint64) {
	buf := make([]byte, c.opts.readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			c.deliver(append([]byte(nil), buf[:n]...))
		}
		if err == nil {
			continue
		}

		// a refused datagram surfaces as a read error on connected UDP sockets
		if !c.stream() && errors.Is(err, syscall.ECONNREFUSED) && c.isCurrent(gen) {
			continue
		}

		c.mu.Lock()
		current := c.gen == gen && !c.closed
		if current {
			c.conn = nil
		}
		c.mu.Unlock()

		_ = conn.Close()

		if current {
			c.opts.logger.Debug("connection lost", "network", c.network, "address", c.addr, "error", err)
			if c.stream() {
				c.notifyState(linkwatch.StateDisconnected)
			}
		}

		return
	}
}

func (c *netClient) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gen == gen && !c.closed
}

// Close closes the connection. The transport can't be connected again.
func (c *netClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}

	return nil
}

// TCPClient is a stream client transport. It reports Disconnected when the connection is lost.
type TCPClient struct {
	netClient
}

var _ linkwatch.ClientTransport = (*TCPClient)(nil)

// NewTCPClient creates a TCP client for addr in host:port form.
func NewTCPClient(addr string, opts ...Option) *TCPClient {
	c := &TCPClient{}
	c.init("tcp", addr, opts)

	return c
}

// UDPClient is a datagram client transport. Its Connect is local-only and it never reports
// Disconnected; liveness is left to polling.
type UDPClient struct {
	netClient
}

var _ linkwatch.ClientTransport = (*UDPClient)(nil)

// NewUDPClient creates a UDP client for addr in host:port form.
func NewUDPClient(addr string, opts ...Option) *UDPClient {
	c := &UDPClient{}
	c.init("udp", addr, opts)

	return c
}
