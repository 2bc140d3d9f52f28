package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/chronologos/rscreen/internal/protocol"
)

const (
	DefaultRecvBuffer = 4 * 1024 * 1024 // 4 MB, room for several HD frames
	DefaultBatchSize  = 8
)

// Config holds socket configuration.
type Config struct {
	Addr        string // local bind address, e.g. ":50006"
	RecvBuffer  int    // SO_RCVBUF hint in bytes (0 = DefaultRecvBuffer, <0 = leave kernel default)
	BatchSize   int    // datagrams per ReadBatch (0 = DefaultBatchSize)
	MaxDatagram int    // per-datagram buffer (0 = protocol.MaxDatagramSize)
	TOS         int    // IP TOS/DSCP byte for outgoing packets (0 = unset)
}

// UDPConn is a Conn over an IPv4 UDP socket. On Linux ReadBatch drains
// several datagrams per syscall.
type UDPConn struct {
	conn *net.UDPConn
	pc   *ipv4.PacketConn
	msgs []ipv4.Message
	bufs [][]byte
}

// Listen binds the client socket. A bind failure is fatal to the caller:
// nothing can be received without it.
func Listen(ctx context.Context, cfg Config) (*UDPConn, error) {
	if cfg.RecvBuffer == 0 {
		cfg.RecvBuffer = DefaultRecvBuffer
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = protocol.MaxDatagramSize
	}

	lc := net.ListenConfig{Control: socketControl(cfg)}
	pc, err := lc.ListenPacket(ctx, "udp4", cfg.Addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %s (is another client running?)", ErrPortInUse, cfg.Addr)
		}
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	uc := pc.(*net.UDPConn)

	if cfg.RecvBuffer > 0 {
		uc.SetReadBuffer(cfg.RecvBuffer) // best-effort; the kernel may clamp it
	}

	p4 := ipv4.NewPacketConn(uc)
	if cfg.TOS > 0 {
		p4.SetTOS(cfg.TOS) // best-effort
	}

	c := &UDPConn{
		conn: uc,
		pc:   p4,
		msgs: make([]ipv4.Message, cfg.BatchSize),
		bufs: make([][]byte, cfg.BatchSize),
	}
	for i := range c.bufs {
		c.bufs[i] = make([]byte, cfg.MaxDatagram)
	}
	return c, nil
}

// ReadBatch reads up to len(batch) datagrams into the socket's own buffers.
func (c *UDPConn) ReadBatch(batch []Datagram) (int, error) {
	n := min(len(batch), len(c.msgs))
	if n == 0 {
		return 0, nil
	}
	for i := 0; i < n; i++ {
		c.msgs[i].Buffers = c.bufs[i : i+1]
		c.msgs[i].N = 0
		c.msgs[i].Addr = nil
	}
	got, err := c.pc.ReadBatch(c.msgs[:n], 0)
	got = max(got, 0) // x/net reports -1 alongside an error
	for i := 0; i < got; i++ {
		batch[i] = Datagram{Data: c.bufs[i][:c.msgs[i].N], Addr: c.msgs[i].Addr}
	}
	return got, err
}

// WriteTo sends one datagram.
func (c *UDPConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	return c.conn.WriteTo(b, addr)
}

// SetReadDeadline sets the deadline for ReadBatch.
func (c *UDPConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// LocalAddr returns the bound address.
func (c *UDPConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Port returns the bound UDP port.
func (c *UDPConn) Port() int {
	return c.conn.LocalAddr().(*net.UDPAddr).Port
}

// RecvBufferSize returns the receive buffer the kernel actually granted,
// or 0 where that cannot be queried.
func (c *UDPConn) RecvBufferSize() int {
	return recvBufferSize(c.conn)
}

// Close closes the socket. Blocked and subsequent reads fail with an error
// satisfying IsClosed.
func (c *UDPConn) Close() error {
	return c.conn.Close()
}

// ResolvePeer resolves the host's input/auth address.
func ResolvePeer(host string, port int) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}
	return addr, nil
}
