// Package session owns the client's registration with the host: the device
// key sent at startup and on every receive timeout, and the outbound input
// packets that share the same socket.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chronologos/rscreen/internal/auth"
	"github.com/chronologos/rscreen/internal/metrics"
	"github.com/chronologos/rscreen/internal/protocol"
	"github.com/chronologos/rscreen/internal/transport"
)

// Config holds session configuration.
type Config struct {
	Peer    net.Addr // host's input/auth address
	Key     auth.DeviceKey
	Logger  *zap.Logger      // nil = no logging
	Metrics *metrics.Metrics // nil = no metrics
}

// Session is the client's half of the keepalive handshake. The host learns
// the client's address from the key datagram and keeps streaming as long as
// it keeps arriving. Every send is fire-and-forget: a failed send is logged
// and counted, never returned.
type Session struct {
	conn    transport.Conn
	peer    net.Addr
	key     []byte
	log     *zap.Logger
	metrics *metrics.Metrics

	lastAuth   atomic.Int64 // unix nanos of the latest auth send attempt
	authSends  atomic.Uint64
	inputSends atomic.Uint64
	sendErrors atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// New creates a session over conn. It does not send anything; call Start.
func New(conn transport.Conn, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		conn:    conn,
		peer:    cfg.Peer,
		key:     cfg.Key.Payload(),
		log:     logger.With(zap.String("component", "session")),
		metrics: cfg.Metrics,
	}
}

// Start sends the device key once so the host learns where to stream.
func (s *Session) Start() {
	s.log.Info("registering with host", zap.Stringer("peer", s.peer))
	s.sendAuth("start")
}

// Keepalive resends the device key. The receive loop calls it once per
// receive timeout.
func (s *Session) Keepalive() {
	s.log.Debug("no data, resending device key")
	s.sendAuth("keepalive")
}

func (s *Session) sendAuth(reason string) {
	s.lastAuth.Store(time.Now().UnixNano())
	s.authSends.Add(1)
	s.metrics.AuthSent(reason)
	if _, err := s.conn.WriteTo(s.key, s.peer); err != nil {
		s.sendFailed("auth", err)
	}
}

// SendInput encodes ev and sends it to the host.
func (s *Session) SendInput(ev protocol.InputEvent) {
	s.inputSends.Add(1)
	s.metrics.InputSent(ev.Type.String())
	if _, err := s.conn.WriteTo(protocol.EncodeInput(ev), s.peer); err != nil {
		s.sendFailed("input", err)
	}
}

func (s *Session) sendFailed(kind string, err error) {
	s.sendErrors.Add(1)
	s.metrics.SendFailed(kind)
	s.log.Debug("send failed", zap.String("kind", kind), zap.Error(err))
}

// LastAuthSentAt returns when the device key was last sent, or the zero
// time if it never was.
func (s *Session) LastAuthSentAt() time.Time {
	n := s.lastAuth.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// AuthSends returns the number of device key sends attempted.
func (s *Session) AuthSends() uint64 { return s.authSends.Load() }

// InputSends returns the number of input packets attempted.
func (s *Session) InputSends() uint64 { return s.inputSends.Load() }

// SendErrors returns the number of swallowed send failures.
func (s *Session) SendErrors() uint64 { return s.sendErrors.Load() }

// Peer returns the host address.
func (s *Session) Peer() net.Addr { return s.peer }

// Close releases the socket. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
