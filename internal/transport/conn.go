package transport

import (
	"errors"
	"net"
	"os"
	"time"
)

// ErrPortInUse is returned by Listen when the local port is already bound.
var ErrPortInUse = errors.New("port already in use")

// Datagram is one received UDP payload. Data aliases a buffer owned by the
// Conn and is only valid until the next ReadBatch.
type Datagram struct {
	Data []byte
	Addr net.Addr
}

// Conn is the client's datagram socket. The receive loop is its only
// reader; writes may come from any goroutine.
type Conn interface {
	// ReadBatch fills up to len(batch) datagrams and returns how many were
	// read. It blocks until at least one arrives or the read deadline passes.
	ReadBatch(batch []Datagram) (int, error)
	WriteTo(b []byte, addr net.Addr) (int, error)
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// IsTimeout reports whether err is a read-deadline expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsClosed reports whether err comes from using a closed socket.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
