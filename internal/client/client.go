// Package client runs the receive loop: it reads fragment datagrams,
// reassembles and decodes frames, publishes the newest one to a mailbox,
// and keeps the host registration alive while the stream is quiet.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chronologos/rscreen/internal/codec"
	"github.com/chronologos/rscreen/internal/input"
	"github.com/chronologos/rscreen/internal/mailbox"
	"github.com/chronologos/rscreen/internal/metrics"
	"github.com/chronologos/rscreen/internal/protocol"
	"github.com/chronologos/rscreen/internal/reassembly"
	"github.com/chronologos/rscreen/internal/transport"
)

const (
	DefaultReceiveTimeout = 1 * time.Second
	profileInterval       = 30 * time.Second
)

// Outcome labels for datagrams that never reach the reassembler.
const (
	outcomeShortHeader = "short_header"
)

// Config holds receive loop configuration.
type Config struct {
	Variant        protocol.Variant
	Completion     reassembly.CompletionMode
	ReceiveTimeout time.Duration // 0 = DefaultReceiveTimeout
	BatchSize      int           // 0 = transport.DefaultBatchSize
	MaxFrameSize   int           // 0 = reassembly.DefaultMaxFrameSize
	Profile        bool          // emit frame/fragment stats to Stderr
	ProfileDir     string        // where the JSON summary goes ("" = os.TempDir())
}

// Session is the keepalive side of the host registration.
type Session interface {
	Start()
	Keepalive()
	Close() error
}

// Deps are the collaborators the loop reads from and writes to.
type Deps struct {
	Conn     transport.Conn
	Session  Session
	Mailbox  *mailbox.Mailbox[*codec.Frame]
	HostSize *input.HostSize
	Decoder  codec.Decoder    // nil = codec.ImageDecoder{}
	Logger   *zap.Logger      // nil = no logging
	Metrics  *metrics.Metrics // nil = no metrics
	Stderr   io.Writer        // profile output; nil = os.Stderr
}

// Stats counts what the loop has seen. Safe to read while Run is active.
type Stats struct {
	Datagrams      atomic.Uint64
	Bytes          atomic.Uint64
	Accepted       atomic.Uint64
	Rejected       atomic.Uint64
	Restarts       atomic.Uint64
	Duplicates     atomic.Uint64
	Frames         atomic.Uint64
	DecodeFailures atomic.Uint64
	Published      atomic.Uint64
	Overwritten    atomic.Uint64
	Timeouts       atomic.Uint64
}

// Client is the network-ingestion half of the viewer.
type Client struct {
	cfg     Config
	conn    transport.Conn
	session Session
	mailbox *mailbox.Mailbox[*codec.Frame]
	host    *input.HostSize
	decoder codec.Decoder
	log     *zap.Logger
	metrics *metrics.Metrics
	stderr  io.Writer
	reasm   *reassembly.Reassembler

	stats        Stats
	rejects      [reassembly.ReasonTooLarge + 1]atomic.Uint64
	seq          uint64
	profileStart time.Time
}

// New creates a receive loop. It does not touch the network until Run.
func New(cfg Config, deps Deps) *Client {
	if cfg.Variant.HeaderSize == 0 {
		cfg.Variant = protocol.VariantA
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = DefaultReceiveTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = transport.DefaultBatchSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	decoder := deps.Decoder
	if decoder == nil {
		decoder = codec.ImageDecoder{}
	}
	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	host := deps.HostSize
	if host == nil {
		host = input.NewHostSize(1280, 720)
	}
	return &Client{
		cfg:     cfg,
		conn:    deps.Conn,
		session: deps.Session,
		mailbox: deps.Mailbox,
		host:    host,
		decoder: decoder,
		log:     logger.With(zap.String("component", "client")),
		metrics: deps.Metrics,
		stderr:  stderr,
		reasm:   reassembly.New(cfg.Completion, cfg.MaxFrameSize),
	}
}

// exitReason describes why the receive loop ended.
type exitReason int

const (
	exitCancelled exitReason = iota // context done
	exitClosed                      // socket closed under the loop
	exitSocket                      // non-timeout receive error
)

func (r exitReason) String() string {
	switch r {
	case exitCancelled:
		return "cancelled"
	case exitClosed:
		return "socket closed"
	case exitSocket:
		return "socket error"
	default:
		return "unknown"
	}
}

// Run registers with the host and receives until ctx is done or the socket
// fails. The socket is closed on return. Cancellation is a clean exit and
// returns nil; a socket failure is returned wrapped.
func (c *Client) Run(ctx context.Context) error {
	defer c.session.Close()

	// Wake a blocked read as soon as ctx is done instead of waiting out
	// the receive timeout.
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now()) // best-effort
	})
	defer stop()

	c.profileStart = time.Now()
	if c.cfg.Profile {
		defer c.logProfileSummary()
	}

	c.log.Info("receive loop started",
		zap.Stringer("local", c.conn.LocalAddr()),
		zap.String("protocol", c.cfg.Variant.Name),
		zap.Stringer("completion", c.reasm.Mode()),
		zap.Duration("receive_timeout", c.cfg.ReceiveTimeout),
	)
	c.session.Start()

	reason, err := c.loop(ctx)
	c.log.Info("receive loop stopped", zap.Stringer("reason", reason), zap.Error(err))
	if reason == exitCancelled {
		return nil
	}
	return err
}

func (c *Client) loop(ctx context.Context) (exitReason, error) {
	batch := make([]transport.Datagram, c.cfg.BatchSize)
	lastProfile := time.Now()

	for {
		if ctx.Err() != nil {
			return exitCancelled, nil
		}
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReceiveTimeout))
		// The AfterFunc may have fired between the check above and the
		// deadline reset; don't sleep a full timeout in that case.
		if ctx.Err() != nil {
			return exitCancelled, nil
		}

		n, err := c.conn.ReadBatch(batch)
		for i := 0; i < n; i++ {
			c.handleDatagram(batch[i].Data)
		}
		if err != nil {
			if ctx.Err() != nil {
				return exitCancelled, nil
			}
			if transport.IsClosed(err) {
				return exitClosed, fmt.Errorf("receive: %w", err)
			}
			if !transport.IsTimeout(err) {
				return exitSocket, fmt.Errorf("receive: %w", err)
			}
			c.stats.Timeouts.Add(1)
			c.session.Keepalive()
		}

		if c.cfg.Profile && time.Since(lastProfile) >= profileInterval {
			c.logProfile()
			lastProfile = time.Now()
		}
	}
}

// handleDatagram runs one datagram through decode, reassembly and, on
// completion, image decode and publish. Malformed input is counted and
// dropped; nothing here can end the loop.
func (c *Client) handleDatagram(data []byte) {
	c.stats.Datagrams.Add(1)
	c.stats.Bytes.Add(uint64(len(data)))

	v := c.cfg.Variant
	h, err := protocol.DecodeHeader(v, data)
	if err != nil {
		c.stats.Rejected.Add(1)
		c.metrics.Fragment(outcomeShortHeader)
		return
	}
	res := c.reasm.Add(h, data[v.HeaderSize:])
	// Only fragments the reassembler took may rescale input.
	if res.Status != reassembly.Rejected && v.HasDimensions && c.host.Set(int(h.Width), int(h.Height)) {
		c.log.Info("host size changed", zap.Int32("width", h.Width), zap.Int32("height", h.Height))
	}
	if res.Restarted {
		c.stats.Restarts.Add(1)
	}
	if res.Duplicate {
		c.stats.Duplicates.Add(1)
	}

	switch res.Status {
	case reassembly.Rejected:
		c.stats.Rejected.Add(1)
		c.rejects[res.Reason].Add(1)
		c.metrics.Fragment(res.Reason.String())
	case reassembly.Accepted:
		c.stats.Accepted.Add(1)
		c.metrics.Fragment(res.Status.String())
	case reassembly.Completed:
		c.stats.Accepted.Add(1)
		c.metrics.Fragment(res.Status.String())
		c.completeFrame(v.PayloadKind(h), h, res.Frame)
	}
}

func (c *Client) completeFrame(kind protocol.PayloadKind, h protocol.FragmentHeader, payload []byte) {
	c.seq++
	c.stats.Frames.Add(1)
	c.metrics.FrameCompleted(len(payload))

	d, err := c.decoder.Decode(kind, payload)
	if err != nil {
		// The previous frame stays on screen.
		c.stats.DecodeFailures.Add(1)
		c.metrics.DecodeFailed(decodeReason(err))
		c.log.Debug("frame decode failed", zap.Uint64("seq", c.seq), zap.Int("bytes", len(payload)), zap.Error(err))
		return
	}

	host := c.host.Get()
	f := &codec.Frame{
		Seq:         c.seq,
		HostWidth:   host.Width,
		HostHeight:  host.Height,
		Format:      d.Format,
		Width:       d.Width,
		Height:      d.Height,
		Payload:     payload,
		Image:       d.Image,
		CompletedAt: time.Now(),
	}
	c.stats.Published.Add(1)
	if c.mailbox.Publish(f) {
		c.stats.Overwritten.Add(1)
		c.metrics.MailboxOverwritten()
	}
}

func decodeReason(err error) string {
	switch {
	case errors.Is(err, codec.ErrUnsupported):
		return "unsupported"
	case errors.Is(err, codec.ErrEmpty):
		return "empty"
	default:
		return "invalid"
	}
}

// Stats returns the loop's counters.
func (c *Client) Stats() *Stats {
	return &c.stats
}

// Rejections returns the number of fragments rejected for reason.
func (c *Client) Rejections(reason reassembly.Reason) uint64 {
	if reason < 0 || int(reason) >= len(c.rejects) {
		return 0
	}
	return c.rejects[reason].Load()
}
