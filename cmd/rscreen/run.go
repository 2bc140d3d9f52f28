package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chronologos/rscreen/internal/client"
	"github.com/chronologos/rscreen/internal/codec"
	"github.com/chronologos/rscreen/internal/config"
	"github.com/chronologos/rscreen/internal/input"
	"github.com/chronologos/rscreen/internal/logging"
	"github.com/chronologos/rscreen/internal/mailbox"
	"github.com/chronologos/rscreen/internal/metrics"
	"github.com/chronologos/rscreen/internal/session"
	"github.com/chronologos/rscreen/internal/transport"
	"github.com/chronologos/rscreen/internal/version"
	"github.com/chronologos/rscreen/internal/viewer"
)

// inputTOS marks input packets low-delay (DSCP EF).
const inputTOS = 0xb8

// run wires the receive loop and the viewer together and blocks until ctx
// is done or either of them fails. A busy client port is fatal here, before
// anything is sent.
func run(ctx context.Context, cfg config.Config) error {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	variant, _ := cfg.Variant()
	completion, _ := cfg.CompletionMode()
	mode, _ := input.ParseMode(cfg.Input.Mode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	conn, err := transport.Listen(ctx, transport.Config{
		Addr:       fmt.Sprintf(":%d", cfg.ClientPort),
		RecvBuffer: cfg.RecvBufferSize,
		BatchSize:  cfg.BatchSize,
		TOS:        inputTOS,
	})
	if err != nil {
		return err
	}
	peer, err := transport.ResolvePeer(cfg.Host, cfg.HostPort)
	if err != nil {
		conn.Close()
		return err
	}
	sess := session.New(conn, session.Config{
		Peer:    peer,
		Key:     cfg.Key(),
		Logger:  log,
		Metrics: m,
	})
	log.Info("rscreen starting",
		zap.String("version", version.VERSION),
		zap.String("commit", version.Commit),
		zap.Stringer("host", sess.Peer()),
		zap.Int("client_port", conn.Port()),
		zap.Int("recv_buffer", conn.RecvBufferSize()),
		zap.Stringer("device_key", cfg.Key()),
	)
	frames := mailbox.New[*codec.Frame]()
	hostSize := input.NewHostSize(cfg.DefaultHostWidth, cfg.DefaultHostHeight)

	rx := client.New(client.Config{
		Variant:        variant,
		Completion:     completion,
		ReceiveTimeout: cfg.ReceiveTimeout,
		BatchSize:      cfg.BatchSize,
		MaxFrameSize:   cfg.MaxFrameSize,
		Profile:        cfg.Profile,
	}, client.Deps{
		Conn:     conn,
		Session:  sess,
		Mailbox:  frames,
		HostSize: hostSize,
		Decoder:  codec.ImageDecoder{DiscardPixels: cfg.Decode == "validate"},
		Logger:   log,
		Metrics:  m,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rx.Run(gctx) })
	if cfg.Viewer.Enabled {
		v := viewer.New(viewer.Config{
			Addr:         cfg.Viewer.Addr,
			MaxPoll:      cfg.Viewer.MaxPoll,
			InputMode:    mode,
			TapThreshold: cfg.Input.TapThreshold,
		}, viewer.Deps{
			Frames:   frames,
			HostSize: hostSize,
			Sender:   sess,
			Logger:   log,
			Metrics:  m,
			Gatherer: reg,
		})
		g.Go(func() error { return v.ListenAndServe(gctx) })
	} else {
		log.Info("viewer disabled, frames are received but not shown")
	}

	err = g.Wait()
	log.Info("session summary",
		zap.Uint64("auth_sends", sess.AuthSends()),
		zap.Uint64("input_sends", sess.InputSends()),
		zap.Uint64("send_errors", sess.SendErrors()),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("rscreen stopped", zap.Error(err))
		return err
	}
	log.Info("rscreen stopped")
	return nil
}
