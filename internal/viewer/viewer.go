// Package viewer presents the frame stream in a browser.
//
// A page served at / opens a websocket to /ws. Each newest frame is pushed
// as one binary message holding the encoded image bytes; the page sends
// pointer, key and resize events back as small JSON text messages, which
// drive the input encoder. One browser tab is the display at a time: a new
// connection replaces the previous one.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chronologos/rscreen/internal/codec"
	"github.com/chronologos/rscreen/internal/input"
	"github.com/chronologos/rscreen/internal/mailbox"
	"github.com/chronologos/rscreen/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultMaxPoll    = 100 * time.Millisecond
	writeTimeout      = 2 * time.Second
	shutdownTimeout   = 2 * time.Second
	maxInputMsgSize   = 4 * 1024
	readHeaderTimeout = 5 * time.Second
)

// ErrReplaced is the close reason sent to a viewer superseded by a newer one.
var ErrReplaced = errors.New("replaced by a newer viewer")

// Config holds viewer configuration.
type Config struct {
	Addr         string        // HTTP listen address
	MaxPoll      time.Duration // mailbox re-check interval; 0 = DefaultMaxPoll
	InputMode    input.Mode
	TapThreshold float64
}

// Deps are the viewer's collaborators.
type Deps struct {
	Frames   *mailbox.Mailbox[*codec.Frame]
	HostSize *input.HostSize
	Sender   input.Sender
	Logger   *zap.Logger         // nil = no logging
	Metrics  *metrics.Metrics    // nil = no metrics
	Gatherer prometheus.Gatherer // serves /metrics; nil = route disabled
}

// Viewer is the presentation layer. It is also the input encoder's
// Surface: its size is whatever the connected page last reported.
type Viewer struct {
	cfg      Config
	frames   *mailbox.Mailbox[*codec.Frame]
	encoder  *input.Encoder
	log      *zap.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	width  atomic.Int32
	height atomic.Int32
	pushed atomic.Uint64

	mu     sync.Mutex
	active *conn
}

// conn is one connected page.
type conn struct {
	id     string
	ws     *websocket.Conn
	cancel context.CancelFunc
}

// New creates a viewer. It does not listen until Serve.
func New(cfg Config, deps Deps) *Viewer {
	if cfg.MaxPoll <= 0 {
		cfg.MaxPoll = DefaultMaxPoll
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Viewer{
		cfg:      cfg,
		frames:   deps.Frames,
		log:      logger.With(zap.String("component", "viewer")),
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
		},
	}
	v.encoder = input.NewEncoder(v, deps.HostSize, deps.Sender, cfg.InputMode, cfg.TapThreshold)
	return v
}

// SurfaceSize reports the connected page's image size, zero when no page
// is connected or it has not laid out yet.
func (v *Viewer) SurfaceSize() input.Size {
	return input.Size{Width: int(v.width.Load()), Height: int(v.height.Load())}
}

func (v *Viewer) setSurface(w, h int) {
	v.width.Store(int32(w))
	v.height.Store(int32(h))
}

// Pushed returns the number of frames written to viewers.
func (v *Viewer) Pushed() uint64 { return v.pushed.Load() }

// Handler returns the HTTP routes.
func (v *Viewer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", v.handleIndex)
	r.Get("/ws", v.handleWS)
	r.Get("/healthz", v.handleHealth)
	if v.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(v.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// ListenAndServe binds cfg.Addr and serves until ctx is done.
func (v *Viewer) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", v.cfg.Addr)
	if err != nil {
		return fmt.Errorf("viewer listen %s: %w", v.cfg.Addr, err)
	}
	return v.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done. A clean shutdown returns nil.
func (v *Viewer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           v.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	v.log.Info("viewer listening", zap.String("url", "http://"+ln.Addr().String()+"/"))

	select {
	case err := <-errCh:
		return fmt.Errorf("viewer serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Shutdown does not touch hijacked connections.
	v.replace(nil)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("viewer shutdown: %w", err)
	}
	return nil
}

func (v *Viewer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write([]byte(indexHTML))
}

type health struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Surface   string `json:"surface"`
	Pushed    uint64 `json:"frames_pushed"`
}

func (v *Viewer) handleHealth(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	connected := v.active != nil
	v.mu.Unlock()

	body, _ := json.Marshal(health{
		Status:    "ok",
		Connected: connected,
		Surface:   v.SurfaceSize().String(),
		Pushed:    v.Pushed(),
	})
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

func (v *Viewer) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := v.upgrader.Upgrade(w, r, nil)
	if err != nil {
		v.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	ws.SetReadLimit(maxInputMsgSize)

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{id: uuid.NewString(), ws: ws, cancel: cancel}
	log := v.log.With(zap.String("viewer", c.id), zap.String("remote", r.RemoteAddr))

	v.replace(c)
	v.metrics.ViewerConnected()
	log.Info("viewer connected")

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		v.pump(ctx, c, log)
	}()

	v.readInput(c, log)

	cancel()
	ws.Close()
	<-pumpDone
	v.release(c)
	v.metrics.ViewerDisconnected()
	log.Info("viewer disconnected")
}

// replace makes c the active viewer and closes the previous one. A nil c
// just closes the active viewer.
func (v *Viewer) replace(c *conn) {
	v.mu.Lock()
	old := v.active
	v.active = c
	if c == nil {
		v.setSurface(0, 0)
	}
	v.mu.Unlock()

	if old == nil {
		return
	}
	old.cancel()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, ErrReplaced.Error())
	old.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)) // best-effort
	old.ws.Close()
}

// release clears c if it is still the active viewer.
func (v *Viewer) release(c *conn) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active == c {
		v.active = nil
		v.setSurface(0, 0)
	}
}

// pump writes each newest frame to the page. It is the only writer of data
// messages on c.ws.
func (v *Viewer) pump(ctx context.Context, c *conn, log *zap.Logger) {
	for {
		f, err := v.frames.Wait(ctx, v.cfg.MaxPoll)
		if err != nil {
			return
		}
		c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.ws.WriteMessage(websocket.BinaryMessage, f.Payload); err != nil {
			log.Debug("frame write failed", zap.Uint64("seq", f.Seq), zap.Error(err))
			c.cancel()
			c.ws.Close()
			return
		}
		v.pushed.Add(1)
	}
}

// inputMsg is one event from the page. Coordinates are relative to the
// displayed image.
type inputMsg struct {
	T string  `json:"t"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	K int32   `json:"k"`
	W int     `json:"w"`
	H int     `json:"h"`
}

var msgKinds = map[string]input.Kind{
	"move":  input.PointerMove,
	"down":  input.PrimaryPress,
	"up":    input.PrimaryRelease,
	"rdown": input.SecondaryPress,
	"rup":   input.SecondaryRelease,
	"kdown": input.KeyPress,
	"kup":   input.KeyRelease,
}

// readInput handles page messages until the connection ends.
func (v *Viewer) readInput(c *conn, log *zap.Logger) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var m inputMsg
		if err := json.Unmarshal(data, &m); err != nil {
			log.Debug("bad input message", zap.Error(err))
			continue
		}
		v.handleInput(c, m, log)
	}
}

func (v *Viewer) handleInput(c *conn, m inputMsg, log *zap.Logger) {
	if m.T == "resize" {
		if v.isActive(c) {
			v.setSurface(max(m.W, 0), max(m.H, 0))
			log.Debug("surface resized", zap.Int("width", m.W), zap.Int("height", m.H))
		}
		return
	}
	kind, ok := msgKinds[m.T]
	if !ok {
		log.Debug("unknown input message", zap.String("t", m.T))
		return
	}
	if !v.isActive(c) {
		return
	}
	v.encoder.OnEvent(input.RawEvent{Kind: kind, X: m.X, Y: m.Y, Key: m.K})
}

func (v *Viewer) isActive(c *conn) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active == c
}
