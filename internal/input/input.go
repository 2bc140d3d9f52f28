// Package input maps local pointer and key events onto the host's screen and
// sends them as input packets.
package input

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/chronologos/rscreen/internal/protocol"
)

// DefaultTapThreshold is the per-axis distance, in local pixels, under which
// a press/release pair counts as a tap.
const DefaultTapThreshold = 5

// Point is a position on the local display surface.
type Point struct {
	X, Y float64
}

// Size is a pixel size.
type Size struct {
	Width, Height int
}

// Empty reports whether either dimension is zero or negative.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Scale converts p from surface coordinates to host coordinates, rounding to
// the nearest pixel. surface must not be empty.
func Scale(p Point, surface, host Size) (x, y int32) {
	x = int32(math.Round(p.X / float64(surface.Width) * float64(host.Width)))
	y = int32(math.Round(p.Y / float64(surface.Height) * float64(host.Height)))
	return x, y
}

// HostSize is the most recently observed host screen size. The receive loop
// writes it from frame headers; the encoder reads it on every event.
type HostSize struct {
	packed atomic.Uint64 // width<<32 | height
}

// NewHostSize returns a HostSize holding the fallback used until the first
// frame header reports real dimensions.
func NewHostSize(width, height int) *HostSize {
	h := &HostSize{}
	h.Set(width, height)
	return h
}

// Set stores a new size and reports whether it changed. Non-positive
// dimensions are ignored.
func (h *HostSize) Set(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	v := uint64(uint32(width))<<32 | uint64(uint32(height))
	return h.packed.Swap(v) != v
}

func (h *HostSize) Get() Size {
	v := h.packed.Load()
	return Size{Width: int(v >> 32), Height: int(uint32(v))}
}

// Surface is the presentation layer's drawing area.
type Surface interface {
	SurfaceSize() Size
}

// Sender delivers an input packet to the host, best-effort.
type Sender interface {
	SendInput(ev protocol.InputEvent)
}

// Mode selects how the primary button is translated.
type Mode int

const (
	// ModeGesture treats the primary button as a touch: presses and drags
	// only move the host pointer, and a release close to the press point
	// becomes a click.
	ModeGesture Mode = iota
	// ModeDesktop forwards primary presses and releases directly.
	ModeDesktop
)

func (m Mode) String() string {
	switch m {
	case ModeGesture:
		return "gesture"
	case ModeDesktop:
		return "desktop"
	default:
		return "unknown"
	}
}

// ParseMode parses "gesture" or "desktop".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "gesture", "":
		return ModeGesture, nil
	case "desktop":
		return ModeDesktop, nil
	default:
		return 0, fmt.Errorf("unknown input mode %q", s)
	}
}

// Kind identifies a raw UI event.
type Kind int

const (
	PointerMove Kind = iota
	PrimaryPress
	PrimaryRelease
	SecondaryPress
	SecondaryRelease
	KeyPress
	KeyRelease
)

// RawEvent is a UI event in local surface coordinates. Key is only used by
// KeyPress and KeyRelease.
type RawEvent struct {
	Kind Kind
	X, Y float64
	Key  int32
}

// Encoder turns raw UI events into input packets. It is safe to call from
// several goroutines, though a presentation layer normally uses one.
type Encoder struct {
	surface   Surface
	host      *HostSize
	send      Sender
	mode      Mode
	threshold float64

	mu      sync.Mutex
	pressed bool
	start   Point
}

// NewEncoder creates an encoder. A threshold <= 0 uses DefaultTapThreshold.
func NewEncoder(surface Surface, host *HostSize, send Sender, mode Mode, threshold float64) *Encoder {
	if threshold <= 0 {
		threshold = DefaultTapThreshold
	}
	return &Encoder{
		surface:   surface,
		host:      host,
		send:      send,
		mode:      mode,
		threshold: threshold,
	}
}

// OnEvent handles one raw event. It reports how many packets were sent;
// events arriving before the surface has a size send nothing.
func (e *Encoder) OnEvent(ev RawEvent) int {
	surface := e.surface.SurfaceSize()
	if surface.Empty() {
		return 0
	}
	host := e.host.Get()
	p := Point{X: ev.X, Y: ev.Y}

	switch ev.Kind {
	case PointerMove:
		return e.pointer(protocol.InputMove, p, surface, host)

	case PrimaryPress:
		if e.mode == ModeDesktop {
			return e.pointer(protocol.InputPrimaryDown, p, surface, host)
		}
		e.mu.Lock()
		e.pressed = true
		e.start = p
		e.mu.Unlock()
		return e.pointer(protocol.InputMove, p, surface, host)

	case PrimaryRelease:
		if e.mode == ModeDesktop {
			return e.pointer(protocol.InputPrimaryUp, p, surface, host)
		}
		if !e.isTap(p) {
			return 0
		}
		return e.pointer(protocol.InputPrimaryDown, p, surface, host) +
			e.pointer(protocol.InputPrimaryUp, p, surface, host)

	case SecondaryPress:
		return e.pointer(protocol.InputSecondaryDown, p, surface, host)
	case SecondaryRelease:
		return e.pointer(protocol.InputSecondaryUp, p, surface, host)

	case KeyPress:
		e.send.SendInput(protocol.InputEvent{Type: protocol.InputKeyDown, Key: ev.Key})
		return 1
	case KeyRelease:
		e.send.SendInput(protocol.InputEvent{Type: protocol.InputKeyUp, Key: ev.Key})
		return 1
	}
	return 0
}

// isTap ends the current gesture and reports whether it stayed within the
// threshold on both axes. A release without a press is not a tap.
func (e *Encoder) isTap(p Point) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.pressed {
		return false
	}
	e.pressed = false
	return math.Abs(p.X-e.start.X) < e.threshold && math.Abs(p.Y-e.start.Y) < e.threshold
}

func (e *Encoder) pointer(typ protocol.InputType, p Point, surface, host Size) int {
	x, y := Scale(p, surface, host)
	e.send.SendInput(protocol.InputEvent{Type: typ, X: x, Y: y})
	return 1
}

// Convenience wrappers for presentation layers.

func (e *Encoder) Move(x, y float64) int    { return e.OnEvent(RawEvent{Kind: PointerMove, X: x, Y: y}) }
func (e *Encoder) Press(x, y float64) int   { return e.OnEvent(RawEvent{Kind: PrimaryPress, X: x, Y: y}) }
func (e *Encoder) Release(x, y float64) int { return e.OnEvent(RawEvent{Kind: PrimaryRelease, X: x, Y: y}) }
func (e *Encoder) KeyDown(key int32) int    { return e.OnEvent(RawEvent{Kind: KeyPress, Key: key}) }
func (e *Encoder) KeyUp(key int32) int      { return e.OnEvent(RawEvent{Kind: KeyRelease, Key: key}) }
