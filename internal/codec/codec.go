// Package codec turns completed frame bytes into something a presentation
// layer can paint.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoders with image.Decode
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/chronologos/rscreen/internal/protocol"
)

var (
	ErrUnsupported = errors.New("unsupported payload kind")
	ErrEmpty       = errors.New("empty payload")
	ErrDecode      = errors.New("image decode failed")
)

// Frame is one decoded host frame as published to the mailbox.
type Frame struct {
	Seq         uint64 // per-session completion counter, starting at 1
	HostWidth   int    // host surface size from the header, 0 if unknown
	HostHeight  int
	Format      string // "jpeg", "png", "gif"
	Width       int    // image dimensions
	Height      int
	Payload     []byte      // encoded bytes as received
	Image       image.Image // nil when the decoder discards pixels
	CompletedAt time.Time
}

// Decoded is the result of decoding one payload.
type Decoded struct {
	Image  image.Image
	Format string
	Width  int
	Height int
}

// Decoder decodes a completed frame payload.
type Decoder interface {
	Decode(kind protocol.PayloadKind, payload []byte) (Decoded, error)
}

// ImageDecoder decodes with the standard image codecs. The whole stream is
// always decoded, so a frame with a truncated or holed body fails here and
// never replaces the last good one. With DiscardPixels set Decoded.Image is
// left nil, for presenters that display the encoded bytes as is.
type ImageDecoder struct {
	DiscardPixels bool
}

func (d ImageDecoder) Decode(kind protocol.PayloadKind, payload []byte) (Decoded, error) {
	if kind != protocol.KindJPEG {
		return Decoded{}, fmt.Errorf("%w: %d", ErrUnsupported, kind)
	}
	if len(payload) == 0 {
		return Decoded{}, ErrEmpty
	}

	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return Decoded{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := img.Bounds()
	out := Decoded{Image: img, Format: format, Width: b.Dx(), Height: b.Dy()}
	if d.DiscardPixels {
		out.Image = nil
	}
	return out, nil
}
