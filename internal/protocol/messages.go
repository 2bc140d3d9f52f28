package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortHeader    = errors.New("datagram shorter than fragment header")
	ErrShortInput     = errors.New("input packet must be 16 bytes")
	ErrUnknownVariant = errors.New("unknown protocol variant")
)

// All multi-byte fields are little-endian i32: the host writes its native
// structs straight onto the wire.
var order = binary.LittleEndian

// Variant describes one fragment header layout. A session uses exactly one.
type Variant struct {
	Name          string
	HeaderSize    int
	HasDimensions bool // width, height follow total
	HasKind       bool // payload kind follows total
}

var (
	VariantA = Variant{Name: "a", HeaderSize: HeaderSizeA, HasDimensions: true}
	VariantB = Variant{Name: "b", HeaderSize: HeaderSizeB, HasKind: true}
)

// VariantByName returns the variant for "a" or "b".
func VariantByName(name string) (Variant, error) {
	switch name {
	case VariantA.Name:
		return VariantA, nil
	case VariantB.Name:
		return VariantB, nil
	default:
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
}

// PayloadKind returns the kind of the frame h belongs to. Variants without a
// kind field only ever carry compressed images.
func (v Variant) PayloadKind(h FragmentHeader) PayloadKind {
	if v.HasKind {
		return h.Kind
	}
	return KindJPEG
}

// --- Fragment header ---

// FragmentHeader prefixes every frame datagram. Width and Height are zero
// in variant B; Kind is zero in variant A.
type FragmentHeader struct {
	Offset         int32
	FragmentLength int32
	TotalSize      int32
	Width          int32
	Height         int32
	Kind           PayloadKind
}

// DecodeHeader parses the header at the start of datagram. The payload is
// datagram[v.HeaderSize:]. Any datagram shorter than the header is rejected
// outright; there is no partial-packet tolerance.
func DecodeHeader(v Variant, datagram []byte) (FragmentHeader, error) {
	if v.HeaderSize == 0 {
		return FragmentHeader{}, ErrUnknownVariant
	}
	if len(datagram) < v.HeaderSize {
		return FragmentHeader{}, ErrShortHeader
	}
	h := FragmentHeader{
		Offset:         int32(order.Uint32(datagram[0:4])),
		FragmentLength: int32(order.Uint32(datagram[4:8])),
		TotalSize:      int32(order.Uint32(datagram[8:12])),
	}
	switch {
	case v.HasDimensions:
		h.Width = int32(order.Uint32(datagram[12:16]))
		h.Height = int32(order.Uint32(datagram[16:20]))
	case v.HasKind:
		h.Kind = PayloadKind(order.Uint32(datagram[12:16]))
	}
	return h, nil
}

// AppendHeader appends the encoded header for v to dst.
func AppendHeader(v Variant, dst []byte, h FragmentHeader) []byte {
	dst = order.AppendUint32(dst, uint32(h.Offset))
	dst = order.AppendUint32(dst, uint32(h.FragmentLength))
	dst = order.AppendUint32(dst, uint32(h.TotalSize))
	switch {
	case v.HasDimensions:
		dst = order.AppendUint32(dst, uint32(h.Width))
		dst = order.AppendUint32(dst, uint32(h.Height))
	case v.HasKind:
		dst = order.AppendUint32(dst, uint32(h.Kind))
	}
	return dst
}

// Fragment splits frame into datagrams of at most chunk payload bytes each,
// the way the host sends them. width/height are only written for variant A.
func Fragment(v Variant, frame []byte, chunk int, width, height int32) [][]byte {
	if chunk <= 0 {
		chunk = MaxDatagramSize - v.HeaderSize
	}
	var out [][]byte
	for off := 0; off < len(frame); off += chunk {
		end := min(off+chunk, len(frame))
		h := FragmentHeader{
			Offset:         int32(off),
			FragmentLength: int32(end - off),
			TotalSize:      int32(len(frame)),
			Width:          width,
			Height:         height,
			Kind:           KindJPEG,
		}
		d := AppendHeader(v, make([]byte, 0, v.HeaderSize+end-off), h)
		out = append(out, append(d, frame[off:end]...))
	}
	return out
}

// --- Input packet ---

// InputEvent is one pointer or key event in host coordinates.
type InputEvent struct {
	Type InputType
	X    int32
	Y    int32
	Key  int32
}

// EncodeInput returns the 16-byte wire form of ev.
func EncodeInput(ev InputEvent) []byte {
	var buf [InputSize]byte
	order.PutUint32(buf[0:4], uint32(ev.Type))
	order.PutUint32(buf[4:8], uint32(ev.X))
	order.PutUint32(buf[8:12], uint32(ev.Y))
	order.PutUint32(buf[12:16], uint32(ev.Key))
	return buf[:]
}

// DecodeInput parses an input packet. The host only accepts exact-size
// packets, so anything else is an error.
func DecodeInput(b []byte) (InputEvent, error) {
	if len(b) != InputSize {
		return InputEvent{}, ErrShortInput
	}
	return InputEvent{
		Type: InputType(int32(order.Uint32(b[0:4]))),
		X:    int32(order.Uint32(b[4:8])),
		Y:    int32(order.Uint32(b[8:12])),
		Key:  int32(order.Uint32(b[12:16])),
	}, nil
}
