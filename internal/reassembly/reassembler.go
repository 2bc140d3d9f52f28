// Package reassembly rebuilds image frames from unordered, lossy fragment
// datagrams.
//
// A Reassembler holds at most one in-flight frame:
//
//	EMPTY -> ACCUMULATING   fragment with offset 0 (always starts a new frame)
//	ACCUMULATING -> EMPTY   frame complete, buffer handed to the caller
//
// A fragment with offset 0 abandons any unfinished frame: dropping a frame
// is preferred to stalling on one whose fragments were lost. Fragments that
// do not belong to the current frame (no frame yet, different total size,
// out of bounds) are rejected without touching state.
package reassembly

import (
	"fmt"

	"github.com/chronologos/rscreen/internal/protocol"
)

// DefaultMaxFrameSize caps the buffer a single header can make us allocate.
const DefaultMaxFrameSize = 64 * 1024 * 1024 // 64 MB

// CompletionMode selects how a frame is judged complete.
type CompletionMode int

const (
	// CompletionCounter completes once bytesReceived >= totalSize.
	// Robust to reordering.
	CompletionCounter CompletionMode = iota
	// CompletionLegacy completes once offset+fragmentLength >= totalSize,
	// i.e. when the last fragment by position arrives. It fires early if
	// that fragment overtakes another one; compatibility only.
	CompletionLegacy
)

func (m CompletionMode) String() string {
	switch m {
	case CompletionCounter:
		return "counter"
	case CompletionLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseCompletionMode parses "counter" or "legacy"; empty means counter.
func ParseCompletionMode(s string) (CompletionMode, error) {
	switch s {
	case "counter", "":
		return CompletionCounter, nil
	case "legacy":
		return CompletionLegacy, nil
	default:
		return 0, fmt.Errorf("unknown completion mode %q", s)
	}
}

// Status is the outcome class of one Add call.
type Status int

const (
	Accepted  Status = iota // copied into the current frame
	Completed               // copied and the frame is done; Result.Frame is set
	Rejected                // dropped; Result.Reason says why
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case Completed:
		return "completed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Reason explains a rejection.
type Reason int

const (
	ReasonNone          Reason = iota
	ReasonNoFrame              // no frame started yet (first fragment lost)
	ReasonSizeMismatch         // totalSize differs from the frame in progress
	ReasonOutOfBounds          // offset+length beyond totalSize
	ReasonInvalidHeader        // negative fields or non-positive totalSize
	ReasonTooLarge             // totalSize above the configured cap
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoFrame:
		return "no_frame"
	case ReasonSizeMismatch:
		return "size_mismatch"
	case ReasonOutOfBounds:
		return "out_of_bounds"
	case ReasonInvalidHeader:
		return "invalid_header"
	case ReasonTooLarge:
		return "too_large"
	default:
		return "unknown"
	}
}

// Result describes what Add did with a fragment.
type Result struct {
	Status Status
	Reason Reason
	// Restarted is set when this fragment started a new frame while an
	// unfinished one was in progress. The old frame is gone.
	Restarted bool
	// Duplicate is set when a fragment at this offset was already counted.
	Duplicate bool
	// Frame is the completed frame, owned by the caller. Only set when
	// Status is Completed.
	Frame []byte
}

// State is a snapshot of the in-flight frame.
type State struct {
	Accumulating  bool
	TotalSize     int
	BytesReceived int
}

// Reassembler is not safe for concurrent use; it belongs to the receive loop.
type Reassembler struct {
	mode    CompletionMode
	maxSize int

	buf      []byte // nil when EMPTY
	total    int
	received int
	seen     map[int]struct{} // offsets already counted
}

// New creates a Reassembler. maxFrameSize <= 0 uses DefaultMaxFrameSize.
func New(mode CompletionMode, maxFrameSize int) *Reassembler {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Reassembler{mode: mode, maxSize: maxFrameSize}
}

// Add feeds one fragment. payload is copied; the caller may reuse it.
func (r *Reassembler) Add(h protocol.FragmentHeader, payload []byte) Result {
	if h.Offset < 0 || h.FragmentLength < 0 || h.TotalSize <= 0 {
		return rejected(ReasonInvalidHeader)
	}
	total := int(h.TotalSize)
	if total > r.maxSize {
		return rejected(ReasonTooLarge)
	}

	var res Result
	if h.Offset == 0 {
		res.Restarted = r.buf != nil
		r.buf = make([]byte, total)
		r.total = total
		r.received = 0
		r.seen = make(map[int]struct{})
	}

	if r.buf == nil {
		return rejected(ReasonNoFrame)
	}
	if total != r.total {
		return rejected(ReasonSizeMismatch)
	}

	off := int(h.Offset)
	if off+len(payload) > r.total || off+int(h.FragmentLength) > r.total {
		res.Status, res.Reason = Rejected, ReasonOutOfBounds
		return res
	}
	copy(r.buf[off:], payload)
	if _, dup := r.seen[off]; dup {
		res.Duplicate = true
	} else {
		r.seen[off] = struct{}{}
		r.received += len(payload)
	}

	if !r.complete(off, int(h.FragmentLength)) {
		res.Status = Accepted
		return res
	}

	res.Status = Completed
	res.Frame = r.buf
	r.reset()
	return res
}

func (r *Reassembler) complete(off, length int) bool {
	if r.mode == CompletionLegacy {
		return off+length >= r.total
	}
	return r.received >= r.total
}

func (r *Reassembler) reset() {
	r.buf = nil
	r.total = 0
	r.received = 0
	r.seen = nil
}

// State returns a snapshot of the in-flight frame.
func (r *Reassembler) State() State {
	return State{
		Accumulating:  r.buf != nil,
		TotalSize:     r.total,
		BytesReceived: r.received,
	}
}

// Mode returns the completion mode.
func (r *Reassembler) Mode() CompletionMode {
	return r.mode
}

func rejected(reason Reason) Result {
	return Result{Status: Rejected, Reason: reason}
}
