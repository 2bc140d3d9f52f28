package reassembly

import (
	"bytes"
	"testing"

	"github.com/chronologos/rscreen/internal/protocol"
)

func hdr(off, length, total int) protocol.FragmentHeader {
	return protocol.FragmentHeader{
		Offset:         int32(off),
		FragmentLength: int32(length),
		TotalSize:      int32(total),
	}
}

// pieces splits frame into chunk-sized fragments in offset order.
func pieces(frame []byte, chunk int) []fragment {
	var out []fragment
	for off := 0; off < len(frame); off += chunk {
		end := min(off+chunk, len(frame))
		out = append(out, fragment{h: hdr(off, end-off, len(frame)), p: frame[off:end]})
	}
	return out
}

type fragment struct {
	h protocol.FragmentHeader
	p []byte
}

func testFrame(n int) []byte {
	f := make([]byte, n)
	for i := range f {
		f[i] = byte(i * 7)
	}
	return f
}

func TestInOrderProducesOneFrame(t *testing.T) {
	r := New(CompletionCounter, 0)
	frame := testFrame(1000)
	frags := pieces(frame, 300)

	completed := 0
	for i, f := range frags {
		res := r.Add(f.h, f.p)
		if i < len(frags)-1 {
			if res.Status != Accepted {
				t.Fatalf("fragment %d: expected Accepted, got %s/%s", i, res.Status, res.Reason)
			}
			continue
		}
		if res.Status != Completed {
			t.Fatalf("last fragment: expected Completed, got %s/%s", res.Status, res.Reason)
		}
		completed++
		if !bytes.Equal(res.Frame, frame) {
			t.Fatal("completed frame differs from concatenated payloads")
		}
	}
	if completed != 1 {
		t.Fatalf("expected 1 completed frame, got %d", completed)
	}
	if r.State().Accumulating {
		t.Fatal("buffer should be retired after completion")
	}
}

func TestSingleFragmentFrame(t *testing.T) {
	r := New(CompletionCounter, 0)
	res := r.Add(hdr(0, 5, 5), []byte("hello"))
	if res.Status != Completed || string(res.Frame) != "hello" {
		t.Fatalf("expected completed 'hello', got %s %q", res.Status, res.Frame)
	}
}

func TestOutOfOrderCounterCompletes(t *testing.T) {
	r := New(CompletionCounter, 0)
	frame := testFrame(900)
	frags := pieces(frame, 300)

	// offset 0 must arrive first to start the frame; the rest may shuffle.
	order := []int{0, 2, 1}
	var res Result
	for _, i := range order {
		res = r.Add(frags[i].h, frags[i].p)
	}
	if res.Status != Completed {
		t.Fatalf("expected Completed, got %s", res.Status)
	}
	if !bytes.Equal(res.Frame, frame) {
		t.Fatal("frame mismatch")
	}
}

func TestLegacyCompletionFiresEarly(t *testing.T) {
	r := New(CompletionLegacy, 0)
	frame := testFrame(900)
	frags := pieces(frame, 300)

	r.Add(frags[0].h, frags[0].p)
	res := r.Add(frags[2].h, frags[2].p) // positional last, middle still missing
	if res.Status != Completed {
		t.Fatalf("legacy mode should complete on positional last fragment, got %s", res.Status)
	}
	if bytes.Equal(res.Frame, frame) {
		t.Fatal("frame should have a hole where fragment 1 was")
	}
}

func TestCounterWaitsForMissingFragment(t *testing.T) {
	r := New(CompletionCounter, 0)
	frags := pieces(testFrame(900), 300)

	r.Add(frags[0].h, frags[0].p)
	res := r.Add(frags[2].h, frags[2].p)
	if res.Status != Accepted {
		t.Fatalf("counter mode must not complete with a hole, got %s", res.Status)
	}
	st := r.State()
	if st.BytesReceived != 600 || st.TotalSize != 900 {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestNewFrameDiscardsPartial(t *testing.T) {
	r := New(CompletionCounter, 0)
	first := testFrame(900)
	second := bytes.Repeat([]byte{0xAB}, 600)

	f1 := pieces(first, 300)
	r.Add(f1[0].h, f1[0].p)
	r.Add(f1[1].h, f1[1].p)

	f2 := pieces(second, 300)
	res := r.Add(f2[0].h, f2[0].p)
	if !res.Restarted {
		t.Fatal("expected Restarted when a new frame abandons a partial one")
	}
	if st := r.State(); st.BytesReceived != 300 || st.TotalSize != 600 {
		t.Fatalf("counter should reset on a new frame: %+v", st)
	}

	// Late tail of the first frame: wrong total, dropped.
	res = r.Add(f1[2].h, f1[2].p)
	if res.Status != Rejected || res.Reason != ReasonSizeMismatch {
		t.Fatalf("expected size mismatch, got %s/%s", res.Status, res.Reason)
	}

	res = r.Add(f2[1].h, f2[1].p)
	if res.Status != Completed {
		t.Fatalf("expected second frame to complete, got %s", res.Status)
	}
	if !bytes.Equal(res.Frame, second) {
		t.Fatal("completed frame must be the second one, never the partial first")
	}
}

func TestSizeMismatchLeavesCounter(t *testing.T) {
	r := New(CompletionCounter, 0)
	r.Add(hdr(0, 100, 400), make([]byte, 100))
	before := r.State()

	res := r.Add(hdr(100, 100, 500), make([]byte, 100))
	if res.Status != Rejected || res.Reason != ReasonSizeMismatch {
		t.Fatalf("expected size mismatch, got %s/%s", res.Status, res.Reason)
	}
	if r.State() != before {
		t.Fatalf("state changed: before %+v after %+v", before, r.State())
	}
}

func TestNoFrameRejected(t *testing.T) {
	r := New(CompletionCounter, 0)
	res := r.Add(hdr(300, 300, 900), make([]byte, 300))
	if res.Status != Rejected || res.Reason != ReasonNoFrame {
		t.Fatalf("expected no_frame, got %s/%s", res.Status, res.Reason)
	}
	if r.State().Accumulating {
		t.Fatal("rejected fragment must not start a frame")
	}
}

func TestOutOfBoundsNotCopied(t *testing.T) {
	r := New(CompletionCounter, 0)
	r.Add(hdr(0, 100, 300), make([]byte, 100))

	res := r.Add(hdr(250, 100, 300), bytes.Repeat([]byte{1}, 100))
	if res.Status != Rejected || res.Reason != ReasonOutOfBounds {
		t.Fatalf("expected out_of_bounds, got %s/%s", res.Status, res.Reason)
	}
	if st := r.State(); st.BytesReceived != 100 {
		t.Fatalf("counter must not move on rejection: %+v", st)
	}

	// Declared length beyond total with a short payload is also out of bounds.
	res = r.Add(hdr(250, 100, 300), make([]byte, 10))
	if res.Reason != ReasonOutOfBounds {
		t.Fatalf("expected out_of_bounds for declared length, got %s", res.Reason)
	}
}

func TestInvalidHeader(t *testing.T) {
	r := New(CompletionCounter, 0)
	for _, h := range []protocol.FragmentHeader{
		hdr(-1, 10, 100),
		hdr(0, -1, 100),
		hdr(0, 0, 0),
		hdr(0, 0, -5),
	} {
		res := r.Add(h, nil)
		if res.Status != Rejected || res.Reason != ReasonInvalidHeader {
			t.Fatalf("%+v: expected invalid_header, got %s/%s", h, res.Status, res.Reason)
		}
	}
	if r.State().Accumulating {
		t.Fatal("invalid headers must not start a frame")
	}
}

func TestTooLarge(t *testing.T) {
	r := New(CompletionCounter, 1024)
	res := r.Add(hdr(0, 10, 4096), make([]byte, 10))
	if res.Status != Rejected || res.Reason != ReasonTooLarge {
		t.Fatalf("expected too_large, got %s/%s", res.Status, res.Reason)
	}
	if r.State().Accumulating {
		t.Fatal("oversized frame must not allocate")
	}
}

func TestDuplicateNotCounted(t *testing.T) {
	r := New(CompletionCounter, 0)
	frags := pieces(testFrame(900), 300)

	r.Add(frags[0].h, frags[0].p)
	r.Add(frags[1].h, frags[1].p)
	res := r.Add(frags[1].h, frags[1].p)
	if !res.Duplicate || res.Status != Accepted {
		t.Fatalf("expected accepted duplicate, got %s dup=%v", res.Status, res.Duplicate)
	}
	if st := r.State(); st.BytesReceived != 600 {
		t.Fatalf("duplicate must not inflate the counter: %+v", st)
	}
	res = r.Add(frags[2].h, frags[2].p)
	if res.Status != Completed {
		t.Fatalf("expected Completed, got %s", res.Status)
	}
}

func TestCompletedFrameOwnedByCaller(t *testing.T) {
	r := New(CompletionCounter, 0)
	payload := []byte("abc")
	res := r.Add(hdr(0, 3, 3), payload)
	payload[0] = 'z'
	if string(res.Frame) != "abc" {
		t.Fatalf("frame must not alias the payload: %q", res.Frame)
	}

	// The next frame gets a fresh buffer.
	next := r.Add(hdr(0, 3, 3), []byte("xyz"))
	if string(res.Frame) != "abc" || string(next.Frame) != "xyz" {
		t.Fatalf("frames share storage: %q %q", res.Frame, next.Frame)
	}
}

func TestParseCompletionMode(t *testing.T) {
	for in, want := range map[string]CompletionMode{"": CompletionCounter, "counter": CompletionCounter, "legacy": CompletionLegacy} {
		got, err := ParseCompletionMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseCompletionMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseCompletionMode("eager"); err == nil {
		t.Fatal("expected error")
	}
}
