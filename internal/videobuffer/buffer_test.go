package videobuffer

import (
	"testing"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

func frameAt(pts int64, tag byte) *mediatypes.VideoFrame {
	return &mediatypes.VideoFrame{PTSMs: pts, Width: 1, Height: 1, Pixels: []byte{tag}}
}

func TestSampleAndHold(t *testing.T) {
	// fps=30 -> period ~33ms, matching S3 in the design notes.
	//
	// True sample-and-hold: the tick at pts p gets the input with the
	// largest pts <= p. Inputs arrive a@0, b@50, c@200, and Consume(c@200)
	// only walks the catch-up loop up to (not through) c's own pts, so
	// ticks 66..198 (all < 200, and all >= b's pts of 50) are b, not c;
	// c itself isn't due until tick 231, which isn't unlocked until a
	// later input arrives at or past that pts.
	b := New(33)

	b.Consume(frameAt(0, 'a'))
	b.Consume(frameAt(50, 'b'))
	b.Consume(frameAt(200, 'c'))

	wantPts := []int64{0, 33, 66, 99, 132, 165, 198}
	wantTag := []byte{'a', 'a', 'b', 'b', 'b', 'b', 'b'}

	for i, wp := range wantPts {
		f, ok := b.Next()
		if !ok {
			t.Fatalf("frame %d: expected a frame, got none", i)
		}
		if f.PTSMs != wp {
			t.Fatalf("frame %d: pts = %d, want %d", i, f.PTSMs, wp)
		}
		if f.Pixels[0] != wantTag[i] {
			t.Fatalf("frame %d: tag = %q, want %q", i, f.Pixels[0], wantTag[i])
		}
	}
	if b.HasNext() {
		t.Fatalf("expected queue to be drained before c's tick is unlocked")
	}

	// A later input past tick 231 finally unlocks c's own tick, still
	// holding c (not the new input) since 231 < 260.
	b.Consume(frameAt(260, 'd'))
	f, ok := b.Next()
	if !ok {
		t.Fatalf("expected tick 231 to be unlocked")
	}
	if f.PTSMs != 231 || f.Pixels[0] != 'c' {
		t.Fatalf("tick 231: got pts=%d tag=%q, want pts=231 tag='c'", f.PTSMs, f.Pixels[0])
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	b := New(10)
	src := frameAt(0, 'x')
	b.Consume(src)
	out, _ := b.Next()
	src.Pixels[0] = 'z'
	if out.Pixels[0] != 'x' {
		t.Fatalf("output frame aliased the input frame's buffer")
	}
}
