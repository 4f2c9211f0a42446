package audiomixer

import (
	"testing"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

func constFrame(pts int64, rate, channels, durationMs int, value float32) *mediatypes.AudioFrame {
	perMs := rate / 1000
	n := perMs * durationMs
	samples := make([][]float32, channels)
	for c := range samples {
		samples[c] = make([]float32, n)
		for i := range samples[c] {
			samples[c][i] = value
		}
	}
	return &mediatypes.AudioFrame{
		PTSMs:       pts,
		SampleRate:  rate,
		Channels:    channels,
		SampleCount: n,
		Samples:     samples,
	}
}

func TestSingleSourceMonotonicStep(t *testing.T) {
	m := New()
	if err := m.Consume(constFrame(0, 1000, 1, 20, 0.1)); err != nil {
		t.Fatalf("Consume: %v", err)
	}

	var lastPts int64 = -1
	count := 0
	for {
		f, ok := m.Next()
		if !ok {
			break
		}
		if lastPts >= 0 && f.PTSMs != lastPts+1 {
			t.Fatalf("pts jumped from %d to %d", lastPts, f.PTSMs)
		}
		lastPts = f.PTSMs
		count++
	}
	if count != 20 {
		t.Fatalf("got %d frames, want 20", count)
	}
}

func TestTwoOverlappingSourcesSumAndClip(t *testing.T) {
	// sample rate chosen small so the test frame math is easy to read.
	// 0.6 + 0.6 = 1.2, which is strictly > 1 and so actually exercises the
	// hard-clip path in the overlap region; 0.5 + 0.5 lands exactly on the
	// clip threshold and would never increment ClipEvents.
	const rate = 1000
	m := New()

	// Source A: ms [0,100) at 0.6
	if err := m.Consume(constFrame(0, rate, 1, 100, 0.6)); err != nil {
		t.Fatalf("Consume A: %v", err)
	}
	// Source B: ms [50,150) at 0.6
	if err := m.Consume(constFrame(50, rate, 1, 100, 0.6)); err != nil {
		t.Fatalf("Consume B: %v", err)
	}

	for ms := int64(0); ms < 150; ms++ {
		f, ok := m.Next()
		if !ok {
			t.Fatalf("expected frame at ms %d, got none", ms)
		}
		want := float32(0.6)
		if ms >= 50 && ms < 100 {
			want = 1.0
		}
		got := f.Samples[0][0]
		if got != want {
			t.Fatalf("ms %d: got %v want %v", ms, got, want)
		}
	}
	if m.ClipEvents == 0 {
		t.Fatalf("expected at least one clip event in the overlap region")
	}
}

func TestFormatMismatchRejected(t *testing.T) {
	m := New()
	if err := m.Consume(constFrame(0, 48000, 2, 10, 0.1)); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := m.Consume(constFrame(10, 44100, 2, 10, 0.1)); err != ErrFormatMismatch {
		t.Fatalf("got err %v, want ErrFormatMismatch", err)
	}
}

func TestLateArrivalDropped(t *testing.T) {
	m := New()
	_ = m.Consume(constFrame(0, 1000, 1, 10, 0.2))
	for i := 0; i < 6; i++ {
		if _, ok := m.Next(); !ok {
			t.Fatalf("expected frame %d", i)
		}
	}
	// last emitted pts is 5; this late frame touches ms [3,8)
	late := constFrame(3, 1000, 1, 5, 0.9)
	if err := m.Consume(late); err != nil {
		t.Fatalf("Consume late: %v", err)
	}
	if m.LateArrivals == 0 {
		t.Fatalf("expected LateArrivals to be incremented")
	}
}
