package audiofifo

import (
	"testing"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

func oneMsFrame(pts int64, rate, channels int, value float32) *mediatypes.AudioFrame {
	perMs := rate / 1000
	samples := make([][]float32, channels)
	for c := range samples {
		samples[c] = make([]float32, perMs)
		for i := range samples[c] {
			samples[c][i] = value
		}
	}
	return &mediatypes.AudioFrame{
		PTSMs: pts, SampleRate: rate, Channels: channels,
		SampleCount: perMs, Samples: samples,
	}
}

func TestRoundTripFrameCount(t *testing.T) {
	const rate = 48000
	const frameSize = 1024
	c := New(Config{Channels: 1, Rate: rate, FrameSize: frameSize})

	const n = 5
	totalMs := n * frameSize * 1000 / rate
	for ms := int64(0); ms < int64(totalMs)+1; ms++ {
		_ = c.Consume(oneMsFrame(ms, rate, 1, 0.1))
	}

	got := 0
	var lastPts int64 = -1
	for {
		f, ok := c.Next()
		if !ok {
			break
		}
		wantPts := int64(got) * frameSize
		if f.PTSStream != wantPts {
			t.Fatalf("frame %d: pts = %d, want %d", got, f.PTSStream, wantPts)
		}
		if f.SampleCount != frameSize {
			t.Fatalf("frame %d: SampleCount = %d, want %d", got, f.SampleCount, frameSize)
		}
		lastPts = f.PTSStream
		got++
	}
	if got < n {
		t.Fatalf("got %d frames, want at least %d", got, n)
	}
	_ = lastPts
}

func TestInvalidFormatRejected(t *testing.T) {
	c := New(Config{Channels: 1, Rate: 48000, FrameSize: 1024})
	if err := c.Consume(oneMsFrame(0, 44100, 1, 0.1)); err != ErrInvalidFormat {
		t.Fatalf("got %v, want ErrInvalidFormat", err)
	}
}

func TestNeedMoreUntilFull(t *testing.T) {
	c := New(Config{Channels: 1, Rate: 1000, FrameSize: 100})
	_ = c.Consume(oneMsFrame(0, 1000, 1, 0.5))
	if _, ok := c.Next(); ok {
		t.Fatalf("expected NeedMore with only 1 sample buffered")
	}
}
