package archivemixer

import (
	"testing"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

func testConfig() Config {
	return Config{
		MinBufferMS:    2000,
		VideoFPSOut:    30,
		VideoTimeBase:  1000,
		AudioRateOut:   48000,
		AudioChannels:  1,
		AudioFrameSize: 1024,
	}
}

func TestMergePrefersEarlierRealTime(t *testing.T) {
	m := New(testConfig())
	// video head at pts_ms 500, audio head at stream-pts 48000 (= 1000ms)
	m.videoQueue.Set(500, &mediatypes.VideoFrame{PTSMs: 500})
	m.audioQueue.Set(48000, &mediatypes.OutputAudioFrame{PTSStream: 48000})

	vf, af, kind, ok := m.Next()
	if !ok {
		t.Fatalf("expected a frame")
	}
	if kind != mediatypes.KindVideo || vf == nil || af != nil {
		t.Fatalf("expected video frame to win (500ms < 1000ms), got kind=%v", kind)
	}
}

func TestMergeTiesPreferAudio(t *testing.T) {
	m := New(testConfig())
	// audio at stream-pts 24000 (=500ms) vs video at 500ms: audio wins ties.
	m.videoQueue.Set(500, &mediatypes.VideoFrame{PTSMs: 500})
	m.audioQueue.Set(24000, &mediatypes.OutputAudioFrame{PTSStream: 24000})

	_, af, kind, ok := m.Next()
	if !ok || kind != mediatypes.KindAudio || af == nil {
		t.Fatalf("expected audio to win the tie, got kind=%v", kind)
	}
}

func TestHasNextRequiresBothQueues(t *testing.T) {
	m := New(testConfig())
	if m.HasNext() {
		t.Fatalf("expected HasNext() false when both queues empty")
	}
	m.videoQueue.Set(0, &mediatypes.VideoFrame{PTSMs: 0})
	if m.HasNext() {
		t.Fatalf("expected HasNext() false with only video queued")
	}
	m.audioQueue.Set(0, &mediatypes.OutputAudioFrame{PTSStream: 0})
	if !m.HasNext() {
		t.Fatalf("expected HasNext() true with both queues non-empty")
	}
}

func TestConsumeVideoPrimesInitialTimestamp(t *testing.T) {
	m := New(testConfig())
	m.ConsumeVideo(&mediatypes.VideoFrame{Width: 1, Height: 1}, 5000)
	if !m.haveInitial || m.initialTimestampMs != 5000 {
		t.Fatalf("expected initial timestamp to be primed to 5000, got %d (haveInitial=%v)",
			m.initialTimestampMs, m.haveInitial)
	}
	if m.videoQueue.Len() == 0 {
		t.Fatalf("expected at least one resampled tick in the video queue")
	}
}

func TestNextWithheldUntilBothQueuesReady(t *testing.T) {
	m := New(testConfig())
	m.videoQueue.Set(500, &mediatypes.VideoFrame{PTSMs: 500})

	if _, _, _, ok := m.Next(); ok {
		t.Fatalf("expected Next() to withhold a video-only frame while Primed")
	}
}

func TestInterruptFlushesRemainingQueueAlone(t *testing.T) {
	m := New(testConfig())
	m.videoQueue.Set(500, &mediatypes.VideoFrame{PTSMs: 500})
	m.videoQueue.Set(533, &mediatypes.VideoFrame{PTSMs: 533})

	if m.HasNext() {
		t.Fatalf("expected HasNext() false before Interrupt with only video queued")
	}

	m.Interrupt()
	if !m.HasNext() {
		t.Fatalf("expected HasNext() true after Interrupt with video still queued")
	}

	var got int
	for m.HasNext() {
		_, _, kind, ok := m.Next()
		if !ok {
			break
		}
		if kind != mediatypes.KindVideo {
			t.Fatalf("expected only video frames during drain, got %v", kind)
		}
		got++
	}
	if got != 2 {
		t.Fatalf("expected drain to flush both queued video frames, got %d", got)
	}
	if m.HasNext() {
		t.Fatalf("expected HasNext() false once drained")
	}
}

func TestConsumeAudioBeforeVideoIsNoop(t *testing.T) {
	m := New(testConfig())
	m.ConsumeAudio("/does/not/matter", 1000, "sub-1")
	if m.audioQueue.Len() != 0 {
		t.Fatalf("expected ConsumeAudio before any video frame to be a no-op")
	}
}
