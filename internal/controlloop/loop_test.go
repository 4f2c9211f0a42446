package controlloop

import (
	"sync"
	"testing"
	"time"

	"github.com/e1z0/archivemixer/internal/mediatypes"
)

type fakeSource struct {
	mu    sync.Mutex
	items []mediatypes.Kind
}

func (f *fakeSource) push(k mediatypes.Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, k)
}

func (f *fakeSource) HasNext() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items) > 0
}

func (f *fakeSource) Next() (*mediatypes.VideoFrame, *mediatypes.OutputAudioFrame, mediatypes.Kind, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return nil, nil, 0, false
	}
	k := f.items[0]
	f.items = f.items[1:]
	if k == mediatypes.KindVideo {
		return &mediatypes.VideoFrame{}, nil, k, true
	}
	return nil, &mediatypes.OutputAudioFrame{}, k, true
}

func TestDrainsUntilQuietAfterInterrupt(t *testing.T) {
	src := &fakeSource{}
	for i := 0; i < 5; i++ {
		src.push(mediatypes.KindVideo)
	}

	l := New(Config{PollInterval: time.Millisecond, QuietCycleLimit: 5})
	l.Interrupt()

	var got int
	l.Run(src, func(v *mediatypes.VideoFrame, a *mediatypes.OutputAudioFrame, k mediatypes.Kind) {
		got++
	})

	if got != 5 {
		t.Fatalf("got %d emissions, want 5", got)
	}
	if l.Emitted() != 5 {
		t.Fatalf("Emitted() = %d, want 5", l.Emitted())
	}
}

func TestRunsUntilInterruptedWithNothingQueued(t *testing.T) {
	src := &fakeSource{}
	l := New(Config{PollInterval: time.Millisecond, QuietCycleLimit: 10000})

	done := make(chan struct{})
	go func() {
		l.Run(src, func(*mediatypes.VideoFrame, *mediatypes.OutputAudioFrame, mediatypes.Kind) {})
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	select {
	case <-done:
		t.Fatalf("loop exited before Interrupt with nothing queued")
	default:
	}
	l.Interrupt()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("loop did not terminate after interrupt")
	}
}
