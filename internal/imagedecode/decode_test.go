package imagedecode

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"
)

func makeTestPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeProducesExpectedPlaneSizes(t *testing.T) {
	raw := makeTestPNG(t, 8, 4, color.RGBA{R: 10, G: 200, B: 50, A: 255})

	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Width != 8 || f.Height != 4 {
		t.Fatalf("got %dx%d, want 8x4", f.Width, f.Height)
	}
	wantLen := 8*4 + 2*(4*2)
	if len(f.Pixels) != wantLen {
		t.Fatalf("got %d pixel bytes, want %d", len(f.Pixels), wantLen)
	}
}

func TestDecodeOddDimensionsAreClamped(t *testing.T) {
	raw := makeTestPNG(t, 7, 5, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Width != 6 || f.Height != 4 {
		t.Fatalf("got %dx%d, want 6x4 after clamping to even", f.Width, f.Height)
	}
}

func TestPoolSubmitReturnsResult(t *testing.T) {
	raw := makeTestPNG(t, 4, 2, color.RGBA{R: 0, G: 0, B: 0, A: 255})
	pool := NewPool(2)
	defer pool.Close()

	resCh := pool.Submit(raw, 42)
	select {
	case res := <-resCh:
		if res.Err != nil {
			t.Fatalf("Submit result error: %v", res.Err)
		}
		if res.Frame.PTSMs != 42 {
			t.Fatalf("got PTSMs=%d, want 42", res.Frame.PTSMs)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pool did not produce a result in time")
	}
}
