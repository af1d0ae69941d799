package intake

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestFit(t *testing.T) {
	cases := []struct{ w, h, ww, wh int }{
		{1600, 1200, 800, 600},
		{1200, 1600, 600, 800},
		{640, 480, 640, 480},
		{4000, 10, 800, 2},
		{800, 800, 800, 800},
	}
	for _, c := range cases {
		gw, gh := Fit(c.w, c.h, 800)
		if gw != c.ww || gh != c.wh {
			t.Fatalf("Fit(%d,%d) = %d,%d want %d,%d", c.w, c.h, gw, gh, c.ww, c.wh)
		}
	}
}

func TestCompressScalesAndReencodes(t *testing.T) {
	res, ok := Compress(pngBytes(t, 1000, 500), "image/png", Options{})
	if !ok {
		t.Fatal("expected image to be accepted")
	}
	if !res.Compressed || res.MIMEType != "image/jpeg" {
		t.Fatalf("expected jpeg output, got %+v", res.MIMEType)
	}
	if res.Width != 800 || res.Height != 400 {
		t.Fatalf("unexpected size %dx%d", res.Width, res.Height)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("output not jpeg: %v", err)
	}
	if cfg.Width != 800 || cfg.Height != 400 {
		t.Fatalf("decoded size %dx%d", cfg.Width, cfg.Height)
	}
	if !strings.HasPrefix(res.DataURI(), "data:image/jpeg;base64,") {
		t.Fatalf("unexpected data uri prefix")
	}
}

func TestCompressIgnoresNonImages(t *testing.T) {
	if _, ok := Compress([]byte("%PDF-1.4"), "application/pdf", Options{}); ok {
		t.Fatal("pdf must be ignored")
	}
}

func TestCompressFallsBackOnUndecodable(t *testing.T) {
	raw := []byte("not really a jpeg")
	res, ok := Compress(raw, "image/jpeg", Options{})
	if !ok {
		t.Fatal("image content type should be accepted")
	}
	if res.Compressed {
		t.Fatal("expected fallback")
	}
	if !bytes.Equal(res.Data, raw) || res.MIMEType != "image/jpeg" || res.FallbackReason == "" {
		t.Fatalf("fallback must pass original bytes through: %+v", res)
	}
}
