package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	mime, cfg, err := Inspect(encodePNG(t, 40, 20))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if mime != MIMEPNG || cfg.Width != 40 || cfg.Height != 20 {
		t.Fatalf("got %s %dx%d", mime, cfg.Width, cfg.Height)
	}

	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil)
	if mime, _, err := Inspect(buf.Bytes()); err != nil || mime != MIMEJPEG {
		t.Fatalf("jpeg inspect = %s, %v", mime, err)
	}
}

func TestInspectRejects(t *testing.T) {
	if _, _, err := Inspect(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("empty: %v", err)
	}
	if _, _, err := Inspect([]byte("GIF89a......")); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("gif: %v", err)
	}
	truncated := encodePNG(t, 4, 4)[:12]
	if _, _, err := Inspect(truncated); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("truncated: %v", err)
	}
}

func TestDownscale(t *testing.T) {
	small := encodePNG(t, 100, 50)
	out, err := Downscale(small, 200)
	if err != nil || !bytes.Equal(out, small) {
		t.Fatalf("small image should pass through unchanged: %v", err)
	}

	out, err = Downscale(encodePNG(t, 400, 100), 200)
	if err != nil {
		t.Fatalf("downscale: %v", err)
	}
	_, cfg, err := Inspect(out)
	if err != nil || cfg.Width != 200 || cfg.Height != 50 {
		t.Fatalf("downscaled to %dx%d (%v)", cfg.Width, cfg.Height, err)
	}
}

func TestExtension(t *testing.T) {
	if Extension(MIMEJPEG) != "jpg" || Extension(MIMEWebP) != "webp" || Extension("") != "png" {
		t.Fatalf("unexpected extensions")
	}
}
