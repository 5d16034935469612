// Package imaging sniffs, decodes and downscales the raster formats the pipeline accepts.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWebP = "image/webp"
)

var (
	ErrEmpty       = errors.New("imaging: empty image data")
	ErrUnsupported = errors.New("imaging: unsupported image type")
	ErrCorrupt     = errors.New("imaging: undecodable image")
)

// Sniff identifies the format from magic bytes.
func Sniff(data []byte) (string, error) {
	switch {
	case len(data) == 0:
		return "", ErrEmpty
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return MIMEPNG, nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return MIMEJPEG, nil
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return MIMEWebP, nil
	default:
		return "", ErrUnsupported
	}
}

// Extension returns the file extension, without dot, for a supported MIME type.
func Extension(mime string) string {
	switch mime {
	case MIMEJPEG:
		return "jpg"
	case MIMEWebP:
		return "webp"
	default:
		return "png"
	}
}

// Inspect sniffs data and decodes only its header, returning the MIME type and size.
func Inspect(data []byte) (string, image.Config, error) {
	mime, err := Sniff(data)
	if err != nil {
		return "", image.Config{}, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", image.Config{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", image.Config{}, fmt.Errorf("%w: zero dimensions", ErrCorrupt)
	}
	return mime, cfg, nil
}

// Downscale re-encodes data as PNG so its longest side is at most maxSide. Images that
// already fit are returned unchanged.
func Downscale(data []byte, maxSide int) ([]byte, error) {
	_, cfg, err := Inspect(data)
	if err != nil {
		return nil, err
	}
	longest := max(cfg.Width, cfg.Height)
	if maxSide <= 0 || longest <= maxSide {
		return data, nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	scale := float64(maxSide) / float64(longest)
	w := max(1, int(float64(cfg.Width)*scale))
	h := max(1, int(float64(cfg.Height)*scale))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode downscaled image: %w", err)
	}
	return buf.Bytes(), nil
}
