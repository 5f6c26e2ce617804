// Package imaging validates and normalizes photos before they enter the
// capture flow or get shipped to a vision model.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxBytes     = 20 << 20
	DefaultMaxDimension = 4096

	// DefaultDownscaleDimension is the long-edge cap applied before a photo
	// is sent to a model; larger images waste tokens without helping.
	DefaultDownscaleDimension = 2048

	jpegQuality = 85
)

var (
	ErrEmpty             = errors.New("image data is empty")
	ErrTooLarge          = errors.New("image file exceeds size limit")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrDimensions        = errors.New("image dimensions exceed limit")
)

// Limits bounds what uploads are accepted. Zero fields take the defaults.
type Limits struct {
	MaxBytes     int64
	MaxDimension int
}

func (l Limits) normalized() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	if l.MaxDimension <= 0 {
		l.MaxDimension = DefaultMaxDimension
	}
	return l
}

// Info describes a validated image.
type Info struct {
	Width  int
	Height int
	Format string
	MIME   string
}

// allowedImageTypes is the set of MIME types accepted for photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniff spec (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// sniffMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func sniffMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// Validate checks format, byte size and pixel dimensions without decoding
// full pixel data. The typed errors let callers report the specific reason.
func Validate(data []byte, limits Limits) (Info, error) {
	limits = limits.normalized()
	if len(data) == 0 {
		return Info{}, ErrEmpty
	}
	if int64(len(data)) > limits.MaxBytes {
		return Info{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	mime, ok := sniffMIME(data)
	if !ok {
		return Info{}, ErrUnsupportedFormat
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if cfg.Width > limits.MaxDimension || cfg.Height > limits.MaxDimension {
		return Info{}, fmt.Errorf("%w: %dx%d", ErrDimensions, cfg.Width, cfg.Height)
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: format, MIME: mime}, nil
}

// Downscale re-encodes the image as JPEG when its long edge exceeds maxDim,
// preserving aspect ratio. Images already within bounds pass through with
// their original bytes and MIME type. The returned string is the MIME type
// of the returned bytes.
func Downscale(data []byte, maxDim int) ([]byte, string, error) {
	if maxDim <= 0 {
		maxDim = DefaultDownscaleDimension
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		mime, ok := sniffMIME(data)
		if !ok {
			return nil, "", ErrUnsupportedFormat
		}
		return data, mime, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	w, h := fitWithin(cfg.Width, cfg.Height, maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// fitWithin scales (w, h) down so the long edge equals maxDim, never
// returning a zero dimension for extreme aspect ratios.
func fitWithin(w, h, maxDim int) (int, int) {
	if w >= h {
		nh := h * maxDim / w
		if nh < 1 {
			nh = 1
		}
		return maxDim, nh
	}
	nw := w * maxDim / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDim
}
