// Package imaging shrinks proof photos before they are stored.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

const (
	DefaultMaxEdge = 1200
	DefaultQuality = 80

	// MaxSourcePixels and MaxSourceEdge bound the decoded size of an upload.
	// A few hundred kilobytes of PNG can describe a gigabyte of pixels.
	MaxSourcePixels = 40_000_000
	MaxSourceEdge   = 12_000
)

var (
	ErrNotAnImage    = errors.New("file is not a supported image")
	ErrImageTooLarge = errors.New("image dimensions are too large")
)

// Downscale decodes a JPEG, PNG or GIF image, fits its longest edge into
// maxEdge keeping the aspect ratio, and re-encodes it as JPEG. Smaller images
// are only re-encoded.
func Downscale(r io.Reader, maxEdge, quality int) ([]byte, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	// The header is read through a tee so the full decode can replay it.
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	if err := checkSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	w, h := Fit(src.Bounds().Dx(), src.Bounds().Dy(), maxEdge)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == src.Bounds().Dx() && h == src.Bounds().Dy() {
		draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func checkSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: empty image", ErrNotAnImage)
	}
	if w > MaxSourceEdge || h > MaxSourceEdge || int64(w)*int64(h) > MaxSourcePixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, w, h)
	}
	return nil
}

// Fit returns the size of a w x h image scaled so that neither edge exceeds
// maxEdge. It never upscales.
func Fit(w, h, maxEdge int) (int, int) {
	if w <= maxEdge && h <= maxEdge {
		return w, h
	}
	if w >= h {
		nh := h * maxEdge / w
		if nh < 1 {
			nh = 1
		}
		return maxEdge, nh
	}
	nw := w * maxEdge / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxEdge
}
