// Package imaging normalizes frames handed over by a capture source into the
// JPEG blobs the upload service expects.
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

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxWidth  = 1280
	DefaultMaxHeight = 720
	DefaultQuality   = 90

	CameraFileName  = "camera-capture.jpg"
	JPEGContentType = "image/jpeg"
)

var ErrEmptyFrame = errors.New("empty frame")

// Decode reads a frame in any registered format (JPEG, PNG, GIF, BMP, TIFF, WebP).
func Decode(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode frame: %w", err)
	}
	return img, format, nil
}

// Fit scales frame down so that it fits into maxW x maxH keeping the aspect
// ratio. Smaller frames are returned unchanged.
func Fit(frame image.Image, maxW, maxH int) image.Image {
	b := frame.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxW <= 0 || maxH <= 0 || (w <= maxW && h <= maxH) {
		return frame
	}

	nw, nh := maxW, h*maxW/w
	if nh > maxH {
		nw, nh = w*maxH/h, maxH
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), frame, b, draw.Over, nil)
	return dst
}

// EncodeJPEG encodes frame as a JPEG blob. Quality outside 1..100 falls back
// to DefaultQuality.
func EncodeJPEG(frame image.Image, quality int) ([]byte, error) {
	if frame == nil || frame.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

type Encoder struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

func NewEncoder(maxW, maxH, quality int) *Encoder {
	return &Encoder{MaxWidth: maxW, MaxHeight: maxH, Quality: quality}
}

// Encode fits and encodes a frame in one go.
func (e *Encoder) Encode(frame image.Image) ([]byte, error) {
	if frame == nil {
		return nil, ErrEmptyFrame
	}
	return EncodeJPEG(Fit(frame, e.MaxWidth, e.MaxHeight), e.Quality)
}
