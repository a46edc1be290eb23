package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
	"pgregory.net/rapid"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func TestFit_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := rapid.IntRange(1, 400).Draw(t, "w")
		h := rapid.IntRange(1, 400).Draw(t, "h")
		maxW := rapid.IntRange(1, 200).Draw(t, "maxW")
		maxH := rapid.IntRange(1, 200).Draw(t, "maxH")

		out := Fit(image.NewRGBA(image.Rect(0, 0, w, h)), maxW, maxH).Bounds()

		if out.Dx() > maxW || out.Dy() > maxH {
			t.Fatalf("%dx%d into %dx%d produced %dx%d", w, h, maxW, maxH, out.Dx(), out.Dy())
		}
		if out.Dx() > w || out.Dy() > h {
			t.Fatalf("frame must never be upscaled: %dx%d -> %dx%d", w, h, out.Dx(), out.Dy())
		}
		if w <= maxW && h <= maxH && (out.Dx() != w || out.Dy() != h) {
			t.Fatalf("frame that fits must be unchanged: %dx%d -> %dx%d", w, h, out.Dx(), out.Dy())
		}
	})
}

func TestEncoderRoundTrip(t *testing.T) {
	enc := NewEncoder(64, 36, 80)
	data, err := enc.Encode(solid(128, 72))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	img, format, err := Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("expected jpeg, got %s", format)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 36 {
		t.Errorf("expected 64x36, got %v", img.Bounds())
	}
}

func TestDecodeRegisteredFormats(t *testing.T) {
	var pngBuf, bmpBuf bytes.Buffer
	if err := png.Encode(&pngBuf, solid(4, 4)); err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(&bmpBuf, solid(4, 4)); err != nil {
		t.Fatal(err)
	}

	for want, buf := range map[string]*bytes.Buffer{"png": &pngBuf, "bmp": &bmpBuf} {
		_, format, err := Decode(buf)
		if err != nil {
			t.Errorf("%s: decode failed: %v", want, err)
			continue
		}
		if format != want {
			t.Errorf("expected %s, got %s", want, format)
		}
	}

	if _, _, err := Decode(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("expected decode error for garbage input")
	}
}

func TestEncodeJPEGEmptyFrame(t *testing.T) {
	if _, err := EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 0, 0)), 90); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
	if _, err := NewEncoder(10, 10, 90).Encode(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Errorf("expected ErrEmptyFrame, got %v", err)
	}
}
