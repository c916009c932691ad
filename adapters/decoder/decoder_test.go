package decoder_test

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/pixelserve/pixelserve/adapters/decoder"
	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestJPEG_Decode(t *testing.T) {
	d := decoder.NewJPEG()
	raster, err := d.Decode(context.Background(), bytes.NewReader(encodeJPEG(t, 20, 10)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if raster.Width() != 20 || raster.Height() != 10 {
		t.Errorf("dimensions: got %dx%d, want 20x10", raster.Width(), raster.Height())
	}
	if !d.CanDecode(core.FormatJPEG) || d.CanDecode(core.FormatPNG) {
		t.Error("CanDecode must accept jpeg only")
	}
}

func TestPNG_Decode(t *testing.T) {
	d := decoder.NewPNG()
	raster, err := d.Decode(context.Background(), bytes.NewReader(encodePNG(t, 8, 8)))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if raster.Width() != 8 || raster.Height() != 8 {
		t.Errorf("dimensions: got %dx%d, want 8x8", raster.Width(), raster.Height())
	}
}

func TestDecode_Corrupt(t *testing.T) {
	for name, d := range map[string]core.Decoder{
		"jpeg": decoder.NewJPEG(),
		"png":  decoder.NewPNG(),
		"webp": decoder.NewWebP(),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := d.Decode(context.Background(), bytes.NewReader([]byte("garbage")))
			if !apperrors.IsKind(err, apperrors.KindDecode) {
				t.Errorf("kind: got %v, want decode", err)
			}
		})
	}
}
