package encoder_test

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/pixelserve/pixelserve/adapters/encoder"
	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
)

func testRaster(w, h int) *core.RasterImage {
	return &core.RasterImage{Image: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func TestJPEG_Encode(t *testing.T) {
	e := encoder.NewJPEG(85)
	data, err := e.Encode(context.Background(), testRaster(16, 16), core.EncodeOptions{Quality: 60})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not valid jpeg: %v", err)
	}
	if img.Bounds().Dx() != 16 {
		t.Errorf("width: got %d, want 16", img.Bounds().Dx())
	}
	if !e.CanEncode(core.FormatJPEG) || e.CanEncode(core.FormatPNG) {
		t.Error("CanEncode must accept jpeg only")
	}
}

func TestJPEG_QualityAffectsSize(t *testing.T) {
	e := encoder.NewJPEG(85)
	raster := &core.RasterImage{Image: noisyImage(64, 64)}

	low, err := e.Encode(context.Background(), raster, core.EncodeOptions{Quality: 10})
	if err != nil {
		t.Fatalf("Encode low: %v", err)
	}
	high, err := e.Encode(context.Background(), raster, core.EncodeOptions{Quality: 95})
	if err != nil {
		t.Fatalf("Encode high: %v", err)
	}
	if len(low) >= len(high) {
		t.Errorf("quality 10 (%dB) should be smaller than quality 95 (%dB)", len(low), len(high))
	}
}

func TestPNG_Encode(t *testing.T) {
	e := encoder.NewPNG()
	data, err := e.Encode(context.Background(), testRaster(16, 16), core.EncodeOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("output is not valid png: %v", err)
	}
}

func TestEncode_NilImage(t *testing.T) {
	for name, e := range map[string]core.Encoder{
		"jpeg": encoder.NewJPEG(85),
		"png":  encoder.NewPNG(),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.Encode(context.Background(), &core.RasterImage{}, core.EncodeOptions{})
			if !apperrors.IsKind(err, apperrors.KindEncode) {
				t.Errorf("kind: got %v, want encode", err)
			}
		})
	}
}

func noisyImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	seed := uint32(12345)
	for i := range img.Pix {
		seed = seed*1664525 + 1013904223
		img.Pix[i] = uint8(seed >> 24)
	}
	return img
}
