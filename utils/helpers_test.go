package utils_test

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/pixelserve/pixelserve/utils"
)

func TestDetectFormat(t *testing.T) {
	var jpegBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, image.NewRGBA(image.Rect(0, 0, 4, 4)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", jpegBuf.Bytes(), "jpeg"},
		{"png", pngBuf.Bytes(), "png"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"avif", append([]byte{0, 0, 0, 0x1c}, []byte("ftypavif\x00\x00\x00\x00")...), "avif"},
		{"avis", append([]byte{0, 0, 0, 0x1c}, []byte("ftypavis\x00\x00\x00\x00")...), "avif"},
		{"garbage", []byte("definitely not an image"), "unknown"},
		{"short", []byte{0xFF}, "unknown"},
		{"empty", nil, "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := utils.DetectFormat(tc.data); got != tc.want {
				t.Errorf("DetectFormat: got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSniffDimensions(t *testing.T) {
	var jpegBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, image.NewRGBA(image.Rect(0, 0, 20, 30)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, image.NewRGBA(image.Rect(0, 0, 7, 5))); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	cases := []struct {
		name         string
		data         []byte
		wantW, wantH int
	}{
		{"jpeg", jpegBuf.Bytes(), 20, 30},
		{"png", pngBuf.Bytes(), 7, 5},
		{"garbage", []byte("not an image"), 0, 0},
		{"empty", nil, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := utils.SniffDimensions(tc.data)
			if w != tc.wantW || h != tc.wantH {
				t.Errorf("SniffDimensions: got %dx%d, want %dx%d", w, h, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestScaleDimensions(t *testing.T) {
	cases := []struct {
		name                 string
		srcW, srcH           int
		targetW, targetH     int
		wantW, wantH         int
	}{
		{"width only", 800, 600, 400, 0, 400, 300},
		{"height only", 800, 600, 0, 300, 400, 300},
		{"both given", 800, 600, 100, 100, 100, 100},
		{"neither", 800, 600, 0, 0, 800, 600},
		{"extreme shrink clamps to 1", 10000, 10, 1, 0, 1, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, h := utils.ScaleDimensions(tc.srcW, tc.srcH, tc.targetW, tc.targetH)
			if w != tc.wantW || h != tc.wantH {
				t.Errorf("ScaleDimensions: got %dx%d, want %dx%d", w, h, tc.wantW, tc.wantH)
			}
		})
	}
}

func TestCloneBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	got := utils.CloneBytes(src)
	src[0] = 9
	if got[0] != 1 {
		t.Error("CloneBytes must not alias the source buffer")
	}
}

func TestLimitedReader(t *testing.T) {
	lr := &utils.LimitedReader{R: bytes.NewReader(make([]byte, 100)), Max: 10}
	buf, err := utils.DrainReader(context.Background(), lr, 4)
	if buf != nil {
		defer utils.ReleaseBuffer(buf)
	}
	if err == nil {
		t.Fatal("DrainReader past Max should fail")
	}
}
