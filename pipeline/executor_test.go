package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/pixelserve/pixelserve/adapters/decoder"
	"github.com/pixelserve/pixelserve/adapters/encoder"
	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
	"github.com/pixelserve/pixelserve/pipeline"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func newRedJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func newBluePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 50, G: 50, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func newExecutor(t *testing.T, limits core.Limits) *pipeline.Executor {
	t.Helper()
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(85))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	return pipeline.NewExecutor(reg, limits)
}

var relaxedLimits = core.Limits{MaxDimension: 4096, DefaultQuality: 85}

// ── Unit tests ────────────────────────────────────────────────────────────────

func TestExecute_Resize(t *testing.T) {
	e := newExecutor(t, relaxedLimits)
	src := newRedJPEG(t, 800, 600)

	d := core.Descriptor{Format: core.FormatJPEG, Width: 400}.Normalize(relaxedLimits)
	res, err := e.Execute(context.Background(), src, d)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Width != 400 || res.Height != 300 {
		t.Errorf("dimensions: got %dx%d, want 400x300", res.Width, res.Height)
	}
	if res.Format != core.FormatJPEG || res.ContentType != "image/jpeg" {
		t.Errorf("format: got %s (%s)", res.Format, res.ContentType)
	}
	if res.SourceFormat != core.FormatJPEG {
		t.Errorf("source format: got %s, want jpeg", res.SourceFormat)
	}
	if len(res.Bytes) == 0 {
		t.Error("encoded output is empty")
	}
}

func TestExecute_CoverProducesExactBox(t *testing.T) {
	e := newExecutor(t, relaxedLimits)
	src := newBluePNG(t, 200, 400)

	d := core.Descriptor{
		Format: core.FormatPNG, Width: 100, Height: 100, Fit: core.FitCover,
	}.Normalize(relaxedLimits)
	res, err := e.Execute(context.Background(), src, d)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Width != 100 || res.Height != 100 {
		t.Errorf("cover output: got %dx%d, want exactly 100x100", res.Width, res.Height)
	}

	decoded, err := png.Decode(bytes.NewReader(res.Bytes))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != 100 || b.Dy() != 100 {
		t.Errorf("decoded output: got %dx%d, want 100x100", b.Dx(), b.Dy())
	}
}

func TestExecute_FormatConversion(t *testing.T) {
	e := newExecutor(t, relaxedLimits)
	src := newRedJPEG(t, 64, 64)

	d := core.Descriptor{Format: core.FormatPNG}.Normalize(relaxedLimits)
	res, err := e.Execute(context.Background(), src, d)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(res.Bytes)); err != nil {
		t.Errorf("output is not a valid PNG: %v", err)
	}
	if res.SourceFormat != core.FormatJPEG {
		t.Errorf("source format: got %s, want jpeg", res.SourceFormat)
	}
}

func TestExecute_Deterministic(t *testing.T) {
	e := newExecutor(t, relaxedLimits)
	src := newRedJPEG(t, 300, 200)
	d := core.Descriptor{Format: core.FormatPNG, Width: 150}.Normalize(relaxedLimits)

	first, err := e.Execute(context.Background(), src, d)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	second, err := e.Execute(context.Background(), src, d)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !bytes.Equal(first.Bytes, second.Bytes) {
		t.Error("identical inputs must produce byte-identical outputs")
	}
}

func TestExecute_PassThrough(t *testing.T) {
	e := newExecutor(t, relaxedLimits)
	src := newBluePNG(t, 64, 64)

	// Same lossless container, no resize: bytes are passed through untouched.
	d := core.Descriptor{Format: core.FormatPNG}.Normalize(relaxedLimits)
	res, err := e.Execute(context.Background(), src, d)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !bytes.Equal(res.Bytes, src) {
		t.Error("lossless same-format request without resize should pass bytes through")
	}
	if res.Width != 64 || res.Height != 64 {
		t.Errorf("dimensions: got %dx%d, want 64x64", res.Width, res.Height)
	}
}

func TestExecute_PassThroughRejectsCorruptSource(t *testing.T) {
	e := newExecutor(t, relaxedLimits)

	// A valid PNG signature followed by junk: sniffs as PNG and would take
	// the pass-through path, but must fail decode instead of being served.
	src := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("definitely not png chunks")...)
	d := core.Descriptor{Format: core.FormatPNG}.Normalize(relaxedLimits)

	res, err := e.Execute(context.Background(), src, d)
	if err == nil {
		t.Fatalf("corrupt source must not be passed through; got %d bytes", len(res.Bytes))
	}
	if !apperrors.IsKind(err, apperrors.KindDecode) {
		t.Errorf("kind: got %s, want decode", apperrors.KindOf(err))
	}
}

func TestExecute_EmptyInput(t *testing.T) {
	e := newExecutor(t, relaxedLimits)
	d := core.Descriptor{Format: core.FormatPNG}.Normalize(relaxedLimits)

	_, err := e.Execute(context.Background(), nil, d)
	if !errors.Is(err, apperrors.ErrEmptyInput) {
		t.Errorf("want ErrEmptyInput, got %v", err)
	}
}

func TestExecute_GarbageInput(t *testing.T) {
	e := newExecutor(t, relaxedLimits)
	d := core.Descriptor{Format: core.FormatPNG}.Normalize(relaxedLimits)

	_, err := e.Execute(context.Background(), []byte("this is not an image at all"), d)
	if err == nil {
		t.Fatal("garbage input should fail")
	}
	if !apperrors.IsKind(err, apperrors.KindDecode) {
		t.Errorf("kind: got %s, want decode", apperrors.KindOf(err))
	}
}

func TestExecute_TruncatedImage(t *testing.T) {
	e := newExecutor(t, relaxedLimits)
	src := newRedJPEG(t, 100, 100)

	d := core.Descriptor{Format: core.FormatPNG}.Normalize(relaxedLimits)
	_, err := e.Execute(context.Background(), src[:len(src)/2], d)
	if err == nil {
		t.Fatal("truncated input should fail")
	}
	if !apperrors.IsKind(err, apperrors.KindDecode) {
		t.Errorf("kind: got %s, want decode", apperrors.KindOf(err))
	}
}

func TestExecute_SourceSizeGuard(t *testing.T) {
	limits := relaxedLimits
	limits.MaxSourceBytes = 10
	e := newExecutor(t, limits)

	d := core.Descriptor{Format: core.FormatPNG}.Normalize(limits)
	_, err := e.Execute(context.Background(), newBluePNG(t, 64, 64), d)
	if !errors.Is(err, apperrors.ErrSourceTooLarge) {
		t.Errorf("want ErrSourceTooLarge, got %v", err)
	}
	if !apperrors.IsKind(err, apperrors.KindResourceExhausted) {
		t.Errorf("kind: got %s, want resource_exhausted", apperrors.KindOf(err))
	}
}

func TestExecute_PixelGuard(t *testing.T) {
	limits := relaxedLimits
	limits.MaxPixels = 100 * 100
	e := newExecutor(t, limits)

	// Upscale past the pixel budget.
	d := core.Descriptor{
		Format: core.FormatPNG, Width: 2000, Height: 2000, Fit: core.FitStretch,
	}.Normalize(limits)
	_, err := e.Execute(context.Background(), newBluePNG(t, 64, 64), d)
	if !errors.Is(err, apperrors.ErrTooManyPixels) {
		t.Errorf("want ErrTooManyPixels, got %v", err)
	}
}

func TestExecute_UnsupportedTarget(t *testing.T) {
	e := newExecutor(t, relaxedLimits)

	// No AVIF encoder is registered.
	d := core.Descriptor{Format: core.FormatAVIF}.Normalize(relaxedLimits)
	_, err := e.Execute(context.Background(), newBluePNG(t, 32, 32), d)
	if !errors.Is(err, apperrors.ErrUnsupportedFormat) {
		t.Errorf("want ErrUnsupportedFormat, got %v", err)
	}
	if !apperrors.IsKind(err, apperrors.KindEncode) {
		t.Errorf("kind: got %s, want encode", apperrors.KindOf(err))
	}
}

// ── Hooks ─────────────────────────────────────────────────────────────────────

type recordingHook struct {
	mu     sync.Mutex
	stages []string
}

func (h *recordingHook) BeforeStage(_ context.Context, stage string) {}

func (h *recordingHook) AfterStage(_ context.Context, stage string, _ time.Duration, _ error) {
	h.mu.Lock()
	h.stages = append(h.stages, stage)
	h.mu.Unlock()
}

func TestExecute_HookOrder(t *testing.T) {
	e := newExecutor(t, relaxedLimits)
	hook := &recordingHook{}
	e.AddHook(hook)

	d := core.Descriptor{Format: core.FormatJPEG, Width: 50}.Normalize(relaxedLimits)
	if _, err := e.Execute(context.Background(), newRedJPEG(t, 100, 100), d); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []string{pipeline.StageDecode, pipeline.StageResize, pipeline.StageEncode}
	if len(hook.stages) != len(want) {
		t.Fatalf("stages: got %v, want %v", hook.stages, want)
	}
	for i := range want {
		if hook.stages[i] != want[i] {
			t.Errorf("stage %d: got %s, want %s", i, hook.stages[i], want[i])
		}
	}
}
