package watcher_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pixelserve/pixelserve/adapters/decoder"
	"github.com/pixelserve/pixelserve/adapters/encoder"
	"github.com/pixelserve/pixelserve/adapters/storage"
	"github.com/pixelserve/pixelserve/core"
	"github.com/pixelserve/pixelserve/pipeline"
	"github.com/pixelserve/pixelserve/watcher"
)

var watchLimits = core.Limits{MaxDimension: 4096, DefaultQuality: 85}

func newJPEGFile(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 200, B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func newTestExecutor(t *testing.T) *pipeline.Executor {
	t.Helper()
	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG(85))
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	return pipeline.NewExecutor(reg, watchLimits)
}

func newBackend(t *testing.T) *storage.Local {
	t.Helper()
	l, err := storage.NewLocal(t.TempDir(), 0o644)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func TestIngest(t *testing.T) {
	inputDir := t.TempDir()
	backend := newBackend(t)

	w, err := watcher.New(watcher.Config{
		InputDir:      inputDir,
		StorageFormat: core.FormatJPEG,
		Quality:       80,
	}, newTestExecutor(t), backend, watchLimits)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := newJPEGFile(t, inputDir, "portrait.jpg")
	if err := w.Ingest(context.Background(), path); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	data, err := backend.Get(context.Background(), "portrait.jpg")
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("stored file is not a valid jpeg: %v", err)
	}

	// The original stays unless deletion is configured.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("original should remain: %v", err)
	}
}

func TestIngest_FormatConversion(t *testing.T) {
	inputDir := t.TempDir()
	backend := newBackend(t)

	w, err := watcher.New(watcher.Config{
		InputDir:      inputDir,
		StorageFormat: core.FormatPNG,
	}, newTestExecutor(t), backend, watchLimits)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := newJPEGFile(t, inputDir, "photo.jpg")
	if err := w.Ingest(context.Background(), path); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// The key carries the storage format's extension, not the source's.
	if _, err := backend.Get(context.Background(), "photo.png"); err != nil {
		t.Errorf("converted file missing: %v", err)
	}
}

func TestIngest_DeleteOriginal(t *testing.T) {
	inputDir := t.TempDir()
	backend := newBackend(t)

	w, err := watcher.New(watcher.Config{
		InputDir:       inputDir,
		StorageFormat:  core.FormatJPEG,
		DeleteOriginal: true,
	}, newTestExecutor(t), backend, watchLimits)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := newJPEGFile(t, inputDir, "tmp.jpg")
	if err := w.Ingest(context.Background(), path); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original should be removed after ingest")
	}
}

func TestIngest_SkipsNonImages(t *testing.T) {
	inputDir := t.TempDir()
	backend := newBackend(t)

	w, err := watcher.New(watcher.Config{
		InputDir:      inputDir,
		StorageFormat: core.FormatJPEG,
	}, newTestExecutor(t), backend, watchLimits)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path := filepath.Join(inputDir, "notes.txt")
	if err := os.WriteFile(path, []byte("not an image, just text"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Ingest(context.Background(), path); err != nil {
		t.Errorf("non-image files should be skipped silently: %v", err)
	}
	if _, err := backend.Get(context.Background(), "notes.jpg"); err == nil {
		t.Error("nothing should have been stored for a text file")
	}
}

func TestStart_ScansExistingFiles(t *testing.T) {
	inputDir := t.TempDir()
	backend := newBackend(t)

	newJPEGFile(t, inputDir, "one.jpg")
	newJPEGFile(t, inputDir, "two.jpg")

	w, err := watcher.New(watcher.Config{
		InputDir:      inputDir,
		StorageFormat: core.FormatJPEG,
	}, newTestExecutor(t), backend, watchLimits)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	for _, key := range []string{"one.jpg", "two.jpg"} {
		if _, err := backend.Get(context.Background(), key); err != nil {
			t.Errorf("pre-existing file %s was not ingested: %v", key, err)
		}
	}
}

func TestWatch_IngestsNewFiles(t *testing.T) {
	inputDir := t.TempDir()
	backend := newBackend(t)

	w, err := watcher.New(watcher.Config{
		InputDir:      inputDir,
		StorageFormat: core.FormatJPEG,
		SettleDelay:   10 * time.Millisecond,
	}, newTestExecutor(t), backend, watchLimits)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	newJPEGFile(t, inputDir, "dropped.jpg")

	deadline := time.After(3 * time.Second)
	for {
		if _, err := backend.Get(context.Background(), "dropped.jpg"); err == nil {
			return
		}
		select {
		case <-deadline:
			t.Fatal("dropped file was not ingested in time")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
