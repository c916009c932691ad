// Package vips provides a libvips-powered codec backend via govips.  It
// covers the formats the pure-Go codecs cannot encode (AVIF, WebP) and
// replaces decode/resize/encode with native implementations when enabled.
package vips

import (
	"context"
	"io"
	"runtime"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
	"github.com/pixelserve/pixelserve/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	DefaultQuality int
	MaxCacheSize   int
	MaxWorkers     int
	ReportLeaks    bool
}

// Backend is a unified libvips-powered Decoder and Encoder.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg BackendConfig
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.DefaultQuality <= 0 {
		cfg.DefaultQuality = 85
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// Formats lists the formats the backend serves.
func Formats() []core.Format {
	return []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP, core.FormatAVIF}
}

// Register wires the backend as decoder and encoder for every format it
// serves, replacing any previously registered codec.
func Register(reg core.Registry, b *Backend) {
	for _, f := range Formats() {
		reg.RegisterDecoder(f, b)
		reg.RegisterEncoder(f, b)
	}
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	for _, s := range Formats() {
		if f == s {
			return true
		}
	}
	return false
}

func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.RasterImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "vips.decode", err)
	}

	buf, err := utils.DrainReader(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Newf(apperrors.KindDecode, "vips.decode",
			"%w: %v", apperrors.ErrCorruptData, err)
	}

	return &core.RasterImage{
		Native: &Raster{ref: ref},
		Format: formatOf(ref.Format()),
	}, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool { return b.CanDecode(f) }

func (b *Backend) Encode(ctx context.Context, img *core.RasterImage, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncode, "vips.encode", err)
	}

	vr, ok := img.Native.(*Raster)
	if !ok || vr == nil {
		return nil, apperrors.Newf(apperrors.KindEncode, "vips.encode",
			"image must be decoded with the vips backend first")
	}

	quality := opts.Quality
	if quality <= 0 {
		quality = b.cfg.DefaultQuality
	}

	// The encode target is the raster's current Format, set by the pipeline.
	switch img.Format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		ep.StripMetadata = true
		buf, _, err := vr.ref.ExportJpeg(ep)
		return buf, apperrors.Wrap(apperrors.KindEncode, "vips.encode.jpeg", err)

	case core.FormatPNG:
		ep := govips.NewPngExportParams()
		ep.StripMetadata = true
		buf, _, err := vr.ref.ExportPng(ep)
		return buf, apperrors.Wrap(apperrors.KindEncode, "vips.encode.png", err)

	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		ep.Lossless = opts.Lossless
		ep.StripMetadata = true
		buf, _, err := vr.ref.ExportWebp(ep)
		return buf, apperrors.Wrap(apperrors.KindEncode, "vips.encode.webp", err)

	case core.FormatAVIF:
		ep := govips.NewAvifExportParams()
		ep.Quality = quality
		ep.StripMetadata = true
		buf, _, err := vr.ref.ExportAvif(ep)
		return buf, apperrors.Wrap(apperrors.KindEncode, "vips.encode.avif", err)

	default:
		return nil, apperrors.Newf(apperrors.KindEncode, "vips.encode",
			"%w: %s", apperrors.ErrUnsupportedFormat, img.Format)
	}
}

// ─── Raster ───────────────────────────────────────────────────────────────────

// Raster wraps a *govips.ImageRef as a core.Raster.  Operations mutate the
// underlying vips image in place.
type Raster struct {
	ref *govips.ImageRef
}

func (r *Raster) Width() int  { return r.ref.Width() }
func (r *Raster) Height() int { return r.ref.Height() }
func (r *Raster) Close()      { r.ref.Close() }

// Scale resizes with independent factors using the Lanczos3 kernel; this is
// the fixed resampler for the vips backend.
func (r *Raster) Scale(sx, sy float64) error {
	return r.ref.ResizeWithVScale(sx, sy, govips.KernelLanczos3)
}

// Crop extracts the rectangle at (x, y) with the given size.
func (r *Raster) Crop(x, y, w, h int) error {
	return r.ref.ExtractArea(x, y, w, h)
}

func formatOf(t govips.ImageType) core.Format {
	switch t {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	case govips.ImageTypeAVIF:
		return core.FormatAVIF
	}
	return core.FormatUnknown
}
