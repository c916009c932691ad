package core

import (
	"image"

	apperrors "github.com/pixelserve/pixelserve/errors"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatAVIF    Format = "avif"
	FormatUnknown Format = "unknown"
)

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "jpeg", "jpg", "JPEG", "JPG":
		return FormatJPEG, nil
	case "png", "PNG":
		return FormatPNG, nil
	case "webp", "WEBP":
		return FormatWebP, nil
	case "avif", "AVIF":
		return FormatAVIF, nil
	}
	return FormatUnknown, apperrors.Newf(apperrors.KindInvalidParameter,
		"format.parse", "%w: %q", apperrors.ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	}
	return "application/octet-stream"
}

// Extension returns the canonical file extension, dot included.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	case FormatWebP:
		return ".webp"
	case FormatAVIF:
		return ".avif"
	}
	return ""
}

// Lossy reports whether the format takes a quality parameter.
func (f Format) Lossy() bool {
	switch f {
	case FormatJPEG, FormatWebP, FormatAVIF:
		return true
	}
	return false
}

// Fit selects how requested dimensions reconcile with the source aspect ratio.
type Fit string

const (
	// FitCover scales to fill the target box, then crops centred.
	FitCover Fit = "cover"
	// FitContain scales to fit within the target box, preserving aspect.
	FitContain Fit = "contain"
	// FitStretch resizes to the exact target box, ignoring aspect.
	FitStretch Fit = "stretch"
)

// ParseFit maps a fit mode name to a Fit.  Empty input selects the default
// at normalization time.
func ParseFit(s string) (Fit, error) {
	switch s {
	case "":
		return "", nil
	case "cover":
		return FitCover, nil
	case "contain":
		return FitContain, nil
	case "stretch":
		return FitStretch, nil
	}
	return "", apperrors.Newf(apperrors.KindInvalidParameter,
		"fit.parse", "unknown fit mode %q", s)
}

// Limits bounds per-request resource usage.
type Limits struct {
	MaxDimension   int   // largest accepted width or height in pixels
	MaxSourceBytes int64 // largest accepted source buffer; 0 = no limit
	MaxPixels      int64 // largest computed target pixel count; 0 = no limit
	DefaultQuality int   // applied to lossy targets when the request omits quality
}

// Raster is a backend-native decoded image.  CGO backends wrap their own
// handle; operations mutate in place.
type Raster interface {
	Width() int
	Height() int
	// Scale resizes by independent horizontal and vertical factors.
	Scale(sx, sy float64) error
	// Crop extracts the rectangle at (x, y) with the given size.
	Crop(x, y, w, h int) error
	Close()
}

// RasterImage is the decoded pixel representation passed between pipeline
// stages.  Exactly one of Image and Native is set.
type RasterImage struct {
	Image  image.Image
	Native Raster
	Format Format // detected source format
}

func (r *RasterImage) Width() int {
	if r.Native != nil {
		return r.Native.Width()
	}
	return r.Image.Bounds().Dx()
}

func (r *RasterImage) Height() int {
	if r.Native != nil {
		return r.Native.Height()
	}
	return r.Image.Bounds().Dy()
}

// Close releases backend-native resources.  Safe to call on stdlib rasters.
func (r *RasterImage) Close() {
	if r.Native != nil {
		r.Native.Close()
	}
}

// TransformResult is the output of one pipeline execution.
type TransformResult struct {
	Bytes        []byte
	ContentType  string
	Format       Format
	Width        int
	Height       int
	SourceFormat Format
}
