// Package decoder provides format-specific image decoders.
package decoder

import (
	"context"
	"image/jpeg"
	"io"

	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
)

// JPEG decodes JPEG images using the standard library.
type JPEG struct{}

// NewJPEG returns an initialised JPEG decoder.
func NewJPEG() *JPEG { return &JPEG{} }

func (j *JPEG) CanDecode(format core.Format) bool {
	return format == core.FormatJPEG
}

func (j *JPEG) Decode(ctx context.Context, r io.Reader) (*core.RasterImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "jpeg.decode", err)
	}

	img, err := jpeg.Decode(r)
	if err != nil {
		// Truncated or malformed input fails atomically; nothing of the
		// partial decode escapes.
		return nil, apperrors.Newf(apperrors.KindDecode, "jpeg.decode",
			"%w: %v", apperrors.ErrCorruptData, err)
	}

	return &core.RasterImage{Image: img, Format: core.FormatJPEG}, nil
}
