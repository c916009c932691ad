package decoder

import (
	"context"
	"io"

	"golang.org/x/image/webp"

	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
)

// WebP decodes WebP images using golang.org/x/image/webp.
// NOTE: x/image/webp does not handle animated WebP; route those through the
// vips backend.
type WebP struct{}

// NewWebP returns an initialised WebP decoder.
func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanDecode(format core.Format) bool {
	return format == core.FormatWebP
}

func (w *WebP) Decode(ctx context.Context, r io.Reader) (*core.RasterImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "webp.decode", err)
	}

	img, err := webp.Decode(r)
	if err != nil {
		return nil, apperrors.Newf(apperrors.KindDecode, "webp.decode",
			"%w: %v", apperrors.ErrCorruptData, err)
	}

	return &core.RasterImage{Image: img, Format: core.FormatWebP}, nil
}
