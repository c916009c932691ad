package decoder

import (
	"context"
	"image/png"
	"io"

	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
)

// PNG decodes PNG images using the standard library.
type PNG struct{}

// NewPNG returns an initialised PNG decoder.
func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanDecode(format core.Format) bool {
	return format == core.FormatPNG
}

func (p *PNG) Decode(ctx context.Context, r io.Reader) (*core.RasterImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDecode, "png.decode", err)
	}

	img, err := png.Decode(r)
	if err != nil {
		return nil, apperrors.Newf(apperrors.KindDecode, "png.decode",
			"%w: %v", apperrors.ErrCorruptData, err)
	}

	return &core.RasterImage{Image: img, Format: core.FormatPNG}, nil
}
