package encoder

import (
	"bytes"
	"context"
	"image/png"

	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
)

// PNG encodes images to PNG format.  Quality options are ignored; PNG is
// lossless and normalization strips quality before it reaches here.
type PNG struct{}

// NewPNG returns an initialised PNG encoder.
func NewPNG() *PNG { return &PNG{} }

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, img *core.RasterImage, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncode, "png.encode", err)
	}
	if img.Image == nil {
		return nil, apperrors.New(apperrors.KindEncode, "png.encode", apperrors.ErrEmptyInput)
	}

	enc := &png.Encoder{CompressionLevel: png.DefaultCompression}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img.Image); err != nil {
		return nil, apperrors.Wrap(apperrors.KindEncode, "png.encode", err)
	}
	return buf.Bytes(), nil
}
