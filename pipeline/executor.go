// Package pipeline runs the deterministic decode → resize → encode sequence
// for one transform descriptor against one source image.
package pipeline

import (
	"context"
	"image"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/pixelserve/pixelserve/core"
	apperrors "github.com/pixelserve/pixelserve/errors"
	"github.com/pixelserve/pixelserve/utils"
)

// Stage names reported to hooks and metrics.
const (
	StageDecode = "decode"
	StageResize = "resize"
	StageEncode = "encode"
)

// Executor orchestrates one pipeline run.  Safe for concurrent use.
//
// Resampling is fixed per backend so identical requests yield identical
// output: Catmull-Rom for stdlib rasters, Lanczos3 inside the vips backend.
type Executor struct {
	reg    core.Registry
	limits core.Limits
	hooks  []core.Hook
}

// NewExecutor creates an Executor bound to a codec registry.
func NewExecutor(reg core.Registry, limits core.Limits) *Executor {
	return &Executor{reg: reg, limits: limits}
}

// AddHook registers a stage observer.  Call before the executor is shared.
func (e *Executor) AddHook(h core.Hook) { e.hooks = append(e.hooks, h) }

// Execute transforms src according to d.  Every stage failure aborts the
// whole run; no partial result escapes.  Resource guards run before the
// expensive stages they protect.
func (e *Executor) Execute(ctx context.Context, src []byte, d core.Descriptor) (*core.TransformResult, error) {
	if len(src) == 0 {
		return nil, apperrors.New(apperrors.KindDecode, "pipeline.execute", apperrors.ErrEmptyInput)
	}
	if e.limits.MaxSourceBytes > 0 && int64(len(src)) > e.limits.MaxSourceBytes {
		return nil, apperrors.Newf(apperrors.KindResourceExhausted, "pipeline.execute",
			"%w: %d > %d bytes", apperrors.ErrSourceTooLarge, len(src), e.limits.MaxSourceBytes)
	}

	// The source format is sniffed from content; client hints are not
	// trusted.
	srcFormat := core.Format(utils.DetectFormat(src))

	raster, err := e.decode(ctx, src, srcFormat)
	if err != nil {
		return nil, err
	}
	defer raster.Close()

	// Pass-through: no resize, same container, lossless target.  The source
	// bytes are already the result, but only now that they decoded cleanly;
	// a valid magic number alone proves nothing.
	if d.Width == 0 && d.Height == 0 && srcFormat == d.Format && !d.Format.Lossy() {
		return &core.TransformResult{
			Bytes:        utils.CloneBytes(src),
			ContentType:  d.Format.ContentType(),
			Format:       d.Format,
			Width:        raster.Width(),
			Height:       raster.Height(),
			SourceFormat: srcFormat,
		}, nil
	}

	plan := planFit(raster.Width(), raster.Height(), d)
	if e.limits.MaxPixels > 0 && int64(plan.ResizeW)*int64(plan.ResizeH) > e.limits.MaxPixels {
		return nil, apperrors.Newf(apperrors.KindResourceExhausted, "pipeline.resize",
			"%w: %dx%d", apperrors.ErrTooManyPixels, plan.ResizeW, plan.ResizeH)
	}

	if !plan.noop(raster.Width(), raster.Height()) {
		if err := e.resize(ctx, raster, plan); err != nil {
			return nil, err
		}
	}

	data, err := e.encode(ctx, raster, d)
	if err != nil {
		return nil, err
	}

	return &core.TransformResult{
		Bytes:        data,
		ContentType:  d.Format.ContentType(),
		Format:       d.Format,
		Width:        raster.Width(),
		Height:       raster.Height(),
		SourceFormat: srcFormat,
	}, nil
}

func (e *Executor) decode(ctx context.Context, src []byte, f core.Format) (*core.RasterImage, error) {
	dec, ok := e.reg.DecoderFor(f)
	if !ok {
		return nil, apperrors.Newf(apperrors.KindDecode, StageDecode,
			"%w: %s", apperrors.ErrUnsupportedFormat, f)
	}

	e.notifyBefore(ctx, StageDecode)
	start := time.Now()
	raster, err := dec.Decode(ctx, utils.BytesReader(src))
	e.notifyAfter(ctx, StageDecode, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	raster.Format = f
	return raster, nil
}

func (e *Executor) resize(ctx context.Context, raster *core.RasterImage, plan fitPlan) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, StageResize, err)
	}

	e.notifyBefore(ctx, StageResize)
	start := time.Now()
	var err error
	if raster.Native != nil {
		err = resizeNative(raster.Native, plan)
	} else {
		raster.Image, err = resizeStdlib(raster.Image, plan)
	}
	e.notifyAfter(ctx, StageResize, time.Since(start), err)
	return err
}

func resizeNative(r core.Raster, plan fitPlan) error {
	sx := float64(plan.ResizeW) / float64(r.Width())
	sy := float64(plan.ResizeH) / float64(r.Height())
	if err := r.Scale(sx, sy); err != nil {
		return apperrors.Wrap(apperrors.KindInternal, StageResize, err)
	}
	if plan.Crop != nil {
		c := *plan.Crop
		if err := r.Crop(c.Min.X, c.Min.Y, c.Dx(), c.Dy()); err != nil {
			return apperrors.Wrap(apperrors.KindInternal, StageResize, err)
		}
	}
	return nil
}

func resizeStdlib(src image.Image, plan fitPlan) (image.Image, error) {
	srcB := src.Bounds()
	scaled := src
	if plan.ResizeW != srcB.Dx() || plan.ResizeH != srcB.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, plan.ResizeW, plan.ResizeH))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, srcB, xdraw.Src, nil)
		scaled = dst
	}
	if plan.Crop == nil {
		return scaled, nil
	}
	c := *plan.Crop
	dst := image.NewRGBA(image.Rect(0, 0, c.Dx(), c.Dy()))
	xdraw.Copy(dst, image.Point{}, scaled, c, xdraw.Src, nil)
	return dst, nil
}

func (e *Executor) encode(ctx context.Context, raster *core.RasterImage, d core.Descriptor) ([]byte, error) {
	enc, ok := e.reg.EncoderFor(d.Format)
	if !ok {
		return nil, apperrors.Newf(apperrors.KindEncode, StageEncode,
			"%w: %s", apperrors.ErrUnsupportedFormat, d.Format)
	}

	// Multi-format backends encode to the raster's current Format.
	raster.Format = d.Format

	e.notifyBefore(ctx, StageEncode)
	start := time.Now()
	data, err := enc.Encode(ctx, raster, core.EncodeOptions{Quality: d.Quality})
	e.notifyAfter(ctx, StageEncode, time.Since(start), err)
	return data, err
}

func (e *Executor) notifyBefore(ctx context.Context, stage string) {
	for _, h := range e.hooks {
		h.BeforeStage(ctx, stage)
	}
}

func (e *Executor) notifyAfter(ctx context.Context, stage string, d time.Duration, err error) {
	for _, h := range e.hooks {
		h.AfterStage(ctx, stage, d, err)
	}
}
