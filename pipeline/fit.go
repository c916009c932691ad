package pipeline

import (
	"image"
	"math"

	"github.com/pixelserve/pixelserve/core"
	"github.com/pixelserve/pixelserve/utils"
)

// fitPlan is the geometry for one resize: scale to (ResizeW, ResizeH), then
// optionally crop the centred rectangle.
type fitPlan struct {
	ResizeW int
	ResizeH int
	Crop    *image.Rectangle
}

func (p fitPlan) noop(srcW, srcH int) bool {
	return p.Crop == nil && p.ResizeW == srcW && p.ResizeH == srcH
}

// outputSize returns the final dimensions after resize and crop.
func (p fitPlan) outputSize() (int, int) {
	if p.Crop != nil {
		return p.Crop.Dx(), p.Crop.Dy()
	}
	return p.ResizeW, p.ResizeH
}

// planFit computes the resize/crop geometry for d against a srcW×srcH source.
// With a single axis requested, every fit mode degenerates to an
// aspect-preserving scale on that axis.
func planFit(srcW, srcH int, d core.Descriptor) fitPlan {
	if d.Width == 0 && d.Height == 0 {
		return fitPlan{ResizeW: srcW, ResizeH: srcH}
	}
	if d.Width == 0 || d.Height == 0 {
		w, h := utils.ScaleDimensions(srcW, srcH, d.Width, d.Height)
		return fitPlan{ResizeW: w, ResizeH: h}
	}

	switch d.Fit {
	case core.FitStretch:
		return fitPlan{ResizeW: d.Width, ResizeH: d.Height}

	case core.FitCover:
		scale := math.Max(
			float64(d.Width)/float64(srcW),
			float64(d.Height)/float64(srcH),
		)
		w := max(d.Width, int(math.Round(float64(srcW)*scale)))
		h := max(d.Height, int(math.Round(float64(srcH)*scale)))
		crop := image.Rect(0, 0, d.Width, d.Height).Add(image.Pt((w-d.Width)/2, (h-d.Height)/2))
		return fitPlan{ResizeW: w, ResizeH: h, Crop: &crop}

	default: // core.FitContain
		scale := math.Min(
			float64(d.Width)/float64(srcW),
			float64(d.Height)/float64(srcH),
		)
		w := min(d.Width, max(1, int(math.Round(float64(srcW)*scale))))
		h := min(d.Height, max(1, int(math.Round(float64(srcH)*scale))))
		return fitPlan{ResizeW: w, ResizeH: h}
	}
}
